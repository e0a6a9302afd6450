//nolint:revive // Package name intentionally shadows stdlib errors for convenience.
package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name: "without cause",
			err: &Error{
				Category: CategoryDependency,
				Code:     CodeCyclicDependency,
				Message:  "circular dependency detected",
			},
			expected: "circular dependency detected",
		},
		{
			name: "with cause",
			err: &Error{
				Category: CategoryConfig,
				Code:     CodeConfigParse,
				Message:  "failed to parse manifest",
				Cause:    errors.New("invalid syntax"),
			},
			expected: "failed to parse manifest: invalid syntax",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("underlying error")
	err := &Error{
		Category: CategoryInstall,
		Code:     CodeInstallFailed,
		Message:  "install failed",
		Cause:    cause,
	}

	require.Equal(t, cause, err.Unwrap())
}

func TestError_Is(t *testing.T) {
	t.Parallel()

	byCode := New(CategoryInstall, CodeChecksumMismatch, "mismatch")
	sameCode := New(CategoryNetwork, CodeChecksumMismatch, "different message, same code")
	differentCode := New(CategoryInstall, CodeInstallFailed, "mismatch")

	assert.True(t, byCode.Is(sameCode))
	assert.False(t, byCode.Is(differentCode))

	byMessage := &Error{Category: CategoryConfig, Message: "bad toml"}
	sameMessage := &Error{Category: CategoryConfig, Message: "bad toml"}
	assert.True(t, byMessage.Is(sameMessage))
}

func TestError_ChainableBuilders(t *testing.T) {
	t.Parallel()

	err := New(CategoryDependency, CodeCyclicDependency, "cycle detected").
		WithStage(StageResolve).
		WithHint("break the cycle by removing one constraint edge").
		WithDetail("runtimes", []string{"node", "npm", "node"})

	assert.Equal(t, StageResolve, err.Stage)
	assert.Equal(t, "break the cycle by removing one constraint edge", err.Hint)
	assert.Equal(t, []string{"node", "npm", "node"}, err.Details["runtimes"])
}

func TestError_ExitCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *Error
		want int
	}{
		{"version not found", New(CategoryRegistry, CodeVersionNotFound, "no such version"), 4},
		{"executable missing", New(CategoryInstall, CodeNotFound, "exe missing"), 127},
		{"config error", New(CategoryConfig, CodeConfigParse, "bad toml"), 2},
		{"validation error", New(CategoryValidation, CodeValidationFailed, "bad field"), 2},
		{"dependency error", New(CategoryDependency, CodeCyclicDependency, "cycle"), 2},
		{"install error", New(CategoryInstall, CodeInstallFailed, "boom"), 3},
		{"network error", New(CategoryNetwork, CodeNetworkFailed, "timeout"), 3},
		{"state error", New(CategoryState, CodeStateLocked, "locked"), 3},
		{"registry error", New(CategoryRegistry, CodeRegistryError, "bad manifest"), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, tt.err.ExitCode())
		})
	}
}

func TestWrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: timeout")
	wrapped := Wrap(CategoryNetwork, CodeNetworkFailed, "failed to download release", cause)

	require.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "failed to download release: dial tcp: timeout", wrapped.Error())
}
