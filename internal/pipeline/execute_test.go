package pipeline

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute_SuccessReturnsZero(t *testing.T) {
	prepared := &PreparedExecution{Executable: "/bin/sh", Args: []string{"-c", "exit 0"}, Cwd: t.TempDir()}
	code, err := Execute(context.Background(), prepared, os.Stdin, os.Stdout, os.Stderr)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

func TestExecute_NonZeroExitPropagates(t *testing.T) {
	prepared := &PreparedExecution{Executable: "/bin/sh", Args: []string{"-c", "exit 7"}, Cwd: t.TempDir()}
	code, err := Execute(context.Background(), prepared, os.Stdin, os.Stdout, os.Stderr)
	require.NoError(t, err)
	assert.Equal(t, 7, code)
}

func TestExecute_MissingExecutableReturns127(t *testing.T) {
	prepared := &PreparedExecution{Executable: "/no/such/executable-vx-test", Cwd: t.TempDir()}
	code, err := Execute(context.Background(), prepared, os.Stdin, os.Stdout, os.Stderr)
	assert.Error(t, err)
	assert.Equal(t, 127, code)
}
