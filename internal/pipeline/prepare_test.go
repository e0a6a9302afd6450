package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terassyi/vx/internal/manifest"
	"github.com/terassyi/vx/internal/platform"
)

func plannedAt(runtime, installPath, executable string) *PlannedRuntime {
	return &PlannedRuntime{
		Runtime:     runtime,
		Version:     "1.0.0",
		Manifest:    &manifest.Manifest{Name: runtime},
		Status:      StatusInstalled,
		InstallPath: installPath,
		Executable:  executable,
	}
}

func TestPrepare_BuildsPathWithPrimaryLast(t *testing.T) {
	python := plannedAt("python", "/store/python/3.12.0", "/store/python/3.12.0/bin/python")
	pipx := plannedAt("pipx", "/store/pipx/1.7.0", "/store/pipx/1.7.0/bin/pipx")
	plan := &ExecutionPlan{Primary: "pipx", Runtimes: []*PlannedRuntime{python, pipx}}

	prepared, err := Prepare(plan, []string{"--version"}, []string{"PATH=/usr/bin"}, nil, "/work", platform.Detect())
	require.NoError(t, err)
	assert.Equal(t, "/store/pipx/1.7.0/bin/pipx", prepared.Executable)
	assert.Equal(t, []string{"--version"}, prepared.Args)
	assert.Equal(t, "/work", prepared.Cwd)

	var pathValue string
	for _, kv := range prepared.Env {
		if len(kv) > 5 && kv[:5] == "PATH=" {
			pathValue = kv
		}
	}
	require.NotEmpty(t, pathValue)
	assert.Contains(t, pathValue, "/store/python/3.12.0/bin")
	assert.Contains(t, pathValue, "/store/pipx/1.7.0/bin")
}

func TestPrepare_ProjectEnvOverridesCaller(t *testing.T) {
	node := plannedAt("node", "/store/node/20.11.0", "/store/node/20.11.0/bin/node")
	plan := &ExecutionPlan{Primary: "node", Runtimes: []*PlannedRuntime{node}}

	prepared, err := Prepare(plan, nil, []string{"NODE_ENV=development"}, map[string]string{"NODE_ENV": "production"}, "/work", platform.Detect())
	require.NoError(t, err)
	assert.Contains(t, prepared.Env, "NODE_ENV=production")
}

func TestPrepare_CommandPrefixDelegation(t *testing.T) {
	uv := plannedAt("uv", "/store/uv/0.4.0", "/store/uv/0.4.0/bin/uv")
	uvx := &PlannedRuntime{
		Runtime:  "uvx",
		Version:  "0.4.0",
		Manifest: &manifest.Manifest{Name: "uvx", CommandPrefix: "uv tool run"},
		Status:   StatusInstalled,
	}
	plan := &ExecutionPlan{Primary: "uvx", Runtimes: []*PlannedRuntime{uv, uvx}}

	prepared, err := Prepare(plan, []string{"ruff", "check", "."}, nil, nil, "/work", platform.Detect())
	require.NoError(t, err)
	assert.Equal(t, "/store/uv/0.4.0/bin/uv", prepared.Executable)
	assert.Equal(t, []string{"tool", "run", "ruff", "check", "."}, prepared.Args)
}

func TestPrepare_MissingPrimaryErrors(t *testing.T) {
	plan := &ExecutionPlan{Primary: "node"}
	_, err := Prepare(plan, nil, nil, nil, "/work", platform.Detect())
	assert.Error(t, err)
}

func TestPrepare_UnresolvedExecutableErrors(t *testing.T) {
	node := &PlannedRuntime{Runtime: "node", Manifest: &manifest.Manifest{Name: "node"}, Status: StatusNeedsInstall}
	plan := &ExecutionPlan{Primary: "node", Runtimes: []*PlannedRuntime{node}}
	_, err := Prepare(plan, nil, nil, nil, "/work", platform.Detect())
	assert.Error(t, err)
}
