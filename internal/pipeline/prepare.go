package pipeline

import (
	"os"
	"path/filepath"
	"strings"

	vxerrors "github.com/terassyi/vx/internal/errors"
	"github.com/terassyi/vx/internal/platform"
)

// Prepare implements the Prepare stage: build the PATH, merge environment
// layers, and resolve the final executable and argument vector for the
// primary runtime, applying command_prefix delegation when the manifest
// declares one.
//
// env layers are applied caller -> project, the project layer overriding
// the caller's value for the same key; callerEnv is the baseline (normally
// os.Environ()).
func Prepare(plan *ExecutionPlan, args []string, callerEnv []string, projectEnv map[string]string, cwd string, p platform.Platform) (*PreparedExecution, error) {
	primary := plan.primaryRuntime()
	if primary == nil {
		return nil, vxerrors.New(vxerrors.CategoryDependency, vxerrors.CodeMissingDependency, "primary runtime missing from execution plan").
			WithStage(vxerrors.StagePrepare).WithDetail("runtime", plan.Primary)
	}

	mergedEnv := mergeEnv(callerEnv, projectEnv)
	mergedEnv = prependPath(mergedEnv, binDirsInOrder(plan, primary))

	var executable string
	finalArgs := args

	// command_prefix delegation: a provider with no executable of its own
	// (e.g. uvx) names the runtime and fixed args it runs through instead
	// ("uv tool run"); the user's own args follow unchanged, so
	// `vx uvx ruff check` becomes `uv tool run ruff check`.
	if primary.Manifest.IsDelegation() {
		prefixParts := strings.Fields(primary.Manifest.CommandPrefix)
		delegate := plan.find(prefixParts[0])
		if delegate == nil || delegate.Executable == "" {
			return nil, vxerrors.New(vxerrors.CategoryDependency, vxerrors.CodeMissingDependency, "command_prefix delegate is not in the execution plan").
				WithStage(vxerrors.StagePrepare).WithDetail("runtime", primary.Runtime).WithDetail("command_prefix", primary.Manifest.CommandPrefix)
		}
		executable = delegate.Executable
		finalArgs = append(append([]string{}, prefixParts[1:]...), args...)
	} else {
		if primary.Executable == "" {
			return nil, vxerrors.New(vxerrors.CategoryInstall, vxerrors.CodeNotFound, "primary runtime has no resolved executable").
				WithStage(vxerrors.StagePrepare).WithDetail("runtime", primary.Runtime)
		}
		executable = primary.Executable
	}

	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, vxerrors.Wrap(vxerrors.CategoryState, vxerrors.CodeStateError, "failed to determine working directory", err).
				WithStage(vxerrors.StagePrepare)
		}
		cwd = wd
	}

	return &PreparedExecution{
		Executable: executable,
		Args:       finalArgs,
		Env:        mergedEnv,
		Cwd:        cwd,
	}, nil
}

// binDirsInOrder lists every planned runtime's bin directory in the order
// they end up on PATH when each is prepended in install order with the
// primary runtime prepended last: the primary first, then the dependencies in
// reverse install order, so the primary's own tools shadow a dependency's
// same-named executables on PATH.
func binDirsInOrder(plan *ExecutionPlan, primary *PlannedRuntime) []string {
	var dirs []string
	if primary.InstallPath != "" {
		dirs = append(dirs, binDirFor(primary))
	}
	for i := len(plan.Runtimes) - 1; i >= 0; i-- {
		r := plan.Runtimes[i]
		if r.Runtime == primary.Runtime || r.InstallPath == "" {
			continue
		}
		dirs = append(dirs, binDirFor(r))
	}
	return dirs
}

// binDirFor returns the directory containing a planned runtime's resolved
// executable (the manifest may nest it inside a version-named subdirectory).
func binDirFor(r *PlannedRuntime) string {
	if r.Executable == "" {
		return r.InstallPath
	}
	return filepath.Dir(r.Executable)
}

func prependPath(env []string, dirs []string) []string {
	if len(dirs) == 0 {
		return env
	}
	const pathKey = "PATH="
	existing := os.Getenv("PATH")
	out := make([]string, 0, len(env))
	found := false
	for _, kv := range env {
		if strings.HasPrefix(kv, pathKey) {
			existing = strings.TrimPrefix(kv, pathKey)
			out = append(out, pathKey+strings.Join(dirs, string(os.PathListSeparator))+string(os.PathListSeparator)+existing)
			found = true
			continue
		}
		out = append(out, kv)
	}
	if !found {
		out = append(out, pathKey+strings.Join(dirs, string(os.PathListSeparator))+string(os.PathListSeparator)+existing)
	}
	return out
}

// mergeEnv layers project-declared variables on top of the caller's
// environment, later layers winning on key collision.
func mergeEnv(callerEnv []string, projectEnv map[string]string) []string {
	merged := make(map[string]string, len(callerEnv)+len(projectEnv))
	var order []string
	for _, kv := range callerEnv {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if _, exists := merged[k]; !exists {
			order = append(order, k)
		}
		merged[k] = v
	}
	for k, v := range projectEnv {
		if _, exists := merged[k]; !exists {
			order = append(order, k)
		}
		merged[k] = v
	}
	out := make([]string, 0, len(order))
	for _, k := range order {
		out = append(out, k+"="+merged[k])
	}
	return out
}
