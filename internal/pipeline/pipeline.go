package pipeline

import (
	"context"
	"os"

	"github.com/terassyi/vx/internal/archive"
	vxerrors "github.com/terassyi/vx/internal/errors"
	"github.com/terassyi/vx/internal/manifest"
	"github.com/terassyi/vx/internal/platform"
	"github.com/terassyi/vx/internal/store"
)

// Pipeline composes the four Execution Pipeline stages (Resolve, Ensure,
// Prepare, Execute) behind the dependencies each stage needs, so a caller
// (cmd/vx) only has to build one of these and call Run.
type Pipeline struct {
	Registry    *manifest.Registry
	Versions    VersionSource
	Store       *store.Store
	Downloader  *archive.Downloader
	Platform    platform.Platform
	Parallelism int
	Handler     EventHandler
}

// RunRequest is one invocation's input: the runtime the caller asked for,
// its arguments, and the environment/working-directory context to prepare
// the child process with.
type RunRequest struct {
	Resolve    ResolveRequest
	Args       []string
	CallerEnv  []string
	ProjectEnv map[string]string
	Cwd        string

	// DryRun stops after Prepare and returns the plan and prepared
	// execution without spawning a child process.
	DryRun bool
}

// RunResult is what Run produces: the plan Resolve built, the execution
// Prepare assembled, and (unless DryRun) the child's exit code.
type RunResult struct {
	Plan     *ExecutionPlan
	Prepared *PreparedExecution
	ExitCode int
}

// Run drives a single request through Resolve -> Ensure -> Prepare ->
// Execute, stopping early the first time a stage errors and returning that
// stage's error unchanged. Errors the stage code builds itself carry the stage
// in their Stage field; errors passed up from the store, the extractors or the
// context carry no stage and need not be *vxerrors.Error values.
func (p *Pipeline) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	plan, err := Resolve(ctx, req.Resolve, p.Registry, p.Versions, p.Store, p.Handler)
	if err != nil {
		return nil, err
	}

	if err := Ensure(ctx, plan, p.Store, p.Downloader, p.Platform, p.Parallelism, p.Handler); err != nil {
		return nil, err
	}

	prepared, err := Prepare(plan, req.Args, req.CallerEnv, req.ProjectEnv, req.Cwd, p.Platform)
	if err != nil {
		return nil, err
	}

	result := &RunResult{Plan: plan, Prepared: prepared}
	if req.DryRun {
		return result, nil
	}

	emit(p.Handler, Event{Type: EventStart, Stage: vxerrors.StageExecute, Runtime: plan.Primary})
	code, err := Execute(ctx, prepared, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		emit(p.Handler, Event{Type: EventError, Stage: vxerrors.StageExecute, Runtime: plan.Primary, Error: err})
		return result, err
	}
	emit(p.Handler, Event{Type: EventComplete, Stage: vxerrors.StageExecute, Runtime: plan.Primary})

	result.ExitCode = code
	return result, nil
}
