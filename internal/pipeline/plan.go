// Package pipeline implements vx's Execution Pipeline: the four-stage
// Resolve → Ensure → Prepare → Execute chain that turns a bare
// "name[@version] [args...]" request into a running child process.
package pipeline

import (
	"github.com/terassyi/vx/internal/manifest"
)

// InstallStatus describes whether a planned runtime still needs installing.
type InstallStatus int

const (
	StatusNeedsInstall InstallStatus = iota
	StatusInstalled
)

// PlannedRuntime is one runtime in install order inside an ExecutionPlan.
type PlannedRuntime struct {
	Runtime     string
	Version     string
	Source      string // resolver.Resolved.Source: how the version was chosen
	Manifest    *manifest.Manifest
	Status      InstallStatus
	InstallPath string // populated by Ensure
	Executable  string // populated by Ensure
}

// ExecutionPlan is the Resolve stage's output: every runtime this request
// transitively needs, in install order (dependencies before dependents).
type ExecutionPlan struct {
	Primary  string // the runtime name the user actually invoked
	Runtimes []*PlannedRuntime
}

// find looks a runtime up in the plan by name, or returns nil.
func (p *ExecutionPlan) find(name string) *PlannedRuntime {
	for _, r := range p.Runtimes {
		if r.Runtime == name {
			return r
		}
	}
	return nil
}

// primaryRuntime returns the plan entry for the invoked runtime.
func (p *ExecutionPlan) primaryRuntime() *PlannedRuntime {
	return p.find(p.Primary)
}

// PreparedExecution is the Prepare stage's output: everything Execute needs
// to spawn the child process.
type PreparedExecution struct {
	Executable string
	Args       []string // prefix_args ++ user_args
	Env        []string
	Cwd        string
}
