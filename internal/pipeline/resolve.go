package pipeline

import (
	"context"

	vxerrors "github.com/terassyi/vx/internal/errors"
	"github.com/terassyi/vx/internal/graph"
	"github.com/terassyi/vx/internal/manifest"
	"github.com/terassyi/vx/internal/resolver"
	"github.com/terassyi/vx/internal/versionfetch"
)

// ResolveRequest is the Resolve stage's input: the runtime the caller
// invoked, plus any dependencies an earlier stage already knows must also
// be present (rare — reserved for callers composing their own plans).
type ResolveRequest struct {
	Runtime      string
	Version      string   // empty or "latest" defers to the manifest/project default
	ExplicitDeps []string // extra runtime names to resolve alongside Runtime

	// ProjectExact/ProjectRange/LockedVersion mirror resolver.Request and
	// let a project config or lockfile override the bare request.
	ProjectExact  string
	ProjectRange  string
	LockedVersion string
}

// VersionSource supplies the available upstream versions for a runtime
// (normally internal/versionfetch.Cache.Fetch), including each version's
// prerelease/LTS metadata so the resolver can honor channel requests.
type VersionSource interface {
	AvailableVersions(ctx context.Context, runtime string) ([]versionfetch.VersionInfo, error)
}

// InstallChecker reports whether a (runtime, version) is already installed
// (normally internal/store.Store.IsInstalled).
type InstallChecker interface {
	IsInstalled(runtime, version string) bool
}

// Resolve implements the Resolve stage: look up the primary runtime in the
// registry, resolve its version, expand the dependency worklist declared by
// manifests, detect cycles, and return an ExecutionPlan in install order.
func Resolve(ctx context.Context, req ResolveRequest, registry *manifest.Registry, versions VersionSource, installed InstallChecker, handler EventHandler) (*ExecutionPlan, error) {
	emit(handler, Event{Type: EventStart, Stage: vxerrors.StageResolve, Runtime: req.Runtime})

	primaryManifest, ok := registry.Resolve(req.Runtime)
	if !ok {
		err := vxerrors.New(vxerrors.CategoryRegistry, vxerrors.CodeRegistryError, "runtime not found").
			WithStage(vxerrors.StageResolve).WithDetail("runtime", req.Runtime)
		emit(handler, Event{Type: EventError, Stage: vxerrors.StageResolve, Runtime: req.Runtime, Error: err})
		return nil, err
	}

	solver := graph.NewSolver()
	resolved := make(map[string]*PlannedRuntime)

	// resolveOne resolves nameOrAlias and everything it transitively depends
	// on, keyed throughout by the manifest's canonical Name so an alias and
	// its canonical name never produce two separate graph nodes.
	var resolveOne func(nameOrAlias string, requested string) error
	resolveOne = func(nameOrAlias string, requested string) error {
		m, ok := registry.Resolve(nameOrAlias)
		if !ok {
			return vxerrors.New(vxerrors.CategoryRegistry, vxerrors.CodeRegistryError, "dependency runtime not found").
				WithStage(vxerrors.StageResolve).WithDetail("runtime", nameOrAlias)
		}
		if _, done := resolved[m.Name]; done {
			return nil
		}

		available, err := versions.AvailableVersions(ctx, m.Name)
		if err != nil {
			return vxerrors.Wrap(vxerrors.CategoryNetwork, vxerrors.CodeNetworkFailed, "failed to fetch available versions", err).
				WithStage(vxerrors.StageResolve).WithDetail("runtime", m.Name)
		}

		rv, err := resolver.Resolve(resolver.Request{
			Runtime:       m.Name,
			Requested:     requested,
			ProjectExact:  req.ProjectExact,
			ProjectRange:  req.ProjectRange,
			LockedVersion: req.LockedVersion,
		}, available)
		if err != nil {
			return err
		}

		status := StatusNeedsInstall
		if installed != nil && installed.IsInstalled(m.Name, rv.Version) {
			status = StatusInstalled
		}

		planned := &PlannedRuntime{
			Runtime:  m.Name,
			Version:  rv.Version,
			Source:   rv.Source,
			Manifest: m,
			Status:   status,
		}
		resolved[m.Name] = planned

		deps := make([]string, 0, len(m.Dependencies))
		for _, dep := range m.Dependencies {
			depManifest, ok := registry.Resolve(dep.Runtime)
			if !ok {
				return vxerrors.New(vxerrors.CategoryRegistry, vxerrors.CodeRegistryError, "dependency runtime not found").
					WithStage(vxerrors.StageResolve).WithDetail("runtime", dep.Runtime)
			}
			deps = append(deps, depManifest.Name)
			if err := resolveOne(dep.Runtime, dep.Constraint); err != nil {
				return err
			}
		}
		solver.AddRuntime(graph.RuntimeDependencies{Runtime: m.Name, Dependencies: deps})

		return nil
	}

	if err := resolveOne(primaryManifest.Name, req.Version); err != nil {
		emit(handler, Event{Type: EventError, Stage: vxerrors.StageResolve, Runtime: req.Runtime, Error: err})
		return nil, err
	}
	for _, dep := range req.ExplicitDeps {
		if err := resolveOne(dep, ""); err != nil {
			emit(handler, Event{Type: EventError, Stage: vxerrors.StageResolve, Runtime: req.Runtime, Error: err})
			return nil, err
		}
	}

	layers, err := solver.Resolve()
	if err != nil {
		emit(handler, Event{Type: EventError, Stage: vxerrors.StageResolve, Runtime: req.Runtime, Error: err})
		return nil, vxerrors.Wrap(vxerrors.CategoryDependency, vxerrors.CodeCyclicDependency, "circular runtime dependency", err).
			WithStage(vxerrors.StageResolve)
	}

	// Each layer's nodes are already name-ascending (graph.dag.topologicalSort
	// sorts via sortNodesByName), so appending in layer.Nodes order already
	// satisfies the stable-order-within-a-level requirement.
	plan := &ExecutionPlan{Primary: primaryManifest.Name}
	for _, layer := range layers {
		for _, node := range layer.Nodes {
			if p, ok := resolved[node.Runtime]; ok {
				plan.Runtimes = append(plan.Runtimes, p)
			}
		}
	}

	emit(handler, Event{Type: EventComplete, Stage: vxerrors.StageResolve, Runtime: req.Runtime})
	return plan, nil
}
