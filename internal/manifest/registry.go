package manifest

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	vxerrors "github.com/terassyi/vx/internal/errors"
)

// Registry is the in-memory Provider Registry: every loaded manifest,
// indexed by canonical name and by alias.
type Registry struct {
	byName  map[string]*Manifest
	byAlias map[string]*Manifest
}

// LoadDir loads every *.toml file in dir as a provider manifest and
// validates the resulting registry.
func LoadDir(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, vxerrors.Wrap(vxerrors.CategoryConfig, vxerrors.CodeConfigParse, "failed to read providers directory", err).
			WithDetail("dir", dir)
	}

	var manifests []*Manifest
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".toml") {
			continue
		}
		m, err := Load(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, m)
	}

	return NewRegistry(manifests)
}

// NewRegistry builds and validates a Registry from already-parsed manifests.
func NewRegistry(manifests []*Manifest) (*Registry, error) {
	r := &Registry{
		byName:  make(map[string]*Manifest),
		byAlias: make(map[string]*Manifest),
	}

	for _, m := range manifests {
		if existing, ok := r.byName[m.Name]; ok {
			return nil, vxerrors.New(vxerrors.CategoryRegistry, vxerrors.CodeDuplicateAlias, "duplicate provider name").
				WithDetail("name", m.Name).WithDetail("first", existing.Path()).WithDetail("second", m.Path())
		}
		r.byName[m.Name] = m

		for _, alias := range m.Aliases {
			if existing, ok := r.byAlias[alias]; ok {
				return nil, vxerrors.New(vxerrors.CategoryRegistry, vxerrors.CodeDuplicateAlias, "duplicate provider alias").
					WithDetail("alias", alias).WithDetail("first", existing.Name).WithDetail("second", m.Name)
			}
			if _, ok := r.byName[alias]; ok {
				return nil, vxerrors.New(vxerrors.CategoryRegistry, vxerrors.CodeDuplicateAlias, "alias collides with an existing provider name").
					WithDetail("alias", alias)
			}
			r.byAlias[alias] = m
		}
	}

	for _, m := range manifests {
		for _, dep := range m.Dependencies {
			if !r.has(dep.Runtime) {
				return nil, vxerrors.New(vxerrors.CategoryRegistry, vxerrors.CodeRegistryError, "provider depends on an unknown runtime").
					WithDetail("provider", m.Name).WithDetail("dependency", dep.Runtime)
			}
		}
	}

	return r, nil
}

func (r *Registry) has(nameOrAlias string) bool {
	if _, ok := r.byName[nameOrAlias]; ok {
		return true
	}
	_, ok := r.byAlias[nameOrAlias]
	return ok
}

// Resolve looks a provider up by canonical name or alias.
func (r *Registry) Resolve(nameOrAlias string) (*Manifest, bool) {
	if m, ok := r.byName[nameOrAlias]; ok {
		return m, true
	}
	if m, ok := r.byAlias[nameOrAlias]; ok {
		return m, true
	}
	return nil, false
}

// Names returns every canonical provider name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
