// Package manifest loads and validates vx's provider manifests: one TOML
// document per provider, declaring how to fetch versions, build download
// URLs, and locate the resulting executable.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	vxerrors "github.com/terassyi/vx/internal/errors"
	"github.com/terassyi/vx/internal/platform"
)

// Source declares how a provider's available versions are discovered.
type Source struct {
	Kind       string `toml:"kind"` // "github-releases", "npm", "pypi", "jsdelivr", "custom"
	Repo       string `toml:"repo,omitempty"`
	Package    string `toml:"package,omitempty"`
	TagPrefix  string `toml:"tag_prefix,omitempty"`
	Command    string `toml:"command,omitempty"` // for kind = "custom"
}

// Layout describes where the provider's executable lands after extraction.
type Layout struct {
	// ExecutablePaths is tried in declaration order; the first path that
	// exists inside the extracted tree wins (open-question #2).
	ExecutablePaths []string `toml:"executable_paths"`
	ArchiveFormat   string   `toml:"archive_format,omitempty"`
}

// URLTemplate holds a URL string whose literal {{.Version}}, {{.OS}},
// {{.Arch}}, {{.Libc}} and {{.Ext}} placeholders are replaced by plain string
// substitution (not text/template) to build the download URL for one
// platform.
type URLTemplate struct {
	OS       string `toml:"os,omitempty"`
	Arch     string `toml:"arch,omitempty"`
	Libc     string `toml:"libc,omitempty"`
	Template string `toml:"template"`
}

// Dependency is an edge from this provider to another runtime it requires
// to be installed first (e.g. a provider that delegates to `uv tool run`).
type Dependency struct {
	Runtime    string `toml:"runtime"`
	Constraint string `toml:"constraint,omitempty"`
}

// Manifest is the parsed form of a single provider's TOML document.
type Manifest struct {
	Name         string        `toml:"name"`
	Aliases      []string      `toml:"aliases,omitempty"`
	CommandPrefix string       `toml:"command_prefix,omitempty"`
	Source       Source        `toml:"source"`
	Layout       Layout        `toml:"layout"`
	URLs         []URLTemplate `toml:"urls"`
	// Checksums declares, per platform, where to fetch a published digest
	// for the artifact URLs resolve to. A provider with no checksums
	// entries simply isn't checksum-verified (most upstream providers
	// don't publish one per asset).
	Checksums    []URLTemplate `toml:"checksums,omitempty"`
	Dependencies []Dependency  `toml:"dependencies,omitempty"`

	path string // absolute path this manifest was loaded from, for diagnostics
}

// Parse decodes raw TOML bytes into a Manifest.
func Parse(data []byte, path string) (*Manifest, error) {
	var m Manifest
	if _, err := toml.Decode(string(data), &m); err != nil {
		return nil, vxerrors.Wrap(vxerrors.CategoryConfig, vxerrors.CodeConfigParse, "failed to parse provider manifest", err).
			WithDetail("path", path)
	}
	m.path = path
	return &m, nil
}

// Load reads and parses a single manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, vxerrors.Wrap(vxerrors.CategoryConfig, vxerrors.CodeConfigParse, "failed to read provider manifest", err).
			WithDetail("path", path)
	}
	return Parse(data, path)
}

// URLFor resolves the download URL template matching p, and renders it for
// the given version. Returns an error if no template matches the platform.
func (m *Manifest) URLFor(p platform.Platform, version string) (string, error) {
	for _, tmpl := range m.URLs {
		if tmpl.OS != "" && !strings.EqualFold(tmpl.OS, string(p.OS)) {
			continue
		}
		if tmpl.Arch != "" && !strings.EqualFold(tmpl.Arch, string(p.Arch)) {
			continue
		}
		if tmpl.Libc != "" && p.OS == platform.OSLinux && !strings.EqualFold(tmpl.Libc, string(p.Libc)) {
			continue
		}
		return renderURLTemplate(tmpl.Template, p, version)
	}
	return "", vxerrors.New(vxerrors.CategoryRegistry, vxerrors.CodeRegistryError, "no download URL template matches this platform").
		WithDetail("provider", m.Name).WithDetail("os", p.OS).WithDetail("arch", p.Arch)
}

func renderURLTemplate(tmpl string, p platform.Platform, version string) (string, error) {
	ext := p.DefaultArchiveExtension()
	r := strings.NewReplacer(
		"{{.Version}}", version,
		"{{.OS}}", string(p.OS),
		"{{.Arch}}", string(p.Arch),
		"{{.Libc}}", string(p.Libc),
		"{{.Ext}}", ext,
	)
	return r.Replace(tmpl), nil
}

// ChecksumFor resolves the checksum document URL template matching p,
// rendered for version, the same way URLFor resolves the artifact itself.
// An empty result (no error) means this provider declares no checksum
// source for this platform, and verification is skipped.
func (m *Manifest) ChecksumFor(p platform.Platform, version string) (string, error) {
	for _, tmpl := range m.Checksums {
		if tmpl.OS != "" && !strings.EqualFold(tmpl.OS, string(p.OS)) {
			continue
		}
		if tmpl.Arch != "" && !strings.EqualFold(tmpl.Arch, string(p.Arch)) {
			continue
		}
		if tmpl.Libc != "" && p.OS == platform.OSLinux && !strings.EqualFold(tmpl.Libc, string(p.Libc)) {
			continue
		}
		return renderURLTemplate(tmpl.Template, p, version)
	}
	return "", nil
}

// IsDelegation reports whether this provider delegates execution to another
// runtime's command rather than running its own downloaded binary.
func (m *Manifest) IsDelegation() bool {
	return m.CommandPrefix != ""
}

// Path returns the filesystem path this manifest was loaded from.
func (m *Manifest) Path() string { return m.path }

// LocateExecutable returns the first declared executable path (in manifest
// order) that exists under extractedRoot, implementing the
// multiple-executable-candidates resolution (open question #2: first
// declared candidate wins).
func (m *Manifest) LocateExecutable(extractedRoot string, exists func(string) bool) (string, error) {
	for _, rel := range m.Layout.ExecutablePaths {
		candidate := filepath.Join(extractedRoot, rel)
		if exists(candidate) {
			return candidate, nil
		}
	}
	return "", vxerrors.New(vxerrors.CategoryInstall, vxerrors.CodeNotFound, "no declared executable path found after extraction").
		WithDetail("provider", m.Name).WithDetail("candidates", m.Layout.ExecutablePaths)
}

func (m *Manifest) String() string {
	return fmt.Sprintf("manifest(%s)", m.Name)
}
