// Package resolver implements vx's Version Resolver: classifying a
// requested version string, and choosing a concrete version to install from
// the available upstream versions, project config, and lockfile.
package resolver

import (
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	vxerrors "github.com/terassyi/vx/internal/errors"
	"github.com/terassyi/vx/internal/versionfetch"
)

// Kind classifies how a requested version string should be resolved.
type Kind int

const (
	// KindExact is a fully specified semver version, e.g. "20.11.0".
	KindExact Kind = iota
	// KindPartial is a prefix, e.g. "20" or "20.11", resolved to the
	// highest matching available version.
	KindPartial
	// KindRange is a semver constraint expression, e.g. "^20.0.0" or ">=18 <21".
	KindRange
	// KindChannel is a named release channel, e.g. "latest", "lts", "stable".
	KindChannel
)

// Classify determines the Kind of a requested version string. Bare
// dotted-digit strings are checked for Partial/Exact before being handed to
// semver.NewVersion, because Masterminds/semver's parser happily zero-fills
// "20" into "20.0.0" and would otherwise misclassify a deliberate prefix
// request as an exact version.
func Classify(requested string) Kind {
	switch requested {
	case "", "latest", "stable", "lts", "nightly":
		return KindChannel
	}
	if looksLikeBareVersionPrefix(requested) {
		if dotCount(requested) == 2 {
			return KindExact
		}
		return KindPartial
	}
	if _, err := semver.NewConstraint(requested); err == nil {
		return KindRange
	}
	return KindPartial
}

func dotCount(s string) int {
	n := 0
	for _, r := range s {
		if r == '.' {
			n++
		}
	}
	return n
}

// looksLikeBareVersionPrefix reports whether s is a dotted run of digits
// with no constraint operators, e.g. "20" or "20.11" — these parse as valid
// (very permissive) semver.Constraints too, but are a prefix match, not an
// explicit range.
func looksLikeBareVersionPrefix(s string) bool {
	for _, r := range s {
		if r != '.' && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// isPrereleaseRequest reports whether a requested version string is itself
// a prerelease identifier (e.g. "20.0.0-rc.1" or "3.13.0-beta.2"), per
// semver's "-" prerelease separator. Requests like this are the one case
// that may match a prerelease version.
func isPrereleaseRequest(s string) bool {
	return strings.Contains(s, "-")
}

// Request describes what a caller asked vx to resolve, plus the optional
// project pin and range that can override the bare request (open
// question #1: an exact pin wins over a range).
type Request struct {
	Runtime       string
	Requested     string // from the command line / manifest default
	ProjectExact  string // project config pins an exact version
	ProjectRange  string // project config declares a range
	LockedVersion string // a lockfile entry, if present
}

// Resolved is the concrete version vx decided to use, and why.
type Resolved struct {
	Version string
	Source  string // "lockfile", "project-exact", "project-range", "requested", "upstream-latest"
}

// Resolve picks a concrete version out of available (the version fetcher's
// full per-runtime view, including prerelease/LTS flags) according to vx's
// precedence: lockfile > project-exact > project-range > explicit request >
// upstream latest.
func Resolve(req Request, available []versionfetch.VersionInfo) (*Resolved, error) {
	if req.LockedVersion != "" {
		if !containsVersion(available, req.LockedVersion) {
			return nil, vxerrors.New(vxerrors.CategoryRegistry, vxerrors.CodeVersionNotFound, "locked version is no longer available upstream").
				WithDetail("runtime", req.Runtime).WithDetail("version", req.LockedVersion)
		}
		return &Resolved{Version: req.LockedVersion, Source: "lockfile"}, nil
	}

	// Open question #1: an explicit project pin beats a project range,
	// since a pin is a stronger signal of intent than a range likely
	// written before the pin existed.
	if req.ProjectExact != "" {
		return resolveExact(req.Runtime, req.ProjectExact, available, "project-exact")
	}
	if req.ProjectRange != "" {
		return resolveConstraint(req.Runtime, req.ProjectRange, available, "project-range")
	}

	switch Classify(req.Requested) {
	case KindExact:
		return resolveExact(req.Runtime, req.Requested, available, "requested")
	case KindPartial:
		return resolvePartial(req.Runtime, req.Requested, available, "requested")
	case KindRange:
		return resolveConstraint(req.Runtime, req.Requested, available, "requested")
	default: // KindChannel, including an empty request
		return resolveChannel(req.Runtime, req.Requested, available, "upstream-latest")
	}
}

func resolveExact(runtime, version string, available []versionfetch.VersionInfo, source string) (*Resolved, error) {
	if !containsVersion(available, version) {
		return nil, vxerrors.New(vxerrors.CategoryRegistry, vxerrors.CodeVersionNotFound, "requested version is not available").
			WithDetail("runtime", runtime).WithDetail("version", version)
	}
	return &Resolved{Version: version, Source: source}, nil
}

func resolvePartial(runtime, prefix string, available []versionfetch.VersionInfo, source string) (*Resolved, error) {
	allowPrerelease := isPrereleaseRequest(prefix)
	best, err := highestMatching(available, func(info versionfetch.VersionInfo, v *semver.Version) bool {
		if info.Prerelease && !allowPrerelease {
			return false
		}
		return hasPrefix(v.Original(), prefix)
	})
	if err != nil {
		return nil, vxerrors.New(vxerrors.CategoryRegistry, vxerrors.CodeVersionNotFound, "no available version matches the requested prefix").
			WithDetail("runtime", runtime).WithDetail("prefix", prefix)
	}
	return &Resolved{Version: best, Source: source}, nil
}

func resolveConstraint(runtime, rangeExpr string, available []versionfetch.VersionInfo, source string) (*Resolved, error) {
	c, err := semver.NewConstraint(rangeExpr)
	if err != nil {
		return nil, vxerrors.Wrap(vxerrors.CategoryValidation, vxerrors.CodeValidationFailed, "invalid version range", err).
			WithDetail("range", rangeExpr)
	}
	// Prereleases never match a range constraint unless the constraint
	// itself names a prerelease (e.g. "^20.0.0-rc").
	allowPrerelease := isPrereleaseRequest(rangeExpr)
	best, err := highestMatching(available, func(info versionfetch.VersionInfo, v *semver.Version) bool {
		if info.Prerelease && !allowPrerelease {
			return false
		}
		return c.Check(v)
	})
	if err != nil {
		return nil, vxerrors.New(vxerrors.CategoryRegistry, vxerrors.CodeVersionNotFound, "no available version satisfies the requested range").
			WithDetail("runtime", runtime).WithDetail("range", rangeExpr)
	}
	return &Resolved{Version: best, Source: source}, nil
}

// resolveChannel picks the newest version in a named release channel per
// VersionInfo.lts/prerelease flags: "lts" newest LTS release (falling back
// to the stable set when no upstream release is ever tagged LTS — most
// runtimes have no LTS concept at all), "nightly" newest release of any
// kind including prereleases, and "latest"/"stable"/"" newest non-prerelease
// release.
func resolveChannel(runtime, channel string, available []versionfetch.VersionInfo, source string) (*Resolved, error) {
	switch channel {
	case "nightly":
		best, err := highestMatching(available, func(versionfetch.VersionInfo, *semver.Version) bool { return true })
		if err != nil {
			return nil, noVersionsAvailable(runtime)
		}
		return &Resolved{Version: best, Source: source}, nil
	case "lts":
		if best, err := highestMatching(available, func(info versionfetch.VersionInfo, _ *semver.Version) bool {
			return info.LTS && !info.Prerelease
		}); err == nil {
			return &Resolved{Version: best, Source: source}, nil
		}
		// No release upstream is tagged LTS; fall through to the stable set.
		fallthrough
	default: // "", "latest", "stable"
		best, err := highestMatching(available, func(info versionfetch.VersionInfo, _ *semver.Version) bool {
			return !info.Prerelease
		})
		if err != nil {
			return nil, noVersionsAvailable(runtime)
		}
		return &Resolved{Version: best, Source: source}, nil
	}
}

func noVersionsAvailable(runtime string) error {
	return vxerrors.New(vxerrors.CategoryRegistry, vxerrors.CodeVersionNotFound, "no versions available upstream").
		WithDetail("runtime", runtime)
}

// highestMatching parses each available VersionInfo's semver, keeps the
// ones match accepts, and returns the original version string of the
// highest-sorting survivor.
func highestMatching(available []versionfetch.VersionInfo, match func(versionfetch.VersionInfo, *semver.Version) bool) (string, error) {
	type candidate struct {
		info    versionfetch.VersionInfo
		version *semver.Version
	}
	var candidates []candidate
	for _, info := range available {
		v, err := semver.NewVersion(info.Version)
		if err != nil {
			continue
		}
		if match(info, v) {
			candidates = append(candidates, candidate{info: info, version: v})
		}
	}
	if len(candidates) == 0 {
		return "", vxerrors.New(vxerrors.CategoryRegistry, vxerrors.CodeVersionNotFound, "no matching version")
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].version.LessThan(candidates[j].version) })
	return candidates[len(candidates)-1].version.Original(), nil
}

func containsVersion(haystack []versionfetch.VersionInfo, needle string) bool {
	for _, v := range haystack {
		if v.Version == needle {
			return true
		}
	}
	return false
}

func hasPrefix(version, prefix string) bool {
	if len(version) < len(prefix) {
		return false
	}
	if version[:len(prefix)] != prefix {
		return false
	}
	return len(version) == len(prefix) || version[len(prefix)] == '.'
}
