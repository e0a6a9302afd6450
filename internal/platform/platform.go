// Package platform detects the host operating system, CPU architecture, and
// C library flavor, and derives the conventions (executable suffix, default
// archive extension, target triple) that the rest of vx needs to pick the
// right release artifact for a runtime.
package platform

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"
)

// OS represents a target operating system family.
type OS string

const (
	OSWindows OS = "windows"
	OSMacOS   OS = "macos"
	OSLinux   OS = "linux"
	OSOther   OS = "other"
)

// Arch represents a target CPU architecture.
type Arch string

const (
	ArchX86     Arch = "x86"
	ArchX86_64  Arch = "x86_64"
	ArchAarch64 Arch = "aarch64"
	ArchArm     Arch = "arm"
	ArchOther   Arch = "other"
)

// Libc represents the C library flavor, meaningful only on Linux.
type Libc string

const (
	LibcGnu  Libc = "gnu"
	LibcMusl Libc = "musl"
	LibcNone Libc = "none"
)

// Platform describes the host vx is running on.
type Platform struct {
	OS   OS
	Arch Arch
	Libc Libc
}

var (
	detectOnce sync.Once
	detected   Platform
	libcOnce   sync.Once
	libcCached Libc
)

// Detect returns the Platform for the running process. The result is cached
// for the lifetime of the process since none of its inputs change at runtime.
func Detect() Platform {
	detectOnce.Do(func() {
		detected = Platform{
			OS:   detectOS(),
			Arch: detectArch(),
			Libc: detectLibc(),
		}
	})
	return detected
}

func detectOS() OS {
	switch runtime.GOOS {
	case "windows":
		return OSWindows
	case "darwin":
		return OSMacOS
	case "linux":
		return OSLinux
	default:
		return OSOther
	}
}

func detectArch() Arch {
	switch runtime.GOARCH {
	case "386":
		return ArchX86
	case "amd64":
		return ArchX86_64
	case "arm64":
		return ArchAarch64
	case "arm":
		return ArchArm
	default:
		return ArchOther
	}
}

// detectLibc probes the host C library. Only meaningful on Linux; every
// other OS reports LibcNone. The probe runs `ldd --version` once per
// process and caches the result, since it never changes mid-run.
func detectLibc() Libc {
	if runtime.GOOS != "linux" {
		return LibcNone
	}
	libcOnce.Do(func() {
		libcCached = probeLibc()
	})
	return libcCached
}

func probeLibc() Libc {
	out, err := exec.Command("ldd", "--version").CombinedOutput()
	if err != nil {
		// ldd missing or erroring (e.g. static musl busybox) usually means musl.
		return LibcMusl
	}
	lower := strings.ToLower(string(out))
	if strings.Contains(lower, "musl") {
		return LibcMusl
	}
	if strings.Contains(lower, "glibc") || strings.Contains(lower, "gnu") {
		return LibcGnu
	}
	return LibcGnu
}

// ExeSuffix returns the filename suffix for native executables on this OS.
func (p Platform) ExeSuffix() string {
	if p.OS == OSWindows {
		return ".exe"
	}
	return ""
}

// ExeName appends the platform's executable suffix to a bare tool name.
func (p Platform) ExeName(name string) string {
	return name + p.ExeSuffix()
}

// DefaultArchiveExtension returns the archive format vx should expect when a
// provider manifest does not specify one explicitly.
func (p Platform) DefaultArchiveExtension() string {
	switch p.OS {
	case OSWindows:
		return ".zip"
	default:
		return ".tar.gz"
	}
}

// Triple returns a GNU-style target triple string, e.g. "x86_64-unknown-linux-gnu".
// It is used to interpolate provider manifest URL templates.
func (p Platform) Triple() string {
	var osPart string
	switch p.OS {
	case OSLinux:
		osPart = "unknown-linux"
	case OSMacOS:
		osPart = "apple-darwin"
	case OSWindows:
		osPart = "pc-windows"
	default:
		osPart = "unknown"
	}
	triple := fmt.Sprintf("%s-%s", p.Arch, osPart)
	if p.OS == OSLinux {
		libc := p.Libc
		if libc == LibcNone {
			libc = LibcGnu
		}
		triple += "-" + string(libc)
	} else if p.OS == OSWindows {
		triple += "-msvc"
	}
	return triple
}

// Matches reports whether the platform satisfies a manifest-declared
// constraint. An empty field in the constraint matches any value.
func (p Platform) Matches(osConstraint OS, archConstraint Arch, libcConstraint Libc) bool {
	if osConstraint != "" && osConstraint != p.OS {
		return false
	}
	if archConstraint != "" && archConstraint != p.Arch {
		return false
	}
	if libcConstraint != "" && p.OS == OSLinux && libcConstraint != p.Libc {
		return false
	}
	return true
}
