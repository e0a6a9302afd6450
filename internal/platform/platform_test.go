package platform

import "testing"

func TestExeNameSuffix(t *testing.T) {
	win := Platform{OS: OSWindows, Arch: ArchX86_64}
	if got := win.ExeName("node"); got != "node.exe" {
		t.Fatalf("windows exe name = %q, want node.exe", got)
	}
	linux := Platform{OS: OSLinux, Arch: ArchX86_64, Libc: LibcGnu}
	if got := linux.ExeName("node"); got != "node" {
		t.Fatalf("linux exe name = %q, want node", got)
	}
}

func TestDefaultArchiveExtension(t *testing.T) {
	if (Platform{OS: OSWindows}).DefaultArchiveExtension() != ".zip" {
		t.Fatal("windows should default to zip")
	}
	if (Platform{OS: OSLinux}).DefaultArchiveExtension() != ".tar.gz" {
		t.Fatal("linux should default to tar.gz")
	}
	if (Platform{OS: OSMacOS}).DefaultArchiveExtension() != ".tar.gz" {
		t.Fatal("macos should default to tar.gz")
	}
}

func TestTriple(t *testing.T) {
	p := Platform{OS: OSLinux, Arch: ArchX86_64, Libc: LibcMusl}
	if got := p.Triple(); got != "x86_64-unknown-linux-musl" {
		t.Fatalf("triple = %q", got)
	}
}

func TestMatches(t *testing.T) {
	p := Platform{OS: OSLinux, Arch: ArchAarch64, Libc: LibcGnu}
	if !p.Matches(OSLinux, "", "") {
		t.Fatal("empty constraints should match")
	}
	if p.Matches(OSWindows, "", "") {
		t.Fatal("wrong OS should not match")
	}
	if p.Matches("", "", LibcMusl) {
		t.Fatal("wrong libc should not match")
	}
}

func TestDetectCaches(t *testing.T) {
	a := Detect()
	b := Detect()
	if a != b {
		t.Fatal("Detect should be stable across calls")
	}
}
