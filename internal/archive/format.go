// Package archive implements vx's Archive Engine: format detection, format
// dispatch (manifest hint, then content sniff, then file extension, in that
// published order), extraction, content-addressed downloads, and checksum
// verification.
package archive

import (
	"bufio"
	"os"
	"strings"

	"github.com/h2non/filetype"
)

// Format identifies an archive or artifact format vx knows how to unpack.
type Format string

const (
	FormatTarGz    Format = "tar.gz"
	FormatTarXz    Format = "tar.xz"
	FormatTarBz2   Format = "tar.bz2"
	FormatZip      Format = "zip"
	FormatSevenZip Format = "7z"
	FormatPkg      Format = "pkg"
	FormatMsi      Format = "msi"
	FormatBinary   Format = "binary"
)

// NormalizeFormat canonicalizes common aliases for a manifest-declared hint.
func NormalizeFormat(raw string) Format {
	switch strings.ToLower(raw) {
	case "tar.gz", "tgz", "targz":
		return FormatTarGz
	case "tar.xz", "txz", "tarxz":
		return FormatTarXz
	case "tar.bz2", "tbz2", "tarbz2":
		return FormatTarBz2
	case "zip":
		return FormatZip
	case "7z", "sevenzip":
		return FormatSevenZip
	case "pkg":
		return FormatPkg
	case "msi":
		return FormatMsi
	case "binary", "raw":
		return FormatBinary
	default:
		return Format(raw)
	}
}

// DetectFormatFromName infers a Format from a filename or URL's extension.
// Returns "" when no known extension matches.
func DetectFormatFromName(name string) Format {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGz
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return FormatTarXz
	case strings.HasSuffix(lower, ".tar.bz2"), strings.HasSuffix(lower, ".tbz2"):
		return FormatTarBz2
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip
	case strings.HasSuffix(lower, ".7z"):
		return FormatSevenZip
	case strings.HasSuffix(lower, ".pkg"):
		return FormatPkg
	case strings.HasSuffix(lower, ".msi"):
		return FormatMsi
	default:
		return ""
	}
}

// SniffFormat inspects the first bytes of a file to identify its archive
// format by magic number, for the case where a manifest gives no format
// hint and the downloaded filename has no recognizable extension (e.g. a
// GitHub release asset served from a redirect URL with an opaque path).
func SniffFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := bufio.NewReader(f).Read(head)
	if err != nil && n == 0 {
		return "", err
	}
	head = head[:n]

	kind, err := filetype.Match(head)
	if err != nil {
		return "", err
	}
	switch kind.Extension {
	case "gz":
		return FormatTarGz, nil
	case "zip":
		return FormatZip, nil
	case "7z":
		return FormatSevenZip, nil
	default:
		return "", nil
	}
}

// ResolveFormat applies vx's published dispatch order: an explicit manifest
// hint wins; otherwise content is sniffed; otherwise the file extension is
// used. Returns FormatBinary if nothing matches, treating the artifact as a
// single executable.
func ResolveFormat(hint string, downloadedPath string, sourceName string) Format {
	if hint != "" {
		return NormalizeFormat(hint)
	}
	if sniffed, err := SniffFormat(downloadedPath); err == nil && sniffed != "" {
		return sniffed
	}
	if fromName := DetectFormatFromName(sourceName); fromName != "" {
		return fromName
	}
	return FormatBinary
}
