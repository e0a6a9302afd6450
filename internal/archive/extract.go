package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"

	vxerrors "github.com/terassyi/vx/internal/errors"
)

// Extractor unpacks an archive file at srcPath into destDir.
type Extractor interface {
	Extract(srcPath, destDir string) error
}

// NewExtractor returns the Extractor for the given format.
func NewExtractor(format Format) (Extractor, error) {
	switch format {
	case FormatTarGz:
		return tarGzExtractor{}, nil
	case FormatTarXz:
		return tarXzExtractor{}, nil
	case FormatTarBz2:
		return tarBz2Extractor{}, nil
	case FormatZip:
		return zipExtractor{}, nil
	case FormatSevenZip:
		return sevenZipExtractor{}, nil
	case FormatPkg:
		return pkgExtractor{}, nil
	case FormatMsi:
		return msiExtractor{}, nil
	case FormatBinary:
		return binaryExtractor{}, nil
	default:
		return nil, vxerrors.New(vxerrors.CategoryInstall, vxerrors.CodeExtractFailed, "unsupported archive format").
			WithDetail("format", string(format))
	}
}

type tarGzExtractor struct{}

func (tarGzExtractor) Extract(srcPath, destDir string) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gr.Close()

	slog.Debug("extracting tar.gz archive", "dest", destDir)
	return extractTar(gr, destDir)
}

type tarXzExtractor struct{}

func (tarXzExtractor) Extract(srcPath, destDir string) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer f.Close()

	xr, err := xz.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to create xz reader: %w", err)
	}

	slog.Debug("extracting tar.xz archive", "dest", destDir)
	return extractTar(xr, destDir)
}

type tarBz2Extractor struct{}

func (tarBz2Extractor) Extract(srcPath, destDir string) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer f.Close()

	slog.Debug("extracting tar.bz2 archive", "dest", destDir)
	return extractTar(bzip2.NewReader(f), destDir)
}

// extractTar extracts a tar stream to destDir, rejecting any entry (file or
// symlink target) that would escape destDir.
func extractTar(r io.Reader, destDir string) error {
	tr := tar.NewReader(r)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read tar header: %w", err)
		}

		target := filepath.Join(destDir, hdr.Name)
		if !isInsideDir(destDir, target) {
			return vxerrors.New(vxerrors.CategoryInstall, vxerrors.CodeUnsafeArchive, "archive entry escapes destination directory").
				WithDetail("entry", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
		case tar.TypeReg:
			if err := extractFile(tr, target, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
		case tar.TypeSymlink:
			linkTarget := hdr.Linkname
			if !filepath.IsAbs(linkTarget) {
				linkTarget = filepath.Join(filepath.Dir(target), hdr.Linkname)
			}
			if !isInsideDir(destDir, linkTarget) {
				return vxerrors.New(vxerrors.CategoryInstall, vxerrors.CodeUnsafeArchive, "symlink target escapes destination directory").
					WithDetail("entry", hdr.Name).WithDetail("target", hdr.Linkname)
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return fmt.Errorf("failed to create symlink: %w", err)
			}
		}
	}
	return nil
}

type zipExtractor struct{}

func (zipExtractor) Extract(srcPath, destDir string) error {
	zr, err := zip.OpenReader(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open zip: %w", err)
	}
	defer zr.Close()

	slog.Debug("extracting zip archive", "dest", destDir)
	for _, f := range zr.File {
		if isOSMetadataPath(f.Name) {
			continue
		}

		target := filepath.Join(destDir, f.Name)
		if !isInsideDir(destDir, target) {
			return vxerrors.New(vxerrors.CategoryInstall, vxerrors.CodeUnsafeArchive, "archive entry escapes destination directory").
				WithDetail("entry", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, f.Mode()); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to open file in archive: %w", err)
		}
		err = extractFile(rc, target, f.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

type sevenZipExtractor struct{}

func (sevenZipExtractor) Extract(srcPath, destDir string) error {
	zr, err := sevenzip.OpenReader(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open 7z archive: %w", err)
	}
	defer zr.Close()

	slog.Debug("extracting 7z archive", "dest", destDir)
	for _, f := range zr.File {
		target := filepath.Join(destDir, f.Name)
		if !isInsideDir(destDir, target) {
			return vxerrors.New(vxerrors.CategoryInstall, vxerrors.CodeUnsafeArchive, "archive entry escapes destination directory").
				WithDetail("entry", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, f.Mode()); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to open file in archive: %w", err)
		}
		err = extractFile(rc, target, f.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// pkgExtractor shells out to pkgutil, the only supported way to unpack a
// macOS installer package without reimplementing Apple's xar/bom formats.
type pkgExtractor struct{}

func (pkgExtractor) Extract(srcPath, destDir string) error {
	if runtime.GOOS != "darwin" {
		return vxerrors.New(vxerrors.CategoryInstall, vxerrors.CodeExtractFailed, "pkg archives can only be expanded on macOS")
	}
	// pkgutil refuses to expand into a directory that already exists.
	expandDir := filepath.Join(filepath.Dir(destDir), filepath.Base(destDir)+".pkgutil-expand")
	cmd := exec.Command("pkgutil", "--expand-full", srcPath, expandDir)
	if out, err := cmd.CombinedOutput(); err != nil {
		return vxerrors.Wrap(vxerrors.CategoryInstall, vxerrors.CodeExtractFailed, "pkgutil --expand-full failed", err).
			WithDetail("output", string(out))
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}
	return os.Rename(expandDir, destDir)
}

// msiExtractor shells out to msiexec's administrative install mode, the
// documented way to extract an MSI's payload without installing it.
type msiExtractor struct{}

func (msiExtractor) Extract(srcPath, destDir string) error {
	if runtime.GOOS != "windows" {
		return vxerrors.New(vxerrors.CategoryInstall, vxerrors.CodeExtractFailed, "msi archives can only be expanded on Windows")
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}
	cmd := exec.Command("msiexec", "/a", srcPath, "/qn", "TARGETDIR="+destDir)
	if out, err := cmd.CombinedOutput(); err != nil {
		return vxerrors.Wrap(vxerrors.CategoryInstall, vxerrors.CodeExtractFailed, "msiexec /a failed", err).
			WithDetail("output", string(out))
	}
	return nil
}

type binaryExtractor struct{}

// Extract copies a single-file download into destDir, naming it after
// destDir's own base name, and marks it executable.
func (binaryExtractor) Extract(srcPath, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	target := filepath.Join(destDir, filepath.Base(destDir))
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to write binary: %w", err)
	}
	slog.Debug("extracted raw binary", "target", target)
	return nil
}

func extractFile(r io.Reader, target string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// isOSMetadataPath skips the __MACOSX/ resource-fork tree some zip tools inject.
func isOSMetadataPath(name string) bool {
	return name == "__MACOSX" || name == "__MACOSX/" || strings.HasPrefix(name, "__MACOSX/")
}

// isInsideDir reports whether target resolves to a path inside baseDir,
// rejecting ../ traversal and absolute overrides.
func isInsideDir(baseDir, target string) bool {
	rel, err := filepath.Rel(baseDir, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !filepath.IsAbs(rel) && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
