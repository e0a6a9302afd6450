package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/semaphore"

	"github.com/terassyi/vx/internal/archive"
	vxerrors "github.com/terassyi/vx/internal/errors"
	"github.com/terassyi/vx/internal/platform"
	"github.com/terassyi/vx/internal/store"
)

// DefaultEnsureParallelism bounds how many installs one Ensure call runs at
// once, mirroring internal/installer/engine/engine.go's DefaultParallelism.
const DefaultEnsureParallelism = 5

// Ensure implements the Ensure stage: install every PlannedRuntime in plan
// that isn't already present. Installs are started in plan order
// (dependencies before dependents) and run concurrently, bounded by
// parallelism; an install does not wait for its dependencies' installs to
// finish. For a runtime Resolve already marked installed, only its executable
// is located.
func Ensure(ctx context.Context, plan *ExecutionPlan, st *store.Store, downloader *archive.Downloader, p platform.Platform, parallelism int, handler EventHandler) error {
	if parallelism <= 0 {
		parallelism = DefaultEnsureParallelism
	}
	sem := semaphore.NewWeighted(int64(parallelism))

	// Runtimes are launched in plan order (Resolve puts a dependency before
	// its dependents in the slice); the semaphore only bounds how many run at
	// once and does not hold a dependent back until its dependencies finish.
	errCh := make(chan error, len(plan.Runtimes))
	for _, r := range plan.Runtimes {
		if r.Status == StatusInstalled {
			if r.Executable == "" {
				r.InstallPath = st.VersionDir(r.Runtime, r.Version)
				if err := locateExecutable(r); err != nil {
					return err
				}
			}
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		go func(r *PlannedRuntime) {
			defer sem.Release(1)
			errCh <- ensureOne(ctx, r, st, downloader, p, handler)
		}(r)
	}

	// Acquiring the full weight waits for every launched goroutine to finish.
	if err := sem.Acquire(ctx, int64(parallelism)); err != nil {
		return err
	}
	close(errCh)

	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

func ensureOne(ctx context.Context, r *PlannedRuntime, st *store.Store, downloader *archive.Downloader, p platform.Platform, handler EventHandler) error {
	emit(handler, Event{Type: EventStart, Stage: vxerrors.StageEnsure, Runtime: r.Runtime, Version: r.Version})

	if st.IsInstalled(r.Runtime, r.Version) {
		r.Status = StatusInstalled
		r.InstallPath = st.VersionDir(r.Runtime, r.Version)
		return locateExecutable(r)
	}

	release, err := st.Lock(r.Runtime, r.Version)
	if err != nil {
		return vxerrors.Wrap(vxerrors.CategoryState, vxerrors.CodeStateLocked, "failed to acquire install lock", err).
			WithStage(vxerrors.StageEnsure).WithDetail("runtime", r.Runtime).WithDetail("version", r.Version)
	}
	defer release()

	// Re-check: another process may have installed it while we waited for
	// the lock.
	if st.IsInstalled(r.Runtime, r.Version) {
		r.Status = StatusInstalled
		r.InstallPath = st.VersionDir(r.Runtime, r.Version)
		return locateExecutable(r)
	}

	downloadURL, err := r.Manifest.URLFor(p, r.Version)
	if err != nil {
		return vxerrors.Wrap(vxerrors.CategoryInstall, vxerrors.CodeInstallFailed, "no download URL for this platform", err).
			WithStage(vxerrors.StageEnsure).WithDetail("runtime", r.Runtime)
	}

	downloadedPath, err := downloader.Download(ctx, downloadURL)
	if err != nil {
		emit(handler, Event{Type: EventError, Stage: vxerrors.StageEnsure, Runtime: r.Runtime, Error: err})
		return vxerrors.Wrap(vxerrors.CategoryNetwork, vxerrors.CodeNetworkFailed, "download failed", err).
			WithStage(vxerrors.StageEnsure).WithDetail("url", downloadURL)
	}
	// promoteToCache lays the download out as cacheDir/<sha256>/<filename>,
	// so the digest is the hash directory's own name — no re-hashing needed.
	sha256Digest := filepath.Base(filepath.Dir(downloadedPath))

	if checksumURL, err := r.Manifest.ChecksumFor(p, r.Version); err != nil {
		return err
	} else if checksumURL != "" {
		expected, err := downloader.FetchChecksumDigest(ctx, checksumURL, filepath.Base(downloadedPath))
		if err != nil {
			return vxerrors.Wrap(vxerrors.CategoryNetwork, vxerrors.CodeNetworkFailed, "failed to fetch checksum", err).
				WithStage(vxerrors.StageEnsure).WithDetail("runtime", r.Runtime).WithDetail("url", checksumURL)
		}
		if expected != "" {
			if err := archive.VerifyChecksum(downloadedPath, expected); err != nil {
				emit(handler, Event{Type: EventError, Stage: vxerrors.StageEnsure, Runtime: r.Runtime, Error: err})
				return vxerrors.Wrap(vxerrors.CategoryInstall, vxerrors.CodeChecksumMismatch, "downloaded artifact failed checksum verification", err).
					WithStage(vxerrors.StageEnsure).WithDetail("runtime", r.Runtime).WithDetail("version", r.Version)
			}
		}
	}

	staging, err := st.StagingDir()
	if err != nil {
		return err
	}

	format := archive.ResolveFormat(r.Manifest.Layout.ArchiveFormat, downloadedPath, downloadURL)

	extractor, err := archive.NewExtractor(format)
	if err != nil {
		st.Abort(staging)
		return err
	}
	if err := extractor.Extract(downloadedPath, staging); err != nil {
		st.Abort(staging)
		emit(handler, Event{Type: EventError, Stage: vxerrors.StageEnsure, Runtime: r.Runtime, Error: err})
		return err
	}

	exePath, err := r.Manifest.LocateExecutable(staging, fileExists)
	if err != nil {
		st.Abort(staging)
		return err
	}

	if err := st.Commit(staging, r.Runtime, r.Version, store.CommitInfo{SourceURL: downloadURL, SHA256: sha256Digest}); err != nil {
		return err
	}

	r.Status = StatusInstalled
	r.InstallPath = st.VersionDir(r.Runtime, r.Version)
	r.Executable = relocateUnderCommittedDir(exePath, staging, r.InstallPath)

	emit(handler, Event{Type: EventComplete, Stage: vxerrors.StageEnsure, Runtime: r.Runtime, Version: r.Version, InstallPath: r.InstallPath})
	return nil
}

func locateExecutable(r *PlannedRuntime) error {
	exePath, err := r.Manifest.LocateExecutable(r.InstallPath, fileExists)
	if err != nil {
		return err
	}
	r.Executable = exePath
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// relocateUnderCommittedDir rewrites a path found inside the staging
// directory to its equivalent under the now-committed install directory
// (Commit renames staging -> install dir, so the executable's suffix is
// unchanged).
func relocateUnderCommittedDir(exePath, staging, installDir string) string {
	suffix := exePath[len(staging):]
	return fmt.Sprintf("%s%s", installDir, suffix)
}
