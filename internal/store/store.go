package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	vxerrors "github.com/terassyi/vx/internal/errors"
)

// sentinelName marks a runtime-version directory as fully, successfully
// installed. Its presence is the only thing IsInstalled checks: a
// directory that exists but lacks the sentinel is an interrupted install
// and must be treated as not-installed.
const sentinelName = ".vx-install-ok"

// sentinelBody is the JSON document written into sentinelName, recording
// what was installed and where it came from for later inspection (`vx
// which`, `vx doctor`-style diagnostics) without needing to re-derive it.
type sentinelBody struct {
	Runtime     string `json:"runtime"`
	Version     string `json:"version"`
	InstalledAt string `json:"installed_at"`
	SourceURL   string `json:"source_url"`
	SHA256      string `json:"sha256,omitempty"`
}

// CommitInfo carries the provenance Commit records in the install sentinel.
// SHA256 is optional: not every provider publishes a checksum to verify
// against (see internal/manifest.Manifest.ChecksumFor).
type CommitInfo struct {
	SourceURL string
	SHA256    string
}

// Store is the content-addressed install store rooted at a Paths' StoreDir.
type Store struct {
	paths *Paths
}

// New creates a Store backed by the given Paths.
func New(paths *Paths) *Store {
	return &Store{paths: paths}
}

// IsInstalled reports whether runtime@version has a completed install.
func (s *Store) IsInstalled(runtime, version string) bool {
	_, err := os.Stat(filepath.Join(s.paths.RuntimeVersionDir(runtime, version), sentinelName))
	return err == nil
}

// VersionDir returns the install directory for runtime@version, whether or
// not it is installed.
func (s *Store) VersionDir(runtime, version string) string {
	return s.paths.RuntimeVersionDir(runtime, version)
}

// ListVersions returns the installed versions of runtime, sorted ascending
// lexically (callers needing semver order should sort with
// internal/resolver's comparator).
func (s *Store) ListVersions(runtime string) ([]string, error) {
	dir := filepath.Join(s.paths.StoreDir(), runtime)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, vxerrors.Wrap(vxerrors.CategoryState, vxerrors.CodeStateError, "failed to list installed versions", err)
	}

	var versions []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if s.IsInstalled(runtime, e.Name()) {
			versions = append(versions, e.Name())
		}
	}
	sort.Strings(versions)
	return versions, nil
}

// Uninstall removes a runtime@version install directory entirely.
func (s *Store) Uninstall(runtime, version string) error {
	dir := s.paths.RuntimeVersionDir(runtime, version)
	if err := os.RemoveAll(dir); err != nil {
		return vxerrors.Wrap(vxerrors.CategoryState, vxerrors.CodeStateError, "failed to remove install directory", err).
			WithDetail("runtime", runtime).WithDetail("version", version)
	}
	return nil
}

// Lock acquires an advisory, cross-process lock scoped to one (runtime,
// version) pair. Concurrent `vx` invocations that resolve to the same
// install target block against each other instead of racing to extract
// into the same staging directory.
//
// Callers must call the returned release function once done, whether or
// not the install succeeded.
func (s *Store) Lock(runtime, version string) (release func(), err error) {
	if err := EnsureDir(s.paths.TmpDir()); err != nil {
		return nil, vxerrors.Wrap(vxerrors.CategoryState, vxerrors.CodeStateError, "failed to create tmp directory", err)
	}
	lockPath := filepath.Join(s.paths.TmpDir(), fmt.Sprintf("install-%s-%s.lock", runtime, version))
	fl := flock.New(lockPath)
	if err := fl.Lock(); err != nil {
		return nil, vxerrors.Wrap(vxerrors.CategoryState, vxerrors.CodeStateLocked, "failed to acquire install lock", err).
			WithDetail("runtime", runtime).WithDetail("version", version)
	}
	return func() { _ = fl.Unlock() }, nil
}

// StagingDir allocates a fresh scratch directory under tmp/<uuid>/ for an
// in-progress install (download, extract, or both) to build into before it
// is atomically renamed into the store.
func (s *Store) StagingDir() (string, error) {
	dir := filepath.Join(s.paths.TmpDir(), uuid.NewString())
	if err := EnsureDir(dir); err != nil {
		return "", vxerrors.Wrap(vxerrors.CategoryState, vxerrors.CodeStateError, "failed to create staging directory", err)
	}
	return dir, nil
}

// Commit atomically moves a fully-prepared staging directory into its final
// install location and writes the completion sentinel. If the target
// directory already exists (a concurrent or prior install raced us under
// the same lock, or Install is being retried) it is replaced.
func (s *Store) Commit(stagingDir, runtime, version string, info CommitInfo) error {
	target := s.paths.RuntimeVersionDir(runtime, version)
	if err := EnsureDir(filepath.Dir(target)); err != nil {
		return vxerrors.Wrap(vxerrors.CategoryState, vxerrors.CodeStateError, "failed to create runtime directory", err)
	}

	if _, err := os.Stat(target); err == nil {
		if err := os.RemoveAll(target); err != nil {
			return vxerrors.Wrap(vxerrors.CategoryState, vxerrors.CodeStateError, "failed to clear stale install directory", err)
		}
	}

	if err := os.Rename(stagingDir, target); err != nil {
		return vxerrors.Wrap(vxerrors.CategoryInstall, vxerrors.CodeInstallFailed, "failed to move staged install into place", err).
			WithDetail("runtime", runtime).WithDetail("version", version)
	}

	body, err := json.Marshal(sentinelBody{
		Runtime:     runtime,
		Version:     version,
		InstalledAt: time.Now().UTC().Format(time.RFC3339),
		SourceURL:   info.SourceURL,
		SHA256:      info.SHA256,
	})
	if err != nil {
		return vxerrors.Wrap(vxerrors.CategoryInstall, vxerrors.CodeInstallFailed, "failed to encode install sentinel", err)
	}

	sentinel := filepath.Join(target, sentinelName)
	if err := os.WriteFile(sentinel, body, 0o644); err != nil {
		return vxerrors.Wrap(vxerrors.CategoryInstall, vxerrors.CodeInstallFailed, "failed to write install sentinel", err)
	}
	return nil
}

// Abort discards a staging directory that failed before Commit.
func (s *Store) Abort(stagingDir string) {
	_ = os.RemoveAll(stagingDir)
}
