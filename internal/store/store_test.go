package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	paths, err := NewPaths(WithBase(t.TempDir()))
	require.NoError(t, err)
	return New(paths)
}

func TestIsInstalledRequiresSentinel(t *testing.T) {
	s := newTestStore(t)

	assert.False(t, s.IsInstalled("node", "20.11.0"))

	dir := s.VersionDir("node", "20.11.0")
	require.NoError(t, EnsureDir(dir))
	// Directory exists but install never completed - must not count as installed.
	assert.False(t, s.IsInstalled("node", "20.11.0"))
}

func TestCommitIsAtomicAndWritesSentinel(t *testing.T) {
	s := newTestStore(t)

	staging, err := s.StagingDir()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(staging, "bin"), []byte("fake binary"), 0o755))

	require.NoError(t, s.Commit(staging, "node", "20.11.0", CommitInfo{SourceURL: "https://example.com/node-20.11.0.tar.gz"}))
	assert.True(t, s.IsInstalled("node", "20.11.0"))

	// Staging directory should no longer exist at its old path (moved, not copied).
	_, err = os.Stat(staging)
	assert.True(t, os.IsNotExist(err))
}

func TestCommitWritesSentinelBody(t *testing.T) {
	s := newTestStore(t)

	staging, err := s.StagingDir()
	require.NoError(t, err)
	require.NoError(t, s.Commit(staging, "node", "20.11.0", CommitInfo{
		SourceURL: "https://nodejs.org/dist/v20.11.0/node-v20.11.0-linux-x64.tar.gz",
		SHA256:    "deadbeef",
	}))

	raw, err := os.ReadFile(filepath.Join(s.VersionDir("node", "20.11.0"), sentinelName))
	require.NoError(t, err)

	var body sentinelBody
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "node", body.Runtime)
	assert.Equal(t, "20.11.0", body.Version)
	assert.Equal(t, "https://nodejs.org/dist/v20.11.0/node-v20.11.0-linux-x64.tar.gz", body.SourceURL)
	assert.Equal(t, "deadbeef", body.SHA256)
	assert.NotEmpty(t, body.InstalledAt)
}

func TestCommitReplacesStaleDirectory(t *testing.T) {
	s := newTestStore(t)

	first, err := s.StagingDir()
	require.NoError(t, err)
	require.NoError(t, s.Commit(first, "node", "20.11.0", CommitInfo{SourceURL: "https://example.com/node-20.11.0.tar.gz"}))

	second, err := s.StagingDir()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(second, "marker"), []byte("v2"), 0o644))
	require.NoError(t, s.Commit(second, "node", "20.11.0", CommitInfo{SourceURL: "https://example.com/node-20.11.0.tar.gz"}))

	assert.True(t, s.IsInstalled("node", "20.11.0"))
	_, err = os.Stat(filepath.Join(s.VersionDir("node", "20.11.0"), "marker"))
	assert.NoError(t, err)
}

func TestListVersionsOnlyReturnsCompletedInstalls(t *testing.T) {
	s := newTestStore(t)

	staging, err := s.StagingDir()
	require.NoError(t, err)
	require.NoError(t, s.Commit(staging, "node", "20.11.0", CommitInfo{SourceURL: "https://example.com/node-20.11.0.tar.gz"}))

	// An interrupted install: directory without sentinel.
	require.NoError(t, EnsureDir(s.VersionDir("node", "21.0.0")))

	versions, err := s.ListVersions("node")
	require.NoError(t, err)
	assert.Equal(t, []string{"20.11.0"}, versions)
}

func TestUninstallRemovesDirectory(t *testing.T) {
	s := newTestStore(t)

	staging, err := s.StagingDir()
	require.NoError(t, err)
	require.NoError(t, s.Commit(staging, "node", "20.11.0", CommitInfo{SourceURL: "https://example.com/node-20.11.0.tar.gz"}))
	require.True(t, s.IsInstalled("node", "20.11.0"))

	require.NoError(t, s.Uninstall("node", "20.11.0"))
	assert.False(t, s.IsInstalled("node", "20.11.0"))
}

func TestLockDoesNotBlockDifferentTarget(t *testing.T) {
	s := newTestStore(t)

	release, err := s.Lock("node", "20.11.0")
	require.NoError(t, err)
	defer release()

	// A lock on a different (runtime, version) must not block.
	release2, err := s.Lock("node", "21.0.0")
	require.NoError(t, err)
	release2()
}
