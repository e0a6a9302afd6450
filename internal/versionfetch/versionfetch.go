// Package versionfetch implements vx's Version Fetcher: querying upstream
// indices (GitHub releases, jsDelivr, npm, PyPI, and custom JSON/text
// endpoints) into a normalized VersionInfo stream, and a TTL cache layer
// wrapping every fetcher so repeated resolves don't re-hit the network.
package versionfetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	vxerrors "github.com/terassyi/vx/internal/errors"
)

// VersionInfo is one version a fetcher reported for a runtime.
type VersionInfo struct {
	Version     string            `json:"version"`
	DownloadURL string            `json:"download_url,omitempty"`
	Prerelease  bool              `json:"prerelease"`
	LTS         bool              `json:"lts"`
	ReleaseDate string            `json:"release_date,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Fetcher queries an upstream index for the versions available for a
// runtime. Implementations must be safe for concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, runtimeName string) ([]VersionInfo, error)
}

const defaultHTTPTimeout = 30 * time.Second

// defaultHTTPClient is shared by fetchers that don't need per-host auth
// (github.NewHTTPClient already wraps this for GitHub-aware callers).
func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultHTTPTimeout}
}

func newFetchError(source, runtime string, cause error) error {
	return vxerrors.Wrap(vxerrors.CategoryNetwork, vxerrors.CodeNetworkFailed,
		fmt.Sprintf("failed to fetch versions from %s", source), cause).
		WithDetail("runtime", runtime).WithDetail("source", source)
}
