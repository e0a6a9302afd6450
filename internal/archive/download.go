package archive

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/singleflight"

	vxerrors "github.com/terassyi/vx/internal/errors"
)

// OptimizedUrl pairs a primary download URL with an optional fallback.
// Primary is tried first; Fallback is tried if the primary attempt's retries
// are exhausted. With VX_DISABLE_CDN set, the CDN resolver is bypassed and
// only the original URL is fetched.
type OptimizedUrl struct {
	Primary  string
	Fallback string
}

// CDNResolver picks between a primary source URL and a CDN-mirrored one.
type CDNResolver interface {
	Resolve(primary string) OptimizedUrl
}

// IdentityCDNResolver never substitutes a mirror; it is the default when no
// CDN integration is configured.
type IdentityCDNResolver struct{}

func (IdentityCDNResolver) Resolve(primary string) OptimizedUrl {
	return OptimizedUrl{Primary: primary}
}

// Downloader fetches artifacts into a content-addressed cache, keyed by the
// sha256 of their contents, de-duplicating concurrent requests for the same
// URL within one process and reusing a completed download of a URL while its
// cached file is still present.
type Downloader struct {
	client     *http.Client
	cacheDir   string
	group      singleflight.Group
	done       sync.Map // url -> cache path of a completed download
	cdn        CDNResolver
	disableCDN bool
}

// NewDownloader creates a Downloader whose cache lives under cacheDir.
func NewDownloader(cacheDir string, cdn CDNResolver, disableCDN bool) *Downloader {
	if cdn == nil {
		cdn = IdentityCDNResolver{}
	}
	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = 3
	return &Downloader{
		client:     rc.StandardClient(),
		cacheDir:   cacheDir,
		cdn:        cdn,
		disableCDN: disableCDN,
	}
}

// Download fetches url (applying CDN fallback) into the content-addressed
// cache and returns the local path. Concurrent calls for the same URL share
// one in-flight download.
func (d *Downloader) Download(ctx context.Context, url string) (string, error) {
	if p, ok := d.done.Load(url); ok {
		if _, err := os.Stat(p.(string)); err == nil {
			return p.(string), nil
		}
	}
	v, err, _ := d.group.Do(url, func() (any, error) {
		return d.downloadUncached(ctx, url)
	})
	if err != nil {
		return "", err
	}
	d.done.Store(url, v)
	return v.(string), nil
}

func (d *Downloader) downloadUncached(ctx context.Context, url string) (string, error) {
	var optimized OptimizedUrl
	if d.disableCDN {
		optimized = IdentityCDNResolver{}.Resolve(url)
	} else {
		optimized = d.cdn.Resolve(url)
	}
	targets := []string{optimized.Primary}
	if optimized.Fallback != "" {
		targets = append(targets, optimized.Fallback)
	}

	var lastErr error
	for _, target := range targets {
		tmpPath, err := d.fetchToTemp(ctx, target)
		if err != nil {
			lastErr = err
			slog.Warn("download attempt failed, trying next source", "url", target, "error", err)
			continue
		}
		return d.promoteToCache(tmpPath, target)
	}
	return "", vxerrors.Wrap(vxerrors.CategoryNetwork, vxerrors.CodeNetworkFailed, "failed to download artifact", lastErr).
		WithDetail("url", url)
}

func (d *Downloader) fetchToTemp(ctx context.Context, url string) (string, error) {
	if err := os.MkdirAll(d.cacheDir, 0o755); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", vxerrors.New(vxerrors.CategoryNetwork, vxerrors.CodeHTTPError, "unexpected HTTP status").
			WithDetail("status", resp.StatusCode).WithDetail("url", url)
	}

	tmp, err := os.CreateTemp(d.cacheDir, "download-*.tmp")
	if err != nil {
		return "", err
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// promoteToCache renames a completed download into its content-addressed
// final location — cacheDir/<sha256>/<original-filename> — preserving the
// filename so extractors that sniff format from the name (or a human
// poking around the cache) still see e.g. "node-v20.11.0-linux-x64.tar.gz"
// rather than a bare hex string, and removes the temp file.
func (d *Downloader) promoteToCache(tmpPath, sourceURL string) (string, error) {
	digest, err := Sha256File(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	dir := filepath.Join(d.cacheDir, digest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	final := filepath.Join(dir, filenameFromURL(sourceURL))
	if _, err := os.Stat(final); err == nil {
		os.Remove(tmpPath)
		return final, nil
	}
	if err := os.Rename(tmpPath, final); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	return final, nil
}

// filenameFromURL extracts the final path segment of a download URL, e.g.
// "node-v20.11.0-linux-x64.tar.gz" from
// ".../dist/v20.11.0/node-v20.11.0-linux-x64.tar.gz?foo=bar".
func filenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "download"
	}
	base := path.Base(u.Path)
	if base == "" || base == "." || base == "/" {
		return "download"
	}
	return base
}

// Sha256File hashes a file's contents.
func Sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func sha512File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha512.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyChecksum checks that path's digest matches expected. expected is a
// bare hex digest (assumed sha256) or prefixed "sha256:<hex>" /
// "sha512:<hex>", matching the algorithm:hash convention manifests'
// checksum documents use.
func VerifyChecksum(path, expected string) error {
	algo, hash := "sha256", expected
	if i := strings.IndexByte(expected, ':'); i >= 0 {
		algo, hash = expected[:i], expected[i+1:]
	}

	var actual string
	var err error
	switch algo {
	case "sha256":
		actual, err = Sha256File(path)
	case "sha512":
		actual, err = sha512File(path)
	default:
		return vxerrors.New(vxerrors.CategoryInstall, vxerrors.CodeChecksumMismatch, "unsupported checksum algorithm").
			WithDetail("algorithm", algo)
	}
	if err != nil {
		return err
	}
	if !strings.EqualFold(actual, hash) {
		return vxerrors.New(vxerrors.CategoryInstall, vxerrors.CodeChecksumMismatch, "checksum mismatch").
			WithDetail("expected", hash).WithDetail("actual", actual)
	}
	return nil
}

// FetchChecksumDigest retrieves a published checksum document at url and
// extracts the digest for filename. Checksum documents are either a bare
// hex digest (nothing else on the line) or the coreutils sha256sum/
// sha512sum format ("<hex>  <filename>" per line, optionally "*"-prefixed
// for binary mode); the matching line's digest wins, falling back to a
// lone line's digest when the document has only one.
func (d *Downloader) FetchChecksumDigest(ctx context.Context, checksumURL, filename string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, checksumURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", vxerrors.New(vxerrors.CategoryNetwork, vxerrors.CodeHTTPError, "unexpected HTTP status fetching checksum").
			WithDetail("status", resp.StatusCode).WithDetail("url", checksumURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return parseChecksumDocument(string(body), filename), nil
}

func parseChecksumDocument(doc, filename string) string {
	lines := strings.Split(strings.TrimSpace(doc), "\n")
	var lone string
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) == 1 {
			lone = fields[0]
			continue
		}
		if strings.TrimPrefix(fields[1], "*") == filename {
			return fields[0]
		}
	}
	return lone
}
