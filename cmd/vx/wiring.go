package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/terassyi/vx/internal/archive"
	vxerrors "github.com/terassyi/vx/internal/errors"
	"github.com/terassyi/vx/internal/github"
	"github.com/terassyi/vx/internal/manifest"
	"github.com/terassyi/vx/internal/pipeline"
	"github.com/terassyi/vx/internal/platform"
	"github.com/terassyi/vx/internal/store"
	"github.com/terassyi/vx/internal/versionfetch"
)

// env holds the environment variables vx's external interface recognizes
// (VX_HOME, VX_CACHE_MODE, VX_DISABLE_CDN, VX_REGION, VX_PROVIDERS_DIR), plus
// the GitHub token (GITHUB_TOKEN or GH_TOKEN).
type env struct {
	home         string
	cacheMode    versionfetch.CacheMode
	disableCDN   bool
	region       string
	providersDir string
	githubToken  string
}

func loadEnv() env {
	e := env{
		home:        os.Getenv("VX_HOME"),
		cacheMode:   parseCacheMode(os.Getenv("VX_CACHE_MODE")),
		disableCDN:  os.Getenv("VX_DISABLE_CDN") == "1",
		region:      os.Getenv("VX_REGION"),
		githubToken: github.TokenFromEnv(),
	}
	e.providersDir = os.Getenv("VX_PROVIDERS_DIR")
	return e
}

func parseCacheMode(raw string) versionfetch.CacheMode {
	switch strings.ToLower(raw) {
	case "refresh":
		return versionfetch.CacheModeRefresh
	case "offline":
		return versionfetch.CacheModeOffline
	case "no-cache", "nocache":
		return versionfetch.CacheModeNoCache
	default:
		return versionfetch.CacheModeNormal
	}
}

// regionCDNResolver maps VX_REGION to a nearby jsDelivr-style CDN mirror. It
// only ever rewrites jsDelivr/npm-style hosts it recognizes; anything else
// falls back to the primary URL untouched.
type regionCDNResolver struct {
	region string
}

func (r regionCDNResolver) Resolve(primaryURL string) archive.OptimizedUrl {
	if r.region == "" || !strings.Contains(primaryURL, "cdn.jsdelivr.net") {
		return archive.OptimizedUrl{Primary: primaryURL}
	}
	mirror := fmt.Sprintf("https://%s.jsdelivr.net", r.region)
	return archive.OptimizedUrl{
		Primary:  strings.Replace(primaryURL, "https://cdn.jsdelivr.net", mirror, 1),
		Fallback: primaryURL,
	}
}

// storePaths resolves vx's on-disk base directory (VX_HOME or the
// platform default) into a store.Paths, shared by buildPipeline and any
// other command that needs the base directory without a full Pipeline.
func storePaths(e env) (*store.Paths, error) {
	var pathOpts []store.Option
	if e.home != "" {
		pathOpts = append(pathOpts, store.WithBase(e.home))
	}
	paths, err := store.NewPaths(pathOpts...)
	if err != nil {
		return nil, vxerrors.Wrap(vxerrors.CategoryState, vxerrors.CodeStateError, "failed to resolve VX_HOME", err)
	}
	return paths, nil
}

// buildPipeline wires every component a pipeline.Pipeline invocation needs:
// platform detection, the on-disk store, the provider registry, and a
// version source backed by the manifest-declared fetcher plus TTL cache.
func buildPipeline() (*pipeline.Pipeline, *manifest.Registry, error) {
	e := loadEnv()

	paths, err := storePaths(e)
	if err != nil {
		return nil, nil, err
	}

	providersDir := e.providersDir
	if providersDir == "" {
		providersDir = filepath.Join(paths.Base(), "providers")
	}
	registry, err := manifest.LoadDir(providersDir)
	if err != nil {
		return nil, nil, err
	}

	st := store.New(paths)
	httpClient := github.NewHTTPClient(e.githubToken)
	downloader := archive.NewDownloader(paths.DownloadCacheDir(), regionCDNResolver{region: e.region}, e.disableCDN)
	versions := &registryVersionSource{registry: registry, cacheMode: e.cacheMode, client: httpClient, cacheDir: paths.VersionCacheDir()}

	p := &pipeline.Pipeline{
		Registry:    registry,
		Versions:    versions,
		Store:       st,
		Downloader:  downloader,
		Platform:    platform.Detect(),
		Parallelism: pipeline.DefaultEnsureParallelism,
	}
	return p, registry, nil
}

// registryVersionSource adapts a manifest-declared version source (resolved
// per-runtime through its Manifest.Source) into pipeline.VersionSource,
// fetching through the TTL cache rather than hitting upstream every call.
type registryVersionSource struct {
	registry  *manifest.Registry
	cacheMode versionfetch.CacheMode
	client    *http.Client
	cacheDir  string
}

func (r *registryVersionSource) AvailableVersions(ctx context.Context, runtime string) ([]versionfetch.VersionInfo, error) {
	m, ok := r.registry.Resolve(runtime)
	if !ok {
		return nil, vxerrors.New(vxerrors.CategoryRegistry, vxerrors.CodeRegistryError, "runtime not found").
			WithDetail("runtime", runtime)
	}

	fetcher, err := fetcherFor(m, r.client)
	if err != nil {
		return nil, err
	}

	cache := versionfetch.NewCache(versionfetch.CachePath(r.cacheDir, m.Name), versionfetch.DefaultTTL)
	return cache.Fetch(ctx, m.Name, r.cacheMode, fetcher)
}

// fetcherFor builds the versionfetch.Fetcher a manifest's source.kind
// declares.
func fetcherFor(m *manifest.Manifest, client *http.Client) (versionfetch.Fetcher, error) {
	switch m.Source.Kind {
	case "github-releases":
		owner, repo, err := splitRepo(m.Source.Repo)
		if err != nil {
			return nil, err
		}
		return versionfetch.NewGitHubReleases(owner, repo, m.Source.TagPrefix != "", true, client), nil
	case "jsdelivr":
		owner, repo, err := splitRepo(m.Source.Repo)
		if err != nil {
			return nil, err
		}
		return versionfetch.NewJsDelivr(owner, repo, client), nil
	case "npm":
		return versionfetch.NewNpm(m.Source.Package, client), nil
	case "pypi":
		return versionfetch.NewPyPI(m.Source.Package, client), nil
	case "custom":
		return versionfetch.NewCustom(m.Source.Command, client), nil
	default:
		return nil, vxerrors.New(vxerrors.CategoryConfig, vxerrors.CodeValidationFailed, "unknown version source kind").
			WithDetail("provider", m.Name).WithDetail("kind", m.Source.Kind)
	}
}

func splitRepo(repo string) (owner, name string, err error) {
	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", vxerrors.New(vxerrors.CategoryConfig, vxerrors.CodeValidationFailed, "source.repo must be \"owner/name\"").
			WithDetail("repo", repo)
	}
	return parts[0], parts[1], nil
}
