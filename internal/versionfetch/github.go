package versionfetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	vxerrors "github.com/terassyi/vx/internal/errors"
)

// githubRelease mirrors the fields of GitHub's releases API this fetcher
// needs, grounded on internal/registry/aqua/version_client.go's decode shape.
type githubRelease struct {
	TagName     string    `json:"tag_name"`
	Prerelease  bool      `json:"prerelease"`
	Draft       bool      `json:"draft"`
	PublishedAt time.Time `json:"published_at"`
	Assets      []struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
	} `json:"assets"`
}

// GitHubReleases fetches versions from a repository's paginated releases
// endpoint, grounded on internal/github/client.go's token transport (GitHub
// auth increases the 60/hr anonymous rate limit to 5,000/hr) and
// internal/registry/aqua/version_client.go's release-JSON decode shape.
type GitHubReleases struct {
	Owner           string
	Repo            string
	StripVPrefix    bool
	SkipPrereleases bool
	client          *http.Client
	perPage         int
	maxPages        int
}

// NewGitHubReleases constructs a fetcher for owner/repo. If client is nil, a
// plain timeout-bound client is used (no auth, subject to the anonymous
// rate limit).
func NewGitHubReleases(owner, repo string, stripVPrefix, skipPrereleases bool, client *http.Client) *GitHubReleases {
	if client == nil {
		client = defaultHTTPClient()
	}
	return &GitHubReleases{
		Owner:           owner,
		Repo:            repo,
		StripVPrefix:    stripVPrefix,
		SkipPrereleases: skipPrereleases,
		client:          client,
		perPage:         100,
		maxPages:        10,
	}
}

func (f *GitHubReleases) Fetch(ctx context.Context, runtimeName string) ([]VersionInfo, error) {
	var out []VersionInfo

	for page := 1; page <= f.maxPages; page++ {
		releases, err := f.fetchPage(ctx, page)
		if err != nil {
			return nil, newFetchError("github-releases", runtimeName, err)
		}
		if len(releases) == 0 {
			break
		}

		for _, r := range releases {
			if r.Draft {
				continue
			}
			if f.SkipPrereleases && r.Prerelease {
				continue
			}
			version := r.TagName
			if f.StripVPrefix {
				version = strings.TrimPrefix(version, "v")
			}

			out = append(out, VersionInfo{
				Version:     version,
				DownloadURL: firstAssetURL(r.Assets),
				Prerelease:  r.Prerelease,
				ReleaseDate: r.PublishedAt.Format("2006-01-02"),
			})
		}

		if len(releases) < f.perPage {
			break
		}
	}

	return out, nil
}

func (f *GitHubReleases) fetchPage(ctx context.Context, page int) ([]githubRelease, error) {
	apiURL := &url.URL{
		Scheme: "https",
		Host:   "api.github.com",
		Path:   path.Join("/repos", f.Owner, f.Repo, "releases"),
	}
	q := apiURL.Query()
	q.Set("per_page", fmt.Sprintf("%d", f.perPage))
	q.Set("page", fmt.Sprintf("%d", page))
	apiURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, vxerrors.New(vxerrors.CategoryNetwork, vxerrors.CodeHTTPError,
			fmt.Sprintf("github releases API returned status %d", resp.StatusCode)).
			WithDetail("url", apiURL.String())
	}

	var releases []githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&releases); err != nil {
		return nil, err
	}
	return releases, nil
}

func firstAssetURL(assets []struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}) string {
	if len(assets) == 0 {
		return ""
	}
	return assets[0].BrowserDownloadURL
}

// JsDelivr fetches a repo's tag list through the jsDelivr CDN, used as a
// rate-limit-relief alternative to GitHubReleases when only the tag name
// (not release assets) is needed.
type JsDelivr struct {
	Owner  string
	Repo   string
	client *http.Client
}

func NewJsDelivr(owner, repo string, client *http.Client) *JsDelivr {
	if client == nil {
		client = defaultHTTPClient()
	}
	return &JsDelivr{Owner: owner, Repo: repo, client: client}
}

func (f *JsDelivr) Fetch(ctx context.Context, runtimeName string) ([]VersionInfo, error) {
	apiURL := fmt.Sprintf("https://data.jsdelivr.com/v1/packages/gh/%s/%s", f.Owner, f.Repo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, newFetchError("jsdelivr", runtimeName, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, newFetchError("jsdelivr", runtimeName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newFetchError("jsdelivr", runtimeName,
			fmt.Errorf("jsdelivr API returned status %d", resp.StatusCode))
	}

	var body struct {
		Versions []string `json:"versions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, newFetchError("jsdelivr", runtimeName, err)
	}

	out := make([]VersionInfo, 0, len(body.Versions))
	isPrerelease := regexp.MustCompile(`-`)
	for _, v := range body.Versions {
		out = append(out, VersionInfo{
			Version:    strings.TrimPrefix(v, "v"),
			Prerelease: isPrerelease.MatchString(v),
		})
	}
	return out, nil
}
