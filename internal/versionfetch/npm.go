package versionfetch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// Npm fetches the full version list for an npm package via its registry
// document, filtering the `deprecated` map the registry attaches to
// individual versions.
type Npm struct {
	Package string
	client  *http.Client
}

func NewNpm(pkg string, client *http.Client) *Npm {
	if client == nil {
		client = defaultHTTPClient()
	}
	return &Npm{Package: pkg, client: client}
}

type npmDocument struct {
	DistTags map[string]string `json:"dist-tags"`
	Versions map[string]struct {
		Deprecated string `json:"deprecated,omitempty"`
	} `json:"versions"`
	Time map[string]string `json:"time"`
}

func (f *Npm) Fetch(ctx context.Context, runtimeName string) ([]VersionInfo, error) {
	apiURL := "https://registry.npmjs.org/" + url.PathEscape(f.Package)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, newFetchError("npm", runtimeName, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, newFetchError("npm", runtimeName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newFetchError("npm", runtimeName, errStatusf("npm registry", resp.StatusCode))
	}

	var doc npmDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, newFetchError("npm", runtimeName, err)
	}

	latestTag := doc.DistTags["latest"]
	isPrerelease := regexp.MustCompile(`-`)

	out := make([]VersionInfo, 0, len(doc.Versions))
	for v, meta := range doc.Versions {
		if meta.Deprecated != "" {
			continue
		}
		out = append(out, VersionInfo{
			Version:     v,
			Prerelease:  isPrerelease.MatchString(v),
			ReleaseDate: doc.Time[v],
			Metadata:    map[string]string{"dist-tag-latest": boolString(v == latestTag)},
		})
	}
	return out, nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// PyPI fetches a package's release list from the JSON API. Versions are
// returned in map iteration order, not sorted; each version string is kept
// as PyPI reports it (vx treats it as a best-effort semver-like string).
type PyPI struct {
	Package string
	client  *http.Client
}

func NewPyPI(pkg string, client *http.Client) *PyPI {
	if client == nil {
		client = defaultHTTPClient()
	}
	return &PyPI{Package: pkg, client: client}
}

type pypiDocument struct {
	Releases map[string][]struct {
		UploadTimeISO8601 string `json:"upload_time_iso_8601"`
		Yanked            bool   `json:"yanked"`
	} `json:"releases"`
}

func (f *PyPI) Fetch(ctx context.Context, runtimeName string) ([]VersionInfo, error) {
	apiURL := "https://pypi.org/pypi/" + url.PathEscape(f.Package) + "/json"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, newFetchError("pypi", runtimeName, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, newFetchError("pypi", runtimeName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newFetchError("pypi", runtimeName, errStatusf("PyPI", resp.StatusCode))
	}

	var doc pypiDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, newFetchError("pypi", runtimeName, err)
	}

	isPrerelease := regexp.MustCompile(`(?i)(a|b|rc|dev|pre)\d*$`)

	out := make([]VersionInfo, 0, len(doc.Releases))
	for v, files := range doc.Releases {
		if len(files) == 0 {
			continue
		}
		allYanked := true
		uploadTime := ""
		for _, f := range files {
			if !f.Yanked {
				allYanked = false
			}
			if f.UploadTimeISO8601 != "" {
				uploadTime = f.UploadTimeISO8601
			}
		}
		if allYanked {
			continue
		}
		out = append(out, VersionInfo{
			Version:     v,
			Prerelease:  isPrerelease.MatchString(strings.ToLower(v)),
			ReleaseDate: uploadTime,
		})
	}
	return out, nil
}

func errStatusf(source string, status int) error {
	return &statusError{source: source, status: status}
}

type statusError struct {
	source string
	status int
}

func (e *statusError) Error() string {
	return e.source + " returned unexpected status " + http.StatusText(e.status)
}
