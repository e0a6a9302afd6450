package versionfetch

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRoundTripper lets tests intercept outbound requests without standing
// up a real listener, mirroring internal/registry/aqua's test helper.
type mockRoundTripper struct {
	handler func(req *http.Request) (*http.Response, error)
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.handler(req)
}

func newMockResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func mockClient(handler func(req *http.Request) (*http.Response, error)) *http.Client {
	return &http.Client{Transport: &mockRoundTripper{handler: handler}}
}

func TestGitHubReleases_StripsVPrefixAndFiltersDrafts(t *testing.T) {
	calls := 0
	client := mockClient(func(req *http.Request) (*http.Response, error) {
		calls++
		assert.Contains(t, req.URL.String(), "api.github.com/repos/golang/go/releases")
		if calls == 1 {
			return newMockResponse(http.StatusOK, `[
				{"tag_name": "v1.22.0", "prerelease": false, "draft": false},
				{"tag_name": "v1.23.0-rc1", "prerelease": true, "draft": false},
				{"tag_name": "v1.99.0", "prerelease": false, "draft": true}
			]`), nil
		}
		return newMockResponse(http.StatusOK, `[]`), nil
	})

	f := NewGitHubReleases("golang", "go", true, false, client)
	versions, err := f.Fetch(context.Background(), "go")
	require.NoError(t, err)

	require.Len(t, versions, 2) // draft excluded
	assert.Equal(t, "1.22.0", versions[0].Version)
	assert.Equal(t, "1.23.0-rc1", versions[1].Version)
	assert.True(t, versions[1].Prerelease)
}

func TestGitHubReleases_SkipPrereleases(t *testing.T) {
	client := mockClient(func(req *http.Request) (*http.Response, error) {
		return newMockResponse(http.StatusOK, `[
			{"tag_name": "v2.0.0-beta", "prerelease": true, "draft": false},
			{"tag_name": "v1.0.0", "prerelease": false, "draft": false}
		]`), nil
	})

	f := NewGitHubReleases("o", "r", true, true, client)
	versions, err := f.Fetch(context.Background(), "r")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "1.0.0", versions[0].Version)
}

func TestGitHubReleases_HTTPErrorPropagates(t *testing.T) {
	client := mockClient(func(req *http.Request) (*http.Response, error) {
		return newMockResponse(http.StatusInternalServerError, ""), nil
	})

	f := NewGitHubReleases("o", "r", true, false, client)
	_, err := f.Fetch(context.Background(), "r")
	assert.Error(t, err)
}

func TestNpm_FiltersDeprecated(t *testing.T) {
	client := mockClient(func(req *http.Request) (*http.Response, error) {
		return newMockResponse(http.StatusOK, `{
			"dist-tags": {"latest": "2.0.0"},
			"versions": {
				"1.0.0": {"deprecated": "use 2.x"},
				"2.0.0": {}
			},
			"time": {"2.0.0": "2024-01-01T00:00:00.000Z"}
		}`), nil
	})

	f := NewNpm("some-pkg", client)
	versions, err := f.Fetch(context.Background(), "some-pkg")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "2.0.0", versions[0].Version)
}

func TestPyPI_SkipsFullyYankedReleases(t *testing.T) {
	client := mockClient(func(req *http.Request) (*http.Response, error) {
		return newMockResponse(http.StatusOK, `{
			"releases": {
				"1.0.0": [{"upload_time_iso_8601": "2023-01-01T00:00:00Z", "yanked": true}],
				"2.0.0": [{"upload_time_iso_8601": "2024-01-01T00:00:00Z", "yanked": false}]
			}
		}`), nil
	})

	f := NewPyPI("some-pkg", client)
	versions, err := f.Fetch(context.Background(), "some-pkg")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "2.0.0", versions[0].Version)
}

func TestCustom_HTTPTextRegexExtraction(t *testing.T) {
	client := mockClient(func(req *http.Request) (*http.Response, error) {
		return newMockResponse(http.StatusOK, "v20.11.0 v20.10.0 garbage v18.19.0"), nil
	})

	f := NewCustom(`http-text:https://nodejs.org/dist/index.json:v(\d+\.\d+\.\d+)`, client)
	versions, err := f.Fetch(context.Background(), "node")
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, "20.11.0", versions[0].Version)
}

func TestCustom_JSONPointerExtraction(t *testing.T) {
	client := mockClient(func(req *http.Request) (*http.Response, error) {
		return newMockResponse(http.StatusOK, `{"data": {"versions": ["1.0.0", "2.0.0"]}}`), nil
	})

	f := NewCustom("json-pointer:https://example.com/index.json:data/versions", client)
	versions, err := f.Fetch(context.Background(), "thing")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "1.0.0", versions[0].Version)
}

type staticFetcher struct {
	versions []VersionInfo
	calls    int
}

func (f *staticFetcher) Fetch(ctx context.Context, runtimeName string) ([]VersionInfo, error) {
	f.calls++
	return f.versions, nil
}

func TestCache_NormalModeServesWithinTTL(t *testing.T) {
	dir := t.TempDir()
	cache := NewCache(dir+"/node.bin", time.Hour)
	fetcher := &staticFetcher{versions: []VersionInfo{{Version: "20.11.0"}}}

	first, err := cache.Fetch(context.Background(), "node", CacheModeNormal, fetcher)
	require.NoError(t, err)
	assert.Len(t, first, 1)

	second, err := cache.Fetch(context.Background(), "node", CacheModeNormal, fetcher)
	require.NoError(t, err)
	assert.Len(t, second, 1)
	assert.Equal(t, 1, fetcher.calls, "second call should be served from cache")
}

func TestCache_RefreshModeBypassesCache(t *testing.T) {
	dir := t.TempDir()
	cache := NewCache(dir+"/node.bin", time.Hour)
	fetcher := &staticFetcher{versions: []VersionInfo{{Version: "20.11.0"}}}

	_, err := cache.Fetch(context.Background(), "node", CacheModeNormal, fetcher)
	require.NoError(t, err)

	_, err = cache.Fetch(context.Background(), "node", CacheModeRefresh, fetcher)
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.calls)
}

func TestCache_OfflineModeErrorsWithoutPriorFetch(t *testing.T) {
	dir := t.TempDir()
	cache := NewCache(dir+"/node.bin", time.Hour)
	fetcher := &staticFetcher{}

	_, err := cache.Fetch(context.Background(), "node", CacheModeOffline, fetcher)
	assert.Error(t, err)
	assert.Equal(t, 0, fetcher.calls)
}

func TestCache_OfflineModeServesExpiredEntry(t *testing.T) {
	dir := t.TempDir()
	cache := &Cache{dbPath: dir + "/node.bin", ttl: -time.Second} // already-expired TTL (NewCache would replace it with DefaultTTL)
	fetcher := &staticFetcher{versions: []VersionInfo{{Version: "20.11.0"}}}

	_, err := cache.Fetch(context.Background(), "node", CacheModeNormal, fetcher)
	require.NoError(t, err)

	versions, err := cache.Fetch(context.Background(), "node", CacheModeOffline, fetcher)
	require.NoError(t, err)
	assert.Len(t, versions, 1)
	assert.Equal(t, 1, fetcher.calls)
}

func TestCache_NoCacheModeNeverPersists(t *testing.T) {
	dir := t.TempDir()
	cache := NewCache(dir+"/node.bin", time.Hour)
	fetcher := &staticFetcher{versions: []VersionInfo{{Version: "1.0.0"}}}

	_, err := cache.Fetch(context.Background(), "node", CacheModeNoCache, fetcher)
	require.NoError(t, err)
	_, err = cache.Fetch(context.Background(), "node", CacheModeNoCache, fetcher)
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.calls)
}
