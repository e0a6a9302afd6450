package versionfetch

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.etcd.io/bbolt"

	vxerrors "github.com/terassyi/vx/internal/errors"
)

// fetchWithBackoff retries a transient upstream fetch failure with bounded
// exponential backoff, so a single flaky response doesn't fall straight
// through to a stale-cache fallback or a hard error.
func fetchWithBackoff(ctx context.Context, runtimeName string, fetcher Fetcher) ([]VersionInfo, error) {
	var result []VersionInfo

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	err := backoff.Retry(func() error {
		versions, err := fetcher.Fetch(ctx, runtimeName)
		if err != nil {
			return err
		}
		result = versions
		return nil
	}, policy)

	return result, err
}

// CachePath returns the bolt database path for one runtime's version cache,
// under the store's VersionCacheDir (<base>/cache/versions/<runtime>.bin).
func CachePath(versionCacheDir, runtime string) string {
	return filepath.Join(versionCacheDir, runtime+".bin")
}

// CacheMode controls how the version cache interacts with upstream fetches.
type CacheMode int

const (
	// CacheModeNormal fetches on miss or expiry, otherwise serves cached.
	CacheModeNormal CacheMode = iota
	// CacheModeRefresh bypasses the cache once and overwrites on success.
	CacheModeRefresh
	// CacheModeOffline serves cached data even if expired; errors if absent.
	CacheModeOffline
	// CacheModeNoCache neither reads nor writes the cache.
	CacheModeNoCache
)

const versionsBucket = "versions"

// DefaultTTL is the cache entry lifetime applied when a caller doesn't
// override it, per spec.md §4.4.
const DefaultTTL = time.Hour

// entry is the persisted cache envelope for one runtime's version list.
type entry struct {
	Runtime   string
	FetchedAt int64
	TTLSecond int64
	Entries   []VersionInfo
}

func (e entry) expired(now time.Time) bool {
	return now.Unix()-e.FetchedAt > e.TTLSecond
}

// Cache wraps a Fetcher with a bbolt-backed TTL cache. One bolt database
// lives at <base>/cache/versions/<runtime>.bin (one file per runtime, to
// keep concurrent resolves from contending on a single file lock).
type Cache struct {
	dbPath string
	ttl    time.Duration
}

// NewCache returns a Cache for the bolt database at dbPath; the database is
// opened (and created if absent) by each Fetch. A ttl <= 0 means DefaultTTL.
func NewCache(dbPath string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{dbPath: dbPath, ttl: ttl}
}

// Fetch serves runtimeName's versions from cache, or falls through to
// fetcher.Fetch according to mode.
func (c *Cache) Fetch(ctx context.Context, runtimeName string, mode CacheMode, fetcher Fetcher) ([]VersionInfo, error) {
	if mode == CacheModeNoCache {
		return fetcher.Fetch(ctx, runtimeName)
	}

	db, err := c.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	cached, ok, err := readEntry(db, runtimeName)
	if err != nil {
		return nil, err
	}

	now := time.Now()

	switch mode {
	case CacheModeOffline:
		if !ok {
			return nil, vxerrors.New(vxerrors.CategoryNetwork, vxerrors.CodeNetworkFailed,
				"no cached versions available offline").WithDetail("runtime", runtimeName)
		}
		return cached.Entries, nil

	case CacheModeRefresh:
		// fall through to fetch unconditionally

	default: // CacheModeNormal
		if ok && !cached.expired(now) {
			return cached.Entries, nil
		}
	}

	fetched, err := fetchWithBackoff(ctx, runtimeName, fetcher)
	if err != nil {
		if ok {
			// Stale-but-present cache is better than a hard failure on a
			// transient network error in Normal mode.
			return cached.Entries, nil
		}
		return nil, err
	}

	if err := writeEntry(db, entry{
		Runtime:   runtimeName,
		FetchedAt: now.Unix(),
		TTLSecond: int64(c.ttl.Seconds()),
		Entries:   fetched,
	}); err != nil {
		return nil, err
	}

	return fetched, nil
}

func (c *Cache) open() (*bbolt.DB, error) {
	db, err := bbolt.Open(c.dbPath, 0o644, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, vxerrors.Wrap(vxerrors.CategoryState, vxerrors.CodeStateError,
			"failed to open version cache database", err).WithDetail("path", c.dbPath)
	}
	return db, nil
}

func readEntry(db *bbolt.DB, runtime string) (entry, bool, error) {
	var e entry
	var found bool

	err := db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(versionsBucket))
		if b == nil {
			return nil
		}
		data := b.Get([]byte(runtime))
		if data == nil {
			return nil
		}
		found = true
		return gob.NewDecoder(bytes.NewReader(data)).Decode(&e)
	})
	if err != nil {
		return entry{}, false, vxerrors.Wrap(vxerrors.CategoryState, vxerrors.CodeStateError,
			"failed to read version cache entry", err).WithDetail("runtime", runtime)
	}
	return e, found, nil
}

func writeEntry(db *bbolt.DB, e entry) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return fmt.Errorf("encode version cache entry: %w", err)
	}

	err := db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(versionsBucket))
		if err != nil {
			return err
		}
		return b.Put([]byte(e.Runtime), buf.Bytes())
	})
	if err != nil {
		return vxerrors.Wrap(vxerrors.CategoryState, vxerrors.CodeStateError,
			"failed to write version cache entry", err).WithDetail("runtime", e.Runtime)
	}
	return nil
}
