package bundlelib

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/spf13/afero"
	"github.com/warpdl/warpbundle/pkg/logger"
	_ "modernc.org/sqlite"
)

const cacheSchema = `
CREATE TABLE IF NOT EXISTS bundles (
	name      TEXT    NOT NULL,
	version   INTEGER NOT NULL,
	digest    TEXT    NOT NULL,
	size      INTEGER NOT NULL,
	stored_at INTEGER NOT NULL,
	PRIMARY KEY (name, version)
);
CREATE INDEX IF NOT EXISTS bundles_digest ON bundles (digest);
`

// Cache is a content-addressed store for downloaded bundles. A sqlite index
// maps (name, version) to a digest; blobs live on an afero filesystem under
// blobs/<algorithm>/<hex>. Only the latest stored version of each bundle is
// kept.
type Cache struct {
	fs      afero.Fs
	dir     string
	db      *sql.DB
	l       logger.Logger
	checkFS bool
}

// MemoryIndex is the DSN for a private in-memory index.
const MemoryIndex = ":memory:"

// OpenCache opens the cache rooted at dir. indexDSN is the sqlite DSN of
// the index; use MemoryIndex for a throwaway index.
func OpenCache(fs afero.Fs, dir, indexDSN string, l logger.Logger) (*Cache, error) {
	if l == nil {
		l = logger.NewNopLogger()
	}
	if err := fs.MkdirAll(filepath.Join(dir, "blobs"), 0755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", indexDSN)
	if err != nil {
		return nil, fmt.Errorf("open cache index: %w", err)
	}
	// An in-memory database exists per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init cache index: %w", err)
	}
	_, isOS := fs.(*afero.OsFs)
	c := &Cache{fs: fs, dir: dir, db: db, l: l, checkFS: isOS}
	if c.checkFS {
		if avail, err := freeSpace(dir); err == nil {
			l.Info("Bundle cache at %s, %d bytes free", dir, avail)
		}
	}
	return c, nil
}

// DefaultIndexDSN returns the on-disk index DSN for dir.
func DefaultIndexDSN(dir string) string {
	return "file:" + filepath.Join(dir, "index.db") + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func (c *Cache) blobPath(d digest.Digest) string {
	return filepath.Join(c.dir, "blobs", d.Algorithm().String(), d.Encoded())
}

// Get returns the stored content of name at version. A blob failing
// verification is evicted and reported as a miss.
func (c *Cache) Get(ctx context.Context, name string, version int) ([]byte, bool, error) {
	var raw string
	err := c.db.QueryRowContext(ctx,
		`SELECT digest FROM bundles WHERE name = ? AND version = ?`, name, version).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	d, err := digest.Parse(raw)
	if err != nil {
		return nil, false, c.evict(ctx, name, version, raw)
	}
	data, err := afero.ReadFile(c.fs, c.blobPath(d))
	if errors.Is(err, os.ErrNotExist) {
		c.l.Warning("Cache blob for %s missing, evicting", name)
		return nil, false, c.evict(ctx, name, version, raw)
	}
	if err != nil {
		return nil, false, err
	}
	if digest.FromBytes(data) != d {
		c.l.Warning("Cache blob for %s failed verification, evicting", name)
		return nil, false, c.evict(ctx, name, version, raw)
	}
	return data, true, nil
}

// Has reports whether name at version is indexed.
func (c *Cache) Has(ctx context.Context, name string, version int) bool {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bundles WHERE name = ? AND version = ?`, name, version).Scan(&n)
	return err == nil && n > 0
}

// Put stores data as name at version and drops older versions of name.
func (c *Cache) Put(ctx context.Context, name string, version int, data []byte) (digest.Digest, error) {
	d := digest.FromBytes(data)
	if c.checkFS {
		if avail, err := freeSpace(c.dir); err == nil && avail < uint64(len(data)) {
			return "", fmt.Errorf("%w: need %d bytes, %d available", ErrInsufficientDiskSpace, len(data), avail)
		}
	}
	path := c.blobPath(d)
	exists, err := afero.Exists(c.fs, path)
	if err != nil {
		return "", err
	}
	if !exists {
		if err := c.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return "", err
		}
		tmp := path + ".tmp"
		if err := afero.WriteFile(c.fs, tmp, data, 0644); err != nil {
			return "", err
		}
		if err := c.fs.Rename(tmp, path); err != nil {
			return "", err
		}
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()
	var stale []string
	rows, err := tx.QueryContext(ctx, `SELECT digest FROM bundles WHERE name = ? AND version != ?`, name, version)
	if err != nil {
		return "", err
	}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			rows.Close()
			return "", err
		}
		stale = append(stale, s)
	}
	rows.Close()
	if _, err := tx.ExecContext(ctx, `DELETE FROM bundles WHERE name = ? AND version != ?`, name, version); err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO bundles (name, version, digest, size, stored_at) VALUES (?, ?, ?, ?, ?)`,
		name, version, d.String(), len(data), time.Now().Unix()); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	for _, s := range stale {
		c.dropBlobIfUnused(ctx, s)
	}
	return d, nil
}

func (c *Cache) evict(ctx context.Context, name string, version int, raw string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM bundles WHERE name = ? AND version = ?`, name, version); err != nil {
		return err
	}
	c.dropBlobIfUnused(ctx, raw)
	return nil
}

func (c *Cache) dropBlobIfUnused(ctx context.Context, raw string) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bundles WHERE digest = ?`, raw).Scan(&n); err != nil || n > 0 {
		return
	}
	d, err := digest.Parse(raw)
	if err != nil {
		return
	}
	if err := c.fs.Remove(c.blobPath(d)); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.l.Warning("Failed removing cache blob %s: %v", d, err)
	}
}

// Stats returns the number of indexed bundles and their total size.
func (c *Cache) Stats(ctx context.Context) (entries int, size int64, err error) {
	err = c.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(size), 0) FROM bundles`).Scan(&entries, &size)
	return
}

// Clear drops every entry and blob.
func (c *Cache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM bundles`); err != nil {
		return err
	}
	blobs := filepath.Join(c.dir, "blobs")
	if err := c.fs.RemoveAll(blobs); err != nil {
		return err
	}
	return c.fs.MkdirAll(blobs, 0755)
}

// Close closes the index.
func (c *Cache) Close() error {
	return c.db.Close()
}

// CachedTransport serves versioned requests from a Cache and stores
// successful transfers into it.
type CachedTransport struct {
	source Retriever
	cache  *Cache
	l      logger.Logger
}

// NewCachedTransport wraps source with cache.
func NewCachedTransport(source Retriever, cache *Cache, l logger.Logger) *CachedTransport {
	if l == nil {
		l = logger.NewNopLogger()
	}
	return &CachedTransport{source: source, cache: cache, l: l}
}

// Fetch returns a completed fetch on a cache hit. Otherwise the transfer
// runs in the background and its payload is stored before the fetch
// reports done. Unversioned requests bypass the cache.
func (t *CachedTransport) Fetch(ctx context.Context, req Request) Fetch {
	if req.Version >= 0 {
		data, ok, err := t.cache.Get(ctx, req.Name, req.Version)
		if err != nil {
			t.l.Warning("Cache lookup for %s failed: %v", req.Name, err)
		}
		if ok {
			return completedFetch(req.URL, data, nil)
		}
	}
	return startFetch(ctx, t.l, req.URL, func(ctx context.Context, progress ProgressFunc) ([]byte, error) {
		data, err := t.source.Retrieve(ctx, req.URL, progress)
		if err != nil || req.Version < 0 {
			return data, err
		}
		if _, err := t.cache.Put(ctx, req.Name, req.Version, data); err != nil {
			t.l.Warning("Failed caching bundle %s: %v", req.Name, err)
		}
		return data, nil
	})
}

var _ Transport = (*CachedTransport)(nil)
