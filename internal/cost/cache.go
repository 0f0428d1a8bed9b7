package cost

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

// Cache persists fetched ledgers in a local SQLite database so repeated
// runs over the same range skip the network. Entries expire after the
// configured TTL. Chat and selection state are never written here.
type Cache struct {
	db    *sql.DB
	ttl   time.Duration
	debug bool
}

// OpenCache opens (and if needed initializes) the cache database at path.
func OpenCache(path string, ttl time.Duration, debug bool) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS ledger_cache (
	source     TEXT NOT NULL,
	start_date TEXT NOT NULL,
	end_date   TEXT NOT NULL,
	fetched_at INTEGER NOT NULL,
	records    TEXT NOT NULL,
	PRIMARY KEY (source, start_date, end_date)
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	return &Cache{db: db, ttl: ttl, debug: debug}, nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached ledger for a source and range, if present and
// fresh. The second return value reports a hit.
func (c *Cache) Get(ctx context.Context, source string, dates DateRange) ([]CostRecord, bool, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT fetched_at, records FROM ledger_cache WHERE source = ? AND start_date = ? AND end_date = ?`,
		source, dates.Start, dates.End)

	var fetchedAt int64
	var payload string
	if err := row.Scan(&fetchedAt, &payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cache: %w", err)
	}

	if time.Since(time.Unix(fetchedAt, 0)) > c.ttl {
		if c.debug {
			log.Printf("[cache] stale entry for %s %s..%s", source, dates.Start, dates.End)
		}
		return nil, false, nil
	}

	var records []CostRecord
	if err := json.Unmarshal([]byte(payload), &records); err != nil {
		// A corrupt entry is treated as a miss, not a failure.
		return nil, false, nil
	}

	if c.debug {
		log.Printf("[cache] hit for %s %s..%s (%d records)", source, dates.Start, dates.End, len(records))
	}
	return records, true, nil
}

// Put stores the ledger for a source and range, replacing any prior entry.
func (c *Cache) Put(ctx context.Context, source string, dates DateRange, records []CostRecord) error {
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}

	_, err = c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO ledger_cache (source, start_date, end_date, fetched_at, records) VALUES (?, ?, ?, ?, ?)`,
		source, dates.Start, dates.End, time.Now().Unix(), string(payload))
	if err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}

// CachedSource wraps a Source with the ledger cache. Cache failures are
// logged and ignored; the wrapped source remains authoritative.
type CachedSource struct {
	inner Source
	cache *Cache
	debug bool
}

// NewCachedSource wraps src with cache.
func NewCachedSource(src Source, cache *Cache, debug bool) *CachedSource {
	return &CachedSource{inner: src, cache: cache, debug: debug}
}

// Name returns the wrapped source's identifier.
func (s *CachedSource) Name() string {
	return s.inner.Name()
}

// IsConfigured reports the wrapped source's readiness.
func (s *CachedSource) IsConfigured() bool {
	return s.inner.IsConfigured()
}

// FetchRecords serves from cache when fresh, otherwise fetches and stores.
func (s *CachedSource) FetchRecords(ctx context.Context, dates DateRange) ([]CostRecord, error) {
	if records, ok, err := s.cache.Get(ctx, s.inner.Name(), dates); err == nil && ok {
		return records, nil
	} else if err != nil && s.debug {
		log.Printf("[cache] read error: %v", err)
	}

	records, err := s.inner.FetchRecords(ctx, dates)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Put(ctx, s.inner.Name(), dates, records); err != nil && s.debug {
		log.Printf("[cache] write error: %v", err)
	}
	return records, nil
}
