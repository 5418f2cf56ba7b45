// Package endpoints resolves provider endpoints (DIDs, SIP URIs) to owning employees.
package endpoints

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ProviderTwilio is the provider key stored in phone_endpoints.provider.
const ProviderTwilio = "twilio"

// ErrReadOnly is returned when assigning through a directory that cannot store owners.
var ErrReadOnly = errors.New("endpoints: directory is read-only")

// Directory is the lookup contract consumed by call-log reconciliation.
type Directory interface {
	EmployeeForEndpoint(ctx context.Context, endpoint string) (int64, bool, error)
}

// SQLDirectory reads phone_endpoints for a single provider.
type SQLDirectory struct {
	db       *sql.DB
	provider string
}

func NewSQLDirectory(db *sql.DB, provider string) *SQLDirectory {
	if provider == "" {
		provider = ProviderTwilio
	}
	return &SQLDirectory{db: db, provider: provider}
}

func (d *SQLDirectory) EmployeeForEndpoint(ctx context.Context, endpoint string) (int64, bool, error) {
	if endpoint == "" {
		return 0, false, nil
	}
	const q = `
SELECT employee_id
FROM phone_endpoints
WHERE provider = $1 AND endpoint = $2
LIMIT 1
`
	var id int64
	if err := d.db.QueryRowContext(ctx, q, d.provider, endpoint).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return id, true, nil
}

// Assign maps endpoint to employeeID, replacing any previous owner.
func (d *SQLDirectory) Assign(ctx context.Context, endpoint string, employeeID int64) error {
	const q = `
INSERT INTO phone_endpoints (provider, endpoint, employee_id, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (provider, endpoint) DO UPDATE SET employee_id = excluded.employee_id
`
	_, err := d.db.ExecContext(ctx, q, d.provider, endpoint, employeeID, time.Now().UTC())
	return err
}

// Assigner is implemented by directories that accept owner changes.
type Assigner interface {
	Assign(ctx context.Context, endpoint string, employeeID int64) error
}

// cacheClient is the subset of *redis.Client the cache uses.
type cacheClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// CachedDirectory is a redis read-through cache in front of another Directory.
//
// Only positive hits are cached so a newly assigned endpoint resolves on the next webhook.
// Owner changes made through Assign drop the cached entry; changes written elsewhere
// are visible once the entry expires. Redis failures fall through to the inner directory.
type CachedDirectory struct {
	cache  cacheClient
	inner  Directory
	ttl    time.Duration
	prefix string
	log    *slog.Logger
}

// NewCachedDirectory wraps inner. A nil client or a ttl <= 0 disables caching.
func NewCachedDirectory(rdb *redis.Client, inner Directory, ttl time.Duration, log *slog.Logger) *CachedDirectory {
	if log == nil {
		log = slog.Default()
	}
	c := &CachedDirectory{inner: inner, ttl: ttl, prefix: "endpoints:" + ProviderTwilio, log: log}
	if rdb != nil && ttl > 0 {
		c.cache = rdb
	}
	return c
}

func (c *CachedDirectory) key(endpoint string) string { return c.prefix + ":" + endpoint }

func (c *CachedDirectory) EmployeeForEndpoint(ctx context.Context, endpoint string) (int64, bool, error) {
	if endpoint == "" {
		return 0, false, nil
	}
	if c.cache != nil {
		raw, err := c.cache.Get(ctx, c.key(endpoint)).Result()
		switch {
		case err == nil:
			if id, perr := strconv.ParseInt(raw, 10, 64); perr == nil && id > 0 {
				return id, true, nil
			}
		case !errors.Is(err, redis.Nil):
			c.log.Warn("endpoint cache read failed", "endpoint", endpoint, "err", err)
		}
	}

	id, ok, err := c.inner.EmployeeForEndpoint(ctx, endpoint)
	if err != nil || !ok {
		return id, ok, err
	}
	if c.cache != nil {
		if err := c.cache.Set(ctx, c.key(endpoint), strconv.FormatInt(id, 10), c.ttl).Err(); err != nil {
			c.log.Warn("endpoint cache write failed", "endpoint", endpoint, "err", err)
		}
	}
	return id, true, nil
}

// Assign writes the new owner through to the inner directory and drops the cached one.
func (c *CachedDirectory) Assign(ctx context.Context, endpoint string, employeeID int64) error {
	a, ok := c.inner.(Assigner)
	if !ok {
		return ErrReadOnly
	}
	if err := a.Assign(ctx, endpoint, employeeID); err != nil {
		return err
	}
	return c.Invalidate(ctx, endpoint)
}

// Invalidate removes any cached owner for endpoint.
func (c *CachedDirectory) Invalidate(ctx context.Context, endpoint string) error {
	if c.cache == nil || endpoint == "" {
		return nil
	}
	if err := c.cache.Del(ctx, c.key(endpoint)).Err(); err != nil {
		return fmt.Errorf("endpoints: invalidate %s: %w", endpoint, err)
	}
	return nil
}

// MemoryDirectory is a simple in-memory directory useful for tests.
type MemoryDirectory struct {
	mu      sync.Mutex
	byEndpt map[string]int64
	lookups int

	// Err, when set, is returned by every lookup.
	Err error
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{byEndpt: map[string]int64{}}
}

func (d *MemoryDirectory) Assign(endpoint string, employeeID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byEndpt[endpoint] = employeeID
}

func (d *MemoryDirectory) EmployeeForEndpoint(ctx context.Context, endpoint string) (int64, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookups++
	if d.Err != nil {
		return 0, false, d.Err
	}
	id, ok := d.byEndpt[endpoint]
	return id, ok, nil
}

// Lookups reports how many lookups reached this directory.
func (d *MemoryDirectory) Lookups() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lookups
}
