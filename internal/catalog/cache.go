package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"royalties/internal/logging"
	"royalties/internal/services"
)

// DefaultTTL is the snapshot lifetime used when none is configured.
const DefaultTTL = 30 * time.Minute

// Loader reads a tenant's works from durable storage.
type Loader interface {
	LoadWorks(ctx context.Context, tenantID string) ([]Work, error)
}

// Cache keeps one snapshot per tenant and reloads it when it expires or is
// invalidated. Concurrent loads for the same tenant share one Loader call.
type Cache struct {
	loader    Loader
	ttl       time.Duration
	tolerance decimal.Decimal
	now       func() time.Time
	logger    *slog.Logger

	group singleflight.Group

	mu         sync.RWMutex
	entries    map[string]*Snapshot
	generation map[string]uint64
	epoch      uint64
}

// CacheOption customizes a Cache.
type CacheOption func(*Cache)

// WithTTL overrides the snapshot lifetime.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock overrides the time source (used in tests).
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the cache logger.
func WithLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = logging.NewComponentLogger(logger, "catalog-cache")
	}
}

// WithShareTolerance sets the allowed deviation from 100% when validating shares.
func WithShareTolerance(tolerance float64) CacheOption {
	return func(c *Cache) {
		c.tolerance = decimal.NewFromFloat(tolerance)
	}
}

// NewCache constructs a cache backed by loader.
func NewCache(loader Loader, opts ...CacheOption) *Cache {
	c := &Cache{
		loader:     loader,
		ttl:        DefaultTTL,
		tolerance:  decimal.NewFromFloat(0.01),
		now:        time.Now,
		logger:     logging.NewComponentLogger(nil, "catalog-cache"),
		entries:    make(map[string]*Snapshot),
		generation: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a fresh snapshot for tenantID, loading it synchronously when the
// cached copy is missing or expired. statementID is only used for logging.
func (c *Cache) Get(ctx context.Context, tenantID, statementID string) (*Snapshot, error) {
	if snap, ok := c.Peek(tenantID); ok && !snap.Expired(c.now(), c.ttl) {
		return snap, nil
	}
	ctx = services.WithStatementID(services.WithTenant(ctx, tenantID), statementID)
	return c.Load(ctx, tenantID)
}

// Load forces a reload for tenantID.
func (c *Cache) Load(ctx context.Context, tenantID string) (*Snapshot, error) {
	gen := c.generationFor(tenantID)
	key := tenantID + "#" + strconv.FormatUint(gen, 10)

	value, err, _ := c.group.Do(key, func() (any, error) {
		started := c.now()
		works, err := c.loader.LoadWorks(ctx, tenantID)
		if err != nil {
			return nil, services.Wrap(services.ErrPersistence, "catalog", "load works", "tenant "+tenantID, err)
		}
		snap, err := NewSnapshot(tenantID, works, c.now(), c.tolerance)
		if err != nil {
			return nil, services.Wrap(services.ErrIntegrity, "catalog", "index works", "", err)
		}
		c.store(tenantID, gen, snap)
		logging.WithContext(ctx, c.logger).Info("catalog snapshot loaded",
			logging.String(logging.FieldEventType, "catalog_loaded"),
			logging.Int("works", snap.Len()),
			logging.Int("works_with_issues", snap.IssueCount()),
			logging.Duration("load_duration", c.now().Sub(started)),
		)
		return snap, nil
	})
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return value.(*Snapshot), nil
}

// Peek returns the cached snapshot regardless of age.
func (c *Cache) Peek(tenantID string) (*Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.entries[tenantID]
	return snap, ok
}

// Invalidate drops the tenant's snapshot. Loads already in flight will not
// repopulate the cache.
func (c *Cache) Invalidate(tenantID string) {
	c.mu.Lock()
	delete(c.entries, tenantID)
	c.generation[tenantID]++
	c.mu.Unlock()
	c.logger.Debug("catalog snapshot invalidated", logging.String(logging.FieldTenantID, tenantID))
}

// InvalidateAll drops every cached snapshot.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]*Snapshot)
	c.epoch++
	c.mu.Unlock()
	c.logger.Debug("all catalog snapshots invalidated")
}

// Tenants lists tenants with a cached snapshot.
func (c *Cache) Tenants() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.entries))
	for tenant := range c.entries {
		out = append(out, tenant)
	}
	sort.Strings(out)
	return out
}

// generationFor combines the per-tenant counter with the global epoch.
func (c *Cache) generationFor(tenantID string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch<<32 | c.generation[tenantID]
}

func (c *Cache) store(tenantID string, gen uint64, snap *Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch<<32|c.generation[tenantID] != gen {
		return
	}
	c.entries[tenantID] = snap
}
