package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"resto-platform/internal/util"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const openAttempts = 3

// OpenFunc opens a connection pool for a descriptor. Swapped in tests.
type OpenFunc func(ctx context.Context, dsn string) (*sqlx.DB, error)

type poolEntry struct {
	mu       sync.Mutex
	db       *sqlx.DB
	dsn      string
	lastUsed time.Time
}

// Pools maintains one lazily created connection pool per tenant. Pools for
// the same tenant are never opened twice concurrently, stale pools are
// replaced when the descriptor rotates, and idle pools are evicted to
// bound resource usage under many low-traffic tenants.
type Pools struct {
	open        OpenFunc
	idleTTL     time.Duration
	rotateGrace time.Duration
	logger      *zap.Logger

	mu      sync.Mutex
	entries map[int64]*poolEntry
}

// NewPools creates a pool manager. A nil open func uses the postgres opener.
func NewPools(open OpenFunc, idleTTL, rotateGrace time.Duration) *Pools {
	if open == nil {
		open = openPostgres
	}
	return &Pools{
		open:        open,
		idleTTL:     idleTTL,
		rotateGrace: rotateGrace,
		logger:      util.GetLogger(),
		entries:     make(map[int64]*poolEntry),
	}
}

func openPostgres(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Get returns the live pool for a tenant, opening one if needed. A changed
// descriptor replaces the pool: the stale one keeps serving in-flight work
// for a grace period before it is closed.
func (p *Pools) Get(ctx context.Context, tenantID int64, dsn string) (*sqlx.DB, error) {
	p.mu.Lock()
	e, ok := p.entries[tenantID]
	if !ok {
		e = &poolEntry{}
		p.entries[tenantID] = e
	}
	p.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.db != nil && e.dsn == dsn {
		e.lastUsed = time.Now()
		return e.db, nil
	}

	if e.db != nil {
		stale := e.db
		p.logger.Info("Tenant descriptor rotated, replacing pool",
			zap.Int64("tenant_id", tenantID))
		time.AfterFunc(p.rotateGrace, func() {
			if err := stale.Close(); err != nil {
				p.logger.Warn("Failed to close stale pool", zap.Error(err))
			}
		})
		e.db = nil
	}

	db, err := p.openWithRetry(ctx, dsn)
	if err != nil {
		util.TenantPoolOpenFailures.Inc()
		return nil, fmt.Errorf("failed to open pool for tenant %d: %w", tenantID, err)
	}

	e.db = db
	e.dsn = dsn
	e.lastUsed = time.Now()
	util.TenantPoolsOpen.Inc()
	return db, nil
}

// openWithRetry retries transient open failures with backoff. Business
// errors never reach this path; only infra errors are retried.
func (p *Pools) openWithRetry(ctx context.Context, dsn string) (*sqlx.DB, error) {
	var lastErr error
	backoff := 100 * time.Millisecond

	for attempt := 1; attempt <= openAttempts; attempt++ {
		db, err := p.open(ctx, dsn)
		if err == nil {
			return db, nil
		}
		lastErr = err

		if attempt < openAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return nil, lastErr
}

// Run evicts idle pools until the context is cancelled.
func (p *Pools) Run(ctx context.Context) {
	interval := p.idleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.evictIdle(time.Now())
		}
	}
}

func (p *Pools) evictIdle(now time.Time) {
	p.mu.Lock()
	snapshot := make(map[int64]*poolEntry, len(p.entries))
	for id, e := range p.entries {
		snapshot[id] = e
	}
	p.mu.Unlock()

	for id, e := range snapshot {
		e.mu.Lock()
		if e.db != nil && now.Sub(e.lastUsed) > p.idleTTL {
			if err := e.db.Close(); err != nil {
				p.logger.Warn("Failed to close idle pool",
					zap.Int64("tenant_id", id),
					zap.Error(err))
			}
			e.db = nil
			util.TenantPoolsEvicted.Inc()
			p.logger.Info("Evicted idle tenant pool", zap.Int64("tenant_id", id))
		}
		e.mu.Unlock()
	}
}

// Close shuts down every open pool.
func (p *Pools) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, e := range p.entries {
		e.mu.Lock()
		if e.db != nil {
			if err := e.db.Close(); err != nil {
				p.logger.Warn("Failed to close pool",
					zap.Int64("tenant_id", id),
					zap.Error(err))
			}
			e.db = nil
		}
		e.mu.Unlock()
	}
}
