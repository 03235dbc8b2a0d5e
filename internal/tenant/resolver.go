package tenant

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"resto-platform/internal/models"
	"resto-platform/internal/util"

	"go.uber.org/zap"
)

// Registry is the master-side lookup the resolver depends on.
// Implemented by store.Master.
type Registry interface {
	// TenantByRoutingKey returns (nil, nil) when no tenant owns the key.
	TenantByRoutingKey(ctx context.Context, key string) (*models.Tenant, error)
}

type cacheEntry struct {
	handle  *models.TenantHandle
	blocked bool
	expires time.Time
}

// Resolver maps an inbound host to a tenant handle. Results are cached
// with a short TTL so a registry round-trip is not paid per request.
// Blocked tenants resolve to ErrTenantBlocked, never to a fallback.
type Resolver struct {
	registry Registry
	cipher   *DescriptorCipher
	ttl      time.Duration
	logger   *zap.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewResolver creates a resolver over the given registry.
func NewResolver(registry Registry, cipher *DescriptorCipher, ttl time.Duration) *Resolver {
	return &Resolver{
		registry: registry,
		cipher:   cipher,
		ttl:      ttl,
		logger:   util.GetLogger(),
		cache:    make(map[string]cacheEntry),
	}
}

// Resolve maps a request host to a tenant handle. A nil handle with a nil
// error means the platform's own (non-tenant) context.
func (r *Resolver) Resolve(ctx context.Context, host string) (*models.TenantHandle, error) {
	key := RoutingKey(host)
	if key == "" {
		return nil, nil
	}

	now := time.Now()

	r.mu.Lock()
	entry, ok := r.cache[key]
	r.mu.Unlock()

	if ok && now.Before(entry.expires) {
		if entry.blocked {
			return nil, models.ErrTenantBlocked
		}
		return entry.handle, nil
	}

	t, err := r.registry.TenantByRoutingKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("tenant lookup failed for %q: %w", key, err)
	}

	entry = cacheEntry{expires: now.Add(r.ttl)}

	if t != nil {
		if t.Blocked {
			entry.blocked = true
		} else {
			dsn, err := r.cipher.Decrypt(t.EncryptedDSN)
			if err != nil {
				// A corrupt descriptor is an operator problem; do not
				// cache it, the next rotation may fix it.
				r.logger.Error("Failed to decrypt tenant descriptor",
					zap.Int64("tenant_id", t.ID),
					zap.Error(err))
				return nil, err
			}
			entry.handle = &models.TenantHandle{
				ID:         t.ID,
				RoutingKey: t.RoutingKey,
				DSN:        dsn,
			}
		}
	}

	r.mu.Lock()
	r.cache[key] = entry
	r.mu.Unlock()

	if entry.blocked {
		return nil, models.ErrTenantBlocked
	}
	return entry.handle, nil
}

// Invalidate drops a cached entry so the next request re-reads the
// registry. Called after descriptor rotation.
func (r *Resolver) Invalidate(key string) {
	r.mu.Lock()
	delete(r.cache, key)
	r.mu.Unlock()
}

// RoutingKey extracts the subdomain-style routing key from a host.
// "pizzeria.orders.example.com:8080" yields "pizzeria"; bare hosts and
// addresses yield "" (the platform context).
func RoutingKey(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if net.ParseIP(host) != nil {
		return ""
	}

	parts := strings.Split(host, ".")
	if len(parts) < 3 {
		return ""
	}
	return parts[0]
}
