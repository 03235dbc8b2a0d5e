package tenant

import (
	"context"

	"resto-platform/internal/models"

	"github.com/jmoiron/sqlx"
)

// Binding ties a resolved tenant to its live connection pool for the
// lifetime of one request. It travels on the context, so it follows every
// goroutine spawned from the request as long as the context is passed on.
type Binding struct {
	Tenant *models.TenantHandle
	DB     *sqlx.DB
}

type bindingKey struct{}

// With returns a context carrying the binding. The previous binding, if
// any, is shadowed for the lifetime of the derived context and visible
// again once it ends.
func With(ctx context.Context, b *Binding) context.Context {
	return context.WithValue(ctx, bindingKey{}, b)
}

// FromContext returns the active binding or ErrNoTenantBound. There is no
// default: data access without a binding is a programming error, not a
// condition to paper over.
func FromContext(ctx context.Context) (*Binding, error) {
	b, ok := ctx.Value(bindingKey{}).(*Binding)
	if !ok || b == nil {
		return nil, models.ErrNoTenantBound
	}
	return b, nil
}

// DB resolves the bound tenant's pool. Every tenant-scoped query goes
// through here.
func DB(ctx context.Context) (*sqlx.DB, error) {
	b, err := FromContext(ctx)
	if err != nil {
		return nil, err
	}
	return b.DB, nil
}

// ID returns the bound tenant's identifier.
func ID(ctx context.Context) (int64, error) {
	b, err := FromContext(ctx)
	if err != nil {
		return 0, err
	}
	return b.Tenant.ID, nil
}

// Detach rebinds the current tenant onto a fresh context. Used when work
// outlives the request (notification fan-out, geofence evaluation) and
// must keep the tenant while dropping the request's deadline.
func Detach(ctx context.Context) context.Context {
	b, err := FromContext(ctx)
	if err != nil {
		return context.Background()
	}
	return With(context.Background(), b)
}
