package tenant

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"resto-platform/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindingRoundTrip(t *testing.T) {
	b := &Binding{Tenant: &models.TenantHandle{ID: 42, RoutingKey: "pizzeria"}}
	ctx := With(context.Background(), b)

	got, err := FromContext(ctx)
	require.NoError(t, err)
	assert.Same(t, b, got)

	id, err := ID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestUnboundContextFailsFast(t *testing.T) {
	ctx := context.Background()

	_, err := FromContext(ctx)
	assert.ErrorIs(t, err, models.ErrNoTenantBound)

	_, err = DB(ctx)
	assert.ErrorIs(t, err, models.ErrNoTenantBound)

	_, err = ID(ctx)
	assert.ErrorIs(t, err, models.ErrNoTenantBound)
}

// Concurrent requests for different tenants must each observe their own
// binding, never a neighbor's.
func TestConcurrentBindingsAreIsolated(t *testing.T) {
	const n = 64

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(tenantID int64) {
			defer wg.Done()

			ctx := With(context.Background(), &Binding{
				Tenant: &models.TenantHandle{
					ID:         tenantID,
					RoutingKey: fmt.Sprintf("tenant-%d", tenantID),
				},
			})

			for j := 0; j < 100; j++ {
				got, err := ID(ctx)
				assert.NoError(t, err)
				assert.Equal(t, tenantID, got)
			}
		}(int64(i + 1))
	}
	wg.Wait()
}

func TestDetachKeepsTenantDropsDeadline(t *testing.T) {
	b := &Binding{Tenant: &models.TenantHandle{ID: 7}}

	reqCtx, cancel := context.WithCancel(With(context.Background(), b))
	detached := Detach(reqCtx)
	cancel()

	assert.NoError(t, detached.Err())
	got, err := FromContext(detached)
	require.NoError(t, err)
	assert.Same(t, b, got)
}

func TestDetachWithoutBinding(t *testing.T) {
	ctx := Detach(context.Background())
	_, err := FromContext(ctx)
	assert.ErrorIs(t, err, models.ErrNoTenantBound)
}
