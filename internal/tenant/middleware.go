package tenant

import (
	"context"
	"errors"
	"net/http"

	"resto-platform/internal/models"
	"resto-platform/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// PoolProvider hands out the live pool for a tenant. Implemented by
// store.Pools.
type PoolProvider interface {
	Get(ctx context.Context, tenantID int64, dsn string) (*sqlx.DB, error)
}

// Middleware resolves the request host to a tenant and binds the tenant's
// pool into the request context. Requests without a tenant proceed in the
// platform context; blocked tenants get 503 before any handler runs.
func Middleware(resolver *Resolver, pools PoolProvider) gin.HandlerFunc {
	logger := util.GetLogger()

	return func(c *gin.Context) {
		handle, err := resolver.Resolve(c.Request.Context(), c.Request.Host)
		if err != nil {
			if errors.Is(err, models.ErrTenantBlocked) {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
					"error": "service suspended",
				})
				return
			}
			logger.Error("Tenant resolution failed",
				zap.String("host", c.Request.Host),
				zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "tenant resolution failed",
			})
			return
		}

		if handle == nil {
			c.Next()
			return
		}

		db, err := pools.Get(c.Request.Context(), handle.ID, handle.DSN)
		if err != nil {
			logger.Error("Failed to acquire tenant pool",
				zap.Int64("tenant_id", handle.ID),
				zap.Error(err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "tenant database unavailable",
			})
			return
		}

		ctx := With(c.Request.Context(), &Binding{Tenant: handle, DB: db})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
