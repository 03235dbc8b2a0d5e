package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"resto-platform/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Master wraps the shared master schema: the tenant registry and
// platform-wide broadcast notifications.
type Master struct {
	db *sqlx.DB
}

// NewMaster connects to the master database
func NewMaster(databaseURL string) (*Master, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to master database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Master{db: db}, nil
}

// Close closes the master connection
func (m *Master) Close() error {
	return m.db.Close()
}

// TenantByRoutingKey looks up a tenant by its subdomain routing key.
// Returns (nil, nil) when no tenant owns the key.
func (m *Master) TenantByRoutingKey(ctx context.Context, key string) (*models.Tenant, error) {
	var t models.Tenant
	err := m.db.GetContext(ctx, &t, "SELECT * FROM tenants WHERE routing_key = $1", key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateBroadcast persists a platform-wide notification in the master
// schema. Tenant-scoped alerts live in the tenant databases instead.
func (m *Master) CreateBroadcast(ctx context.Context, alert *models.Alert) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO broadcasts (id, type, severity, role, title, message, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		alert.ID, alert.Type, alert.Severity, alert.Role,
		alert.Title, alert.Message, alert.Payload, alert.CreatedAt)
	return err
}
