package store

import (
	"context"
	"errors"

	"resto-platform/internal/models"
	"resto-platform/internal/tenant"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Store is the tenant-scoped data access layer. It carries no connection
// of its own: every method resolves the pool from the bound tenant
// context and fails fast when no binding is active.
type Store struct{}

// New creates a tenant-scoped store
func New() *Store {
	return &Store{}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	db, err := tenant.DB(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?) AND active", ids)
	if err != nil {
		return nil, err
	}
	query = db.Rebind(query)

	var products []models.Product
	err = db.SelectContext(ctx, &products, query, args...)
	return products, err
}

// ActivePromotions retrieves promotions currently in their active window
// for the given products.
func (s *Store) ActivePromotions(ctx context.Context, productIDs []int64) ([]models.Promotion, error) {
	db, err := tenant.DB(ctx)
	if err != nil {
		return nil, err
	}
	if len(productIDs) == 0 {
		return []models.Promotion{}, nil
	}

	query, args, err := sqlx.In(`
		SELECT * FROM promotions
		WHERE product_id IN (?) AND active
		  AND starts_at <= NOW() AND ends_at > NOW()`, productIDs)
	if err != nil {
		return nil, err
	}
	query = db.Rebind(query)

	var promos []models.Promotion
	err = db.SelectContext(ctx, &promos, query, args...)
	return promos, err
}

// ListActiveGeofences retrieves the tenant's active zones
func (s *Store) ListActiveGeofences(ctx context.Context) ([]models.Geofence, error) {
	db, err := tenant.DB(ctx)
	if err != nil {
		return nil, err
	}

	var fences []models.Geofence
	err = db.SelectContext(ctx, &fences, "SELECT * FROM geofences WHERE active ORDER BY id")
	return fences, err
}

// CreateAlert appends an alert row
func (s *Store) CreateAlert(ctx context.Context, alert *models.Alert) error {
	db, err := tenant.DB(ctx)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO alerts (id, type, severity, user_id, role, title, message, read, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8, $9)`,
		alert.ID, alert.Type, alert.Severity, alert.UserID, alert.Role,
		alert.Title, alert.Message, alert.Payload, alert.CreatedAt)
	return err
}

// MarkAlertRead flips the read flag of an alert the actor may see: either
// addressed to them directly, or addressed to their role. This is the only
// mutation alerts support.
func (s *Store) MarkAlertRead(ctx context.Context, alertID string, userID int64, role string) error {
	db, err := tenant.DB(ctx)
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, `
		UPDATE alerts SET read = TRUE
		WHERE id = $1 AND (user_id = $2 OR (user_id = 0 AND role = $3))`,
		alertID, userID, role)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrAlertNotFound
	}
	return nil
}
