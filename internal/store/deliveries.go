package store

import (
	"context"
	"database/sql"
	"fmt"

	"resto-platform/internal/models"
	"resto-platform/internal/tenant"

	"github.com/jmoiron/sqlx"
)

// AcceptDelivery creates the delivery and moves the order READY→PICKED_UP
// as one atomic unit. The conditional order update plus the unique index
// on deliveries.order_id guarantee a single winner when two drivers accept
// the same order concurrently: the loser gets ErrAlreadyAssigned (or
// ErrNotReady when the order never was ready) and nothing is written.
func (s *Store) AcceptDelivery(ctx context.Context, orderID, driverID int64, pos *models.PositionSample) (*models.Delivery, error) {
	db, err := tenant.DB(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $1, picked_up_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND status = $3 AND mode = $4`,
		models.OrderStatusPickedUp, orderID, models.OrderStatusReady, models.ModeDelivery)
	if err != nil {
		return nil, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, s.classifyAcceptFailure(ctx, tx, orderID)
	}

	var lat, lng float64
	if pos != nil {
		lat, lng = pos.Lat, pos.Lng
	}

	var delivery models.Delivery
	err = tx.GetContext(ctx, &delivery, `
		INSERT INTO deliveries (order_id, driver_id, status, lat, lng)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *`,
		orderID, driverID, models.DeliveryStatusPickedUp, lat, lng)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, models.ErrAlreadyAssigned
		}
		return nil, fmt.Errorf("failed to create delivery: %w", err)
	}

	if pos != nil {
		pos.DeliveryID = delivery.ID
		err = tx.GetContext(ctx, pos, `
			INSERT INTO position_samples (delivery_id, lat, lng, speed)
			VALUES ($1, $2, $3, $4)
			RETURNING id, recorded_at`,
			pos.DeliveryID, pos.Lat, pos.Lng, pos.Speed)
		if err != nil {
			return nil, fmt.Errorf("failed to record initial position: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &delivery, nil
}

func (s *Store) classifyAcceptFailure(ctx context.Context, q *sqlx.Tx, orderID int64) error {
	var status string
	err := q.GetContext(ctx, &status, "SELECT status FROM orders WHERE id = $1", orderID)
	if err == sql.ErrNoRows {
		return models.ErrOrderNotFound
	}
	if err != nil {
		return err
	}

	switch status {
	case models.OrderStatusPickedUp, models.OrderStatusDelivering, models.OrderStatusDelivered:
		return models.ErrAlreadyAssigned
	default:
		return fmt.Errorf("%w: order %d is %s", models.ErrNotReady, orderID, status)
	}
}

// GetDelivery retrieves a delivery joined with the order columns the
// dispatch path needs.
func (s *Store) GetDelivery(ctx context.Context, id int64) (*models.DeliveryDetail, error) {
	db, err := tenant.DB(ctx)
	if err != nil {
		return nil, err
	}

	var d models.DeliveryDetail
	err = db.GetContext(ctx, &d, `
		SELECT d.*, o.client_id, o.mode
		FROM deliveries d JOIN orders o ON o.id = d.order_id
		WHERE d.id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, models.ErrDeliveryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// RecordPosition appends a position sample and refreshes the delivery's
// current coordinates in one transaction.
func (s *Store) RecordPosition(ctx context.Context, sample *models.PositionSample) error {
	db, err := tenant.DB(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.GetContext(ctx, sample, `
		INSERT INTO position_samples (delivery_id, lat, lng, speed)
		VALUES ($1, $2, $3, $4)
		RETURNING id, recorded_at`,
		sample.DeliveryID, sample.Lat, sample.Lng, sample.Speed)
	if err != nil {
		return fmt.Errorf("failed to append position sample: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE deliveries SET lat = $1, lng = $2, updated_at = NOW() WHERE id = $3",
		sample.Lat, sample.Lng, sample.DeliveryID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// ListPositions retrieves a delivery's samples, newest first
func (s *Store) ListPositions(ctx context.Context, deliveryID int64, limit int) ([]models.PositionSample, error) {
	db, err := tenant.DB(ctx)
	if err != nil {
		return nil, err
	}

	var samples []models.PositionSample
	err = db.SelectContext(ctx, &samples, `
		SELECT * FROM position_samples
		WHERE delivery_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2`, deliveryID, limit)
	return samples, err
}

// AdvanceToDelivering moves a picked-up delivery and its order to
// DELIVERING. Idempotent: returns false with no write when the delivery
// already advanced.
func (s *Store) AdvanceToDelivering(ctx context.Context, deliveryID int64) (bool, error) {
	db, err := tenant.DB(ctx)
	if err != nil {
		return false, err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var orderID int64
	err = tx.GetContext(ctx, &orderID, `
		UPDATE deliveries SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
		RETURNING order_id`,
		models.DeliveryStatusDelivering, deliveryID, models.DeliveryStatusPickedUp)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders SET status = $1, delivering_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		models.OrderStatusDelivering, orderID, models.OrderStatusPickedUp)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// CompleteDelivery transitions the delivery and its linked order to
// DELIVERED together, or neither.
func (s *Store) CompleteDelivery(ctx context.Context, deliveryID int64) (*models.DeliveryDetail, error) {
	db, err := tenant.DB(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var orderID int64
	err = tx.GetContext(ctx, &orderID, `
		UPDATE deliveries SET status = $1, delivered_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND status = $3
		RETURNING order_id`,
		models.DeliveryStatusDelivered, deliveryID, models.DeliveryStatusDelivering)
	if err == sql.ErrNoRows {
		var status string
		err = tx.GetContext(ctx, &status, "SELECT status FROM deliveries WHERE id = $1", deliveryID)
		if err == sql.ErrNoRows {
			return nil, models.ErrDeliveryNotFound
		}
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: delivery %d is %s", models.ErrInvalidTransition, deliveryID, status)
	}
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $1, delivered_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		models.OrderStatusDelivered, orderID, models.OrderStatusDelivering)
	if err != nil {
		return nil, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, fmt.Errorf("%w: order %d is not delivering", models.ErrInvalidTransition, orderID)
	}

	var d models.DeliveryDetail
	err = tx.GetContext(ctx, &d, `
		SELECT d.*, o.client_id, o.mode
		FROM deliveries d JOIN orders o ON o.id = d.order_id
		WHERE d.id = $1`, deliveryID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &d, nil
}
