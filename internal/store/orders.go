package store

import (
	"context"
	"database/sql"
	"fmt"

	"resto-platform/internal/models"
	"resto-platform/internal/tenant"
)

// statusTimestamp maps each target status to the column stamped together
// with the status in one atomic update.
var statusTimestamp = map[string]string{
	models.OrderStatusAccepted:   "accepted_at",
	models.OrderStatusPreparing:  "preparing_at",
	models.OrderStatusReady:      "ready_at",
	models.OrderStatusPickedUp:   "picked_up_at",
	models.OrderStatusDelivering: "delivering_at",
	models.OrderStatusDelivered:  "delivered_at",
	models.OrderStatusCancelled:  "cancelled_at",
}

// CreateOrder creates a new order with its line items in one transaction
func (s *Store) CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	db, err := tenant.DB(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.GetContext(ctx, order, `
		INSERT INTO orders (client_id, guest_contact, mode, status, total_amount, payment_status, address, lat, lng)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`,
		order.ClientID, order.GuestContact, order.Mode, order.Status,
		order.TotalAmount, order.PaymentStatus, order.Address, order.Lat, order.Lng)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	for i := range items {
		items[i].OrderID = order.ID
		err = tx.GetContext(ctx, &items[i].ID, `
			INSERT INTO order_items (order_id, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			items[i].OrderID, items[i].ProductID, items[i].Quantity, items[i].UnitPrice)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	return tx.Commit()
}

// GetOrder retrieves an order by ID
func (s *Store) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	db, err := tenant.DB(ctx)
	if err != nil {
		return nil, err
	}

	var order models.Order
	err = db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderItems retrieves all line items for an order
func (s *Store) GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	db, err := tenant.DB(ctx)
	if err != nil {
		return nil, err
	}

	var items []models.OrderItem
	err = db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// ListReadyOrders retrieves delivery-mode orders waiting for a driver
func (s *Store) ListReadyOrders(ctx context.Context) ([]models.Order, error) {
	db, err := tenant.DB(ctx)
	if err != nil {
		return nil, err
	}

	var orders []models.Order
	err = db.SelectContext(ctx, &orders, `
		SELECT * FROM orders o
		WHERE o.status = $1 AND o.mode = $2
		  AND NOT EXISTS (SELECT 1 FROM deliveries d WHERE d.order_id = o.id)
		ORDER BY o.ready_at`,
		models.OrderStatusReady, models.ModeDelivery)
	return orders, err
}

// TransitionOrder applies one guarded status transition. The update only
// matches when the order is still in the expected source status, so of two
// concurrent conflicting transitions exactly one wins and the loser sees
// false with no write.
func (s *Store) TransitionOrder(ctx context.Context, orderID int64, from, to string) (bool, error) {
	db, err := tenant.DB(ctx)
	if err != nil {
		return false, err
	}

	col, ok := statusTimestamp[to]
	if !ok {
		return false, fmt.Errorf("no timestamp column for status %s", to)
	}

	query := fmt.Sprintf(
		"UPDATE orders SET status = $1, %s = NOW(), updated_at = NOW() WHERE id = $2 AND status = $3", col)

	res, err := db.ExecContext(ctx, query, to, orderID, from)
	if err != nil {
		return false, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// CreateRating attaches the single post-delivery rating. A duplicate
// submission hits the unique order_id constraint and returns false.
func (s *Store) CreateRating(ctx context.Context, rating *models.Rating) (bool, error) {
	db, err := tenant.DB(ctx)
	if err != nil {
		return false, err
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO ratings (order_id, client_id, stars, comment)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_id) DO NOTHING`,
		rating.OrderID, rating.ClientID, rating.Stars, rating.Comment)
	if err != nil {
		return false, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}
