package service

import (
	"context"
	"fmt"

	"resto-platform/internal/bus"
	"resto-platform/internal/models"
	"resto-platform/internal/tenant"
	"resto-platform/internal/util"

	"go.uber.org/zap"
)

// OrderStore is the persistence surface the lifecycle needs
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	ListReadyOrders(ctx context.Context) ([]models.Order, error)
	TransitionOrder(ctx context.Context, orderID int64, from, to string) (bool, error)
	CreateRating(ctx context.Context, rating *models.Rating) (bool, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	ActivePromotions(ctx context.Context, productIDs []int64) ([]models.Promotion, error)
}

// Publisher fans events out to bus rooms
type Publisher interface {
	Publish(room, name string, payload any)
}

// Sink is the notification sink consumed by the services
type Sink interface {
	NotifyUser(ctx context.Context, userID int64, alert models.Alert)
	NotifyRole(ctx context.Context, role string, alert models.Alert, excludeUserID int64)
}

// Geocoder resolves an address to coordinates
type Geocoder interface {
	Geocode(ctx context.Context, address string) (lat, lng float64, err error)
}

// Lifecycle drives an order through its state machine. Every transition
// is one conditional update against the expected source status, so
// concurrent conflicting transitions resolve to exactly one winner, and
// each applied transition publishes exactly one fan-out event.
type Lifecycle struct {
	store    OrderStore
	bus      Publisher
	sink     Sink
	geocoder Geocoder
	logger   *zap.Logger
}

// NewLifecycle creates the order lifecycle service
func NewLifecycle(store OrderStore, publisher Publisher, sink Sink, geocoder Geocoder) *Lifecycle {
	return &Lifecycle{
		store:    store,
		bus:      publisher,
		sink:     sink,
		geocoder: geocoder,
		logger:   util.GetLogger(),
	}
}

// CreateOrderRequest is a request to place an order
type CreateOrderRequest struct {
	Items        []OrderItemRequest `json:"items" binding:"required,min=1"`
	Mode         string             `json:"mode" binding:"required,oneof=DELIVERY PICKUP"`
	Address      string             `json:"address,omitempty"`
	GuestContact string             `json:"guest_contact,omitempty"`
}

// OrderItemRequest is one requested line item
type OrderItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// CreateOrder places a new PENDING order. Unit prices are snapshotted with
// the best applicable promotion; delivery addresses are geocoded with
// graceful degradation to the raw address.
func (l *Lifecycle) CreateOrder(ctx context.Context, actor models.Actor, req *CreateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "Lifecycle.CreateOrder")
	defer span.End()

	tenantID, err := tenant.ID(ctx)
	if err != nil {
		return nil, err
	}

	// Distinct IDs: the same product may appear on several lines.
	productIDs := make([]int64, 0, len(req.Items))
	seen := make(map[int64]struct{}, len(req.Items))
	for _, item := range req.Items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		productIDs = append(productIDs, item.ProductID)
	}

	products, err := l.store.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	if len(products) != len(productIDs) {
		return nil, fmt.Errorf("some products not found")
	}

	productMap := make(map[int64]*models.Product, len(products))
	for i := range products {
		productMap[products[i].ID] = &products[i]
	}

	promos, err := l.store.ActivePromotions(ctx, productIDs)
	if err != nil {
		return nil, err
	}

	var total int64
	items := make([]models.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		product := productMap[item.ProductID]
		unitPrice := BestPrice(product.Price, promotionsFor(promos, item.ProductID))
		total += unitPrice * int64(item.Quantity)
		items = append(items, models.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: unitPrice,
		})
	}

	order := &models.Order{
		ClientID:      actor.UserID,
		GuestContact:  req.GuestContact,
		Mode:          req.Mode,
		Status:        models.OrderStatusPending,
		TotalAmount:   total,
		PaymentStatus: models.PaymentStatusPending,
		Address:       req.Address,
	}

	if req.Mode == models.ModeDelivery && req.Address != "" {
		lat, lng, err := l.geocoder.Geocode(ctx, req.Address)
		if err != nil {
			// Degraded: the order keeps the raw address.
			l.logger.Warn("Geocoding failed",
				zap.String("address", req.Address),
				zap.Error(err))
		} else {
			order.Lat, order.Lng = lat, lng
		}
	}

	if err := l.store.CreateOrder(ctx, order, items); err != nil {
		return nil, err
	}

	util.OrdersCreatedTotal.Inc()
	l.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.String("mode", order.Mode))

	l.bus.Publish(bus.CooksRoom(tenantID), models.EventOrderNew, order)
	l.sink.NotifyRole(ctx, models.RoleCook, models.NewAlert(
		models.AlertOrderStatus, models.SeverityInfo,
		"New order",
		fmt.Sprintf("Order #%d waiting for acceptance", order.ID),
		models.OrderStatusPayload{OrderID: order.ID, Status: order.Status}), 0)

	return order, nil
}

// GetOrder retrieves an order with its line items
func (l *Lifecycle) GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, error) {
	order, err := l.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	items, err := l.store.GetOrderItems(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return order, items, nil
}

// ListReadyOrders lists delivery-mode orders waiting for a driver
func (l *Lifecycle) ListReadyOrders(ctx context.Context) ([]models.Order, error) {
	return l.store.ListReadyOrders(ctx)
}

// Accept moves PENDING→ACCEPTED. Kitchen only.
func (l *Lifecycle) Accept(ctx context.Context, actor models.Actor, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "Lifecycle.Accept")
	defer span.End()

	if err := requireRole(actor, models.RoleCook, models.RoleAdmin); err != nil {
		return nil, err
	}

	order, err := l.applyTransition(ctx, orderID, models.OrderStatusPending, models.OrderStatusAccepted)
	if err != nil {
		return nil, err
	}

	tenantID, _ := tenant.ID(ctx)
	l.bus.Publish(bus.ClientRoom(tenantID, order.ClientID), models.EventOrderAccepted, order)
	l.bus.Publish(bus.OrderRoom(tenantID, orderID), models.EventOrderAccepted, order)
	l.notifyClient(ctx, order, "Order accepted",
		fmt.Sprintf("The kitchen accepted order #%d", orderID))
	return order, nil
}

// MarkPreparing moves ACCEPTED→PREPARING. Kitchen only.
func (l *Lifecycle) MarkPreparing(ctx context.Context, actor models.Actor, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "Lifecycle.MarkPreparing")
	defer span.End()

	if err := requireRole(actor, models.RoleCook, models.RoleAdmin); err != nil {
		return nil, err
	}

	order, err := l.applyTransition(ctx, orderID, models.OrderStatusAccepted, models.OrderStatusPreparing)
	if err != nil {
		return nil, err
	}

	tenantID, _ := tenant.ID(ctx)
	l.bus.Publish(bus.ClientRoom(tenantID, order.ClientID), models.EventOrderPreparing, order)
	l.bus.Publish(bus.OrderRoom(tenantID, orderID), models.EventOrderPreparing, order)
	return order, nil
}

// MarkReady moves PREPARING→READY. Kitchen only. Delivery-mode orders are
// announced to the driver pool; a delivery cannot exist yet because the
// order only just became READY.
func (l *Lifecycle) MarkReady(ctx context.Context, actor models.Actor, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "Lifecycle.MarkReady")
	defer span.End()

	if err := requireRole(actor, models.RoleCook, models.RoleAdmin); err != nil {
		return nil, err
	}

	order, err := l.applyTransition(ctx, orderID, models.OrderStatusPreparing, models.OrderStatusReady)
	if err != nil {
		return nil, err
	}

	tenantID, _ := tenant.ID(ctx)
	l.bus.Publish(bus.ClientRoom(tenantID, order.ClientID), models.EventOrderReady, order)
	l.bus.Publish(bus.OrderRoom(tenantID, orderID), models.EventOrderReady, order)
	if order.Mode == models.ModeDelivery {
		l.bus.Publish(bus.DriversRoom(tenantID), models.EventOrderReady, order)
	}
	l.notifyClient(ctx, order, "Order ready",
		fmt.Sprintf("Order #%d is ready", orderID))
	return order, nil
}

// Handover moves READY→DELIVERED for pickup orders handed over at the
// counter. No delivery entity is involved.
func (l *Lifecycle) Handover(ctx context.Context, actor models.Actor, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "Lifecycle.Handover")
	defer span.End()

	if err := requireRole(actor, models.RoleCook, models.RoleAdmin); err != nil {
		return nil, err
	}

	current, err := l.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if current.Mode != models.ModePickup {
		return nil, fmt.Errorf("%w: order %d is not a pickup order", models.ErrInvalidTransition, orderID)
	}

	order, err := l.applyTransition(ctx, orderID, models.OrderStatusReady, models.OrderStatusDelivered)
	if err != nil {
		return nil, err
	}

	tenantID, _ := tenant.ID(ctx)
	l.bus.Publish(bus.ClientRoom(tenantID, order.ClientID), models.EventOrderDelivered, order)
	l.bus.Publish(bus.OrderRoom(tenantID, orderID), models.EventOrderDelivered, order)
	l.notifyClient(ctx, order, "Order handed over",
		fmt.Sprintf("Order #%d was handed over", orderID))
	return order, nil
}

// Cancel moves a not-yet-dispatched order to CANCELLED. Clients may cancel
// their own orders; kitchen and admins any order. Dispatched, delivered
// and already cancelled orders reject the transition. Mid-delivery
// cancellation is deliberately unsupported.
func (l *Lifecycle) Cancel(ctx context.Context, actor models.Actor, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "Lifecycle.Cancel")
	defer span.End()

	current, err := l.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if actor.Role == models.RoleClient && current.ClientID != actor.UserID {
		return nil, models.ErrForbidden
	} else if actor.Role != models.RoleClient {
		if err := requireRole(actor, models.RoleCook, models.RoleAdmin); err != nil {
			return nil, err
		}
	}

	switch current.Status {
	case models.OrderStatusPending, models.OrderStatusAccepted, models.OrderStatusPreparing:
	default:
		util.OrderTransitionsRejected.WithLabelValues("cancel_after_dispatch").Inc()
		return nil, fmt.Errorf("%w: order %d is %s and can no longer be cancelled",
			models.ErrInvalidTransition, orderID, current.Status)
	}

	order, err := l.applyTransition(ctx, orderID, current.Status, models.OrderStatusCancelled)
	if err != nil {
		return nil, err
	}

	tenantID, _ := tenant.ID(ctx)
	l.bus.Publish(bus.ClientRoom(tenantID, order.ClientID), models.EventOrderCancelled, order)
	l.bus.Publish(bus.CooksRoom(tenantID), models.EventOrderCancelled, order)
	l.bus.Publish(bus.OrderRoom(tenantID, orderID), models.EventOrderCancelled, order)
	return order, nil
}

// Rate attaches the single post-delivery rating to an order
func (l *Lifecycle) Rate(ctx context.Context, actor models.Actor, orderID int64, stars int, comment string) (*models.Rating, error) {
	ctx, span := util.StartSpan(ctx, "Lifecycle.Rate")
	defer span.End()

	order, err := l.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleClient && order.ClientID != actor.UserID {
		return nil, models.ErrForbidden
	}
	if order.Status != models.OrderStatusDelivered {
		return nil, fmt.Errorf("%w: order %d is %s", models.ErrNotDelivered, orderID, order.Status)
	}

	rating := &models.Rating{
		OrderID:  orderID,
		ClientID: actor.UserID,
		Stars:    stars,
		Comment:  comment,
	}

	created, err := l.store.CreateRating(ctx, rating)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, models.ErrRatingExists
	}
	return rating, nil
}

// applyTransition performs one guarded transition and classifies a lost
// guard into a precise, actionable rejection.
func (l *Lifecycle) applyTransition(ctx context.Context, orderID int64, from, to string) (*models.Order, error) {
	ok, err := l.store.TransitionOrder(ctx, orderID, from, to)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := l.store.GetOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		util.OrderTransitionsRejected.WithLabelValues("guard").Inc()
		return nil, fmt.Errorf("%w: order %d is %s, expected %s",
			models.ErrInvalidTransition, orderID, current.Status, from)
	}

	util.OrderTransitionsTotal.WithLabelValues(to).Inc()

	order, err := l.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (l *Lifecycle) notifyClient(ctx context.Context, order *models.Order, title, message string) {
	if order.ClientID == 0 {
		return
	}
	l.sink.NotifyUser(ctx, order.ClientID, models.NewAlert(
		models.AlertOrderStatus, models.SeverityInfo, title, message,
		models.OrderStatusPayload{OrderID: order.ID, Status: order.Status}))
}

func requireRole(actor models.Actor, roles ...string) error {
	for _, role := range roles {
		if actor.Role == role {
			return nil
		}
	}
	return models.ErrForbidden
}

func promotionsFor(promos []models.Promotion, productID int64) []models.Promotion {
	var out []models.Promotion
	for _, p := range promos {
		if p.ProductID == productID {
			out = append(out, p)
		}
	}
	return out
}
