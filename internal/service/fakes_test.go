package service

import (
	"context"
	"fmt"
	"sync"

	"resto-platform/internal/geofence"
	"resto-platform/internal/models"
	"resto-platform/internal/tenant"
)

// boundCtx returns a context bound to a test tenant the way the routing
// middleware would bind a real request.
func boundCtx() context.Context {
	return tenant.With(context.Background(), &tenant.Binding{
		Tenant: &models.TenantHandle{ID: 1, RoutingKey: "pizzeria"},
	})
}

// memStore is an in-memory OrderStore and DeliveryStore with the same
// conditional-update semantics the SQL layer has, guarded by one mutex so
// concurrency tests exercise real contention.
type memStore struct {
	mu         sync.Mutex
	nextID     int64
	orders     map[int64]*models.Order
	items      map[int64][]models.OrderItem
	deliveries map[int64]*models.Delivery
	byOrder    map[int64]int64 // order ID -> delivery ID
	positions  map[int64][]models.PositionSample
	ratings    map[int64]*models.Rating
	products   map[int64]models.Product
	promos     []models.Promotion
}

func newMemStore() *memStore {
	return &memStore{
		nextID:     1,
		orders:     make(map[int64]*models.Order),
		items:      make(map[int64][]models.OrderItem),
		deliveries: make(map[int64]*models.Delivery),
		byOrder:    make(map[int64]int64),
		positions:  make(map[int64][]models.PositionSample),
		ratings:    make(map[int64]*models.Rating),
		products:   make(map[int64]models.Product),
	}
}

func (m *memStore) seedOrder(status, mode string, clientID int64) *models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	o := &models.Order{ID: m.nextID, ClientID: clientID, Mode: mode, Status: status}
	m.nextID++
	m.orders[o.ID] = o
	return o
}

func (m *memStore) CreateOrder(_ context.Context, order *models.Order, items []models.OrderItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	order.ID = m.nextID
	m.nextID++
	m.orders[order.ID] = order
	for i := range items {
		items[i].OrderID = order.ID
	}
	m.items[order.ID] = items
	return nil
}

func (m *memStore) GetOrder(_ context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, models.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) GetOrderItems(_ context.Context, orderID int64) ([]models.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[orderID], nil
}

func (m *memStore) ListReadyOrders(_ context.Context) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Order
	for _, o := range m.orders {
		_, assigned := m.byOrder[o.ID]
		if o.Status == models.OrderStatusReady && o.Mode == models.ModeDelivery && !assigned {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memStore) TransitionOrder(_ context.Context, orderID int64, from, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (m *memStore) CreateRating(_ context.Context, rating *models.Rating) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.ratings[rating.OrderID]; ok {
		return false, nil
	}
	rating.ID = m.nextID
	m.nextID++
	m.ratings[rating.OrderID] = rating
	return true, nil
}

func (m *memStore) GetProductsByIDs(_ context.Context, ids []int64) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) ActivePromotions(_ context.Context, productIDs []int64) ([]models.Promotion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Promotion
	for _, p := range m.promos {
		for _, id := range productIDs {
			if p.ProductID == id {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (m *memStore) AcceptDelivery(_ context.Context, orderID, driverID int64, pos *models.PositionSample) (*models.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return nil, models.ErrOrderNotFound
	}
	if _, assigned := m.byOrder[orderID]; assigned {
		return nil, models.ErrAlreadyAssigned
	}
	if o.Status != models.OrderStatusReady || o.Mode != models.ModeDelivery {
		return nil, fmt.Errorf("%w: order %d is %s", models.ErrNotReady, orderID, o.Status)
	}

	o.Status = models.OrderStatusPickedUp

	d := &models.Delivery{
		ID:       m.nextID,
		OrderID:  orderID,
		DriverID: driverID,
		Status:   models.DeliveryStatusPickedUp,
	}
	m.nextID++
	if pos != nil {
		d.Lat, d.Lng = pos.Lat, pos.Lng
		pos.DeliveryID = d.ID
		m.positions[d.ID] = append(m.positions[d.ID], *pos)
	}
	m.deliveries[d.ID] = d
	m.byOrder[orderID] = d.ID
	return d, nil
}

func (m *memStore) GetDelivery(_ context.Context, id int64) (*models.DeliveryDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deliveryDetailLocked(id)
}

func (m *memStore) deliveryDetailLocked(id int64) (*models.DeliveryDetail, error) {
	d, ok := m.deliveries[id]
	if !ok {
		return nil, models.ErrDeliveryNotFound
	}
	o := m.orders[d.OrderID]
	return &models.DeliveryDetail{Delivery: *d, ClientID: o.ClientID, Mode: o.Mode}, nil
}

func (m *memStore) RecordPosition(_ context.Context, sample *models.PositionSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.deliveries[sample.DeliveryID]; ok {
		d.Lat, d.Lng = sample.Lat, sample.Lng
	}
	sample.ID = m.nextID
	m.nextID++
	m.positions[sample.DeliveryID] = append(m.positions[sample.DeliveryID], *sample)
	return nil
}

func (m *memStore) ListPositions(_ context.Context, deliveryID int64, limit int) ([]models.PositionSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	samples := m.positions[deliveryID]
	out := make([]models.PositionSample, 0, limit)
	for i := len(samples) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, samples[i])
	}
	return out, nil
}

func (m *memStore) AdvanceToDelivering(_ context.Context, deliveryID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deliveries[deliveryID]
	if !ok || d.Status != models.DeliveryStatusPickedUp {
		return false, nil
	}
	d.Status = models.DeliveryStatusDelivering
	m.orders[d.OrderID].Status = models.OrderStatusDelivering
	return true, nil
}

func (m *memStore) CompleteDelivery(_ context.Context, deliveryID int64) (*models.DeliveryDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deliveries[deliveryID]
	if !ok {
		return nil, models.ErrDeliveryNotFound
	}
	if d.Status != models.DeliveryStatusDelivering {
		return nil, fmt.Errorf("%w: delivery %d is %s", models.ErrInvalidTransition, deliveryID, d.Status)
	}
	d.Status = models.DeliveryStatusDelivered
	m.orders[d.OrderID].Status = models.OrderStatusDelivered
	return m.deliveryDetailLocked(deliveryID)
}

// recordingBus captures published events
type recordingBus struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	Room string
	Name string
}

func (r *recordingBus) Publish(room, name string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, publishedEvent{Room: room, Name: name})
}

func (r *recordingBus) named(name string) []publishedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []publishedEvent
	for _, e := range r.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// recordingSink captures notifications
type recordingSink struct {
	mu     sync.Mutex
	users  []int64
	roles  []string
	alerts []models.Alert
}

func (r *recordingSink) NotifyUser(_ context.Context, userID int64, alert models.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
	r.alerts = append(r.alerts, alert)
}

func (r *recordingSink) NotifyRole(_ context.Context, role string, alert models.Alert, _ int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles = append(r.roles, role)
	r.alerts = append(r.alerts, alert)
}

func (r *recordingSink) alertsOfType(alertType string) []models.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Alert
	for _, a := range r.alerts {
		if a.Type == alertType {
			out = append(out, a)
		}
	}
	return out
}

// stubGeocoder returns fixed coordinates or a fixed error
type stubGeocoder struct {
	lat, lng float64
	err      error
	calls    int
}

func (s *stubGeocoder) Geocode(_ context.Context, _ string) (float64, float64, error) {
	s.calls++
	if s.err != nil {
		return 0, 0, s.err
	}
	return s.lat, s.lng, nil
}

// recordingSampleSink captures geofence samples and forget calls
type recordingSampleSink struct {
	mu        sync.Mutex
	samples   []geofence.Sample
	forgotten []string
}

func (r *recordingSampleSink) Offer(s geofence.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
}

func (r *recordingSampleSink) Forget(tenantID int64, deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forgotten = append(r.forgotten, fmt.Sprintf("%d|%s", tenantID, deviceID))
}
