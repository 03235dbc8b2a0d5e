package service

import (
	"context"
	"fmt"

	"resto-platform/internal/bus"
	"resto-platform/internal/geofence"
	"resto-platform/internal/models"
	"resto-platform/internal/tenant"
	"resto-platform/internal/util"

	"go.uber.org/zap"
)

// DeliveryStore is the persistence surface of the dispatch path
type DeliveryStore interface {
	AcceptDelivery(ctx context.Context, orderID, driverID int64, pos *models.PositionSample) (*models.Delivery, error)
	GetDelivery(ctx context.Context, id int64) (*models.DeliveryDetail, error)
	RecordPosition(ctx context.Context, sample *models.PositionSample) error
	ListPositions(ctx context.Context, deliveryID int64, limit int) ([]models.PositionSample, error)
	AdvanceToDelivering(ctx context.Context, deliveryID int64) (bool, error)
	CompleteDelivery(ctx context.Context, deliveryID int64) (*models.DeliveryDetail, error)
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
}

// SampleSink receives position samples for decoupled geofence evaluation
type SampleSink interface {
	Offer(s geofence.Sample)
	Forget(tenantID int64, deviceID string)
}

// Dispatch assigns drivers to ready orders and relays their positions.
type Dispatch struct {
	store  DeliveryStore
	bus    Publisher
	sink   Sink
	fences SampleSink
	logger *zap.Logger
}

// NewDispatch creates the delivery dispatch service
func NewDispatch(store DeliveryStore, publisher Publisher, sink Sink, fences SampleSink) *Dispatch {
	return &Dispatch{
		store:  store,
		bus:    publisher,
		sink:   sink,
		fences: fences,
		logger: util.GetLogger(),
	}
}

// Position is an optional initial position supplied at acceptance.
// Zero is a valid coordinate; only range is validated.
type Position struct {
	Lat   float64 `json:"lat" binding:"gte=-90,lte=90"`
	Lng   float64 `json:"lng" binding:"gte=-180,lte=180"`
	Speed float64 `json:"speed" binding:"gte=0"`
}

// AcceptReadyOrder creates the delivery and picks the order up as one
// atomic unit. Of two drivers accepting concurrently exactly one wins;
// the loser receives ErrAlreadyAssigned and should refresh its list.
func (d *Dispatch) AcceptReadyOrder(ctx context.Context, driverID, orderID int64, initial *Position) (*models.Delivery, error) {
	ctx, span := util.StartSpan(ctx, "Dispatch.AcceptReadyOrder")
	defer span.End()

	var pos *models.PositionSample
	if initial != nil {
		pos = &models.PositionSample{Lat: initial.Lat, Lng: initial.Lng, Speed: initial.Speed}
	}

	delivery, err := d.store.AcceptDelivery(ctx, orderID, driverID, pos)
	if err != nil {
		return nil, err
	}

	util.DeliveriesAcceptedTotal.Inc()
	util.OrderTransitionsTotal.WithLabelValues(models.OrderStatusPickedUp).Inc()
	d.logger.Info("Delivery accepted",
		zap.Int64("order_id", orderID),
		zap.Int64("driver_id", driverID))

	order, err := d.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	tenantID, _ := tenant.ID(ctx)
	d.bus.Publish(bus.OrderRoom(tenantID, orderID), models.EventDeliveryAccepted, delivery)
	d.bus.Publish(bus.ClientRoom(tenantID, order.ClientID), models.EventDeliveryAccepted, delivery)
	// The rest of the pool drops the order from its pending list.
	d.bus.Publish(bus.DriversRoom(tenantID), models.EventOrderTaken, order)

	d.sink.NotifyUser(ctx, order.ClientID, models.NewAlert(
		models.AlertDeliveryAssigned, models.SeverityInfo,
		"Driver on the way",
		fmt.Sprintf("A driver picked up order #%d", orderID),
		models.DeliveryAssignedPayload{OrderID: orderID, DeliveryID: delivery.ID, DriverID: driverID}))

	return delivery, nil
}

// ReportPosition appends a position sample, republishes it to the order
// room and hands it to the geofence engine. This is the hottest operation
// in the system: geofence evaluation happens off this path, behind a
// bounded queue.
func (d *Dispatch) ReportPosition(ctx context.Context, actor models.Actor, deliveryID int64, lat, lng, speed float64) error {
	ctx, span := util.StartSpan(ctx, "Dispatch.ReportPosition")
	defer span.End()

	delivery, err := d.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return err
	}
	if actor.Role == models.RoleDriver && delivery.DriverID != actor.UserID {
		return models.ErrForbidden
	}
	if delivery.Status == models.DeliveryStatusDelivered {
		return fmt.Errorf("%w: delivery %d is already delivered", models.ErrInvalidTransition, deliveryID)
	}

	sample := &models.PositionSample{DeliveryID: deliveryID, Lat: lat, Lng: lng, Speed: speed}
	if err := d.store.RecordPosition(ctx, sample); err != nil {
		return err
	}
	util.PositionsReportedTotal.Inc()

	tenantID, _ := tenant.ID(ctx)

	if delivery.Status == models.DeliveryStatusPickedUp {
		advanced, err := d.store.AdvanceToDelivering(ctx, deliveryID)
		if err != nil {
			d.logger.Warn("Failed to advance delivery",
				zap.Int64("delivery_id", deliveryID),
				zap.Error(err))
		} else if advanced {
			util.OrderTransitionsTotal.WithLabelValues(models.OrderStatusDelivering).Inc()
			d.bus.Publish(bus.OrderRoom(tenantID, delivery.OrderID), models.EventDeliveryStarted, delivery)
			d.bus.Publish(bus.ClientRoom(tenantID, delivery.ClientID), models.EventDeliveryStarted, delivery)
		}
	}

	d.bus.Publish(bus.OrderRoom(tenantID, delivery.OrderID), models.EventDeliveryPosition, sample)

	if binding, err := tenant.FromContext(ctx); err == nil {
		d.fences.Offer(geofence.Sample{
			Binding:    binding,
			DeviceID:   fmt.Sprintf("driver-%d", delivery.DriverID),
			DeliveryID: deliveryID,
			OrderID:    delivery.OrderID,
			ClientID:   delivery.ClientID,
			Lat:        lat,
			Lng:        lng,
			Speed:      speed,
		})
	}

	return nil
}

// ListPositions retrieves a delivery's recent samples, newest first
func (d *Dispatch) ListPositions(ctx context.Context, deliveryID int64, limit int) ([]models.PositionSample, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return d.store.ListPositions(ctx, deliveryID, limit)
}

// CompleteDelivery moves a DELIVERING delivery and its order to DELIVERED
// together.
func (d *Dispatch) CompleteDelivery(ctx context.Context, actor models.Actor, deliveryID int64) (*models.DeliveryDetail, error) {
	ctx, span := util.StartSpan(ctx, "Dispatch.CompleteDelivery")
	defer span.End()

	delivery, err := d.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleDriver && delivery.DriverID != actor.UserID {
		return nil, models.ErrForbidden
	}

	completed, err := d.store.CompleteDelivery(ctx, deliveryID)
	if err != nil {
		return nil, err
	}

	util.DeliveriesCompletedTotal.Inc()
	util.OrderTransitionsTotal.WithLabelValues(models.OrderStatusDelivered).Inc()
	d.logger.Info("Delivery completed",
		zap.Int64("delivery_id", deliveryID),
		zap.Int64("order_id", completed.OrderID))

	tenantID, _ := tenant.ID(ctx)
	// The driver is no longer tracked; drop its crossing history so the
	// next delivery baselines fresh.
	d.fences.Forget(tenantID, fmt.Sprintf("driver-%d", completed.DriverID))

	d.bus.Publish(bus.OrderRoom(tenantID, completed.OrderID), models.EventDeliveryCompleted, completed)
	d.bus.Publish(bus.ClientRoom(tenantID, completed.ClientID), models.EventOrderDelivered, completed)
	d.bus.Publish(bus.CooksRoom(tenantID), models.EventOrderDelivered, completed)

	d.sink.NotifyUser(ctx, completed.ClientID, models.NewAlert(
		models.AlertOrderStatus, models.SeverityInfo,
		"Order delivered",
		fmt.Sprintf("Order #%d was delivered", completed.OrderID),
		models.OrderStatusPayload{OrderID: completed.OrderID, Status: models.OrderStatusDelivered}))

	return completed, nil
}
