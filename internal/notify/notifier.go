package notify

import (
	"context"
	"time"

	"resto-platform/internal/bus"
	"resto-platform/internal/models"
	"resto-platform/internal/tenant"
	"resto-platform/internal/util"

	"go.uber.org/zap"
)

// AlertStore persists alert rows in the bound tenant database
type AlertStore interface {
	CreateAlert(ctx context.Context, alert *models.Alert) error
}

// BroadcastStore persists platform-wide alerts in the master schema
type BroadcastStore interface {
	CreateBroadcast(ctx context.Context, alert *models.Alert) error
}

// PushProducer enqueues push payloads for the delivery worker
type PushProducer interface {
	Publish(ctx context.Context, key string, payload any) error
}

// Notifier is the notification sink. Every call detaches from the
// triggering request: the alert is persisted, announced on the bus and
// enqueued for push delivery on a goroutine with its own timeout, and no
// failure on that path ever reaches the caller — a push outage must never
// make a committed transition look failed.
type Notifier struct {
	alerts     AlertStore
	broadcasts BroadcastStore
	bus        *bus.Bus
	producer   PushProducer
	timeout    time.Duration
	logger     *zap.Logger
}

// NewNotifier creates a notifier
func NewNotifier(alerts AlertStore, broadcasts BroadcastStore, b *bus.Bus, producer PushProducer, timeout time.Duration) *Notifier {
	return &Notifier{
		alerts:     alerts,
		broadcasts: broadcasts,
		bus:        b,
		producer:   producer,
		timeout:    timeout,
		logger:     util.GetLogger(),
	}
}

// NotifyUser sends an alert to a single user
func (n *Notifier) NotifyUser(ctx context.Context, userID int64, alert models.Alert) {
	alert.UserID = userID
	binding, err := tenant.FromContext(ctx)
	if err != nil {
		n.logger.Error("NotifyUser called outside a tenant context",
			zap.String("alert_type", alert.Type))
		return
	}

	detached := tenant.Detach(ctx)
	go n.deliver(detached, alert, models.PushMessage{
		AlertID:  alert.ID,
		TenantID: binding.Tenant.ID,
		UserID:   userID,
		Title:    alert.Title,
		Message:  alert.Message,
		Severity: alert.Severity,
		Data:     alert.Payload,
		SentAt:   time.Now(),
	}, bus.ClientRoom(binding.Tenant.ID, userID))
}

// NotifyRole sends an alert to every user holding a role, optionally
// excluding one user (e.g. the driver who just took the order).
func (n *Notifier) NotifyRole(ctx context.Context, role string, alert models.Alert, excludeUserID int64) {
	alert.Role = role
	binding, err := tenant.FromContext(ctx)
	if err != nil {
		// Platform-scoped announcement: persisted in the master schema.
		go n.broadcast(alert)
		return
	}

	detached := tenant.Detach(ctx)
	go n.deliver(detached, alert, models.PushMessage{
		AlertID:       alert.ID,
		TenantID:      binding.Tenant.ID,
		Role:          role,
		ExcludeUserID: excludeUserID,
		Title:         alert.Title,
		Message:       alert.Message,
		Severity:      alert.Severity,
		Data:          alert.Payload,
		SentAt:        time.Now(),
	}, roleRoom(binding.Tenant.ID, role))
}

func (n *Notifier) deliver(ctx context.Context, alert models.Alert, push models.PushMessage, room string) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	if err := n.alerts.CreateAlert(ctx, &alert); err != nil {
		util.NotificationsFailed.WithLabelValues("persist").Inc()
		n.logger.Error("Failed to persist alert",
			zap.String("alert_id", alert.ID),
			zap.Error(err))
	}

	n.bus.Publish(room, models.EventNotificationNew, alert)

	if err := n.producer.Publish(ctx, alert.ID, push); err != nil {
		util.NotificationsFailed.WithLabelValues("push").Inc()
		n.logger.Error("Failed to enqueue push notification",
			zap.String("alert_id", alert.ID),
			zap.Error(err))
	}
}

func (n *Notifier) broadcast(alert models.Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	if err := n.broadcasts.CreateBroadcast(ctx, &alert); err != nil {
		util.NotificationsFailed.WithLabelValues("broadcast").Inc()
		n.logger.Error("Failed to persist broadcast",
			zap.String("alert_id", alert.ID),
			zap.Error(err))
	}
}

func roleRoom(tenantID int64, role string) string {
	switch role {
	case models.RoleDriver:
		return bus.DriversRoom(tenantID)
	case models.RoleCook:
		return bus.CooksRoom(tenantID)
	default:
		return bus.AdminsRoom(tenantID)
	}
}
