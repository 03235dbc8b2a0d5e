package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event names emitted through the event bus
const (
	EventOrderNew          = "order:new"
	EventOrderAccepted     = "order:accepted"
	EventOrderPreparing    = "order:preparing"
	EventOrderReady        = "order:ready"
	EventOrderCancelled    = "order:cancelled"
	EventOrderDelivered    = "order:delivered"
	EventOrderTaken        = "order:taken"
	EventDeliveryAccepted  = "delivery:accepted"
	EventDeliveryPosition  = "delivery:position"
	EventDeliveryStarted   = "delivery:started"
	EventDeliveryCompleted = "delivery:completed"
	EventNotificationNew   = "notification:new"
	EventGeofenceAlert     = "geofence:alert"
)

// Alert types. Each type carries its own payload shape; the payload
// column holds the marshalled variant.
const (
	AlertOrderStatus      = "ORDER_STATUS"
	AlertDeliveryAssigned = "DELIVERY_ASSIGNED"
	AlertGeofence         = "GEOFENCE_CROSSING"
	AlertBroadcast        = "BROADCAST"
)

// OrderStatusPayload accompanies ORDER_STATUS alerts
type OrderStatusPayload struct {
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
}

// DeliveryAssignedPayload accompanies DELIVERY_ASSIGNED alerts
type DeliveryAssignedPayload struct {
	OrderID    int64 `json:"order_id"`
	DeliveryID int64 `json:"delivery_id"`
	DriverID   int64 `json:"driver_id"`
}

// GeofencePayload accompanies GEOFENCE_CROSSING alerts
type GeofencePayload struct {
	DeviceID   string  `json:"device_id"`
	GeofenceID int64   `json:"geofence_id"`
	Direction  string  `json:"direction"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
}

// NewAlert builds an alert with a fresh ID and a marshalled typed payload.
// Marshalling a plain struct cannot fail, so the error is swallowed.
func NewAlert(alertType, severity, title, message string, payload any) Alert {
	raw, _ := json.Marshal(payload)
	return Alert{
		ID:        uuid.New().String(),
		Type:      alertType,
		Severity:  severity,
		Title:     title,
		Message:   message,
		Payload:   raw,
		CreatedAt: time.Now(),
	}
}

// PushMessage is the unit handed to the push pipeline for delivery to a
// device. At-least-once; the provider deduplicates on AlertID.
type PushMessage struct {
	AlertID       string          `json:"alert_id"`
	TenantID      int64           `json:"tenant_id"`
	UserID        int64           `json:"user_id,omitempty"`
	Role          string          `json:"role,omitempty"`
	ExcludeUserID int64           `json:"exclude_user_id,omitempty"`
	Title         string          `json:"title"`
	Message       string          `json:"message"`
	Severity      string          `json:"severity"`
	Data          json.RawMessage `json:"data,omitempty"`
	SentAt        time.Time       `json:"sent_at"`
}
