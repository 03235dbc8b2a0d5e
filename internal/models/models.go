package models

import (
	"encoding/json"
	"time"
)

// Tenant is a row in the master registry. The connection descriptor is
// stored encrypted and only decrypted when a handle is built for routing.
type Tenant struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	RoutingKey   string    `db:"routing_key" json:"routing_key"`
	EncryptedDSN string    `db:"encrypted_dsn" json:"-"`
	Blocked      bool      `db:"blocked" json:"blocked"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// TenantHandle is a resolved tenant with its decrypted connection descriptor.
type TenantHandle struct {
	ID         int64
	RoutingKey string
	DSN        string
}

// Product represents a catalog item in a tenant database
type Product struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Price     int64     `db:"price" json:"price"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Order represents a customer order
type Order struct {
	ID            int64      `db:"id" json:"id"`
	ClientID      int64      `db:"client_id" json:"client_id"`
	GuestContact  string     `db:"guest_contact" json:"guest_contact,omitempty"`
	Mode          string     `db:"mode" json:"mode"`
	Status        string     `db:"status" json:"status"`
	TotalAmount   int64      `db:"total_amount" json:"total_amount"`
	PaymentStatus string     `db:"payment_status" json:"payment_status"`
	Address       string     `db:"address" json:"address,omitempty"`
	Lat           float64    `db:"lat" json:"lat"`
	Lng           float64    `db:"lng" json:"lng"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
	AcceptedAt    *time.Time `db:"accepted_at" json:"accepted_at,omitempty"`
	PreparingAt   *time.Time `db:"preparing_at" json:"preparing_at,omitempty"`
	ReadyAt       *time.Time `db:"ready_at" json:"ready_at,omitempty"`
	PickedUpAt    *time.Time `db:"picked_up_at" json:"picked_up_at,omitempty"`
	DeliveringAt  *time.Time `db:"delivering_at" json:"delivering_at,omitempty"`
	DeliveredAt   *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	CancelledAt   *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

// OrderItem represents a line item with its unit price snapshot
type OrderItem struct {
	ID        int64 `db:"id" json:"id"`
	OrderID   int64 `db:"order_id" json:"order_id"`
	ProductID int64 `db:"product_id" json:"product_id"`
	Quantity  int   `db:"quantity" json:"quantity"`
	UnitPrice int64 `db:"unit_price" json:"unit_price"`
}

// Delivery is the 1:1 companion of a delivery-mode order. At most one row
// exists per order, enforced by a unique index on order_id.
type Delivery struct {
	ID          int64      `db:"id" json:"id"`
	OrderID     int64      `db:"order_id" json:"order_id"`
	DriverID    int64      `db:"driver_id" json:"driver_id"`
	Status      string     `db:"status" json:"status"`
	Lat         float64    `db:"lat" json:"lat"`
	Lng         float64    `db:"lng" json:"lng"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
	DeliveredAt *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
}

// DeliveryDetail joins a delivery with the order columns the dispatch
// path needs on every call.
type DeliveryDetail struct {
	Delivery
	ClientID int64  `db:"client_id" json:"client_id"`
	Mode     string `db:"mode" json:"mode"`
}

// PositionSample is an append-only position record for a delivery
type PositionSample struct {
	ID         int64     `db:"id" json:"id"`
	DeliveryID int64     `db:"delivery_id" json:"delivery_id"`
	Lat        float64   `db:"lat" json:"lat"`
	Lng        float64   `db:"lng" json:"lng"`
	Speed      float64   `db:"speed" json:"speed"`
	RecordedAt time.Time `db:"recorded_at" json:"recorded_at"`
}

// Geofence is an admin-managed zone, circular or polygonal. Polygon rings
// are stored as a JSON array of [lat,lng] pairs, implicitly closed.
type Geofence struct {
	ID        int64   `db:"id" json:"id"`
	Name      string  `db:"name" json:"name"`
	Kind      string  `db:"kind" json:"kind"`
	CenterLat float64 `db:"center_lat" json:"center_lat"`
	CenterLng float64 `db:"center_lng" json:"center_lng"`
	RadiusM   float64 `db:"radius_m" json:"radius_m"`
	RingJSON  string  `db:"ring" json:"ring,omitempty"`
	Active    bool    `db:"active" json:"active"`
}

// Alert is an append-only notification record; only the read flag mutates.
// The recipient is either a user ID or a role, never both.
type Alert struct {
	ID        string          `db:"id" json:"id"`
	Type      string          `db:"type" json:"type"`
	Severity  string          `db:"severity" json:"severity"`
	UserID    int64           `db:"user_id" json:"user_id,omitempty"`
	Role      string          `db:"role" json:"role,omitempty"`
	Title     string          `db:"title" json:"title"`
	Message   string          `db:"message" json:"message"`
	Read      bool            `db:"read" json:"read"`
	Payload   json.RawMessage `db:"payload" json:"payload,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// Rating is the single post-delivery review of an order
type Rating struct {
	ID        int64     `db:"id" json:"id"`
	OrderID   int64     `db:"order_id" json:"order_id"`
	ClientID  int64     `db:"client_id" json:"client_id"`
	Stars     int       `db:"stars" json:"stars"`
	Comment   string    `db:"comment" json:"comment,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Promotion discounts a product within its active window
type Promotion struct {
	ID            int64     `db:"id" json:"id"`
	ProductID     int64     `db:"product_id" json:"product_id"`
	DiscountType  string    `db:"discount_type" json:"discount_type"`
	DiscountValue int64     `db:"discount_value" json:"discount_value"`
	Active        bool      `db:"active" json:"active"`
	StartsAt      time.Time `db:"starts_at" json:"starts_at"`
	EndsAt        time.Time `db:"ends_at" json:"ends_at"`
}

// Actor is the verified identity attached to a request
type Actor struct {
	UserID int64
	Role   string
}

// Order statuses
const (
	OrderStatusPending    = "PENDING"
	OrderStatusAccepted   = "ACCEPTED"
	OrderStatusPreparing  = "PREPARING"
	OrderStatusReady      = "READY"
	OrderStatusPickedUp   = "PICKED_UP"
	OrderStatusDelivering = "DELIVERING"
	OrderStatusDelivered  = "DELIVERED"
	OrderStatusCancelled  = "CANCELLED"
)

// Delivery statuses
const (
	DeliveryStatusPickedUp   = "PICKED_UP"
	DeliveryStatusDelivering = "DELIVERING"
	DeliveryStatusDelivered  = "DELIVERED"
)

// Delivery modes
const (
	ModeDelivery = "DELIVERY"
	ModePickup   = "PICKUP"
)

// Payment statuses (payment itself is an external collaborator)
const (
	PaymentStatusPending = "PENDING"
	PaymentStatusPaid    = "PAID"
	PaymentStatusFailed  = "FAILED"
)

// Roles
const (
	RoleClient = "client"
	RoleCook   = "cook"
	RoleDriver = "driver"
	RoleAdmin  = "admin"
)

// Geofence kinds
const (
	GeofenceCircle  = "CIRCLE"
	GeofencePolygon = "POLYGON"
)

// Discount types
const (
	DiscountFixed      = "FIXED"
	DiscountPercentage = "PERCENTAGE"
)

// Alert severities
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)
