package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"resto-platform/internal/bus"
	"resto-platform/internal/models"
	"resto-platform/internal/tenant"

	"github.com/gin-gonic/gin"
)

// streamEvents is the socket transport of the event bus: an SSE stream
// over which the client subscribes to rooms with ?rooms=client,drivers,
// order:<id>. Joining is entitlement-checked per room; disconnecting
// implicitly leaves everything. No replay: a reconnecting client
// re-fetches current state first.
func (h *Handler) streamEvents(c *gin.Context) {
	actor := actorFrom(c)
	binding, err := tenant.FromContext(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown tenant"})
		return
	}
	tenantID := binding.Tenant.ID

	conn := h.bus.Register()
	defer h.bus.Unregister(conn)

	joined := 0
	for _, kind := range strings.Split(c.Query("rooms"), ",") {
		room, ok := h.roomFor(c, tenantID, actor, strings.TrimSpace(kind))
		if !ok {
			continue
		}
		h.bus.Join(conn, room)
		joined++
	}
	if joined == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no subscribable rooms"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case evt, ok := <-conn.Events():
			if !ok {
				return false
			}
			c.SSEvent(evt.Name, string(evt.Payload))
			return true
		}
	})
}

// roomFor maps a requested room kind to a concrete room name, enforcing
// who is entitled to which events.
func (h *Handler) roomFor(c *gin.Context, tenantID int64, actor models.Actor, kind string) (string, bool) {
	switch {
	case kind == "client":
		if actor.Role != models.RoleClient || actor.UserID == 0 {
			return "", false
		}
		return bus.ClientRoom(tenantID, actor.UserID), true

	case kind == "drivers":
		if actor.Role != models.RoleDriver && actor.Role != models.RoleAdmin {
			return "", false
		}
		return bus.DriversRoom(tenantID), true

	case kind == "cooks":
		if actor.Role != models.RoleCook && actor.Role != models.RoleAdmin {
			return "", false
		}
		return bus.CooksRoom(tenantID), true

	case kind == "admins":
		if actor.Role != models.RoleAdmin {
			return "", false
		}
		return bus.AdminsRoom(tenantID), true

	case strings.HasPrefix(kind, "order:"):
		orderID, err := strconv.ParseInt(strings.TrimPrefix(kind, "order:"), 10, 64)
		if err != nil || orderID <= 0 {
			return "", false
		}
		// Clients may only watch their own orders.
		if actor.Role == models.RoleClient {
			order, _, err := h.lifecycle.GetOrder(c.Request.Context(), orderID)
			if err != nil || order.ClientID != actor.UserID {
				return "", false
			}
		}
		return bus.OrderRoom(tenantID, orderID), true

	default:
		return "", false
	}
}
