package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"resto-platform/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const connBuffer = 16

// Event is one bus message, already serialized for fan-out.
type Event struct {
	Room    string          `json:"room"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

// Conn is one subscriber connection. Delivery is best-effort: a full
// buffer drops the event rather than blocking the publisher, and a
// disconnected subscriber re-fetches current state on reconnect.
type Conn struct {
	id   string
	send chan Event
}

// Events exposes the subscriber's receive channel. It is closed when the
// connection is unregistered.
func (c *Conn) Events() <-chan Event {
	return c.send
}

// Bus is the room-based publish/subscribe layer. Rooms group the
// subscribers entitled to the same events; publishing hands the event to
// the transport and returns without waiting for delivery.
type Bus struct {
	relay  *Relay
	logger *zap.Logger

	mu    sync.RWMutex
	rooms map[string]map[*Conn]struct{}
	conns map[*Conn]map[string]struct{}
}

// New creates a bus. The relay is optional; without one events stay
// within the process.
func New(relay *Relay) *Bus {
	return &Bus{
		relay:  relay,
		logger: util.GetLogger(),
		rooms:  make(map[string]map[*Conn]struct{}),
		conns:  make(map[*Conn]map[string]struct{}),
	}
}

// Register creates a new subscriber connection
func (b *Bus) Register() *Conn {
	c := &Conn{
		id:   uuid.New().String(),
		send: make(chan Event, connBuffer),
	}

	b.mu.Lock()
	b.conns[c] = make(map[string]struct{})
	b.mu.Unlock()
	return c
}

// Unregister drops the connection, implicitly leaving all its rooms,
// and closes its event channel.
func (b *Bus) Unregister(c *Conn) {
	b.mu.Lock()
	rooms, ok := b.conns[c]
	if ok {
		for room := range rooms {
			b.removeFromRoom(c, room)
		}
		delete(b.conns, c)
	}
	b.mu.Unlock()

	if ok {
		close(c.send)
	}
}

// Join adds the connection to a room
func (b *Bus) Join(c *Conn, room string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rooms, ok := b.conns[c]
	if !ok {
		return
	}
	rooms[room] = struct{}{}

	members, ok := b.rooms[room]
	if !ok {
		members = make(map[*Conn]struct{})
		b.rooms[room] = members
	}
	members[c] = struct{}{}
}

// Leave removes the connection from a room
func (b *Bus) Leave(c *Conn, room string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if rooms, ok := b.conns[c]; ok {
		delete(rooms, room)
	}
	b.removeFromRoom(c, room)
}

// caller holds b.mu
func (b *Bus) removeFromRoom(c *Conn, room string) {
	if members, ok := b.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(b.rooms, room)
		}
	}
}

// Publish fans an event out to every connection currently in the room and
// forwards it to peer instances through the relay. It never blocks on a
// slow subscriber and returns once the event is handed to the transport.
func (b *Bus) Publish(room, name string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("Failed to marshal bus event",
			zap.String("event", name),
			zap.Error(err))
		return
	}

	evt := Event{Room: room, Name: name, Payload: raw}
	util.BusEventsPublished.Inc()

	b.deliverLocal(evt)

	if b.relay != nil {
		b.relay.Forward(evt)
	}
}

func (b *Bus) deliverLocal(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for c := range b.rooms[evt.Room] {
		select {
		case c.send <- evt:
		default:
			util.BusEventsDropped.Inc()
		}
	}
}

// Run consumes relayed events from peer instances until the context is
// cancelled. No-op without a relay.
func (b *Bus) Run(ctx context.Context) {
	if b.relay == nil {
		return
	}
	b.relay.Run(ctx, b.deliverLocal)
}

// Room names. Every room is scoped to its tenant so fan-out can never
// cross tenants even on a shared relay channel.

// OrderRoom groups the subscribers of one order
func OrderRoom(tenantID, orderID int64) string {
	return fmt.Sprintf("t%d:order:%d", tenantID, orderID)
}

// ClientRoom groups the devices of one client
func ClientRoom(tenantID, clientID int64) string {
	return fmt.Sprintf("t%d:client:%d", tenantID, clientID)
}

// DriversRoom groups the tenant's driver pool
func DriversRoom(tenantID int64) string {
	return fmt.Sprintf("t%d:drivers", tenantID)
}

// CooksRoom groups the tenant's kitchen staff
func CooksRoom(tenantID int64) string {
	return fmt.Sprintf("t%d:cooks", tenantID)
}

// AdminsRoom groups the tenant's admins
func AdminsRoom(tenantID int64) string {
	return fmt.Sprintf("t%d:admins", tenantID)
}
