package geofence

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"resto-platform/internal/bus"
	"resto-platform/internal/models"
	"resto-platform/internal/tenant"
	"resto-platform/internal/util"

	"go.uber.org/zap"
)

const (
	sampleQueueSize = 1024
	evalTimeout     = 5 * time.Second
	fenceCacheTTL   = 30 * time.Second
)

// Sample is one device position handed to the engine. It carries its
// tenant binding because evaluation happens off the request goroutine.
type Sample struct {
	Binding    *tenant.Binding
	DeviceID   string
	DeliveryID int64
	OrderID    int64
	ClientID   int64
	Lat        float64
	Lng        float64
	Speed      float64
}

// Tracker remembers the last containment boolean per (device, fence)
// pair and fires only on flips. The first observation for a pair sets
// the baseline without firing; without this debounce every sample inside
// a zone would flood the notification channel.
type Tracker struct {
	mu   sync.Mutex
	last map[string]bool
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{last: make(map[string]bool)}
}

// Observe records a containment observation and reports whether it is a
// crossing, and in which direction.
func (t *Tracker) Observe(tenantID int64, deviceID string, fenceID int64, inside bool) (string, bool) {
	key := fmt.Sprintf("%d|%s|%d", tenantID, deviceID, fenceID)

	t.mu.Lock()
	defer t.mu.Unlock()

	prev, seen := t.last[key]
	t.last[key] = inside

	if !seen || prev == inside {
		return "", false
	}
	if inside {
		return DirectionEntered, true
	}
	return DirectionExited, true
}

// Forget drops all containment state for a device. Called when a
// delivery completes so the map does not grow with every driver the
// tenant has ever tracked; the next sample re-baselines silently.
func (t *Tracker) Forget(tenantID int64, deviceID string) {
	prefix := fmt.Sprintf("%d|%s|", tenantID, deviceID)

	t.mu.Lock()
	defer t.mu.Unlock()

	for key := range t.last {
		if strings.HasPrefix(key, prefix) {
			delete(t.last, key)
		}
	}
}

// FenceSource lists the active zones of the bound tenant
type FenceSource interface {
	ListActiveGeofences(ctx context.Context) ([]models.Geofence, error)
}

// AlertSink receives crossing alerts
type AlertSink interface {
	NotifyRole(ctx context.Context, role string, alert models.Alert, excludeUserID int64)
}

// Publisher fans crossing events out to bus rooms
type Publisher interface {
	Publish(room, name string, payload any)
}

type fenceCacheEntry struct {
	fences  []models.Geofence
	expires time.Time
}

// Engine consumes position samples and emits enter/exit alerts. It is
// decoupled from the position-report path through a bounded queue so
// geometric evaluation never delays the position publish.
type Engine struct {
	fences  FenceSource
	sink    AlertSink
	bus     Publisher
	tracker *Tracker
	samples chan Sample
	logger  *zap.Logger

	cacheMu sync.Mutex
	cache   map[int64]fenceCacheEntry
}

// NewEngine creates a geofence engine
func NewEngine(fences FenceSource, sink AlertSink, publisher Publisher) *Engine {
	return &Engine{
		fences:  fences,
		sink:    sink,
		bus:     publisher,
		tracker: NewTracker(),
		samples: make(chan Sample, sampleQueueSize),
		logger:  util.GetLogger(),
		cache:   make(map[int64]fenceCacheEntry),
	}
}

// Offer enqueues a sample without blocking. Under sustained overload
// samples are dropped and counted; positions are frequent enough that a
// lost sample only delays a crossing by one report.
func (e *Engine) Offer(s Sample) {
	select {
	case e.samples <- s:
	default:
		util.GeofenceSamplesDropped.Inc()
	}
}

// Forget clears the crossing history of a device
func (e *Engine) Forget(tenantID int64, deviceID string) {
	e.tracker.Forget(tenantID, deviceID)
}

// Run evaluates queued samples until the context is cancelled
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-e.samples:
			e.evaluate(s)
		}
	}
}

func (e *Engine) evaluate(s Sample) {
	ctx := tenant.With(context.Background(), s.Binding)
	ctx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	fences, err := e.activeFences(ctx, s.Binding.Tenant.ID)
	if err != nil {
		e.logger.Error("Failed to load geofences",
			zap.Int64("tenant_id", s.Binding.Tenant.ID),
			zap.Error(err))
		return
	}

	for i := range fences {
		fence := &fences[i]
		inside := Contains(s.Lat, s.Lng, fence)

		direction, fired := e.tracker.Observe(s.Binding.Tenant.ID, s.DeviceID, fence.ID, inside)
		if !fired {
			continue
		}

		util.GeofenceAlertsTotal.WithLabelValues(direction).Inc()

		payload := models.GeofencePayload{
			DeviceID:   s.DeviceID,
			GeofenceID: fence.ID,
			Direction:  direction,
			Lat:        s.Lat,
			Lng:        s.Lng,
		}

		tenantID := s.Binding.Tenant.ID
		e.bus.Publish(bus.AdminsRoom(tenantID), models.EventGeofenceAlert, payload)
		if s.OrderID != 0 {
			e.bus.Publish(bus.OrderRoom(tenantID, s.OrderID), models.EventGeofenceAlert, payload)
		}

		alert := models.NewAlert(models.AlertGeofence, models.SeverityWarning,
			fmt.Sprintf("Zone %s %s", fence.Name, direction),
			fmt.Sprintf("Device %s %s zone %s", s.DeviceID, direction, fence.Name),
			payload)
		e.sink.NotifyRole(ctx, models.RoleAdmin, alert, 0)
	}
}

// activeFences caches the fence list per tenant briefly; the position
// stream is the hottest path in the system and must not hit the database
// once per sample.
func (e *Engine) activeFences(ctx context.Context, tenantID int64) ([]models.Geofence, error) {
	now := time.Now()

	e.cacheMu.Lock()
	entry, ok := e.cache[tenantID]
	e.cacheMu.Unlock()

	if ok && now.Before(entry.expires) {
		return entry.fences, nil
	}

	fences, err := e.fences.ListActiveGeofences(ctx)
	if err != nil {
		return nil, err
	}

	e.cacheMu.Lock()
	e.cache[tenantID] = fenceCacheEntry{fences: fences, expires: now.Add(fenceCacheTTL)}
	e.cacheMu.Unlock()

	return fences, nil
}
