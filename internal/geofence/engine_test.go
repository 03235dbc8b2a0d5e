package geofence

import (
	"context"
	"sync"
	"testing"

	"resto-platform/internal/models"
	"resto-platform/internal/tenant"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFenceSource struct {
	fences []models.Geofence
	calls  int
}

func (f *fakeFenceSource) ListActiveGeofences(_ context.Context) ([]models.Geofence, error) {
	f.calls++
	return f.fences, nil
}

type fakeSink struct {
	mu     sync.Mutex
	alerts []models.Alert
	roles  []string
}

func (f *fakeSink) NotifyRole(_ context.Context, role string, alert models.Alert, _ int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	f.roles = append(f.roles, role)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string
	rooms  []string
}

func (f *fakePublisher) Publish(room, name string, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms = append(f.rooms, room)
	f.events = append(f.events, name)
}

func testSample(lat, lng float64) Sample {
	return Sample{
		Binding: &tenant.Binding{
			Tenant: &models.TenantHandle{ID: 1, RoutingKey: "pizzeria"},
		},
		DeviceID: "driver-9",
		OrderID:  55,
		Lat:      lat,
		Lng:      lng,
	}
}

func TestEvaluateFiresOnCrossing(t *testing.T) {
	fences := &fakeFenceSource{fences: []models.Geofence{
		{ID: 100, Name: "depot", Kind: models.GeofenceCircle, CenterLat: 0, CenterLng: 0, RadiusM: 1000},
	}}
	sink := &fakeSink{}
	pub := &fakePublisher{}
	e := NewEngine(fences, sink, pub)

	e.evaluate(testSample(1, 1)) // outside, baseline
	require.Empty(t, sink.alerts)

	e.evaluate(testSample(0, 0)) // inside, crossing
	require.Len(t, sink.alerts, 1)
	assert.Equal(t, models.RoleAdmin, sink.roles[0])
	assert.Equal(t, models.AlertGeofence, sink.alerts[0].Type)

	// Admin room and the order room both see the event.
	assert.Contains(t, pub.rooms, "t1:admins")
	assert.Contains(t, pub.rooms, "t1:order:55")
	for _, name := range pub.events {
		assert.Equal(t, models.EventGeofenceAlert, name)
	}
}

func TestTrackerForgetDropsDeviceState(t *testing.T) {
	tr := NewTracker()

	tr.Observe(1, "driver-9", 100, false)
	_, fired := tr.Observe(1, "driver-9", 100, true)
	require.True(t, fired)

	tr.Observe(1, "driver-8", 100, true) // other device keeps its state
	tr.Forget(1, "driver-9")

	// After forgetting, the next observation is a baseline again.
	_, fired = tr.Observe(1, "driver-9", 100, false)
	assert.False(t, fired)

	_, fired = tr.Observe(1, "driver-8", 100, false)
	assert.True(t, fired)
}

func TestTrackerForgetScopedToTenant(t *testing.T) {
	tr := NewTracker()

	tr.Observe(1, "driver-9", 100, true)
	tr.Observe(2, "driver-9", 100, true)
	tr.Forget(1, "driver-9")

	_, fired := tr.Observe(2, "driver-9", 100, false)
	assert.True(t, fired)
}

func TestEvaluateSilentWithoutFlip(t *testing.T) {
	fences := &fakeFenceSource{fences: []models.Geofence{
		{ID: 100, Kind: models.GeofenceCircle, RadiusM: 1000},
	}}
	sink := &fakeSink{}
	e := NewEngine(fences, sink, &fakePublisher{})

	for i := 0; i < 5; i++ {
		e.evaluate(testSample(0, 0)) // always inside
	}
	assert.Empty(t, sink.alerts)
}

func TestEvaluateCachesFenceList(t *testing.T) {
	fences := &fakeFenceSource{}
	e := NewEngine(fences, &fakeSink{}, &fakePublisher{})

	for i := 0; i < 10; i++ {
		e.evaluate(testSample(0, 0))
	}
	assert.Equal(t, 1, fences.calls)
}

func TestOfferDropsWhenFull(t *testing.T) {
	e := NewEngine(&fakeFenceSource{}, &fakeSink{}, &fakePublisher{})

	// Nothing drains the queue here; over-offering must not block.
	for i := 0; i < sampleQueueSize+10; i++ {
		e.Offer(testSample(0, 0))
	}
	assert.Len(t, e.samples, sampleQueueSize)
}
