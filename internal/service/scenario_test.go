package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"resto-platform/internal/geofence"
	"resto-platform/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedFences struct {
	fences []models.Geofence
}

func (f *fixedFences) ListActiveGeofences(_ context.Context) ([]models.Geofence, error) {
	return f.fences, nil
}

// TestDeliveryOrderEndToEnd walks one order through the whole system:
// placement, the kitchen pipeline, a contested driver assignment, live
// tracking through a zone boundary, completion and rating. The geofence
// engine runs for real here, queue and all, so the single-alert debounce
// is observed across the actual asynchronous path.
func TestDeliveryOrderEndToEnd(t *testing.T) {
	store := newMemStore()
	store.products[1] = models.Product{ID: 1, Price: 4500}
	store.products[2] = models.Product{ID: 2, Price: 2000}

	pub := &recordingBus{}
	sink := &recordingSink{}
	geo := &stubGeocoder{lat: -6.2, lng: 106.8}

	// One circular zone around the destination, 5 km wide.
	engine := geofence.NewEngine(&fixedFences{fences: []models.Geofence{
		{ID: 7, Name: "south gate", Kind: models.GeofenceCircle, CenterLat: -6.2, CenterLng: 106.8, RadiusM: 5000},
	}}, sink, pub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	lifecycle := NewLifecycle(store, pub, sink, geo)
	dispatch := NewDispatch(store, pub, sink, engine)

	client := models.Actor{UserID: 10, Role: models.RoleClient}
	cook := models.Actor{UserID: 20, Role: models.RoleCook}

	order, err := lifecycle.CreateOrder(boundCtx(), client, &CreateOrderRequest{
		Mode:    models.ModeDelivery,
		Address: "Jl. Sudirman 1",
		Items: []OrderItemRequest{
			{ProductID: 1, Quantity: 2},
			{ProductID: 2, Quantity: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2*4500+2000), order.TotalAmount)

	_, err = lifecycle.Accept(boundCtx(), cook, order.ID)
	require.NoError(t, err)
	_, err = lifecycle.MarkPreparing(boundCtx(), cook, order.ID)
	require.NoError(t, err)
	_, err = lifecycle.MarkReady(boundCtx(), cook, order.ID)
	require.NoError(t, err)

	// Five drivers grab for the same ready order at once.
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		winner int64
		won    *models.Delivery
		losers int
	)
	for driverID := int64(1); driverID <= 5; driverID++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			d, err := dispatch.AcceptReadyOrder(boundCtx(), id, order.ID, nil)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, models.ErrAlreadyAssigned)
				losers++
				return
			}
			winner = id
			won = d
		}(driverID)
	}
	wg.Wait()
	require.NotNil(t, won, "exactly one driver must win the assignment")
	assert.Equal(t, 4, losers)

	driver := models.Actor{UserID: winner, Role: models.RoleDriver}

	// First sample is well outside the zone: baseline, no alert.
	require.NoError(t, dispatch.ReportPosition(boundCtx(), driver, won.ID, -6.5, 107.2, 14))
	// Second sample is inside: one crossing alert.
	require.NoError(t, dispatch.ReportPosition(boundCtx(), driver, won.ID, -6.2, 106.8, 9))

	require.Eventually(t, func() bool {
		return len(sink.alertsOfType(models.AlertGeofence)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	var payload models.GeofencePayload
	crossing := sink.alertsOfType(models.AlertGeofence)[0]
	require.NoError(t, json.Unmarshal(crossing.Payload, &payload))
	assert.Equal(t, geofence.DirectionEntered, payload.Direction)
	assert.Equal(t, int64(7), payload.GeofenceID)

	// Staying inside does not re-fire. The exit afterwards does, which
	// also proves the queue drained past the duplicate sample.
	require.NoError(t, dispatch.ReportPosition(boundCtx(), driver, won.ID, -6.2001, 106.8001, 9))
	require.NoError(t, dispatch.ReportPosition(boundCtx(), driver, won.ID, -6.5, 107.2, 14))
	require.Eventually(t, func() bool {
		return len(sink.alertsOfType(models.AlertGeofence)) == 2
	}, 2*time.Second, 10*time.Millisecond)

	completed, err := dispatch.CompleteDelivery(boundCtx(), driver, won.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusDelivered, completed.Status)

	final, _, err := lifecycle.GetOrder(boundCtx(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, final.Status)

	// One review per order.
	_, err = lifecycle.Rate(boundCtx(), client, order.ID, 5, "fast and warm")
	require.NoError(t, err)
	_, err = lifecycle.Rate(boundCtx(), client, order.ID, 1, "changed my mind")
	assert.ErrorIs(t, err, models.ErrRatingExists)
}
