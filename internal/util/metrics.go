package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Total number of applied order transitions",
	}, []string{"to"})

	OrderTransitionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_rejected_total",
		Help: "Total number of rejected order transitions",
	}, []string{"reason"})

	DeliveriesAcceptedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deliveries_accepted_total",
		Help: "Total number of deliveries accepted by drivers",
	})

	DeliveriesCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deliveries_completed_total",
		Help: "Total number of completed deliveries",
	})

	PositionsReportedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "positions_reported_total",
		Help: "Total number of driver position samples",
	})

	GeofenceAlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geofence_alerts_total",
		Help: "Total number of geofence crossing alerts",
	}, []string{"direction"})

	GeofenceSamplesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "geofence_samples_dropped_total",
		Help: "Position samples dropped because the geofence queue was full",
	})

	TenantPoolsOpen = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tenant_pools_opened_total",
		Help: "Total number of tenant connection pools opened",
	})

	TenantPoolsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tenant_pools_evicted_total",
		Help: "Total number of idle tenant pools evicted",
	})

	TenantPoolOpenFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tenant_pool_open_failures_total",
		Help: "Total number of failed tenant pool opens",
	})

	BusEventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bus_events_published_total",
		Help: "Total number of events published to the bus",
	})

	BusEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bus_events_dropped_total",
		Help: "Events dropped because a subscriber buffer was full",
	})

	NotificationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_failed_total",
		Help: "Total number of failed notification deliveries",
	}, []string{"stage"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
