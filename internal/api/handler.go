package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"resto-platform/internal/bus"
	"resto-platform/internal/models"
	"resto-platform/internal/service"
	"resto-platform/internal/store"
	"resto-platform/internal/tenant"
	"resto-platform/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	lifecycle *service.Lifecycle
	dispatch  *service.Dispatch
	store     *store.Store
	bus       *bus.Bus
}

// NewHandler creates a new HTTP handler
func NewHandler(lifecycle *service.Lifecycle, dispatch *service.Dispatch, st *store.Store, b *bus.Bus) *Handler {
	return &Handler{
		lifecycle: lifecycle,
		dispatch:  dispatch,
		store:     st,
		bus:       b,
	}
}

// SetupRoutes sets up HTTP routes. The tenant middleware binds the
// request to its tenant before any handler runs.
func (h *Handler) SetupRoutes(router *gin.Engine, tenantMW gin.HandlerFunc) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())
	router.Use(tenantMW)

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1", requireTenant())
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/ready", h.listReadyOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/accept", h.transitionHandler(h.lifecycle.Accept))
		v1.POST("/orders/:id/preparing", h.transitionHandler(h.lifecycle.MarkPreparing))
		v1.POST("/orders/:id/ready", h.transitionHandler(h.lifecycle.MarkReady))
		v1.POST("/orders/:id/handover", h.transitionHandler(h.lifecycle.Handover))
		v1.POST("/orders/:id/cancel", h.transitionHandler(h.lifecycle.Cancel))
		v1.POST("/orders/:id/rating", h.rateOrder)

		v1.POST("/deliveries/accept", h.acceptDelivery)
		v1.POST("/deliveries/:id/position", h.reportPosition)
		v1.GET("/deliveries/:id/positions", h.listPositions)
		v1.POST("/deliveries/:id/complete", h.completeDelivery)

		v1.POST("/alerts/:id/read", h.markAlertRead)

		v1.GET("/events", h.streamEvents)
	}
}

// requireTenant rejects tenant-scoped requests arriving on the platform
// host before any handler can touch data.
func requireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := tenant.FromContext(c.Request.Context()); err != nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"error": "unknown tenant",
			})
		}
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func actorFrom(c *gin.Context) models.Actor {
	userID, _ := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
	return models.Actor{
		UserID: userID,
		Role:   c.GetHeader("X-User-Role"),
	}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// respondError maps the error taxonomy to distinct, actionable responses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrOrderNotFound),
		errors.Is(err, models.ErrDeliveryNotFound),
		errors.Is(err, models.ErrAlertNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrAlreadyAssigned):
		c.JSON(http.StatusConflict, gin.H{"error": "order already taken"})
	case errors.Is(err, models.ErrNotReady),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrNotDelivered):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrRatingExists):
		c.JSON(http.StatusConflict, gin.H{"error": "order already rated"})
	case errors.Is(err, models.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	order, err := h.lifecycle.CreateOrder(c.Request.Context(), actorFrom(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) getOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	order, items, err := h.lifecycle.GetOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order, "items": items})
}

func (h *Handler) listReadyOrders(c *gin.Context) {
	orders, err := h.lifecycle.ListReadyOrders(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// transitionHandler adapts the uniform lifecycle transition signature
func (h *Handler) transitionHandler(fn func(ctx context.Context, actor models.Actor, orderID int64) (*models.Order, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}

		order, err := fn(c.Request.Context(), actorFrom(c), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

type ratingRequest struct {
	Stars   int    `json:"stars" binding:"required,min=1,max=5"`
	Comment string `json:"comment"`
}

func (h *Handler) rateOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req ratingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	rating, err := h.lifecycle.Rate(c.Request.Context(), actorFrom(c), id, req.Stars, req.Comment)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rating)
}

type acceptDeliveryRequest struct {
	OrderID  int64             `json:"order_id" binding:"required"`
	Position *service.Position `json:"position,omitempty"`
}

func (h *Handler) acceptDelivery(c *gin.Context) {
	actor := actorFrom(c)
	if actor.Role != models.RoleDriver {
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed"})
		return
	}

	var req acceptDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	delivery, err := h.dispatch.AcceptReadyOrder(c.Request.Context(), actor.UserID, req.OrderID, req.Position)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, delivery)
}

// Zero is a valid coordinate (equator, prime meridian), so lat/lng must
// not be tagged required: the validator treats zero floats as absent.
type positionRequest struct {
	Lat   float64 `json:"lat" binding:"gte=-90,lte=90"`
	Lng   float64 `json:"lng" binding:"gte=-180,lte=180"`
	Speed float64 `json:"speed" binding:"gte=0"`
}

func (h *Handler) reportPosition(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.dispatch.ReportPosition(c.Request.Context(), actorFrom(c), id, req.Lat, req.Lng, req.Speed); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "recorded"})
}

func (h *Handler) listPositions(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	samples, err := h.dispatch.ListPositions(c.Request.Context(), id, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": samples})
}

func (h *Handler) completeDelivery(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	delivery, err := h.dispatch.CompleteDelivery(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, delivery)
}

func (h *Handler) markAlertRead(c *gin.Context) {
	actor := actorFrom(c)
	if err := h.store.MarkAlertRead(c.Request.Context(), c.Param("id"), actor.UserID, actor.Role); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "read"})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
