package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"storefront/internal/cart"
	"storefront/internal/catalog"
	"storefront/internal/checkout"
	"storefront/internal/models"
	"storefront/internal/session"
	"storefront/internal/sink"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxActionBody = 1 << 20

// CatalogInvalidator drops the cached product list
type CatalogInvalidator interface {
	Invalidate()
}

// CatalogPublisher fans a catalog change out to the other replicas
type CatalogPublisher interface {
	PublishCatalogUpdated(ctx context.Context, event *models.CatalogUpdatedEvent) error
}

// Check reports whether a dependency is usable
type Check func(ctx context.Context) error

// Handler contains HTTP handlers
type Handler struct {
	catalog   *catalog.Catalog
	cache     CatalogInvalidator
	sessions  *session.Store
	checkout  *checkout.Service
	publisher CatalogPublisher
	sheetID   string
	baseURL   string
	limiter   *RateLimiter
	admin     string
	adminRate *rate.Limiter
	checks    map[string]Check
	logger    *zap.Logger
}

// Option configures a Handler
type Option func(*Handler)

// WithCatalogEvents announces manual catalog refreshes on Kafka
func WithCatalogEvents(publisher CatalogPublisher, sheetID string) Option {
	return func(h *Handler) {
		h.publisher = publisher
		h.sheetID = sheetID
	}
}

// WithBaseURL sets the storefront origin used in confirmation links
func WithBaseURL(baseURL string) Option {
	return func(h *Handler) { h.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithSubmitLimit bounds order submissions per session
func WithSubmitLimit(r rate.Limit, burst int) Option {
	return func(h *Handler) { h.limiter = NewRateLimiter(r, burst) }
}

// WithAdminToken enables the operator endpoints behind a bearer token
func WithAdminToken(token string) Option {
	return func(h *Handler) { h.admin = token }
}

// WithReadinessCheck adds a dependency to /ready
func WithReadinessCheck(name string, check Check) Option {
	return func(h *Handler) { h.checks[name] = check }
}

// NewHandler creates a new HTTP handler
func NewHandler(
	products *catalog.Catalog,
	cache CatalogInvalidator,
	sessions *session.Store,
	checkoutService *checkout.Service,
	opts ...Option,
) *Handler {
	h := &Handler{
		catalog:   products,
		cache:     cache,
		sessions:  sessions,
		checkout:  checkoutService,
		limiter:   NewRateLimiter(rate.Every(10*time.Second), 3),
		adminRate: rate.NewLimiter(rate.Every(10*time.Second), 3),
		checks:    make(map[string]Check),
		logger:    util.GetLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/products", h.listProducts)
		v1.GET("/products/search", h.searchProducts)
		v1.GET("/products/:id", h.getProduct)
		v1.GET("/categories", h.listCategories)
		v1.POST("/catalog/refresh", adminMiddleware(h.admin, h.adminRate), h.refreshCatalog)
	}

	shop := v1.Group("", sessionMiddleware())
	{
		shop.GET("/session", h.getSession)
		shop.POST("/session/actions", h.dispatchActions)

		shop.GET("/checkout", h.getCheckout)
		shop.GET("/checkout/draft", h.getDraft)
		shop.PUT("/checkout/draft", h.putDraft)
		shop.POST("/checkout/next", h.nextStep)
		shop.POST("/checkout/back", h.previousStep)
		shop.POST("/checkout/terms", h.acceptTerms)
		shop.POST("/checkout/submit", h.limiter.Limit(), h.submitOrder)

		shop.GET("/orders", h.listOrders)
		shop.GET("/orders/:id", h.getOrder)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			deps[name] = err.Error()
			continue
		}
		deps[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	c.JSON(status, gin.H{
		"status":       state,
		"dependencies": deps,
		"time":         time.Now().Unix(),
	})
}

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.catalog.Find(c.Request.Context(), catalog.Filter{
		Category:    c.Query("category"),
		Subcategory: c.Query("subcategory"),
		Tag:         c.Query("tag"),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products, "count": len(products)})
}

func (h *Handler) searchProducts(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = n
	}

	products, err := h.catalog.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products, "count": len(products)})
}

func (h *Handler) getProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	product, err := h.catalog.ByID(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) listCategories(c *gin.Context) {
	categories, err := h.catalog.Categories(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

// refreshCatalog drops the cache here and, when configured, on every replica
func (h *Handler) refreshCatalog(c *gin.Context) {
	h.cache.Invalidate()

	if h.publisher != nil {
		event := &models.CatalogUpdatedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeCatalogUpdated,
				Timestamp: time.Now(),
			},
			SheetID: h.sheetID,
		}
		if err := h.publisher.PublishCatalogUpdated(c.Request.Context(), event); err != nil {
			h.logger.Error("Failed to publish CatalogUpdated event", zap.Error(err))
		}
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "refresh scheduled"})
}

type sessionResponse struct {
	SessionID string     `json:"sessionId"`
	State     cart.State `json:"state"`
	Subtotal  string     `json:"subtotal"`
	ItemCount int        `json:"itemCount"`
}

func newSessionResponse(sid string, state cart.State) sessionResponse {
	return sessionResponse{
		SessionID: sid,
		State:     state,
		Subtotal:  state.Subtotal().StringFixed(2),
		ItemCount: state.ItemCount(),
	}
}

func (h *Handler) getSession(c *gin.Context) {
	sid := sessionID(c)
	state, err := h.sessions.State(c.Request.Context(), sid)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(sid, state))
}

// dispatchActions accepts one action envelope or an array of them
func (h *Handler) dispatchActions(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxActionBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	actions, err := decodeActions(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid action",
			"details": err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	for i, action := range actions {
		resolved, err := h.resolveProduct(ctx, action)
		if err != nil {
			h.writeError(c, err)
			return
		}
		actions[i] = resolved
	}

	sid := sessionID(c)
	state, err := h.sessions.Dispatch(ctx, sid, actions...)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(sid, state))
}

func decodeActions(body []byte) ([]cart.Action, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty body")
	}

	if body[0] != '[' {
		action, err := cart.DecodeAction(body)
		if err != nil {
			return nil, err
		}
		return []cart.Action{action}, nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, err
	}
	actions := make([]cart.Action, 0, len(raws))
	for _, raw := range raws {
		action, err := cart.DecodeAction(raw)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	return actions, nil
}

// resolveProduct replaces a client-sent product with the catalog's copy so
// prices always come from the sheet
func (h *Handler) resolveProduct(ctx context.Context, action cart.Action) (cart.Action, error) {
	lookup := func(p models.Product) (models.Product, error) {
		found, err := h.catalog.ByID(ctx, p.ID)
		if err != nil {
			return models.Product{}, err
		}
		return *found, nil
	}

	var err error
	switch a := action.(type) {
	case cart.AddToCart:
		a.Product, err = lookup(a.Product)
		return a, err
	case cart.AddToCartWithQuantity:
		a.Product, err = lookup(a.Product)
		return a, err
	case cart.AddToWishlist:
		a.Product, err = lookup(a.Product)
		return a, err
	case cart.OpenQuickView:
		a.Product, err = lookup(a.Product)
		return a, err
	}
	return action, nil
}

func (h *Handler) getCheckout(c *gin.Context) {
	view, err := h.checkout.View(c.Request.Context(), sessionID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) getDraft(c *gin.Context) {
	form, err := h.checkout.Draft(c.Request.Context(), sessionID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, form)
}

func (h *Handler) putDraft(c *gin.Context) {
	var form models.CheckoutFormData
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	view, err := h.checkout.UpdateDraft(c.Request.Context(), sessionID(c), form)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) nextStep(c *gin.Context) {
	view, err := h.checkout.Next(c.Request.Context(), sessionID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) previousStep(c *gin.Context) {
	view, err := h.checkout.Back(c.Request.Context(), sessionID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type termsRequest struct {
	Accepted *bool `json:"accepted" binding:"required"`
}

func (h *Handler) acceptTerms(c *gin.Context) {
	var req termsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	view, err := h.checkout.AcceptTerms(c.Request.Context(), sessionID(c), *req.Accepted)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) submitOrder(c *gin.Context) {
	order, err := h.checkout.Submit(c.Request.Context(), sessionID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"orderId":     order.ID,
		"order":       order,
		"redirectUrl": h.baseURL + "/order-confirmation?orderId=" + order.ID,
	})
}

func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.checkout.Orders(c.Request.Context(), sessionID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.checkout.Order(c.Request.Context(), sessionID(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// writeError maps domain errors onto status codes
func (h *Handler) writeError(c *gin.Context, err error) {
	if ve, ok := checkout.IsValidationError(err); ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": ve.Message,
			"field": ve.Field,
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, checkout.ErrOrderNotFound),
		errors.Is(err, store.ErrOrderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, checkout.ErrSubmissionInProgress),
		errors.Is(err, checkout.ErrInvalidStep),
		errors.Is(err, checkout.ErrAlreadyAtFirstStep),
		errors.Is(err, checkout.ErrAlreadyAtLastStep):
		status = http.StatusConflict
	case errors.Is(err, checkout.ErrTermsNotAccepted),
		errors.Is(err, checkout.ErrEmptyCart):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, sink.ErrRejected):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("session_id", sessionID(c)),
			zap.Error(err))
		c.JSON(status, gin.H{
			"error":   "Internal server error",
			"details": err.Error(),
		})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
