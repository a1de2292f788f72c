package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"storefront/internal/cart"
	"storefront/internal/models"
	"storefront/internal/redisclient"
	"storefront/internal/sink"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrEmptyCart            = errors.New("cart is empty")
	ErrSubmissionInProgress = errors.New("an order submission is already in progress")
	ErrOrderNotFound        = errors.New("order not found")
	ErrOrderIDExhausted     = errors.New("could not reserve a unique order id")
)

const (
	orderIDAttempts = 16
	orderIDTTL      = 10 * time.Minute
)

// dhaka is Bangladesh Standard Time, which has no daylight saving
var dhaka = time.FixedZone("BST", 6*60*60)

// Storage is the session key-value storage used for the draft, flow and last order
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

// Sessions is the cart state container
type Sessions interface {
	State(ctx context.Context, sessionID string) (cart.State, error)
	Dispatch(ctx context.Context, sessionID string, actions ...cart.Action) (cart.State, error)
}

// OrderSink receives submitted orders
type OrderSink interface {
	Submit(ctx context.Context, order *models.Order) (*sink.Response, error)
}

// OrderHistory is the durable order list
type OrderHistory interface {
	SaveOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrdersBySession(ctx context.Context, sessionID string) ([]models.Order, error)
}

// EventPublisher announces placed orders
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
}

// Config tunes the checkout service
type Config struct {
	Pricing    Pricing
	SessionTTL time.Duration
	LockTTL    time.Duration
}

// View is what the checkout page renders
type View struct {
	Step          Step                    `json:"step"`
	StepName      string                  `json:"stepName"`
	TermsAccepted bool                    `json:"termsAccepted"`
	CanSubmit     bool                    `json:"canSubmit"`
	Form          models.CheckoutFormData `json:"form"`
	Quote         Quote                   `json:"quote"`
	Items         []models.CartItem       `json:"items"`
	CouponCode    string                  `json:"couponCode,omitempty"`
}

// Service runs the shipping, payment, confirmation flow and order submission
type Service struct {
	storage   Storage
	sessions  Sessions
	sink      OrderSink
	history   OrderHistory
	events    EventPublisher
	validator *Validator
	cfg       Config
	now       func() time.Time
	logger    *zap.Logger
}

// NewService creates a checkout service
func NewService(
	storage Storage,
	sessions Sessions,
	orderSink OrderSink,
	history OrderHistory,
	events EventPublisher,
	cfg Config,
) *Service {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.Pricing.InsideDhakaFee.IsZero() && cfg.Pricing.OutsideDhakaFee.IsZero() {
		cfg.Pricing = DefaultPricing()
	}
	return &Service{
		storage:   storage,
		sessions:  sessions,
		sink:      orderSink,
		history:   history,
		events:    events,
		validator: NewValidator(),
		cfg:       cfg,
		now:       time.Now,
		logger:    util.GetLogger(),
	}
}

// View returns the current checkout page for a session
func (s *Service) View(ctx context.Context, sessionID string) (*View, error) {
	flow, err := s.loadFlow(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	form, err := s.Draft(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, sessionID, flow, form)
}

// Draft hydrates the persisted form; unreadable data yields an empty form
func (s *Service) Draft(ctx context.Context, sessionID string) (models.CheckoutFormData, error) {
	raw, err := s.storage.Get(ctx, redisclient.DraftKey(sessionID))
	if err != nil {
		return models.CheckoutFormData{}, fmt.Errorf("failed to load draft: %w", err)
	}

	form := emptyForm()
	if len(raw) == 0 {
		return form, nil
	}
	if err := json.Unmarshal(raw, &form); err != nil {
		s.logger.Warn("Ignoring unreadable checkout draft",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return emptyForm(), nil
	}
	return normalizeForm(form), nil
}

// UpdateDraft persists the form after an edit
func (s *Service) UpdateDraft(ctx context.Context, sessionID string, form models.CheckoutFormData) (*View, error) {
	form = normalizeForm(form)
	if err := s.saveDraft(ctx, sessionID, form); err != nil {
		return nil, err
	}

	flow, err := s.loadFlow(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, sessionID, flow, form)
}

// Next advances the flow when the current step validates
func (s *Service) Next(ctx context.Context, sessionID string) (*View, error) {
	flow, err := s.loadFlow(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	form, err := s.Draft(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	flow, err = flow.Next(func(step Step) error {
		switch step {
		case StepShipping:
			if ve := s.validator.ValidateShipping(form); ve != nil {
				return ve
			}
			state, err := s.sessions.State(ctx, sessionID)
			if err != nil {
				return err
			}
			if len(state.Items) == 0 {
				return ErrEmptyCart
			}
		case StepPayment:
			if ve := s.validator.ValidatePayment(form); ve != nil {
				return ve
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.saveFlow(ctx, sessionID, flow); err != nil {
		return nil, err
	}
	return s.view(ctx, sessionID, flow, form)
}

// Back returns to the previous step
func (s *Service) Back(ctx context.Context, sessionID string) (*View, error) {
	return s.updateFlow(ctx, sessionID, Flow.Back)
}

// AcceptTerms sets the terms checkbox of the confirmation step
func (s *Service) AcceptTerms(ctx context.Context, sessionID string, accepted bool) (*View, error) {
	return s.updateFlow(ctx, sessionID, func(f Flow) (Flow, error) {
		return f.AcceptTerms(accepted)
	})
}

// Submit places the order. On success the cart, coupon, draft and flow are cleared;
// on failure nothing is cleared so the shopper can retry.
func (s *Service) Submit(ctx context.Context, sessionID string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "checkout.Service.Submit")
	defer span.End()

	flow, err := s.loadFlow(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if flow.Step != StepConfirmation {
		return nil, ErrInvalidStep
	}
	if !flow.TermsAccepted {
		return nil, ErrTermsNotAccepted
	}

	lockKey := "checkout:" + sessionID
	locked, err := s.storage.AcquireLock(ctx, lockKey, s.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire checkout lock: %w", err)
	}
	if !locked {
		util.OrdersFailedTotal.WithLabelValues("duplicate_submission").Inc()
		return nil, ErrSubmissionInProgress
	}
	defer func() {
		if err := s.storage.ReleaseLock(context.Background(), lockKey); err != nil {
			s.logger.Error("Failed to release checkout lock",
				zap.String("session_id", sessionID),
				zap.Error(err))
		}
	}()

	form, err := s.Draft(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if ve := s.validator.ValidateShipping(form); ve != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_form").Inc()
		return nil, ve
	}

	state, err := s.sessions.State(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(state.Items) == 0 {
		util.OrdersFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, ErrEmptyCart
	}

	now := s.now()
	orderID, err := s.reserveOrderID(ctx, now)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("order_id").Inc()
		return nil, err
	}
	order := s.buildOrder(orderID, now, sessionID, form, state)

	resp, err := s.sink.Submit(ctx, order)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("sink").Inc()
		span.RecordError(err)
		s.logger.Error("Order submission failed",
			zap.String("session_id", sessionID),
			zap.String("order_id", order.ID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to submit order: %w", err)
	}
	if resp.OrderID != "" && resp.OrderID != order.ID {
		s.logger.Warn("Order sink returned a different order id",
			zap.String("order_id", order.ID),
			zap.String("sink_order_id", resp.OrderID))
	}

	util.OrdersSubmittedTotal.Inc()
	s.logger.Info("Order placed",
		zap.String("session_id", sessionID),
		zap.String("order_id", order.ID),
		zap.String("total", order.Total.StringFixed(2)))

	s.afterSubmit(ctx, sessionID, state, order)
	return order, nil
}

// afterSubmit clears the session and records the order; failures are logged only,
// the sink has already accepted the order
func (s *Service) afterSubmit(ctx context.Context, sessionID string, state cart.State, order *models.Order) {
	actions := make([]cart.Action, 0, len(state.Items)+1)
	for _, item := range state.Items {
		actions = append(actions, cart.RemoveFromCart{ID: item.ID, SelectedOptions: item.SelectedOptions})
	}
	actions = append(actions, cart.RemoveCoupon{})
	if _, err := s.sessions.Dispatch(ctx, sessionID, actions...); err != nil {
		s.logger.Error("Failed to clear cart after order", zap.String("order_id", order.ID), zap.Error(err))
	}

	if err := s.storage.Delete(ctx, redisclient.DraftKey(sessionID), redisclient.FlowKey(sessionID)); err != nil {
		s.logger.Error("Failed to clear checkout draft", zap.String("order_id", order.ID), zap.Error(err))
	}

	if raw, err := json.Marshal(order); err == nil {
		if err := s.storage.Set(ctx, redisclient.LastOrderKey(sessionID), raw, s.cfg.SessionTTL); err != nil {
			s.logger.Error("Failed to store last order", zap.String("order_id", order.ID), zap.Error(err))
		}
	}

	if err := s.history.SaveOrder(ctx, order); err != nil {
		s.logger.Error("Failed to append order history", zap.String("order_id", order.ID), zap.Error(err))
	}

	if s.events == nil {
		return
	}
	event := &models.OrderPlacedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPlaced,
			Timestamp: s.now(),
		},
		OrderID:   order.ID,
		SessionID: sessionID,
		Total:     order.Total,
		Items:     make([]models.OrderItemData, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		event.Items = append(event.Items, models.OrderItemData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	if err := s.events.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event", zap.Error(err))
	}
}

// Order returns one order of the session, checking the transient copy first
func (s *Service) Order(ctx context.Context, sessionID, orderID string) (*models.Order, error) {
	raw, err := s.storage.Get(ctx, redisclient.LastOrderKey(sessionID))
	if err != nil {
		s.logger.Warn("Failed to read last order", zap.String("session_id", sessionID), zap.Error(err))
	}
	if len(raw) > 0 {
		var last models.Order
		if err := json.Unmarshal(raw, &last); err == nil && last.ID == orderID {
			last.SessionID = sessionID
			return &last, nil
		}
	}

	order, err := s.history.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.SessionID != sessionID {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// Orders returns the session's order history, newest first
func (s *Service) Orders(ctx context.Context, sessionID string) ([]models.Order, error) {
	return s.history.GetOrdersBySession(ctx, sessionID)
}

// reserveOrderID claims ORD-<millis> across replicas, stepping forward a
// millisecond at a time when another submission already holds it
func (s *Service) reserveOrderID(ctx context.Context, now time.Time) (string, error) {
	ms := now.UnixMilli()
	for i := 0; i < orderIDAttempts; i++ {
		id := "ORD-" + strconv.FormatInt(ms+int64(i), 10)
		ok, err := s.storage.AcquireLock(ctx, "order-id:"+id, orderIDTTL)
		if err != nil {
			return "", fmt.Errorf("failed to reserve order id: %w", err)
		}
		if ok {
			return id, nil
		}
	}
	return "", ErrOrderIDExhausted
}

func (s *Service) buildOrder(orderID string, now time.Time, sessionID string, form models.CheckoutFormData, state cart.State) *models.Order {
	quote := s.cfg.Pricing.Quote(state.Items, state.DiscountPercentage, form.CourierTier)

	items := make([]models.OrderItem, 0, len(state.Items))
	for _, item := range state.Items {
		oi := models.OrderItem{
			ProductID:       item.ID,
			Name:            item.Name,
			UnitPrice:       item.EffectivePrice(),
			Quantity:        item.Quantity,
			LineTotal:       item.LineTotal(),
			SelectedOptions: item.SelectedOptions,
		}
		if len(item.Images) > 0 {
			oi.Image = item.Images[0]
		}
		items = append(items, oi)
	}

	return &models.Order{
		ID:        orderID,
		SessionID: sessionID,
		Customer: models.Customer{
			Name:           strings.TrimSpace(form.Name),
			Email:          strings.TrimSpace(form.Email),
			Phone:          NormalizePhone(form.Phone),
			Address:        form.Address,
			District:       strings.TrimSpace(form.District),
			Town:           strings.TrimSpace(form.Town),
			Street:         strings.TrimSpace(form.Street),
			Postcode:       strings.TrimSpace(form.Postcode),
			DeliveryMethod: form.DeliveryMethod,
			CourierTier:    form.CourierTier,
			PaymentMethod:  form.PaymentMethod,
		},
		Items:              items,
		CouponCode:         state.CouponCode,
		Subtotal:           quote.Subtotal,
		DiscountPercentage: quote.DiscountPercentage,
		DiscountAmount:     quote.DiscountAmount,
		CourierFee:         quote.CourierFee,
		Total:              quote.Total,
		OrderDate:          now.In(dhaka).Format(time.RFC3339),
		CreatedAt:          now.UTC(),
	}
}

func (s *Service) view(ctx context.Context, sessionID string, flow Flow, form models.CheckoutFormData) (*View, error) {
	state, err := s.sessions.State(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &View{
		Step:          flow.Step,
		StepName:      flow.Step.String(),
		TermsAccepted: flow.TermsAccepted,
		CanSubmit:     flow.CanSubmit() && len(state.Items) > 0,
		Form:          form,
		Quote:         s.cfg.Pricing.Quote(state.Items, state.DiscountPercentage, form.CourierTier),
		Items:         state.Items,
		CouponCode:    state.CouponCode,
	}, nil
}

func (s *Service) updateFlow(ctx context.Context, sessionID string, fn func(Flow) (Flow, error)) (*View, error) {
	flow, err := s.loadFlow(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	flow, err = fn(flow)
	if err != nil {
		return nil, err
	}
	if err := s.saveFlow(ctx, sessionID, flow); err != nil {
		return nil, err
	}
	form, err := s.Draft(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, sessionID, flow, form)
}

func (s *Service) loadFlow(ctx context.Context, sessionID string) (Flow, error) {
	raw, err := s.storage.Get(ctx, redisclient.FlowKey(sessionID))
	if err != nil {
		return Flow{}, fmt.Errorf("failed to load checkout flow: %w", err)
	}
	var flow Flow
	if len(raw) == 0 {
		return flow, nil
	}
	if err := json.Unmarshal(raw, &flow); err != nil || flow.Step < StepShipping || flow.Step > StepConfirmation {
		s.logger.Warn("Resetting unreadable checkout flow", zap.String("session_id", sessionID))
		return Flow{}, nil
	}
	return flow, nil
}

func (s *Service) saveFlow(ctx context.Context, sessionID string, flow Flow) error {
	raw, err := json.Marshal(flow)
	if err != nil {
		return err
	}
	if err := s.storage.Set(ctx, redisclient.FlowKey(sessionID), raw, s.cfg.SessionTTL); err != nil {
		return fmt.Errorf("failed to save checkout flow: %w", err)
	}
	return nil
}

func (s *Service) saveDraft(ctx context.Context, sessionID string, form models.CheckoutFormData) error {
	raw, err := json.Marshal(form)
	if err != nil {
		return err
	}
	if err := s.storage.Set(ctx, redisclient.DraftKey(sessionID), raw, 0); err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

func emptyForm() models.CheckoutFormData {
	return models.CheckoutFormData{
		DeliveryMethod: models.DeliveryHome,
		CourierTier:    models.CourierInsideDhaka,
		PaymentMethod:  models.PaymentCashOnDelivery,
	}
}

// normalizeForm fills defaults and composes the address line from its parts
func normalizeForm(form models.CheckoutFormData) models.CheckoutFormData {
	if form.DeliveryMethod == "" {
		form.DeliveryMethod = models.DeliveryHome
	}
	if form.PaymentMethod == "" {
		form.PaymentMethod = models.PaymentCashOnDelivery
	}
	form.Address = ComposeAddress(form)
	return form
}

// ComposeAddress joins street, town, district and postcode
func ComposeAddress(form models.CheckoutFormData) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{form.Street, form.Town, form.District} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	addr := strings.Join(parts, ", ")
	if pc := strings.TrimSpace(form.Postcode); pc != "" {
		if addr != "" {
			addr += " - "
		}
		addr += pc
	}
	return addr
}
