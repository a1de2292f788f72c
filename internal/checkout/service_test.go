package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront/internal/cart"
	"storefront/internal/models"
	"storefront/internal/redisclient"
	"storefront/internal/session"
	"storefront/internal/sink"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sinkMock struct {
	mu     sync.Mutex
	orders []*models.Order
	err    error
	gate   chan struct{}
}

func (m *sinkMock) Submit(ctx context.Context, order *models.Order) (*sink.Response, error) {
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.orders = append(m.orders, order)
	return &sink.Response{Success: true, OrderID: order.ID}, nil
}

type historyMock struct {
	mu     sync.Mutex
	orders []models.Order
	err    error
}

func (h *historyMock) SaveOrder(ctx context.Context, order *models.Order) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.orders = append(h.orders, *order)
	return nil
}

func (h *historyMock) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.orders {
		if h.orders[i].ID == id {
			o := h.orders[i]
			return &o, nil
		}
	}
	return nil, ErrOrderNotFound
}

func (h *historyMock) GetOrdersBySession(ctx context.Context, sessionID string) ([]models.Order, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []models.Order
	for _, o := range h.orders {
		if o.SessionID == sessionID {
			out = append(out, o)
		}
	}
	return out, nil
}

type eventsMock struct {
	events []*models.OrderPlacedEvent
}

func (e *eventsMock) PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	e.events = append(e.events, event)
	return nil
}

type fixture struct {
	svc      *Service
	sessions *session.Store
	sink     *sinkMock
	history  *historyMock
	events   *eventsMock
	mr       *miniredis.Miniredis
}

const sid = "session-1"

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := redisclient.NewClient(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	sessions := session.NewStore(rc, cart.NewReducer(cart.DefaultCouponRule()), time.Hour)
	f := &fixture{
		sessions: sessions,
		sink:     &sinkMock{},
		history:  &historyMock{},
		events:   &eventsMock{},
		mr:       mr,
	}
	f.svc = NewService(rc, sessions, f.sink, f.history, f.events, Config{SessionTTL: time.Hour})
	f.svc.now = func() time.Time { return time.UnixMilli(1760000000000) }
	return f
}

func (f *fixture) fillCart(t *testing.T) {
	t.Helper()
	_, err := f.sessions.Dispatch(context.Background(), sid,
		cart.AddToCartWithQuantity{Product: models.Product{ID: 1, Name: "Saree", Price: decimal.NewFromInt(300)}, Quantity: 2},
		cart.AddToCart{
			Product:         models.Product{ID: 2, Name: "Kurta", Price: decimal.NewFromInt(400)},
			SelectedOptions: &models.SelectedOptions{Size: "L"},
		},
		cart.ApplyCoupon{Code: "first20"},
	)
	require.NoError(t, err)
}

func (f *fixture) toConfirmation(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.UpdateDraft(ctx, sid, validForm())
	require.NoError(t, err)
	_, err = f.svc.Next(ctx, sid)
	require.NoError(t, err)
	view, err := f.svc.Next(ctx, sid)
	require.NoError(t, err)
	require.Equal(t, StepConfirmation, view.Step)
}

func TestDraftPersistsAndHydrates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	form, err := f.svc.Draft(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCashOnDelivery, form.PaymentMethod)
	assert.Empty(t, form.Name)

	edited := validForm()
	edited.Postcode = "1216"
	_, err = f.svc.UpdateDraft(ctx, sid, edited)
	require.NoError(t, err)

	form, err = f.svc.Draft(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, "Rahim Uddin", form.Name)
	assert.Equal(t, "Road 10, House 5, Mirpur, Dhaka - 1216", form.Address)
	assert.Zero(t, f.mr.TTL(redisclient.DraftKey(sid)), "draft does not expire")
}

func TestCorruptDraftDefaultsToEmptyForm(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.mr.Set(redisclient.DraftKey(sid), "<html>"))

	form, err := f.svc.Draft(context.Background(), sid)
	require.NoError(t, err)
	assert.Empty(t, form.Name)
	assert.Equal(t, models.CourierInsideDhaka, form.CourierTier)
}

func TestNextBlockedWithoutAddress(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)
	ctx := context.Background()

	form := validForm()
	form.District, form.Town, form.Street = "", "", ""
	_, err := f.svc.UpdateDraft(ctx, sid, form)
	require.NoError(t, err)

	_, err = f.svc.Next(ctx, sid)
	ve, ok := IsValidationError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, "district", ve.Field)

	view, err := f.svc.View(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, StepShipping, view.Step)
}

func TestNextBlockedWithEmptyCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.UpdateDraft(ctx, sid, validForm())
	require.NoError(t, err)

	_, err = f.svc.Next(ctx, sid)
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestSubmitRequiresTerms(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, sid)
	assert.ErrorIs(t, err, ErrInvalidStep)

	f.toConfirmation(t)
	view, err := f.svc.View(ctx, sid)
	require.NoError(t, err)
	assert.False(t, view.CanSubmit)

	_, err = f.svc.Submit(ctx, sid)
	assert.ErrorIs(t, err, ErrTermsNotAccepted)
	assert.Empty(t, f.sink.orders)
}

func TestSubmitSuccessClearsState(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)
	f.toConfirmation(t)
	ctx := context.Background()

	view, err := f.svc.AcceptTerms(ctx, sid, true)
	require.NoError(t, err)
	assert.True(t, view.CanSubmit)
	assert.True(t, decimal.NewFromInt(860).Equal(view.Quote.Total), view.Quote.Total.String())

	order, err := f.svc.Submit(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, "ORD-1760000000000", order.ID)
	assert.True(t, decimal.NewFromInt(1000).Equal(order.Subtotal))
	assert.True(t, decimal.NewFromInt(200).Equal(order.DiscountAmount))
	assert.True(t, decimal.NewFromInt(60).Equal(order.CourierFee))
	assert.True(t, decimal.NewFromInt(860).Equal(order.Total))
	assert.Equal(t, "FIRST20", order.CouponCode)
	assert.Equal(t, "2025-10-09T14:53:20+06:00", order.OrderDate)
	require.Len(t, f.sink.orders, 1)

	state, err := f.sessions.State(ctx, sid)
	require.NoError(t, err)
	assert.Empty(t, state.Items)
	assert.Empty(t, state.CouponCode)
	assert.True(t, state.DiscountPercentage.IsZero())

	assert.False(t, f.mr.Exists(redisclient.DraftKey(sid)))
	assert.False(t, f.mr.Exists(redisclient.FlowKey(sid)))
	assert.False(t, f.mr.Exists("lock:checkout:"+sid))

	require.Len(t, f.history.orders, 1)
	assert.True(t, decimal.NewFromInt(860).Equal(f.history.orders[0].Total))
	require.Len(t, f.events.events, 1)
	assert.Equal(t, order.ID, f.events.events[0].OrderID)

	got, err := f.svc.Order(ctx, sid, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = f.svc.Order(ctx, "someone-else", order.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	history, err := f.svc.Orders(ctx, sid)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestSubmitFailureKeepsState(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)
	f.toConfirmation(t)
	ctx := context.Background()
	_, err := f.svc.AcceptTerms(ctx, sid, true)
	require.NoError(t, err)

	f.sink.err = errors.New("connection refused")
	_, err = f.svc.Submit(ctx, sid)
	require.Error(t, err)

	state, err := f.sessions.State(ctx, sid)
	require.NoError(t, err)
	assert.Len(t, state.Items, 2)
	assert.Equal(t, "FIRST20", state.CouponCode)
	assert.True(t, f.mr.Exists(redisclient.DraftKey(sid)))
	assert.Empty(t, f.history.orders)

	view, err := f.svc.View(ctx, sid)
	require.NoError(t, err)
	assert.True(t, view.CanSubmit, "retry stays possible")

	f.sink.err = nil
	_, err = f.svc.Submit(ctx, sid)
	require.NoError(t, err)
}

func TestSubmitRejectsConcurrentDuplicate(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)
	f.toConfirmation(t)
	ctx := context.Background()
	_, err := f.svc.AcceptTerms(ctx, sid, true)
	require.NoError(t, err)

	f.sink.gate = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Submit(ctx, sid)
		done <- err
	}()

	require.Eventually(t, func() bool { return f.mr.Exists("lock:checkout:" + sid) }, time.Second, time.Millisecond)
	_, err = f.svc.Submit(ctx, sid)
	assert.ErrorIs(t, err, ErrSubmissionInProgress)

	close(f.sink.gate)
	require.NoError(t, <-done)
	assert.Len(t, f.sink.orders, 1)
}

func TestSubmitSkipsReservedOrderID(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)
	f.toConfirmation(t)
	ctx := context.Background()
	_, err := f.svc.AcceptTerms(ctx, sid, true)
	require.NoError(t, err)

	// another replica placed an order in the same millisecond
	require.NoError(t, f.mr.Set("lock:order-id:ORD-1760000000000", "1"))

	order, err := f.svc.Submit(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, "ORD-1760000000001", order.ID)
	require.Len(t, f.history.orders, 1)
	assert.Equal(t, order.ID, f.history.orders[0].ID)
}

func TestOrderIDsUniqueWithinOneMillisecond(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		id, err := f.svc.reserveOrderID(ctx, f.svc.now())
		require.NoError(t, err)
		assert.False(t, seen[id], id)
		seen[id] = true
	}
}

func TestSubmitSucceedsWhenHistoryWriteFails(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)
	f.toConfirmation(t)
	ctx := context.Background()
	_, err := f.svc.AcceptTerms(ctx, sid, true)
	require.NoError(t, err)

	f.history.err = errors.New("order id already exists")
	order, err := f.svc.Submit(ctx, sid)
	require.NoError(t, err, "the sink already accepted the order")
	require.Len(t, f.sink.orders, 1)

	got, err := f.svc.Order(ctx, sid, order.ID)
	require.NoError(t, err, "the transient copy still serves the confirmation page")
	assert.True(t, got.Total.Equal(order.Total))
}
