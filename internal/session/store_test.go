package session

import (
	"context"
	"testing"
	"time"

	"storefront/internal/cart"
	"storefront/internal/models"
	"storefront/internal/redisclient"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := redisclient.NewClient(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	return NewStore(rc, cart.NewReducer(cart.DefaultCouponRule()), time.Hour), mr
}

func TestDispatchPersistsState(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	p := models.Product{ID: 7, Name: "Tote", Price: decimal.NewFromInt(450)}

	state, err := store.Dispatch(ctx, "s1", cart.AddToCart{Product: p}, cart.AddToCart{Product: p})
	require.NoError(t, err)
	require.Len(t, state.Items, 1)
	assert.Equal(t, 2, state.Items[0].Quantity)

	loaded, err := store.State(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, loaded.Items, 1)
	assert.Equal(t, 2, loaded.Items[0].Quantity)
	assert.True(t, decimal.NewFromInt(900).Equal(loaded.Subtotal()))
	assert.Equal(t, time.Hour, mr.TTL(redisclient.SessionStateKey("s1")))

	other, err := store.State(ctx, "s2")
	require.NoError(t, err)
	assert.Empty(t, other.Items)
}

func TestCorruptStateIsReplaced(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, mr.Set(redisclient.SessionStateKey("s1"), "{not json"))

	state, err := store.State(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, state.Items)
	assert.NotNil(t, state.Items)

	state, err = store.Dispatch(ctx, "s1", cart.ApplyCoupon{Code: "FIRST20"})
	require.NoError(t, err)
	assert.Equal(t, "FIRST20", state.CouponCode)
}
