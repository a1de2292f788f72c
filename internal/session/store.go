package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storefront/internal/cart"
	"storefront/internal/redisclient"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// DefaultTTL is the sliding lifetime of an idle session
const DefaultTTL = 24 * time.Hour

// KV is the storage the session container needs
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Update(ctx context.Context, key string, ttl time.Duration, fn redisclient.UpdateFunc) error
}

// Store is the per-session state container. The reducer stays pure;
// Store only loads, reduces and saves.
type Store struct {
	kv      KV
	reducer cart.Reducer
	ttl     time.Duration
	logger  *zap.Logger
}

// NewStore creates a session container
func NewStore(kv KV, reducer cart.Reducer, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		kv:      kv,
		reducer: reducer,
		ttl:     ttl,
		logger:  util.GetLogger(),
	}
}

// State returns the current state of a session, empty when unknown
func (s *Store) State(ctx context.Context, sessionID string) (cart.State, error) {
	raw, err := s.kv.Get(ctx, redisclient.SessionStateKey(sessionID))
	if err != nil {
		return cart.State{}, fmt.Errorf("failed to load session: %w", err)
	}
	return s.decode(sessionID, raw), nil
}

// Dispatch applies actions in order as one atomic update and returns the new state
func (s *Store) Dispatch(ctx context.Context, sessionID string, actions ...cart.Action) (cart.State, error) {
	ctx, span := util.StartSpan(ctx, "session.Store.Dispatch")
	defer span.End()

	var next cart.State
	err := s.kv.Update(ctx, redisclient.SessionStateKey(sessionID), s.ttl, func(current []byte) ([]byte, error) {
		next = s.decode(sessionID, current)
		for _, a := range actions {
			next = s.reducer.Reduce(next, a)
		}
		return json.Marshal(next)
	})
	if err != nil {
		return cart.State{}, fmt.Errorf("failed to dispatch: %w", err)
	}

	for _, a := range actions {
		util.SessionActionsTotal.WithLabelValues(a.Type()).Inc()
	}
	return next, nil
}

func (s *Store) decode(sessionID string, raw []byte) cart.State {
	state := cart.NewState()
	if len(raw) == 0 {
		return state
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		s.logger.Warn("Discarding unreadable session state",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return cart.NewState()
	}
	if state.Items == nil {
		state.Items = cart.NewState().Items
	}
	if state.Wishlist == nil {
		state.Wishlist = cart.NewState().Wishlist
	}
	return state
}
