package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hernancolliard/tienda-online/internal/domain"
	"github.com/hernancolliard/tienda-online/internal/repository"
)

// sweepInterval bounds how often a write scans for expired slots.
const sweepInterval = time.Minute

// watchBuffer is the number of pending snapshots kept per watcher.
const watchBuffer = 8

type slot struct {
	data      []byte
	expiresAt time.Time
}

// CartStore keeps carts in process memory. Carts are stored encoded so no
// caller ever shares a *domain.Cart with the store. Expired slots are
// removed when read and by a sweep that runs on writes at most once per
// sweepInterval. Intended for local development and tests.
type CartStore struct {
	mu       sync.Mutex
	slots    map[string]slot
	watchers map[string]map[chan repository.CartChange]struct{}
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time

	nextSweep time.Time
}

var _ repository.CartStore = (*CartStore)(nil)

// NewCartStore creates an in-memory cart store whose slots expire after ttl.
func NewCartStore(ttl time.Duration, logger *slog.Logger) *CartStore {
	return &CartStore{
		slots:    make(map[string]slot),
		watchers: make(map[string]map[chan repository.CartChange]struct{}),
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// Load implements repository.CartStore.
func (s *CartStore) Load(ctx context.Context, sessionID string) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx, sessionID), nil
}

// Save implements repository.CartStore.
func (s *CartStore) Save(_ context.Context, sessionID string, cart *domain.Cart) error {
	data, err := cart.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.storeLocked(sessionID, data)
	return nil
}

// Delete implements repository.CartStore.
func (s *CartStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, sessionID)
	s.notifyLocked(sessionID, []byte("[]"))
	return nil
}

// Update implements repository.CartStore. The store lock is held for the
// whole read-modify-write.
func (s *CartStore) Update(ctx context.Context, sessionID string, fn func(*domain.Cart) error) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.loadLocked(ctx, sessionID)
	if err := fn(cart); err != nil {
		return nil, err
	}
	data, err := cart.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal cart: %w", err)
	}
	s.storeLocked(sessionID, data)
	return cart, nil
}

// Watch implements repository.CartStore. A watcher that falls behind
// loses its oldest pending snapshots rather than blocking writers; the
// latest snapshot is always delivered.
func (s *CartStore) Watch(ctx context.Context, sessionID string) (<-chan repository.CartChange, error) {
	ch := make(chan repository.CartChange, watchBuffer)

	s.mu.Lock()
	if s.watchers[sessionID] == nil {
		s.watchers[sessionID] = make(map[chan repository.CartChange]struct{})
	}
	s.watchers[sessionID][ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers[sessionID], ch)
		if len(s.watchers[sessionID]) == 0 {
			delete(s.watchers, sessionID)
		}
		close(ch)
		s.mu.Unlock()
	}()
	return ch, nil
}

func (s *CartStore) loadLocked(ctx context.Context, sessionID string) *domain.Cart {
	sl, ok := s.slots[sessionID]
	if !ok {
		return domain.NewCart()
	}
	if s.now().After(sl.expiresAt) {
		delete(s.slots, sessionID)
		return domain.NewCart()
	}
	cart, err := domain.DecodeCart(sl.data)
	if err != nil {
		s.logger.WarnContext(ctx, "discarding undecodable cart",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		return domain.NewCart()
	}
	return cart
}

func (s *CartStore) storeLocked(sessionID string, data []byte) {
	s.sweepLocked()
	s.slots[sessionID] = slot{data: data, expiresAt: s.now().Add(s.ttl)}
	s.notifyLocked(sessionID, data)
}

func (s *CartStore) sweepLocked() {
	now := s.now()
	if now.Before(s.nextSweep) {
		return
	}
	for id, sl := range s.slots {
		if now.After(sl.expiresAt) {
			delete(s.slots, id)
		}
	}
	s.nextSweep = now.Add(sweepInterval)
}

func (s *CartStore) notifyLocked(sessionID string, data []byte) {
	for ch := range s.watchers[sessionID] {
		cart, err := domain.DecodeCart(data)
		if err != nil {
			continue
		}
		change := repository.CartChange{SessionID: sessionID, Cart: cart, At: s.now().UTC()}
		select {
		case ch <- change:
		default:
			// Full: drop the oldest pending snapshot. Sends happen only under
			// s.mu, so the freed slot is still free for this one.
			select {
			case <-ch:
			default:
			}
			ch <- change
		}
	}
}
