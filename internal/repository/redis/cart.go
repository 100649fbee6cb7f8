package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hernancolliard/tienda-online/internal/domain"
	"github.com/hernancolliard/tienda-online/internal/repository"
	apperrors "github.com/hernancolliard/tienda-online/pkg/errors"
)

const (
	keyPrefix     = "cart:"
	channelPrefix = "cart-events:"
	// maxTxRetries bounds optimistic retries when concurrent writers race on
	// one session.
	maxTxRetries = 10
)

func cartKey(sessionID string) string     { return keyPrefix + sessionID }
func cartChannel(sessionID string) string { return channelPrefix + sessionID }

// CartStore implements repository.CartStore on Redis. Each cart is a JSON
// string under "cart:<session>" and every write is announced on
// "cart-events:<session>".
type CartStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ repository.CartStore = (*CartStore)(nil)

// NewCartStore creates a Redis-backed cart store.
func NewCartStore(client *redis.Client, ttl time.Duration, logger *slog.Logger) *CartStore {
	return &CartStore{client: client, ttl: ttl, logger: logger}
}

// Load implements repository.CartStore.
func (s *CartStore) Load(ctx context.Context, sessionID string) (*domain.Cart, error) {
	data, err := s.client.Get(ctx, cartKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.NewCart(), nil
		}
		return nil, apperrors.Unavailable("cart storage unavailable", fmt.Errorf("redis get cart: %w", err))
	}
	return s.decode(ctx, sessionID, data), nil
}

// Save implements repository.CartStore.
func (s *CartStore) Save(ctx context.Context, sessionID string, cart *domain.Cart) error {
	data, err := cart.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, cartKey(sessionID), data, s.ttl)
		pipe.Publish(ctx, cartChannel(sessionID), data)
		return nil
	})
	if err != nil {
		return apperrors.Unavailable("cart storage unavailable", fmt.Errorf("redis set cart: %w", err))
	}
	return nil
}

// Delete implements repository.CartStore.
func (s *CartStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, cartKey(sessionID))
		pipe.Publish(ctx, cartChannel(sessionID), "[]")
		return nil
	})
	if err != nil {
		return apperrors.Unavailable("cart storage unavailable", fmt.Errorf("redis del cart: %w", err))
	}
	return nil
}

// Update implements repository.CartStore with WATCH/MULTI. A concurrent
// write to the same key aborts the transaction and fn runs again on the
// fresh cart.
func (s *CartStore) Update(ctx context.Context, sessionID string, fn func(*domain.Cart) error) (*domain.Cart, error) {
	key := cartKey(sessionID)
	var (
		result *domain.Cart
		fnErr  error
	)

	txf := func(tx *redis.Tx) error {
		cart := domain.NewCart()
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			cart = s.decode(ctx, sessionID, data)
		}

		if fnErr = fn(cart); fnErr != nil {
			return fnErr
		}

		out, err := cart.MarshalJSON()
		if err != nil {
			return fmt.Errorf("marshal cart: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, s.ttl)
			pipe.Publish(ctx, cartChannel(sessionID), out)
			return nil
		})
		if err != nil {
			return err
		}
		result = cart
		return nil
	}

	for attempt := 1; attempt <= maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			s.logger.DebugContext(ctx, "cart update conflict, retrying",
				slog.String("session_id", sessionID),
				slog.Int("attempt", attempt),
			)
			continue
		}
		if fnErr != nil {
			return nil, fnErr
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.Unavailable("cart storage unavailable", fmt.Errorf("redis update cart: %w", err))
	}
	return nil, apperrors.Conflict("cart is being modified concurrently, please retry")
}

// Watch implements repository.CartStore over Redis pub/sub. The
// subscription is confirmed before Watch returns.
func (s *CartStore) Watch(ctx context.Context, sessionID string) (<-chan repository.CartChange, error) {
	pubsub := s.client.Subscribe(ctx, cartChannel(sessionID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, apperrors.Unavailable("cart storage unavailable", fmt.Errorf("subscribe cart events: %w", err))
	}

	out := make(chan repository.CartChange)
	go func() {
		defer close(out)
		defer func() { _ = pubsub.Close() }()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				change := repository.CartChange{
					SessionID: sessionID,
					Cart:      s.decode(ctx, sessionID, []byte(msg.Payload)),
					At:        time.Now().UTC(),
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// decode fails open: an undecodable slot is logged and read as empty. The
// slot itself is left alone until the next write replaces it.
func (s *CartStore) decode(ctx context.Context, sessionID string, data []byte) *domain.Cart {
	cart, err := domain.DecodeCart(data)
	if err != nil {
		s.logger.WarnContext(ctx, "discarding undecodable cart",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		return domain.NewCart()
	}
	return cart
}
