package repository

import (
	"context"
	"time"

	"github.com/hernancolliard/tienda-online/internal/domain"
)

// CartChange is a cart snapshot written by some writer of a session slot.
// A cleared slot arrives as an empty cart.
type CartChange struct {
	SessionID string
	Cart      *domain.Cart
	At        time.Time
}

// CartStore persists one cart per session.
type CartStore interface {
	// Load returns the stored cart. A missing or undecodable slot yields an
	// empty cart; an error means the store itself could not be reached.
	Load(ctx context.Context, sessionID string) (*domain.Cart, error)

	// Save overwrites the slot and refreshes its expiry.
	Save(ctx context.Context, sessionID string, cart *domain.Cart) error

	// Delete removes the slot.
	Delete(ctx context.Context, sessionID string) error

	// Update loads the cart, applies fn and saves the result atomically with
	// respect to other writers of the same session. When fn returns an error
	// nothing is written and the error is returned.
	Update(ctx context.Context, sessionID string, fn func(*domain.Cart) error) (*domain.Cart, error)

	// Watch streams changes to the slot until ctx is done, then closes the
	// channel.
	Watch(ctx context.Context, sessionID string) (<-chan CartChange, error)
}

// CatalogReader looks up products in the catalog owned by another service.
type CatalogReader interface {
	GetByID(ctx context.Context, id int64) (*domain.ProductRef, error)
	// GetByIDs returns the products found; unknown ids are absent from the map.
	GetByIDs(ctx context.Context, ids []int64) (map[int64]domain.ProductRef, error)
}

// InstagramRepository stores the posts shown in the storefront feed.
type InstagramRepository interface {
	List(ctx context.Context, limit, offset int) ([]domain.InstagramPost, int, error)
	Create(ctx context.Context, post *domain.InstagramPost) error
	Update(ctx context.Context, post *domain.InstagramPost) error
	Delete(ctx context.Context, id int64) error
}

// SubscriberRepository stores newsletter signups.
type SubscriberRepository interface {
	Create(ctx context.Context, s *domain.Subscriber) error
	ListEmails(ctx context.Context) ([]string, error)
}
