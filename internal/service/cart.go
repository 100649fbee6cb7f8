package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/hernancolliard/tienda-online/internal/domain"
	"github.com/hernancolliard/tienda-online/internal/event"
	"github.com/hernancolliard/tienda-online/internal/repository"
	apperrors "github.com/hernancolliard/tienda-online/pkg/errors"
)

// Reasons recorded on cart.cleared events.
const (
	ClearReasonShopper        = "shopper"
	ClearReasonPaymentSuccess = "payment_success"
)

// errUnchanged aborts a store update whose mutation was a no-op.
var errUnchanged = errors.New("cart unchanged")

// CartView is the cart as returned to clients.
type CartView struct {
	SessionID string            `json:"session_id"`
	Items     []domain.LineItem `json:"items"`
	Total     decimal.Decimal   `json:"total"`
	ItemCount int               `json:"item_count"`
	Notices   []domain.Notice   `json:"notices,omitempty"`
}

func newView(sessionID string, cart *domain.Cart, notices ...*domain.Notice) *CartView {
	v := &CartView{
		SessionID: sessionID,
		Items:     cart.Items(),
		Total:     cart.Total(),
		ItemCount: cart.ItemCount(),
	}
	if v.Items == nil {
		v.Items = []domain.LineItem{}
	}
	for _, n := range notices {
		if n != nil {
			v.Notices = append(v.Notices, *n)
		}
	}
	return v
}

// CartService implements the business logic for cart operations.
type CartService struct {
	store    repository.CartStore
	catalog  repository.CatalogReader
	producer *event.Producer
	logger   *slog.Logger
}

// NewCartService creates a new cart service.
func NewCartService(store repository.CartStore, catalog repository.CatalogReader, producer *event.Producer, logger *slog.Logger) *CartService {
	return &CartService{
		store:    store,
		catalog:  catalog,
		producer: producer,
		logger:   logger,
	}
}

// GetCart returns the session's cart. When the store cannot be reached the
// shopper gets an empty cart rather than an error.
func (s *CartService) GetCart(ctx context.Context, sessionID string) (*CartView, error) {
	if sessionID == "" {
		return nil, apperrors.InvalidInput("session id is required")
	}

	cart, err := s.store.Load(ctx, sessionID)
	if err != nil {
		s.logger.WarnContext(ctx, "cart store unavailable, serving empty cart",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		cartOperations.WithLabelValues("get", "degraded").Inc()
		return newView(sessionID, domain.NewCart()), nil
	}

	cartOperations.WithLabelValues("get", "ok").Inc()
	return newView(sessionID, cart), nil
}

// AddItem adds one unit of productID, priced and stock-checked against the
// catalog. Hitting the stock ceiling is not an error: the cart is returned
// unchanged with a notice.
func (s *CartService) AddItem(ctx context.Context, sessionID string, productID int64) (*CartView, error) {
	if sessionID == "" {
		return nil, apperrors.InvalidInput("session id is required")
	}
	if productID <= 0 {
		return nil, apperrors.InvalidInput("product id must be positive")
	}

	product, err := s.catalog.GetByID(ctx, productID)
	if err != nil {
		cartOperations.WithLabelValues("add", "error").Inc()
		return nil, fmt.Errorf("get product: %w", err)
	}
	if err := product.Validate(); err != nil {
		cartOperations.WithLabelValues("add", "error").Inc()
		s.logger.WarnContext(ctx, "catalog returned an unsellable product",
			slog.Int64("product_id", productID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("product %d: %w", productID, err)
	}

	var notice *domain.Notice
	cart, err := s.mutate(ctx, sessionID, func(c *domain.Cart) bool {
		notice = c.Add(*product)
		return notice == nil
	})
	if err != nil {
		cartOperations.WithLabelValues("add", "error").Inc()
		return nil, err
	}
	s.recordNotice(ctx, sessionID, notice)
	cartOperations.WithLabelValues("add", "ok").Inc()

	if notice == nil {
		s.publishUpdated(ctx, sessionID, cart)
		s.logger.InfoContext(ctx, "item added to cart",
			slog.String("session_id", sessionID),
			slog.Int64("product_id", productID),
		)
	}
	return newView(sessionID, cart, notice), nil
}

// UpdateItemQuantity sets the quantity of an item already in the cart.
// q <= 0 removes it and q above the stored stock is clamped with a notice.
func (s *CartService) UpdateItemQuantity(ctx context.Context, sessionID string, productID int64, q int) (*CartView, error) {
	if sessionID == "" {
		return nil, apperrors.InvalidInput("session id is required")
	}

	var (
		notice  *domain.Notice
		missing bool
		changed bool
	)
	cart, err := s.mutate(ctx, sessionID, func(c *domain.Cart) bool {
		before, ok := c.Item(productID)
		if !ok {
			missing = true
			return false
		}
		notice = c.UpdateQuantity(productID, q)
		after, still := c.Item(productID)
		changed = !still || after.Quantity != before.Quantity
		return changed
	})
	if err != nil {
		cartOperations.WithLabelValues("update_quantity", "error").Inc()
		return nil, err
	}
	if missing {
		cartOperations.WithLabelValues("update_quantity", "not_found").Inc()
		return nil, apperrors.NotFound("cart item", productID)
	}
	s.recordNotice(ctx, sessionID, notice)
	cartOperations.WithLabelValues("update_quantity", "ok").Inc()

	if changed {
		s.publishUpdated(ctx, sessionID, cart)
	}
	return newView(sessionID, cart, notice), nil
}

// RemoveItem drops productID from the cart. Removing an absent item is a no-op.
func (s *CartService) RemoveItem(ctx context.Context, sessionID string, productID int64) (*CartView, error) {
	if sessionID == "" {
		return nil, apperrors.InvalidInput("session id is required")
	}

	removed := false
	cart, err := s.mutate(ctx, sessionID, func(c *domain.Cart) bool {
		removed = c.Remove(productID)
		return removed
	})
	cartOperations.WithLabelValues("remove", outcome(err)).Inc()
	if err != nil {
		return nil, err
	}

	if removed {
		s.publishUpdated(ctx, sessionID, cart)
		s.logger.InfoContext(ctx, "item removed from cart",
			slog.String("session_id", sessionID),
			slog.Int64("product_id", productID),
		)
	}
	return newView(sessionID, cart), nil
}

// ClearCart empties the session's cart and records why.
func (s *CartService) ClearCart(ctx context.Context, sessionID, reason string) error {
	if sessionID == "" {
		return apperrors.InvalidInput("session id is required")
	}

	err := s.store.Delete(ctx, sessionID)
	cartOperations.WithLabelValues("clear", outcome(err)).Inc()
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}

	if err := s.producer.PublishCartCleared(ctx, sessionID, reason); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.cleared event",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "cart cleared",
		slog.String("session_id", sessionID),
		slog.String("reason", reason),
	)
	return nil
}

// Watch streams a view of the cart every time any writer changes it. The
// channel closes when ctx is done.
func (s *CartService) Watch(ctx context.Context, sessionID string) (<-chan *CartView, error) {
	if sessionID == "" {
		return nil, apperrors.InvalidInput("session id is required")
	}

	changes, err := s.store.Watch(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("watch cart: %w", err)
	}

	out := make(chan *CartView)
	go func() {
		defer close(out)
		for change := range changes {
			select {
			case out <- newView(sessionID, change.Cart):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// mutate applies fn in a store transaction. When fn reports no change
// nothing is written and the current cart is returned.
func (s *CartService) mutate(ctx context.Context, sessionID string, fn func(*domain.Cart) bool) (*domain.Cart, error) {
	var current *domain.Cart
	cart, err := s.store.Update(ctx, sessionID, func(c *domain.Cart) error {
		if !fn(c) {
			current = c.Clone()
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return current, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update cart: %w", err)
	}
	return cart, nil
}

func (s *CartService) recordNotice(ctx context.Context, sessionID string, n *domain.Notice) {
	if n == nil {
		return
	}
	cartNotices.WithLabelValues(string(n.Kind)).Inc()
	s.logger.InfoContext(ctx, "stock notice",
		slog.String("session_id", sessionID),
		slog.Int64("product_id", n.ProductID),
		slog.String("kind", string(n.Kind)),
		slog.Int("requested", n.Requested),
		slog.Int("limit", n.Limit),
	)
}

func (s *CartService) publishUpdated(ctx context.Context, sessionID string, cart *domain.Cart) {
	if err := s.producer.PublishCartUpdated(ctx, sessionID, cart); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.updated event",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}
}
