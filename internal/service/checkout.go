package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/hernancolliard/tienda-online/internal/domain"
	"github.com/hernancolliard/tienda-online/internal/event"
	"github.com/hernancolliard/tienda-online/internal/payment"
	"github.com/hernancolliard/tienda-online/internal/repository"
	apperrors "github.com/hernancolliard/tienda-online/pkg/errors"
)

// AutoReturnApproved sends the shopper back automatically after an approved payment.
const AutoReturnApproved = "approved"

// FeedbackResult is the outcome of a post-payment return.
type FeedbackResult struct {
	Status      domain.FeedbackStatus `json:"status"`
	CartCleared bool                  `json:"cart_cleared"`
}

// CheckoutService hands the cart off to the payment provider.
type CheckoutService struct {
	store    repository.CartStore
	catalog  repository.CatalogReader
	payments payment.PreferenceCreator
	carts    *CartService
	producer *event.Producer
	baseURL  string
	logger   *slog.Logger
}

// NewCheckoutService creates a new checkout service. baseURL is the public
// storefront origin used for back and notification URLs.
func NewCheckoutService(
	store repository.CartStore,
	catalog repository.CatalogReader,
	payments payment.PreferenceCreator,
	carts *CartService,
	producer *event.Producer,
	baseURL string,
	logger *slog.Logger,
) *CheckoutService {
	return &CheckoutService{
		store:    store,
		catalog:  catalog,
		payments: payments,
		carts:    carts,
		producer: producer,
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   logger,
	}
}

// CreatePreference prices the session's cart from the catalog and opens a
// payment preference for it. Lines the catalog can no longer fill reject the
// whole checkout with a conflict listing the shortages. The cart is never
// modified here.
func (s *CheckoutService) CreatePreference(ctx context.Context, sessionID string) (*domain.PreferenceResult, error) {
	if sessionID == "" {
		return nil, apperrors.InvalidInput("session id is required")
	}

	cart, err := s.store.Load(ctx, sessionID)
	if err != nil {
		checkoutPreferences.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if cart.IsEmpty() {
		checkoutPreferences.WithLabelValues("empty").Inc()
		return nil, apperrors.InvalidInput("cart is empty")
	}

	items := cart.Items()
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	products, err := s.catalog.GetByIDs(ctx, ids)
	if err != nil {
		checkoutPreferences.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("resolve cart products: %w", err)
	}

	lines := make([]domain.CheckoutLine, 0, len(items))
	var shortages []domain.StockShortage
	for _, it := range items {
		p, ok := products[it.ID]
		if !ok {
			shortages = append(shortages, domain.StockShortage{ProductID: it.ID, Name: it.Name, Requested: it.Quantity})
			continue
		}
		if it.Quantity > p.StockQuantity {
			shortages = append(shortages, domain.StockShortage{
				ProductID: it.ID,
				Name:      p.Name,
				Requested: it.Quantity,
				Available: max(p.StockQuantity, 0),
			})
			continue
		}
		lines = append(lines, domain.CheckoutLine{
			ProductID:   p.ID,
			Title:       p.Name,
			Description: p.Description,
			Quantity:    it.Quantity,
			UnitPrice:   p.Price,
			PictureURL:  p.PrimaryImage(),
		})
	}
	if len(shortages) > 0 {
		checkoutPreferences.WithLabelValues("shortage").Inc()
		s.logger.InfoContext(ctx, "checkout rejected, insufficient stock",
			slog.String("session_id", sessionID),
			slog.Int("shortages", len(shortages)),
		)
		return nil, apperrors.Conflict("some items are no longer available in the requested quantity").WithDetails(shortages)
	}

	pref := domain.PaymentPreference{
		Lines:             lines,
		Currency:          domain.CurrencyARS,
		ExternalReference: sessionID,
		BackURLs: domain.BackURLs{
			Success: s.feedbackURL(domain.FeedbackSuccess),
			Failure: s.feedbackURL(domain.FeedbackFailure),
			Pending: s.feedbackURL(domain.FeedbackPending),
		},
		AutoReturn:      AutoReturnApproved,
		NotificationURL: s.baseURL + "/api/v1/checkout/notifications",
	}

	result, err := s.payments.CreatePreference(ctx, pref)
	if err != nil {
		checkoutPreferences.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("create payment preference: %w", err)
	}
	checkoutPreferences.WithLabelValues("ok").Inc()

	if err := s.producer.PublishCheckoutInitiated(ctx, pref, *result); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish checkout.initiated event",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "checkout initiated",
		slog.String("session_id", sessionID),
		slog.String("preference_id", result.ID),
		slog.String("provider", s.payments.Name()),
		slog.String("total", pref.Total().String()),
	)
	return result, nil
}

// HandleFeedback records the shopper's return from the provider. A success
// clears the cart.
func (s *CheckoutService) HandleFeedback(ctx context.Context, sessionID, status string) (*FeedbackResult, error) {
	st, err := domain.ParseFeedbackStatus(status)
	if err != nil {
		return nil, err
	}

	res := &FeedbackResult{Status: st}
	if st == domain.FeedbackSuccess {
		if err := s.carts.ClearCart(ctx, sessionID, ClearReasonPaymentSuccess); err != nil {
			return nil, err
		}
		res.CartCleared = true
	}

	s.logger.InfoContext(ctx, "payment feedback received",
		slog.String("session_id", sessionID),
		slog.String("status", string(st)),
	)
	return res, nil
}

// HandleNotification accepts a provider webhook. It is always acknowledged;
// a publish failure is only logged.
func (s *CheckoutService) HandleNotification(ctx context.Context, n domain.PaymentNotification) {
	s.logger.InfoContext(ctx, "payment notification received",
		slog.String("type", n.Type),
		slog.String("action", n.Action),
		slog.String("data_id", n.DataID),
		slog.Bool("live_mode", n.LiveMode),
	)

	if err := s.producer.PublishPaymentNotification(ctx, n); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish payment.notification event",
			slog.String("data_id", n.DataID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *CheckoutService) feedbackURL(st domain.FeedbackStatus) string {
	return s.baseURL + "/feedback?status=" + url.QueryEscape(string(st))
}
