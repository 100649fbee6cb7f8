package payment

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/hernancolliard/tienda-online/internal/domain"
	apperrors "github.com/hernancolliard/tienda-online/pkg/errors"
	"github.com/hernancolliard/tienda-online/pkg/httpclient"
)

// PreferenceCreator opens a hosted checkout for a payment preference.
type PreferenceCreator interface {
	Name() string
	CreatePreference(ctx context.Context, pref domain.PaymentPreference) (*domain.PreferenceResult, error)
}

type preferenceItem struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	PictureURL  string  `json:"picture_url,omitempty"`
	Quantity    int     `json:"quantity"`
	CurrencyID  string  `json:"currency_id"`
	UnitPrice   float64 `json:"unit_price"`
}

type preferenceRequest struct {
	Items             []preferenceItem `json:"items"`
	BackURLs          domain.BackURLs  `json:"back_urls"`
	AutoReturn        string           `json:"auto_return,omitempty"`
	NotificationURL   string           `json:"notification_url,omitempty"`
	ExternalReference string           `json:"external_reference"`
}

type preferenceResponse struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

const upstreamName = "payment-provider"

// HTTPPreferenceClient creates MercadoPago-style preferences over HTTP.
type HTTPPreferenceClient struct {
	url    string
	token  string
	doer   httpclient.Doer
	logger *slog.Logger
}

// NewHTTPPreferenceClient builds a client posting to url with a bearer token.
// Calls go through the retrying client and a circuit breaker.
func NewHTTPPreferenceClient(url, token string, logger *slog.Logger) *HTTPPreferenceClient {
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = 15 * time.Second
	breaker := httpclient.NewBreaker(httpclient.New(cfg), httpclient.DefaultBreakerConfig(upstreamName), logger)
	return newHTTPPreferenceClient(url, token, breaker, logger)
}

func newHTTPPreferenceClient(url, token string, doer httpclient.Doer, logger *slog.Logger) *HTTPPreferenceClient {
	return &HTTPPreferenceClient{url: url, token: token, doer: doer, logger: logger}
}

// Name returns the provider name.
func (c *HTTPPreferenceClient) Name() string {
	return "http"
}

// CreatePreference posts pref and returns the provider's id and redirect URL.
// Every failure is reported as unavailable.
func (c *HTTPPreferenceClient) CreatePreference(ctx context.Context, pref domain.PaymentPreference) (*domain.PreferenceResult, error) {
	body := preferenceRequest{
		Items:             make([]preferenceItem, len(pref.Lines)),
		BackURLs:          pref.BackURLs,
		AutoReturn:        pref.AutoReturn,
		NotificationURL:   pref.NotificationURL,
		ExternalReference: pref.ExternalReference,
	}
	for i, l := range pref.Lines {
		body.Items[i] = preferenceItem{
			ID:          strconv.FormatInt(l.ProductID, 10),
			Title:       l.Title,
			Description: l.Description,
			PictureURL:  l.PictureURL,
			Quantity:    l.Quantity,
			CurrencyID:  pref.Currency,
			UnitPrice:   l.UnitPrice.InexactFloat64(),
		}
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)
	header.Set("X-Idempotency-Key", uuid.NewString())

	var resp preferenceResponse
	if err := httpclient.DoJSON(ctx, c.doer, http.MethodPost, c.url, header, body, &resp, upstreamName); err != nil {
		c.logger.ErrorContext(ctx, "create payment preference failed",
			slog.String("external_reference", pref.ExternalReference),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, apperrors.ErrUnavailable) {
			return nil, err
		}
		return nil, apperrors.Unavailable("payment provider unavailable", err)
	}

	redirect := resp.InitPoint
	if redirect == "" {
		redirect = resp.SandboxInitPoint
	}
	if resp.ID == "" || redirect == "" {
		return nil, apperrors.Unavailable("payment provider returned an incomplete preference", nil)
	}

	c.logger.InfoContext(ctx, "payment preference created",
		slog.String("preference_id", resp.ID),
		slog.String("external_reference", pref.ExternalReference),
	)
	return &domain.PreferenceResult{ID: resp.ID, RedirectURL: redirect}, nil
}
