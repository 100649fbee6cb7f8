package payment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hernancolliard/tienda-online/internal/domain"
	apperrors "github.com/hernancolliard/tienda-online/pkg/errors"
	"github.com/hernancolliard/tienda-online/pkg/httpclient"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPreference() domain.PaymentPreference {
	return domain.PaymentPreference{
		Lines: []domain.CheckoutLine{{
			ProductID:  7,
			Title:      "Remera Oversize",
			Quantity:   2,
			UnitPrice:  decimal.RequireFromString("15999.90"),
			PictureURL: "https://cdn.example.com/r.jpg",
		}},
		Currency:          domain.CurrencyARS,
		ExternalReference: "sess-1",
		BackURLs: domain.BackURLs{
			Success: "https://shop.example.com/feedback?status=success",
			Failure: "https://shop.example.com/feedback?status=failure",
			Pending: "https://shop.example.com/feedback?status=pending",
		},
		AutoReturn:      "approved",
		NotificationURL: "https://shop.example.com/api/v1/checkout/notifications",
	}
}

func fastClient(url string) *HTTPPreferenceClient {
	cfg := httpclient.Config{Timeout: time.Second, MaxRetries: 0, RetryWaitMin: time.Millisecond, RetryWaitMax: time.Millisecond, MaxConnsPerHost: 2}
	return newHTTPPreferenceClient(url, "TEST-token", httpclient.New(cfg), discardLogger())
}

func TestCreatePreference_Success(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer TEST-token", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"123-abc","init_point":"https://pay.example.com/init?pref=123-abc"}`))
	}))
	defer srv.Close()

	res, err := fastClient(srv.URL).CreatePreference(context.Background(), testPreference())
	require.NoError(t, err)
	assert.Equal(t, "123-abc", res.ID)
	assert.Equal(t, "https://pay.example.com/init?pref=123-abc", res.RedirectURL)

	assert.Equal(t, "sess-1", got["external_reference"])
	assert.Equal(t, "approved", got["auto_return"])
	items := got["items"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "7", item["id"])
	assert.Equal(t, "ARS", item["currency_id"])
	assert.Equal(t, float64(2), item["quantity"])
	assert.InDelta(t, 15999.90, item["unit_price"], 0.001)
	backURLs := got["back_urls"].(map[string]any)
	assert.Equal(t, "https://shop.example.com/feedback?status=pending", backURLs["pending"])
}

func TestCreatePreference_SandboxFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"p1","sandbox_init_point":"https://sandbox.example.com/p1"}`))
	}))
	defer srv.Close()

	res, err := fastClient(srv.URL).CreatePreference(context.Background(), testPreference())
	require.NoError(t, err)
	assert.Equal(t, "https://sandbox.example.com/p1", res.RedirectURL)
}

func TestCreatePreference_ProviderErrorsAreUnavailable(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"bad request", http.StatusBadRequest, `{"message":"invalid unit_price"}`},
		{"unauthorized", http.StatusUnauthorized, `{"message":"invalid access token"}`},
		{"server error", http.StatusInternalServerError, `{"message":"boom"}`},
		{"incomplete body", http.StatusOK, `{"id":""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := fastClient(srv.URL).CreatePreference(context.Background(), testPreference())
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrUnavailable))
			assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatus(err))
		})
	}
}

func TestCreatePreference_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := fastClient(url).CreatePreference(context.Background(), testPreference())
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatus(err))
}

func TestNewHTTPPreferenceClient(t *testing.T) {
	c := NewHTTPPreferenceClient("https://api.example.com/checkout/preferences", "tok", discardLogger())
	assert.Equal(t, "http", c.Name())
	assert.NotNil(t, c.doer)
}
