package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/hernancolliard/tienda-online/internal/domain"
	"github.com/hernancolliard/tienda-online/internal/service"
	"github.com/hernancolliard/tienda-online/pkg/httputil"
)

const maxNotificationBytes = 64 << 10

// CheckoutHandler handles the payment hand-off endpoints.
type CheckoutHandler struct {
	service *service.CheckoutService
	logger  *slog.Logger
}

// NewCheckoutHandler creates a new checkout HTTP handler.
func NewCheckoutHandler(svc *service.CheckoutService, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{service: svc, logger: logger}
}

// CreatePreference handles POST /api/v1/checkout
func (h *CheckoutHandler) CreatePreference(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.CreatePreference(r.Context(), SessionIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, res)
}

// Feedback handles GET /api/v1/checkout/feedback?status=
func (h *CheckoutHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.HandleFeedback(r.Context(), SessionIDFromContext(r.Context()), r.URL.Query().Get("status"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, res)
}

// notificationBody is the provider webhook body. Either shape of the
// provider's notifications is accepted.
type notificationBody struct {
	ID       json.RawMessage `json:"id"`
	Type     string          `json:"type"`
	Topic    string          `json:"topic"`
	Action   string          `json:"action"`
	LiveMode bool            `json:"live_mode"`
	Data     struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
	Resource string `json:"resource"`
}

// Notification handles POST /api/v1/checkout/notifications. The provider
// always gets {"status":"ok"}, even for bodies it cannot parse, so it stops
// retrying.
func (h *CheckoutHandler) Notification(w http.ResponseWriter, r *http.Request) {
	var body notificationBody
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationBytes))
	if err == nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			h.logger.WarnContext(r.Context(), "unparseable payment notification", slog.String("error", err.Error()))
		}
	}

	q := r.URL.Query()
	n := domain.PaymentNotification{
		ID:       rawString(body.ID),
		Type:     firstNonEmpty(body.Type, body.Topic, q.Get("type"), q.Get("topic")),
		Action:   body.Action,
		DataID:   firstNonEmpty(rawString(body.Data.ID), q.Get("data.id"), q.Get("id"), body.Resource),
		LiveMode: body.LiveMode,
	}
	h.service.HandleNotification(r.Context(), n)

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// rawString renders a JSON string or number as plain text.
func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
