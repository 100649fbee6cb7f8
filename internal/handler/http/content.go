package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hernancolliard/tienda-online/internal/service"
	"github.com/hernancolliard/tienda-online/pkg/httputil"
	"github.com/hernancolliard/tienda-online/pkg/pagination"
)

// InstagramHandler serves the storefront's Instagram feed.
type InstagramHandler struct {
	service *service.InstagramService
	logger  *slog.Logger
}

// NewInstagramHandler creates a new Instagram feed handler.
func NewInstagramHandler(svc *service.InstagramService, logger *slog.Logger) *InstagramHandler {
	return &InstagramHandler{service: svc, logger: logger}
}

// List handles GET /api/v1/instagram
func (h *InstagramHandler) List(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r, pagination.DefaultLimits)
	posts, total, err := h.service.List(r.Context(), params)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, httputil.NewPaginatedResponse(posts, total, params.Page, params.PerPage))
}

// Create handles POST /api/v1/instagram
func (h *InstagramHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.InstagramPostInput
	if !decodeBody(w, r, &req, h.logger) {
		return
	}
	post, err := h.service.Create(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, post)
}

// Update handles PUT /api/v1/instagram/{id}
func (h *InstagramHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req service.InstagramPostInput
	if !decodeBody(w, r, &req, h.logger) {
		return
	}
	post, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, post)
}

// Delete handles DELETE /api/v1/instagram/{id}
func (h *InstagramHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// NewsletterHandler handles newsletter signups.
type NewsletterHandler struct {
	service *service.NewsletterService
	logger  *slog.Logger
}

// NewNewsletterHandler creates a new newsletter handler.
func NewNewsletterHandler(svc *service.NewsletterService, logger *slog.Logger) *NewsletterHandler {
	return &NewsletterHandler{service: svc, logger: logger}
}

// SubscribeRequest is the JSON request body for a newsletter signup.
type SubscribeRequest struct {
	Email string `json:"email" validate:"required,max=254"`
}

// Subscribe handles POST /api/v1/subscribe
func (h *NewsletterHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}
	sub, err := h.service.Subscribe(r.Context(), req.Email)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, sub)
}
