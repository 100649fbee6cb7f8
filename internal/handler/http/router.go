package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hernancolliard/tienda-online/internal/auth"
	"github.com/hernancolliard/tienda-online/internal/service"
	"github.com/hernancolliard/tienda-online/pkg/health"
	"github.com/hernancolliard/tienda-online/pkg/middleware"
)

const serviceName = "tienda-online"

// Services are the application services the router exposes.
type Services struct {
	Cart       *service.CartService
	Checkout   *service.CheckoutService
	Instagram  *service.InstagramService
	Newsletter *service.NewsletterService
}

// RouterConfig holds the transport settings of the router.
type RouterConfig struct {
	CORSOrigins            []string
	PprofCIDRs             []string
	Session                SessionConfig
	SubscribeRatePerMinute int
	SubscribeBurst         int
	ValidateToken          middleware.TokenValidator
	RequestTimeout         time.Duration
}

// NewRouter creates a chi router with all storefront routes registered.
func NewRouter(svcs Services, healthHandler *health.Handler, cfg RouterConfig, logger *slog.Logger) http.Handler {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins)))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	cartHandler := NewCartHandler(svcs.Cart, logger)
	checkoutHandler := NewCheckoutHandler(svcs.Checkout, logger)
	instagramHandler := NewInstagramHandler(svcs.Instagram, logger)
	newsletterHandler := NewNewsletterHandler(svcs.Newsletter, logger)

	r.Route("/api/v1", func(r chi.Router) {
		// Per-session endpoints.
		r.Group(func(r chi.Router) {
			r.Use(Session(cfg.Session))
			r.Use(middleware.RequestLogger(logger))
			r.Use(middleware.NoStore)

			// Long-lived; kept out of the timeout and compression below.
			r.Get("/cart/stream", cartHandler.Stream)

			r.Group(func(r chi.Router) {
				r.Use(chimw.Compress(5))
				r.Use(chimw.Timeout(cfg.RequestTimeout))
				r.Use(ContentTypeJSON)

				r.Get("/cart", cartHandler.GetCart)
				r.Delete("/cart", cartHandler.ClearCart)
				r.Post("/cart/items", cartHandler.AddItem)
				r.Put("/cart/items/{productId}", cartHandler.UpdateItemQuantity)
				r.Delete("/cart/items/{productId}", cartHandler.RemoveItem)

				r.Post("/checkout", checkoutHandler.CreatePreference)
				r.Get("/checkout/feedback", checkoutHandler.Feedback)
			})
		})

		// Session-less endpoints.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequestLogger(logger))
			r.Use(chimw.Compress(5))
			r.Use(chimw.Timeout(cfg.RequestTimeout))

			// Providers post in whatever encoding they like.
			r.Post("/checkout/notifications", checkoutHandler.Notification)

			r.Group(func(r chi.Router) {
				r.Use(ContentTypeJSON)

				r.With(middleware.CacheControl(60)).Get("/instagram", instagramHandler.List)
				r.Group(func(r chi.Router) {
					r.Use(middleware.Auth(cfg.ValidateToken))
					r.Use(middleware.RequireRole(auth.RoleAdmin))

					r.Post("/instagram", instagramHandler.Create)
					r.Put("/instagram/{id}", instagramHandler.Update)
					r.Delete("/instagram/{id}", instagramHandler.Delete)
				})

				r.With(middleware.RateLimit(cfg.SubscribeRatePerMinute, cfg.SubscribeBurst, logger)).
					Post("/subscribe", newsletterHandler.Subscribe)
			})
		})
	})

	return r
}
