package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/hernancolliard/tienda-online/internal/auth"
	"github.com/hernancolliard/tienda-online/internal/config"
	"github.com/hernancolliard/tienda-online/internal/event"
	handler "github.com/hernancolliard/tienda-online/internal/handler/http"
	"github.com/hernancolliard/tienda-online/internal/mailer"
	"github.com/hernancolliard/tienda-online/internal/payment"
	paymentmock "github.com/hernancolliard/tienda-online/internal/payment/mock"
	"github.com/hernancolliard/tienda-online/internal/repository"
	memoryrepo "github.com/hernancolliard/tienda-online/internal/repository/memory"
	pgrepo "github.com/hernancolliard/tienda-online/internal/repository/postgres"
	redisrepo "github.com/hernancolliard/tienda-online/internal/repository/redis"
	"github.com/hernancolliard/tienda-online/internal/service"
	"github.com/hernancolliard/tienda-online/migrations"
	"github.com/hernancolliard/tienda-online/pkg/database"
	"github.com/hernancolliard/tienda-online/pkg/health"
	pkgkafka "github.com/hernancolliard/tienda-online/pkg/kafka"
	"github.com/hernancolliard/tienda-online/pkg/tracing"
)

const (
	serviceName       = "tienda-online"
	slowQueryLimit    = 200 * time.Millisecond
	idempotencyTTL    = 24 * time.Hour
	idempotencyPrefix = "tienda:processed:"
)

// App wires together all dependencies and runs the storefront.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	pool       *pgxpool.Pool
	rdb        *redis.Client
	producer   *pkgkafka.Producer
	consumers  []*pkgkafka.Consumer
	tracerStop func(context.Context) error
	httpServer *http.Server
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	if err := a.init(ctx); err != nil {
		a.closeResources()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	stop, err := tracing.Init(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    cfg.Environment,
		Endpoint:       cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	a.tracerStop = stop

	// Postgres holds the catalog, instagram posts and subscribers.
	pool, err := database.NewPostgresPool(ctx, database.PostgresConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	}, logger)
	if err != nil {
		return err
	}
	a.pool = pool
	database.SetSlowQueryLogging(slowQueryLimit, logger)

	if cfg.RunMigrations {
		if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	// Cart store.
	var carts repository.CartStore
	switch cfg.CartStore {
	case config.CartStoreRedis:
		rdb, err := database.NewRedisClient(ctx, database.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			return err
		}
		a.rdb = rdb
		carts = redisrepo.NewCartStore(rdb, cfg.CartTTL, logger)
	default:
		logger.Warn("carts are kept in process memory and lost on restart")
		carts = memoryrepo.NewCartStore(cfg.CartTTL, logger)
	}

	// Events.
	var publisher pkgkafka.Publisher = pkgkafka.LogPublisher{Logger: logger}
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.ProducerConfig{Brokers: cfg.KafkaBrokers}, logger)
		publisher = a.producer
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}
	producer := event.NewProducer(publisher, logger)

	// Outbound providers.
	var payments payment.PreferenceCreator
	if cfg.PaymentProvider == config.PaymentProviderHTTP {
		payments = payment.NewHTTPPreferenceClient(cfg.PaymentAPIURL, cfg.PaymentAccessToken, logger)
	} else {
		payments = paymentmock.NewPreferenceCreator(cfg.PublicBaseURL)
	}

	var sender mailer.Sender
	if cfg.MailProvider == config.MailProviderSendGrid {
		sender = mailer.NewSendGridSender(cfg.SendGridAPIKey, cfg.MailFrom, cfg.MailFromName, logger)
	} else {
		sender = mailer.NewMockSender(logger)
	}
	logger.Info("providers selected",
		slog.String("payment", payments.Name()),
		slog.String("mail", sender.Name()),
	)

	// Build the dependency graph.
	catalog := pgrepo.NewCatalogReader(pool)
	cartService := service.NewCartService(carts, catalog, producer, logger)
	checkoutService := service.NewCheckoutService(carts, catalog, payments, cartService, producer, cfg.PublicBaseURL, logger)
	instagramService := service.NewInstagramService(pgrepo.NewInstagramRepository(pool), logger)
	newsletterService := service.NewNewsletterService(pgrepo.NewSubscriberRepository(pool), sender, cfg.PublicBaseURL, logger)

	if cfg.KafkaEnabled {
		var store pkgkafka.IdempotencyStore
		if a.rdb != nil {
			store = pkgkafka.NewRedisIdempotencyStore(a.rdb, idempotencyPrefix, idempotencyTTL)
		} else {
			store = pkgkafka.NewMemoryIdempotencyStore(idempotencyTTL)
		}
		a.consumers = append(a.consumers, event.NewProductCreatedConsumer(
			cfg.KafkaBrokers, cfg.KafkaGroupID,
			event.NewConsumerHandler(newsletterService, logger),
			store, logger,
		))
	}

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if a.rdb != nil {
		rdb := a.rdb
		healthHandler.Register("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}
	if a.producer != nil {
		healthHandler.RegisterOptional("kafka", a.producer.Ping)
	}

	router := handler.NewRouter(handler.Services{
		Cart:       cartService,
		Checkout:   checkoutService,
		Instagram:  instagramService,
		Newsletter: newsletterService,
	}, healthHandler, handler.RouterConfig{
		CORSOrigins:            cfg.CORSOrigins,
		PprofCIDRs:             cfg.PprofCIDRs,
		Session:                handler.SessionConfig{MaxAge: cfg.CartTTL, Secure: cfg.IsProduction()},
		SubscribeRatePerMinute: cfg.SubscribeRatePerMinute,
		SubscribeBurst:         cfg.SubscribeBurst,
		ValidateToken:          auth.NewTokenValidator(cfg.JWTSecret).Validate,
		RequestTimeout:         cfg.HTTPWriteTimeout,
	}, logger)

	a.httpServer = newHTTPServer(fmt.Sprintf(":%d", cfg.HTTPPort), router, cfg)
	return nil
}

// newHTTPServer builds the server. Request contexts derive from a base
// context that is cancelled when Shutdown begins, so long-lived responses
// such as the cart stream end instead of holding Shutdown to its deadline.
func newHTTPServer(addr string, h http.Handler, cfg *config.Config) *http.Server {
	base, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	srv.RegisterOnShutdown(cancel)
	return srv
}

// Run starts the HTTP server and the event consumers and blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1+len(a.consumers))

	consumerCtx, stopConsumers := context.WithCancel(ctx)
	defer stopConsumers()

	for _, c := range a.consumers {
		go func(c *pkgkafka.Consumer) {
			if err := c.Start(consumerCtx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}(c)
	}

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		a.logger.Error("component failed", slog.String("error", runErr.Error()))
	}

	stopConsumers()
	if err := a.Shutdown(); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	a.closeResources()

	if a.tracerStop != nil {
		if err := a.tracerStop(shutdownCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		}
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeResources() {
	for _, c := range a.consumers {
		if err := c.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
		}
	}
	a.consumers = nil

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
		a.producer = nil
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
		}
		a.rdb = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}
