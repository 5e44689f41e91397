package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/wishlist"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/outbox"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/internal/storage/redis"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

const serviceName = "shop-api"

// Run creates all dependencies, starts the HTTP server and the outbox relay,
// and handles graceful shutdown. It is the single wiring point for the
// application. m is usually the *app.Telemetry of go-faster/sdk.
func Run(ctx context.Context, lg *zap.Logger, m httpmiddleware.TelemetryProvider, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if cfg.Migrate {
		if err := postgres.RunMigrations(pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck("postgres", pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	var cartCache cart.Cache = cart.NopCache{}
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(cfg.RedisURL)
		if err != nil {
			return errors.Wrap(err, "create redis client")
		}
		defer func() { _ = client.Close() }()

		cartCache = redis.NewCartCache(client)
		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.PingCheck("redis", redis.Pinger{Client: client}))
	} else {
		lg.Info("Cart cache disabled")
	}

	metrics, err := order.NewMetrics(m.MeterProvider().Meter(serviceName))
	if err != nil {
		return errors.Wrap(err, "create metrics")
	}

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	cartRepo := postgres.NewCartRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	userRepo := postgres.NewUserRepository(pool)
	wishlistRepo := postgres.NewWishlistRepository(pool)
	uow := postgres.NewUnitOfWork(pool)

	// Domain services.
	cartService := cart.NewService(cartRepo, cartCache)
	orderService := order.NewService(orderRepo, uow, userRepo, metrics)
	checkout := order.NewCheckout(uow, cartService, cfg.checkoutConfig(), metrics)
	wishlistService := wishlist.NewService(wishlistRepo, productRepo)

	h := handler.NewHandler(handler.Config{ImageBaseURL: cfg.ImageBaseURL}, handler.Services{
		Orders:     orderService,
		Checkout:   checkout,
		Carts:      cartService,
		Wishlist:   wishlistService,
		Products:   productRepo,
		Identities: auth.NewResolver(userRepo, cfg.resolverConfig()),
	})
	api := h.Router(
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:     cfg.RateLimit.Max,
			Window:  cfg.RateLimit.Window,
			KeyFunc: handler.RateLimitKey,
		}),
	)

	// Health endpoints bypass identity resolution and rate limiting.
	mux := chi.NewRouter()
	mux.Get("/livez", healthSvc.LiveEndpoint)
	mux.Get("/readyz", healthSvc.ReadyEndpoint)
	mux.Mount("/", api)

	routeFinder := httpmiddleware.MakeRouteFinder(mux)
	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", httpmiddleware.HeaderRequestID},
				ExposeHeaders:    []string{httpmiddleware.HeaderRequestID},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.RequestID(),
			httpmiddleware.Instrument(serviceName, routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	g, gCtx := errgroup.WithContext(ctx)
	if len(cfg.Outbox.Brokers) > 0 {
		publisher := outbox.NewKafkaPublisher(cfg.Outbox.Topic, cfg.Outbox.Brokers...)
		relay := outbox.NewRelay(postgres.NewOutboxStore(pool), publisher, cfg.relayConfig())
		lg.Info("Outbox publisher configured",
			zap.Strings("brokers", cfg.Outbox.Brokers),
			zap.String("topic", cfg.Outbox.Topic),
		)
		g.Go(func() error {
			defer func() {
				if err := publisher.Close(); err != nil {
					lg.Warn("Close kafka writer", zap.Error(err))
				}
			}()
			return relay.Run(gCtx)
		})
	} else {
		lg.Info("Outbox relay disabled, events stay in the outbox table")
	}

	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gCtx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		defer healthSvc.Stop()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	return g.Wait()
}
