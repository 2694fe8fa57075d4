// Package app wires the pricing service together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/academy-pricing/internal/domain/auth"
	"github.com/xenking/academy-pricing/internal/domain/coupon"
	"github.com/xenking/academy-pricing/internal/domain/payment"
	"github.com/xenking/academy-pricing/internal/domain/pricing"
	"github.com/xenking/academy-pricing/internal/handler"
	"github.com/xenking/academy-pricing/internal/repository"
	"github.com/xenking/academy-pricing/pkg/health"
	"github.com/xenking/academy-pricing/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.Add(health.Readiness, "postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.Add(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	courses := repository.NewCachedCourses(repository.NewCourseRepository(pool), cfg.Cache.CourseTTL)
	coupons := repository.NewCouponRepository(pool)
	agents := repository.NewAgentRepository(pool)
	payments := repository.NewPaymentRepository(pool)
	apiKeys := repository.NewAPIKeyRepository(pool)

	// Domain services.
	quotes := pricing.NewService(courses, coupons, agents, cfg.Pricing.Scale,
		pricing.WithTelemetry(m.TracerProvider(), m.MeterProvider()),
	)
	validator := coupon.NewValidator(coupons, courses, cfg.Pricing.Scale)
	authoring := coupon.NewAuthoring(coupons)
	completer := payment.NewService(quotes, payments, cfg.Payment.MaxRetries)
	authn := auth.NewAuthenticator(apiKeys, []byte(cfg.APIKeyPepper))

	// Health endpoints and the API share one router.
	h := handler.NewHandler(quotes, validator, authoring, completer)
	mux := chi.NewRouter()
	mux.Get("/livez", healthSvc.LiveEndpoint)
	mux.Get("/readyz", healthSvc.ReadyEndpoint)
	mux.Mount("/api", h.Routes(authn,
		httpmiddleware.LogRequests(),
		httpmiddleware.Labeler(),
	))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(
			httpmiddleware.Wrap(mux,
				httpmiddleware.Recovery(),
				httpmiddleware.InjectLogger(zctx.From(ctx)),
				httpmiddleware.RequestID(),
				httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
					RPS:   cfg.RateLimit.RPS,
					Burst: cfg.RateLimit.Burst,
				}),
			),
			"academy-api",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
