// Command api-server serves course quotes, coupon validation, coupon
// authoring and payment completion over HTTP.
package main

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	academy "github.com/xenking/academy-pricing/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := academy.LoadConfig()
		if err != nil {
			return errors.Wrap(err, "config")
		}
		lg.Info("Configuration loaded",
			zap.Int32("pricing_scale", cfg.Pricing.Scale),
			zap.Duration("course_cache_ttl", cfg.Cache.CourseTTL),
			zap.Uint64("payment_max_retries", cfg.Payment.MaxRetries),
		)
		return academy.Run(ctx, lg, m, cfg)
	})
}
