// Command coupon-import bulk-creates coupons from a gzip-compressed JSON
// Lines file. Each line holds one coupon draft:
//
//	{"code":"SPRING25","kind":"PERCENTAGE","value":"25","typeId":"promo",
//	 "validFrom":"2026-03-01T00:00:00Z","validUntil":"2026-04-01T00:00:00Z"}
//
// Codes already in the catalog are skipped.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"runtime"

	"github.com/go-faster/errors"

	"github.com/xenking/academy-pricing/internal/domain/coupon"
	"github.com/xenking/academy-pricing/internal/repository"
)

func main() {
	var (
		file        string
		databaseURL string
		workers     int
	)

	flag.StringVar(&file, "file", "data/coupons.jsonl.gz", "gzip-compressed JSON Lines file of coupon drafts")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&workers, "workers", runtime.NumCPU(), "concurrent coupon writers")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, file, databaseURL, workers); err != nil {
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon import completed successfully")
}

func run(ctx context.Context, file, databaseURL string, workers int) error {
	if _, err := os.Stat(file); err != nil {
		return errors.Wrapf(err, "check file %s", file)
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	coupons := repository.NewCouponRepository(pool)

	slog.Info("loading existing codes")

	known, err := loadKnownCodes(ctx, coupons)
	if err != nil {
		return errors.Wrap(err, "load existing codes")
	}

	imp := &importer{
		known:   known,
		lookup:  coupons,
		author:  coupon.NewAuthoring(coupons),
		workers: workers,
	}
	stats, err := imp.Import(ctx, file)
	slog.Info("import finished",
		slog.Uint64("created", stats.Created.Load()),
		slog.Uint64("skipped", stats.Skipped.Load()),
		slog.Uint64("rejected", stats.Rejected.Load()),
	)
	return err
}
