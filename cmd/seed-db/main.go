package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/academy-pricing/internal/domain/agent"
	"github.com/xenking/academy-pricing/internal/domain/auth"
	"github.com/xenking/academy-pricing/internal/domain/coupon"
	"github.com/xenking/academy-pricing/internal/domain/course"
	"github.com/xenking/academy-pricing/internal/repository"
)

func ratePtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func intPtr(n int) *int { return &n }

var courses = []course.Course{
	{ID: "go-fundamentals", Slug: "go-fundamentals", Title: "Go Fundamentals", Price: decimal.NewFromInt(20000)},
	{ID: "distributed-systems", Slug: "distributed-systems", Title: "Distributed Systems", Price: decimal.NewFromInt(45000),
		CommissionRate: ratePtr("0.15")},
	{ID: "sql-basics", Slug: "sql-basics", Title: "SQL Basics", Price: decimal.RequireFromString("9999.99")},
}

var agents = []agent.Agent{
	{ID: "agent-alice", Code: "ALICE", Name: "Alice Partner", CommissionRate: ratePtr("0.10")},
	{ID: "agent-bob", Code: "BOB", Name: "Bob Reseller", CommissionRate: ratePtr("0.08")},
}

var couponTypes = []coupon.Type{
	{ID: "promo", Name: "Platform promotion", MaxLimit: decimal.NewFromInt(50000)},
	{ID: "referral", Name: "Agent referral", MaxLimit: decimal.NewFromInt(30)},
}

func main() {
	var (
		databaseURL  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or ACADEMY_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or ACADEMY_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("ACADEMY_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or ACADEMY_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("ACADEMY_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCatalog(ctx, pool); err != nil {
		return errors.Wrap(err, "seed catalog")
	}
	if err := seedCoupons(ctx, repository.NewCouponRepository(pool)); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := seedAPIKey(ctx, repository.NewAPIKeyRepository(pool), apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedCatalog(ctx context.Context, pool *pgxpool.Pool) error {
	courseRepo := repository.NewCourseRepository(pool)
	for _, c := range courses {
		if err := courseRepo.Upsert(ctx, c); err != nil {
			return err
		}
		slog.Info("upserted course", slog.String("id", c.ID), slog.String("price", c.Price.String()))
	}

	agentRepo := repository.NewAgentRepository(pool)
	for _, a := range agents {
		if err := agentRepo.Upsert(ctx, a); err != nil {
			return err
		}
		slog.Info("upserted agent", slog.String("id", a.ID), slog.String("code", a.Code))
	}

	return nil
}

func seedCoupons(ctx context.Context, coupons *repository.CouponRepository) error {
	for _, t := range couponTypes {
		if err := coupons.UpsertType(ctx, t); err != nil {
			return err
		}
	}

	from := time.Now().UTC().Truncate(24 * time.Hour)
	until := from.AddDate(1, 0, 0)
	drafts := []coupon.Draft{
		{
			Code: "WELCOME10", Kind: coupon.KindPercentage, Value: decimal.NewFromInt(10),
			TypeID: "promo", Description: "10% off any course",
			ValidFrom: from, ValidUntil: until,
		},
		{
			Code: "GOSTART", Kind: coupon.KindFixedAmount, Value: decimal.NewFromInt(2500),
			TypeID: "promo", Description: "2500 off Go Fundamentals",
			ValidFrom: from, ValidUntil: until, CourseIDs: []string{"go-fundamentals"},
		},
		{
			Code: "ALICE15", Kind: coupon.KindPercentage, Value: decimal.NewFromInt(15),
			TypeID: "referral", AgentID: "agent-alice", Description: "Alice's referral discount",
			ValidFrom: from, ValidUntil: until, MaxUsageCount: intPtr(100),
		},
		{
			Code: "BOBVIP", Kind: coupon.KindPercentage, Value: decimal.NewFromInt(20),
			TypeID: "referral", AgentID: "agent-bob", Description: "Bob's VIP code, assigned per buyer",
			ValidFrom: from, ValidUntil: until, MaxUsageCount: intPtr(1),
		},
	}

	authoring := coupon.NewAuthoring(coupons)
	for _, d := range drafts {
		c, err := authoring.Create(ctx, d)
		switch {
		case errors.Is(err, coupon.ErrDuplicateCode):
			slog.Info("coupon already exists", slog.String("code", d.Code))
			continue
		case err != nil:
			return errors.Wrapf(err, "create coupon %s", d.Code)
		}
		slog.Info("created coupon", slog.String("code", c.Code), slog.String("tier", c.Tier().String()))

		if d.Code == "BOBVIP" {
			if err := authoring.Assign(ctx, coupon.Assignment{
				CouponID: c.ID,
				BuyerID:  "buyer-demo",
				CourseID: "distributed-systems",
			}); err != nil {
				return errors.Wrap(err, "assign BOBVIP")
			}
		}
	}

	return nil
}

func seedAPIKey(ctx context.Context, keys *repository.APIKeyRepository, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	if err := keys.Upsert(ctx, auth.APIKey{
		ID:      "default",
		Name:    "Default admin key",
		KeyHash: auth.Hash([]byte(pepper), apiKey),
		Scopes:  []string{auth.ScopeAdmin},
	}); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"))

	return nil
}
