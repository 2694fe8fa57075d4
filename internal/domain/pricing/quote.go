package pricing

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/academy-pricing/internal/domain/agent"
	"github.com/xenking/academy-pricing/internal/domain/coupon"
	"github.com/xenking/academy-pricing/internal/domain/course"
)

const instrumentationName = "github.com/xenking/academy-pricing/internal/domain/pricing"

// QuoteRequest identifies a prospective purchase.
type QuoteRequest struct {
	CourseID string
	// BuyerID is empty for anonymous buyers; personal coupons are then skipped.
	BuyerID string
	// At pins the evaluation time. Zero means now.
	At time.Time
}

// Quote is the priced result for a prospective purchase.
type Quote struct {
	CourseID                string
	BuyerID                 string
	OriginalPrice           decimal.Decimal
	Applied                 []AppliedCoupon
	AdministratorDiscount   decimal.Decimal
	AgentDiscount           decimal.Decimal
	PriceAfterAdministrator decimal.Decimal
	FinalPrice              decimal.Decimal
	Commissions             []Commission
	EvaluatedAt             time.Time
}

// TotalDiscount is the sum of both tier subtotals.
func (q *Quote) TotalDiscount() decimal.Decimal {
	return q.AdministratorDiscount.Add(q.AgentDiscount)
}

// CouponIDs lists applied coupon ids in application order.
func (q *Quote) CouponIDs() []string {
	return lo.Map(q.Applied, func(a AppliedCoupon, _ int) string { return a.CouponID })
}

// Service assembles quotes from the course, coupon and agent stores.
type Service struct {
	courses course.Repository
	coupons coupon.Catalog
	agents  agent.Repository
	scale   int32
	now     func() time.Time

	tracer         trace.Tracer
	quotes         metric.Int64Counter
	couponsApplied metric.Int64Counter
}

// Option configures a Service.
type Option func(*Service)

// WithTelemetry instruments the service with the given providers.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) Option {
	return func(s *Service) {
		s.tracer = tp.Tracer(instrumentationName)
		meter := mp.Meter(instrumentationName)
		s.quotes, _ = meter.Int64Counter("pricing.quotes",
			metric.WithDescription("Number of quotes computed"))
		s.couponsApplied, _ = meter.Int64Counter("pricing.coupons_applied",
			metric.WithDescription("Number of coupons applied across quotes"))
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a quoting Service. scale is the number of decimal places
// of the currency's minimum unit.
func NewService(
	courses course.Repository,
	coupons coupon.Catalog,
	agents agent.Repository,
	scale int32,
	opts ...Option,
) *Service {
	s := &Service{
		courses: courses,
		coupons: coupons,
		agents:  agents,
		scale:   scale,
		now:     time.Now,
	}
	WithTelemetry(tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())(s)
	for _, o := range opts {
		o(s)
	}
	return s
}

// Quote prices a course for a buyer. Ineligible or unknown coupons are left
// out of the result; only a missing course or a storage failure is an error.
// The catalog is never mutated.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (_ *Quote, rerr error) {
	ctx, span := s.tracer.Start(ctx, "pricing.Quote", trace.WithAttributes(
		attribute.String("course.id", req.CourseID),
		attribute.Bool("buyer.anonymous", req.BuyerID == ""),
	))
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	now := req.At
	if now.IsZero() {
		now = s.now()
	}

	crs, err := s.courses.GetByID(ctx, req.CourseID)
	if err != nil {
		return nil, errors.Wrap(err, "get course")
	}

	candidates, err := s.eligible(ctx, crs.ID, req.BuyerID, now)
	if err != nil {
		return nil, err
	}

	tr := Resolve(ctx, crs.Price, candidates, s.scale)

	agents, err := s.agentsFor(ctx, tr.Applied)
	if err != nil {
		return nil, err
	}
	commissions := DeriveCommissions(tr.Final, tr.Applied, agents, crs.CommissionRate, s.scale)

	s.quotes.Add(ctx, 1)
	s.couponsApplied.Add(ctx, int64(len(tr.Applied)))
	span.SetAttributes(
		attribute.Int("coupons.applied", len(tr.Applied)),
		attribute.String("price.final", tr.Final.String()),
	)

	return &Quote{
		CourseID:                crs.ID,
		BuyerID:                 req.BuyerID,
		OriginalPrice:           tr.Original,
		Applied:                 tr.Applied,
		AdministratorDiscount:   tr.AdministratorTotal,
		AgentDiscount:           tr.AgentTotal,
		PriceAfterAdministrator: tr.AfterAdministrator,
		FinalPrice:              tr.Final,
		Commissions:             commissions,
		EvaluatedAt:             now,
	}, nil
}

// eligible fetches general and personal coupons and keeps those passing
// coupon.Evaluate, general ones first.
func (s *Service) eligible(ctx context.Context, courseID, buyerID string, now time.Time) ([]Candidate, error) {
	var general, personal []coupon.Coupon

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		general, err = s.coupons.GeneralCoupons(gctx, courseID)
		if err != nil {
			return errors.Wrap(err, "fetch general coupons")
		}
		return nil
	})
	if buyerID != "" {
		g.Go(func() error {
			var err error
			personal, err = s.coupons.PersonalCoupons(gctx, buyerID, courseID)
			if err != nil {
				return errors.Wrap(err, "fetch personal coupons")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	all := append(general, personal...)
	if len(all) == 0 {
		return nil, nil
	}

	ids := lo.Uniq(lo.Map(all, func(c coupon.Coupon, _ int) string { return c.ID }))
	assignments, err := s.coupons.Assignments(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "fetch assignments")
	}

	out := make([]Candidate, 0, len(all))
	for _, c := range all {
		d := coupon.Evaluate(&c, coupon.EvalContext{
			Now:         now,
			CourseID:    courseID,
			BuyerID:     buyerID,
			Assignments: assignments[c.ID],
		})
		if !d.Eligible {
			continue
		}
		out = append(out, Candidate{Coupon: c, Personal: d.Personal})
	}
	return out, nil
}

// agentsFor loads the current rates of agents owning applied coupons.
func (s *Service) agentsFor(ctx context.Context, applied []AppliedCoupon) (map[string]agent.Agent, error) {
	ids := lo.Uniq(lo.FilterMap(applied, func(a AppliedCoupon, _ int) (string, bool) {
		return a.AgentID, a.Tier == coupon.TierAgent
	}))
	if len(ids) == 0 {
		return map[string]agent.Agent{}, nil
	}
	agents, err := s.agents.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get agents")
	}
	return agents, nil
}
