// Package pricing resolves eligible coupons into a priced quote and derives
// agent commissions from it.
package pricing

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/academy-pricing/internal/domain/coupon"
)

// Candidate is a coupon that passed eligibility.
type Candidate struct {
	Coupon   coupon.Coupon
	Personal bool
}

// AppliedCoupon is one entry of the price trace.
type AppliedCoupon struct {
	CouponID string
	Code     string
	Kind     coupon.DiscountKind
	Value    decimal.Decimal
	// Amount is the discount actually taken off, already rounded.
	Amount      decimal.Decimal
	PriceBefore decimal.Decimal
	Tier        coupon.Tier
	Personal    bool
	AgentID     string
}

// Trace is the result of stacking coupons on a price.
type Trace struct {
	Original           decimal.Decimal
	Applied            []AppliedCoupon
	AdministratorTotal decimal.Decimal
	AgentTotal         decimal.Decimal
	AfterAdministrator decimal.Decimal
	Final              decimal.Decimal
}

// Resolve stacks candidates on the original price. Administrator coupons are
// applied first and agent coupons compound on the resulting price, regardless
// of the order candidates arrive in. Within a tier the arrival order is kept.
//
// A coupon id appearing more than once is applied once; a general candidate
// wins over a personal one with the same id. Coupons with corrupt stored
// values are logged and contribute nothing.
func Resolve(ctx context.Context, original decimal.Decimal, candidates []Candidate, scale int32) Trace {
	lg := zctx.From(ctx)

	start := original
	if start.IsNegative() {
		lg.Error("Negative course price, pricing as zero", zap.Stringer("price", original))
		start = decimal.Zero
	}

	unique := dedupe(candidates)
	admin := lo.Filter(unique, func(c Candidate, _ int) bool {
		return c.Coupon.Tier() == coupon.TierAdministrator
	})
	agents := lo.Filter(unique, func(c Candidate, _ int) bool {
		return c.Coupon.Tier() == coupon.TierAgent
	})

	afterAdmin, adminApplied, adminTotal := applyTier(ctx, start, admin, scale)
	final, agentApplied, agentTotal := applyTier(ctx, afterAdmin, agents, scale)

	return Trace{
		Original:           original,
		Applied:            append(adminApplied, agentApplied...),
		AdministratorTotal: adminTotal,
		AgentTotal:         agentTotal,
		AfterAdministrator: afterAdmin,
		Final:              decimal.Max(final, decimal.Zero),
	}
}

// applyTier reduces running by each coupon of one tier in order and returns
// the new running price, the recorded entries and their sum.
func applyTier(
	ctx context.Context,
	running decimal.Decimal,
	tier []Candidate,
	scale int32,
) (decimal.Decimal, []AppliedCoupon, decimal.Decimal) {
	applied := make([]AppliedCoupon, 0, len(tier))
	total := decimal.Zero

	for _, cand := range tier {
		c := cand.Coupon
		if err := coupon.Check(&c); err != nil {
			zctx.From(ctx).Error("Skipping corrupt coupon",
				zap.String("coupon_id", c.ID),
				zap.String("code", c.Code),
				zap.Error(err),
			)
			continue
		}

		amount := coupon.Amount(c.Discount, running, scale)
		if !amount.IsPositive() {
			continue
		}

		applied = append(applied, AppliedCoupon{
			CouponID:    c.ID,
			Code:        c.Code,
			Kind:        c.Discount.Kind(),
			Value:       c.Discount.Value(),
			Amount:      amount,
			PriceBefore: running,
			Tier:        c.Tier(),
			Personal:    cand.Personal,
			AgentID:     c.AgentID,
		})
		running = running.Sub(amount)
		total = total.Add(amount)
	}
	return running, applied, total
}

// dedupe drops repeated coupon ids. General candidates take precedence over
// personal ones; otherwise the first occurrence is kept.
func dedupe(candidates []Candidate) []Candidate {
	general := lo.SliceToMap(
		lo.Filter(candidates, func(c Candidate, _ int) bool { return !c.Personal }),
		func(c Candidate) (string, struct{}) { return c.Coupon.ID, struct{}{} },
	)
	out := lo.Filter(candidates, func(c Candidate, _ int) bool {
		_, shadowed := general[c.Coupon.ID]
		return !c.Personal || !shadowed
	})
	return lo.UniqBy(out, func(c Candidate) string { return c.Coupon.ID })
}
