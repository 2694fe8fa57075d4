package pricing

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/xenking/academy-pricing/internal/domain/agent"
	"github.com/xenking/academy-pricing/internal/domain/coupon"
)

// RateSource records where a commission rate came from.
type RateSource string

const (
	RateCourseOverride RateSource = "course_override"
	RateAgent          RateSource = "agent"
	// RateMissing means neither the course nor the agent defines a rate; the
	// commission is zero.
	RateMissing RateSource = "missing"
)

// Commission is the referral fee owed to an agent for one applied coupon.
type Commission struct {
	AgentID    string
	AgentCode  string
	CouponID   string
	SaleAmount decimal.Decimal
	Rate       decimal.Decimal
	RateSource RateSource
	Amount     decimal.Decimal
}

// DeriveCommissions produces one commission per agent-tier entry in applied.
// The base is the final sale price. A course override rate, when set, beats
// the agent's own rate; an unknown agent or a missing rate yields zero.
func DeriveCommissions(
	final decimal.Decimal,
	applied []AppliedCoupon,
	agents map[string]agent.Agent,
	override *decimal.Decimal,
	scale int32,
) []Commission {
	return lo.FilterMap(applied, func(a AppliedCoupon, _ int) (Commission, bool) {
		if a.Tier != coupon.TierAgent {
			return Commission{}, false
		}

		ag := agents[a.AgentID]
		rate, src := decimal.Zero, RateMissing
		switch {
		case override != nil:
			rate, src = *override, RateCourseOverride
		case ag.CommissionRate != nil:
			rate, src = *ag.CommissionRate, RateAgent
		}

		return Commission{
			AgentID:    a.AgentID,
			AgentCode:  ag.Code,
			CouponID:   a.CouponID,
			SaleAmount: final,
			Rate:       rate,
			RateSource: src,
			Amount:     final.Mul(rate).Round(scale),
		}, true
	})
}
