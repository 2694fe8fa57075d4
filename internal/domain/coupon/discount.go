package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ErrCorrupt marks coupon records whose stored values cannot produce a valid
// discount. Such coupons are priced as zero-discount.
var ErrCorrupt = errors.New("corrupt coupon record")

// Check reports data-integrity problems in a stored coupon. The returned error
// wraps ErrCorrupt.
func Check(c *Coupon) error {
	if c.Discount == nil {
		return errors.Wrap(ErrCorrupt, "missing discount")
	}
	if u, ok := c.Discount.(Unrecognized); ok {
		return errors.Wrapf(ErrCorrupt, "unknown discount kind %q", u.StoredKind)
	}
	if c.Discount.Value().IsNegative() {
		return errors.Wrapf(ErrCorrupt, "negative discount value %s", c.Discount.Value())
	}
	if p, ok := c.Discount.(Percentage); ok && p.Percent.GreaterThan(hundred) {
		return errors.Wrapf(ErrCorrupt, "percentage %s exceeds 100", p.Percent)
	}
	if !c.ValidFrom.Before(c.ValidUntil) {
		return errors.Wrapf(ErrCorrupt, "valid_from %s is not before valid_until %s",
			c.ValidFrom, c.ValidUntil)
	}
	return nil
}

// Amount computes the discount d yields against the running price. The result
// is rounded half-up to scale decimal places and never exceeds running.
func Amount(d Discount, running decimal.Decimal, scale int32) decimal.Decimal {
	if !running.IsPositive() {
		return decimal.Zero
	}

	var amount decimal.Decimal
	switch v := d.(type) {
	case FixedAmount:
		amount = decimal.Min(v.Amount, running)
	case Percentage:
		amount = running.Mul(v.Percent).Div(hundred)
	default:
		return decimal.Zero
	}

	amount = amount.Round(scale)
	if amount.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(amount, running)
}
