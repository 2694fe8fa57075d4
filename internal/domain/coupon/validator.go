package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/academy-pricing/internal/domain/course"
)

// ValidateRequest identifies a single coupon code applied to a prospective purchase.
type ValidateRequest struct {
	Code     string
	CourseID string
	// BuyerID is empty for anonymous buyers.
	BuyerID string
}

// Validation is the outcome of checking a single code. An ineligible coupon
// is a normal result carrying a Reason, not an error.
type Validation struct {
	Coupon   *Coupon
	Eligible bool
	Personal bool
	Reason   Reason
	// Discount previews what the coupon alone takes off the course list price.
	Discount decimal.Decimal
}

// Validator checks a single coupon code with the same rules used for quoting.
// It never touches usage counters.
type Validator struct {
	coupons Catalog
	courses course.Repository
	scale   int32
	now     func() time.Time
}

// NewValidator creates a Validator. scale is the number of decimal places of
// the currency's minimum unit.
func NewValidator(coupons Catalog, courses course.Repository, scale int32) *Validator {
	return &Validator{coupons: coupons, courses: courses, scale: scale, now: time.Now}
}

// Validate looks the code up and evaluates it for the course and buyer.
// Unknown codes return ErrCouponNotFound and unknown courses course.ErrNotFound.
func (v *Validator) Validate(ctx context.Context, req ValidateRequest) (*Validation, error) {
	crs, err := v.courses.GetByID(ctx, req.CourseID)
	if err != nil {
		return nil, errors.Wrap(err, "get course")
	}

	c, err := v.coupons.FindByCode(ctx, req.Code)
	if err != nil {
		if errors.Is(err, ErrCouponNotFound) {
			return nil, ErrCouponNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	assignments, err := v.coupons.Assignments(ctx, []string{c.ID})
	if err != nil {
		return nil, errors.Wrap(err, "lookup assignments")
	}

	d := Evaluate(c, EvalContext{
		Now:         v.now(),
		CourseID:    crs.ID,
		BuyerID:     req.BuyerID,
		Assignments: assignments[c.ID],
	})

	res := &Validation{
		Coupon:   c,
		Eligible: d.Eligible,
		Personal: d.Personal,
		Reason:   d.Reason,
		Discount: decimal.Zero,
	}
	if d.Eligible && Check(c) == nil {
		res.Discount = Amount(c.Discount, crs.Price, v.scale)
	}
	return res, nil
}
