package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountKind is the storage representation of a coupon's discount variant.
type DiscountKind string

const (
	// KindFixedAmount subtracts a fixed monetary amount, capped at the running price.
	KindFixedAmount DiscountKind = "FIXED_AMOUNT"
	// KindPercentage subtracts a percentage (0-100) of the running price.
	KindPercentage DiscountKind = "PERCENTAGE"
)

// Tier determines stacking precedence. Administrator coupons are always applied
// before agent coupons.
type Tier int

const (
	TierAdministrator Tier = iota
	TierAgent
)

func (t Tier) String() string {
	if t == TierAgent {
		return "agent"
	}
	return "administrator"
}

var (
	// ErrCouponNotFound is returned when no coupon matches the requested code or id.
	ErrCouponNotFound = errors.New("coupon not found")
	// ErrDuplicateCode is returned when a coupon code already exists (case-insensitive).
	ErrDuplicateCode = errors.New("coupon code already exists")
	// ErrTypeNotFound is returned when a draft references an unknown coupon type.
	ErrTypeNotFound = errors.New("coupon type not found")
	// ErrUnknownDiscountKind is returned when a stored discount kind is not recognised.
	ErrUnknownDiscountKind = errors.New("unknown discount kind")
)

// Discount is a closed set of discount variants: FixedAmount, Percentage, or
// Unrecognized for stored rows whose kind this build does not know.
type Discount interface {
	Kind() DiscountKind
	// Value returns the stored payload: an amount for FixedAmount, a percent for Percentage.
	Value() decimal.Decimal
	sealed()
}

// FixedAmount discounts a fixed amount of currency.
type FixedAmount struct {
	Amount decimal.Decimal
}

func (FixedAmount) Kind() DiscountKind       { return KindFixedAmount }
func (f FixedAmount) Value() decimal.Decimal { return f.Amount }
func (FixedAmount) sealed()                  {}

// Percentage discounts Percent/100 of the price it is applied to.
type Percentage struct {
	Percent decimal.Decimal
}

func (Percentage) Kind() DiscountKind       { return KindPercentage }
func (p Percentage) Value() decimal.Decimal { return p.Percent }
func (Percentage) sealed()                  {}

// Unrecognized keeps a stored discount whose kind is unknown. It never
// discounts and Check reports it as corrupt.
type Unrecognized struct {
	StoredKind DiscountKind
	Payload    decimal.Decimal
}

func (u Unrecognized) Kind() DiscountKind     { return u.StoredKind }
func (u Unrecognized) Value() decimal.Decimal { return u.Payload }
func (Unrecognized) sealed()                  {}

// NewDiscount builds the variant matching a stored kind.
func NewDiscount(kind DiscountKind, value decimal.Decimal) (Discount, error) {
	switch kind {
	case KindFixedAmount:
		return FixedAmount{Amount: value}, nil
	case KindPercentage:
		return Percentage{Percent: value}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownDiscountKind, "%q", kind)
	}
}

// Coupon is a promotional discount created either by the platform or by an agent.
type Coupon struct {
	ID       string
	Code     string
	Discount Discount
	// AgentID is empty for platform-issued coupons.
	AgentID     string
	TypeID      string
	Description string
	ValidFrom   time.Time
	ValidUntil  time.Time
	// MaxUsageCount is nil when usage is unlimited.
	MaxUsageCount     *int
	CurrentUsageCount int
	Active            bool
	// CourseIDs restricts the coupon to the listed courses. Empty means every course.
	CourseIDs []string
}

// Tier reports which stacking tier the coupon belongs to.
func (c *Coupon) Tier() Tier {
	if c.AgentID == "" {
		return TierAdministrator
	}
	return TierAgent
}

// Exhausted reports whether the usage cap has been reached.
func (c *Coupon) Exhausted() bool {
	return c.MaxUsageCount != nil && c.CurrentUsageCount >= *c.MaxUsageCount
}

// RestrictedTo reports whether the coupon may be used for the given course
// according to its restriction set.
func (c *Coupon) RestrictedTo(courseID string) bool {
	if len(c.CourseIDs) == 0 {
		return true
	}
	for _, id := range c.CourseIDs {
		if id == courseID {
			return true
		}
	}
	return false
}

// Assignment grants a coupon to one buyer for one course.
type Assignment struct {
	CouponID string
	BuyerID  string
	CourseID string
}

// Type groups coupons for authoring and carries the maximum discount value
// coupons of that type may be created with.
type Type struct {
	ID       string
	Name     string
	MaxLimit decimal.Decimal
}

// Catalog provides read access to coupon records. Implementations may
// over-return (expired, exhausted); eligibility is decided by Evaluate.
type Catalog interface {
	// GeneralCoupons returns active coupons that are unrestricted or restricted
	// to the given course.
	GeneralCoupons(ctx context.Context, courseID string) ([]Coupon, error)
	// PersonalCoupons returns coupons assigned to buyerID for courseID.
	PersonalCoupons(ctx context.Context, buyerID, courseID string) ([]Coupon, error)
	// Assignments returns every assignment referencing the given coupons, keyed
	// by coupon id, across all courses.
	Assignments(ctx context.Context, couponIDs []string) (map[string][]Assignment, error)
	// FindByCode looks a coupon up case-insensitively. Returns ErrCouponNotFound.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
}

// Store persists coupons created through the authoring path.
type Store interface {
	GetType(ctx context.Context, id string) (*Type, error)
	Create(ctx context.Context, c *Coupon) error
	CreateAssignment(ctx context.Context, a Assignment) error
	Deactivate(ctx context.Context, couponID string) error
}
