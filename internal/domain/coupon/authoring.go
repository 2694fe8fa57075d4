package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ValidationError describes why a coupon draft was rejected.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ExceedsTypeLimitError is returned when a draft's discount value is above the
// maximum its coupon type allows.
type ExceedsTypeLimitError struct {
	TypeID string
	Limit  decimal.Decimal
	Value  decimal.Decimal
}

func (e *ExceedsTypeLimitError) Error() string {
	return fmt.Sprintf("discount value %s exceeds limit %s of coupon type %s", e.Value, e.Limit, e.TypeID)
}

// Draft is the input for creating a coupon.
type Draft struct {
	Code          string       `validate:"required,min=3,max=64,alphanumunicode"`
	Kind          DiscountKind `validate:"required,oneof=FIXED_AMOUNT PERCENTAGE"`
	Value         decimal.Decimal
	TypeID        string `validate:"required"`
	AgentID       string
	Description   string    `validate:"max=500"`
	ValidFrom     time.Time `validate:"required"`
	ValidUntil    time.Time `validate:"required"`
	MaxUsageCount *int      `validate:"omitempty,gt=0"`
	CourseIDs     []string  `validate:"dive,required"`
}

// Authoring creates and maintains coupons on behalf of administrators and agents.
type Authoring struct {
	store    Store
	validate *validator.Validate
}

// NewAuthoring creates an Authoring service backed by the given Store.
func NewAuthoring(store Store) *Authoring {
	return &Authoring{store: store, validate: validator.New()}
}

// Create validates the draft against its coupon type and persists a new
// active coupon with zero usage.
func (a *Authoring) Create(ctx context.Context, d Draft) (*Coupon, error) {
	d.Code = strings.TrimSpace(d.Code)
	if err := a.check(d); err != nil {
		return nil, err
	}

	typ, err := a.store.GetType(ctx, d.TypeID)
	if err != nil {
		return nil, errors.Wrap(err, "get coupon type")
	}
	if d.Value.GreaterThan(typ.MaxLimit) {
		return nil, &ExceedsTypeLimitError{TypeID: typ.ID, Limit: typ.MaxLimit, Value: d.Value}
	}

	discount, err := NewDiscount(d.Kind, d.Value)
	if err != nil {
		return nil, err
	}

	c := &Coupon{
		ID:            uuid.New().String(),
		Code:          d.Code,
		Discount:      discount,
		AgentID:       d.AgentID,
		TypeID:        d.TypeID,
		Description:   d.Description,
		ValidFrom:     d.ValidFrom,
		ValidUntil:    d.ValidUntil,
		MaxUsageCount: d.MaxUsageCount,
		Active:        true,
		CourseIDs:     d.CourseIDs,
	}
	if err := a.store.Create(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create coupon")
	}
	return c, nil
}

// Assign grants a coupon to a buyer for a course, making the coupon personal.
func (a *Authoring) Assign(ctx context.Context, as Assignment) error {
	if as.CouponID == "" || as.BuyerID == "" || as.CourseID == "" {
		return &ValidationError{Message: "coupon, buyer and course are required"}
	}
	if err := a.store.CreateAssignment(ctx, as); err != nil {
		return errors.Wrap(err, "create assignment")
	}
	return nil
}

// Deactivate permanently removes a coupon from future eligibility.
func (a *Authoring) Deactivate(ctx context.Context, couponID string) error {
	if err := a.store.Deactivate(ctx, couponID); err != nil {
		return errors.Wrap(err, "deactivate coupon")
	}
	return nil
}

func (a *Authoring) check(d Draft) error {
	if err := a.validate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ValidationError{Field: fe.Field(), Message: "failed on " + fe.Tag()}
		}
		return errors.Wrap(err, "validate draft")
	}
	if !d.Value.IsPositive() {
		return &ValidationError{Field: "Value", Message: "must be positive"}
	}
	if d.Kind == KindPercentage && d.Value.GreaterThan(hundred) {
		return &ValidationError{Field: "Value", Message: "percentage must not exceed 100"}
	}
	if !d.ValidFrom.Before(d.ValidUntil) {
		return &ValidationError{Field: "ValidUntil", Message: "must be after ValidFrom"}
	}
	return nil
}
