package coupon

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var evalNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func baseCoupon() Coupon {
	return Coupon{
		ID:         "c1",
		Code:       "WELCOME",
		Discount:   FixedAmount{Amount: decimal.NewFromInt(100)},
		ValidFrom:  evalNow.Add(-24 * time.Hour),
		ValidUntil: evalNow.Add(24 * time.Hour),
		Active:     true,
	}
}

func intPtr(n int) *int { return &n }

func TestEvaluate(t *testing.T) {
	assigned := []Assignment{{CouponID: "c1", BuyerID: "buyer-a", CourseID: "course-x"}}

	tests := []struct {
		name         string
		mutate       func(c *Coupon)
		ctx          EvalContext
		wantEligible bool
		wantPersonal bool
		wantReason   Reason
	}{
		{
			name:         "general coupon",
			ctx:          EvalContext{CourseID: "course-x"},
			wantEligible: true,
		},
		{
			name:       "inactive",
			mutate:     func(c *Coupon) { c.Active = false },
			ctx:        EvalContext{CourseID: "course-x"},
			wantReason: ReasonInactive,
		},
		{
			name:       "not yet valid",
			mutate:     func(c *Coupon) { c.ValidFrom = evalNow.Add(time.Minute) },
			ctx:        EvalContext{CourseID: "course-x"},
			wantReason: ReasonNotYetValid,
		},
		{
			name:       "expired",
			mutate:     func(c *Coupon) { c.ValidUntil = evalNow.Add(-time.Minute) },
			ctx:        EvalContext{CourseID: "course-x"},
			wantReason: ReasonExpired,
		},
		{
			name:         "window bounds are inclusive",
			mutate:       func(c *Coupon) { c.ValidUntil = evalNow },
			ctx:          EvalContext{CourseID: "course-x"},
			wantEligible: true,
		},
		{
			name: "usage count equal to cap",
			mutate: func(c *Coupon) {
				c.MaxUsageCount = intPtr(1)
				c.CurrentUsageCount = 1
			},
			ctx:        EvalContext{CourseID: "course-x"},
			wantReason: ReasonUsageLimitReached,
		},
		{
			name: "usage below cap",
			mutate: func(c *Coupon) {
				c.MaxUsageCount = intPtr(2)
				c.CurrentUsageCount = 1
			},
			ctx:          EvalContext{CourseID: "course-x"},
			wantEligible: true,
		},
		{
			name:       "restricted to other course",
			mutate:     func(c *Coupon) { c.CourseIDs = []string{"course-y"} },
			ctx:        EvalContext{CourseID: "course-x"},
			wantReason: ReasonNotValidForCourse,
		},
		{
			name:         "restricted to this course",
			mutate:       func(c *Coupon) { c.CourseIDs = []string{"course-y", "course-x"} },
			ctx:          EvalContext{CourseID: "course-x"},
			wantEligible: true,
		},
		{
			name:       "personal coupon for anonymous buyer",
			ctx:        EvalContext{CourseID: "course-x", Assignments: assigned},
			wantReason: ReasonRequiresLogin,
		},
		{
			name:       "personal coupon for another buyer",
			ctx:        EvalContext{CourseID: "course-x", BuyerID: "buyer-b", Assignments: assigned},
			wantReason: ReasonNotAssigned,
		},
		{
			name:       "personal coupon for another course",
			ctx:        EvalContext{CourseID: "course-y", BuyerID: "buyer-a", Assignments: assigned},
			wantReason: ReasonNotAssigned,
		},
		{
			name:         "personal coupon for assigned pair",
			ctx:          EvalContext{CourseID: "course-x", BuyerID: "buyer-a", Assignments: assigned},
			wantEligible: true,
			wantPersonal: true,
		},
		{
			name: "first failing rule wins",
			mutate: func(c *Coupon) {
				c.Active = false
				c.ValidUntil = evalNow.Add(-time.Minute)
				c.CourseIDs = []string{"course-y"}
			},
			ctx:        EvalContext{CourseID: "course-x"},
			wantReason: ReasonInactive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := baseCoupon()
			if tt.mutate != nil {
				tt.mutate(&c)
			}
			tt.ctx.Now = evalNow

			got := Evaluate(&c, tt.ctx)
			assert.Equal(t, tt.wantEligible, got.Eligible)
			assert.Equal(t, tt.wantPersonal, got.Personal)
			assert.Equal(t, tt.wantReason, got.Reason)
		})
	}
}

func TestReason_Message(t *testing.T) {
	assert.Equal(t, "coupon has expired", ReasonExpired.Message())
	assert.Equal(t, "coupon is not assigned to you", ReasonNotAssigned.Message())
	assert.Equal(t, "custom", Reason("custom").Message())
}
