package coupon

import "time"

// Reason explains why a coupon is not eligible. The zero value means eligible.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonNotFound          Reason = "not_found"
	ReasonInactive          Reason = "inactive"
	ReasonNotYetValid       Reason = "not_yet_valid"
	ReasonExpired           Reason = "expired"
	ReasonUsageLimitReached Reason = "usage_limit_reached"
	ReasonNotValidForCourse Reason = "not_valid_for_course"
	ReasonRequiresLogin     Reason = "requires_login"
	ReasonNotAssigned       Reason = "not_assigned"
)

// Message returns a buyer-facing description of the reason.
func (r Reason) Message() string {
	switch r {
	case ReasonNone:
		return "coupon applied"
	case ReasonNotFound:
		return "coupon not found"
	case ReasonInactive:
		return "coupon is no longer active"
	case ReasonNotYetValid:
		return "coupon is not valid yet"
	case ReasonExpired:
		return "coupon has expired"
	case ReasonUsageLimitReached:
		return "coupon usage limit reached"
	case ReasonNotValidForCourse:
		return "coupon is not valid for this course"
	case ReasonRequiresLogin:
		return "log in to use this coupon"
	case ReasonNotAssigned:
		return "coupon is not assigned to you"
	default:
		return string(r)
	}
}

// EvalContext is the request-side input to Evaluate.
type EvalContext struct {
	Now      time.Time
	CourseID string
	// BuyerID is empty for anonymous buyers.
	BuyerID string
	// Assignments holds every personal assignment of the evaluated coupon,
	// for any buyer and any course.
	Assignments []Assignment
}

// Decision is the outcome of Evaluate.
type Decision struct {
	Eligible bool
	// Personal is set when eligibility came from an explicit assignment.
	Personal bool
	Reason   Reason
}

// Evaluate applies the eligibility rules in order; the first failing rule
// determines the reason.
func Evaluate(c *Coupon, ec EvalContext) Decision {
	if !c.Active {
		return reject(ReasonInactive)
	}
	if ec.Now.Before(c.ValidFrom) {
		return reject(ReasonNotYetValid)
	}
	if ec.Now.After(c.ValidUntil) {
		return reject(ReasonExpired)
	}
	if c.Exhausted() {
		return reject(ReasonUsageLimitReached)
	}
	if !c.RestrictedTo(ec.CourseID) {
		return reject(ReasonNotValidForCourse)
	}

	// A coupon with any assignment at all is personal everywhere.
	if len(ec.Assignments) == 0 {
		return Decision{Eligible: true}
	}
	if ec.BuyerID == "" {
		return reject(ReasonRequiresLogin)
	}
	for _, a := range ec.Assignments {
		if a.CouponID == c.ID && a.BuyerID == ec.BuyerID && a.CourseID == ec.CourseID {
			return Decision{Eligible: true, Personal: true}
		}
	}
	return reject(ReasonNotAssigned)
}

func reject(r Reason) Decision {
	return Decision{Reason: r}
}
