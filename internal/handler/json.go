package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/academy-pricing/internal/domain/coupon"
	"github.com/xenking/academy-pricing/internal/domain/pricing"
)

const maxBodyBytes = 1 << 20

// badRequestError marks malformed request bodies.
type badRequestError struct {
	err error
}

func (e *badRequestError) Error() string { return e.err.Error() }
func (e *badRequestError) Unwrap() error { return e.err }

func badRequest(format string, args ...any) error {
	return &badRequestError{err: errors.Errorf(format, args...)}
}

// decodeBody reads a JSON object, calling field for each key.
func decodeBody(r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return &badRequestError{err: errors.Wrap(err, "read body")}
	}
	if err := jx.DecodeBytes(body).Obj(fn); err != nil {
		var bre *badRequestError
		if errors.As(err, &bre) {
			return bre
		}
		return &badRequestError{err: errors.Wrap(err, "decode body")}
	}
	return nil
}

// readDecimal accepts a JSON string or number.
func readDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = n.String()
	default:
		return decimal.Zero, badRequest("expected decimal")
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, badRequest("invalid decimal %q", raw)
	}
	return v, nil
}

func readTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, badRequest("invalid RFC 3339 time %q", s)
	}
	return t, nil
}

func readStrings(d *jx.Decoder) ([]string, error) {
	var out []string
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		out = append(out, s)
		return err
	})
	return out, err
}

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	var e jx.Encoder
	fn(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func field(e *jx.Encoder, name, value string) {
	e.Field(name, func(e *jx.Encoder) { e.Str(value) })
}

func decimalField(e *jx.Encoder, name string, v decimal.Decimal) {
	field(e, name, v.String())
}

func encodeQuote(e *jx.Encoder, q *pricing.Quote) {
	e.Obj(func(e *jx.Encoder) {
		field(e, "courseId", q.CourseID)
		if q.BuyerID != "" {
			field(e, "buyerId", q.BuyerID)
		}
		decimalField(e, "originalPrice", q.OriginalPrice)
		decimalField(e, "administratorDiscount", q.AdministratorDiscount)
		decimalField(e, "priceAfterAdministrator", q.PriceAfterAdministrator)
		decimalField(e, "agentDiscount", q.AgentDiscount)
		decimalField(e, "totalDiscount", q.TotalDiscount())
		decimalField(e, "finalPrice", q.FinalPrice)
		field(e, "evaluatedAt", q.EvaluatedAt.UTC().Format(time.RFC3339))
		e.Field("appliedCoupons", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, a := range q.Applied {
					encodeApplied(e, a)
				}
			})
		})
		e.Field("commissions", func(e *jx.Encoder) {
			encodeCommissions(e, q.Commissions)
		})
	})
}

func encodeApplied(e *jx.Encoder, a pricing.AppliedCoupon) {
	e.Obj(func(e *jx.Encoder) {
		field(e, "id", a.CouponID)
		field(e, "code", a.Code)
		field(e, "kind", string(a.Kind))
		decimalField(e, "value", a.Value)
		decimalField(e, "amount", a.Amount)
		decimalField(e, "priceBefore", a.PriceBefore)
		field(e, "tier", a.Tier.String())
		e.Field("personal", func(e *jx.Encoder) { e.Bool(a.Personal) })
		if a.AgentID != "" {
			field(e, "agentId", a.AgentID)
		}
	})
}

func encodeCommissions(e *jx.Encoder, cs []pricing.Commission) {
	e.Arr(func(e *jx.Encoder) {
		for _, c := range cs {
			e.Obj(func(e *jx.Encoder) {
				field(e, "agentId", c.AgentID)
				field(e, "agentCode", c.AgentCode)
				field(e, "couponId", c.CouponID)
				decimalField(e, "saleAmount", c.SaleAmount)
				decimalField(e, "rate", c.Rate)
				field(e, "rateSource", string(c.RateSource))
				decimalField(e, "amount", c.Amount)
			})
		}
	})
}

func encodeCoupon(e *jx.Encoder, c *coupon.Coupon) {
	e.Obj(func(e *jx.Encoder) {
		field(e, "id", c.ID)
		field(e, "code", c.Code)
		if c.Discount != nil {
			field(e, "kind", string(c.Discount.Kind()))
			decimalField(e, "value", c.Discount.Value())
		}
		field(e, "tier", c.Tier().String())
		if c.AgentID != "" {
			field(e, "agentId", c.AgentID)
		}
		field(e, "typeId", c.TypeID)
		if c.Description != "" {
			field(e, "description", c.Description)
		}
		field(e, "validFrom", c.ValidFrom.UTC().Format(time.RFC3339))
		field(e, "validUntil", c.ValidUntil.UTC().Format(time.RFC3339))
		if c.MaxUsageCount != nil {
			e.Field("maxUsageCount", func(e *jx.Encoder) { e.Int(*c.MaxUsageCount) })
		}
		e.Field("currentUsageCount", func(e *jx.Encoder) { e.Int(c.CurrentUsageCount) })
		e.Field("active", func(e *jx.Encoder) { e.Bool(c.Active) })
		e.Field("courseIds", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, id := range c.CourseIDs {
					e.Str(id)
				}
			})
		})
	})
}
