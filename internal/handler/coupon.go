package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/academy-pricing/internal/domain/coupon"
)

// validateCoupon handles POST /coupons/validate. An ineligible code is a 200
// with eligible=false; only unknown codes are 404.
func (h *Handler) validateCoupon(w http.ResponseWriter, r *http.Request) {
	var req coupon.ValidateRequest
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			req.Code, err = d.Str()
		case "courseId":
			req.CourseID, err = d.Str()
		case "buyerId":
			req.BuyerID, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		mapError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Code) == "" || req.CourseID == "" {
		writeError(w, r, http.StatusBadRequest, "code and courseId are required")
		return
	}

	v, err := h.validator.Validate(r.Context(), req)
	if err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			field(e, "code", v.Coupon.Code)
			e.Field("eligible", func(e *jx.Encoder) { e.Bool(v.Eligible) })
			e.Field("personal", func(e *jx.Encoder) { e.Bool(v.Personal) })
			if v.Reason != coupon.ReasonNone {
				field(e, "reason", string(v.Reason))
			}
			field(e, "message", v.Reason.Message())
			decimalField(e, "discount", v.Discount)
			e.Field("coupon", func(e *jx.Encoder) { encodeCoupon(e, v.Coupon) })
		})
	})
}

// createCoupon handles POST /coupons.
func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	var d coupon.Draft
	err := decodeBody(r, func(dec *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			d.Code, err = dec.Str()
		case "kind":
			var s string
			s, err = dec.Str()
			d.Kind = coupon.DiscountKind(strings.ToUpper(s))
		case "value":
			d.Value, err = readDecimal(dec)
		case "typeId":
			d.TypeID, err = dec.Str()
		case "agentId":
			d.AgentID, err = dec.Str()
		case "description":
			d.Description, err = dec.Str()
		case "validFrom":
			d.ValidFrom, err = readTime(dec)
		case "validUntil":
			d.ValidUntil, err = readTime(dec)
		case "maxUsageCount":
			if dec.Next() == jx.Null {
				return dec.Null()
			}
			var n int
			n, err = dec.Int()
			d.MaxUsageCount = &n
		case "courseIds":
			d.CourseIDs, err = readStrings(dec)
		default:
			err = dec.Skip()
		}
		return err
	})
	if err != nil {
		mapError(w, r, err)
		return
	}

	c, err := h.authoring.Create(r.Context(), d)
	if err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCoupon(e, c) })
}

// assignCoupon handles POST /coupons/{couponID}/assignments.
func (h *Handler) assignCoupon(w http.ResponseWriter, r *http.Request) {
	a := coupon.Assignment{CouponID: chi.URLParam(r, "couponID")}
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "buyerId":
			a.BuyerID, err = d.Str()
		case "courseId":
			a.CourseID, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		mapError(w, r, err)
		return
	}
	if err := h.authoring.Assign(r.Context(), a); err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			field(e, "couponId", a.CouponID)
			field(e, "buyerId", a.BuyerID)
			field(e, "courseId", a.CourseID)
		})
	})
}

// deactivateCoupon handles POST /coupons/{couponID}/deactivate.
func (h *Handler) deactivateCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.authoring.Deactivate(r.Context(), chi.URLParam(r, "couponID")); err != nil {
		mapError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
