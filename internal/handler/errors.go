package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/academy-pricing/internal/domain/coupon"
	"github.com/xenking/academy-pricing/internal/domain/course"
	"github.com/xenking/academy-pricing/internal/domain/payment"
)

func writeError(w http.ResponseWriter, _ *http.Request, status int, msg string, extra ...func(e *jx.Encoder)) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			field(e, "message", msg)
			for _, fn := range extra {
				fn(e)
			}
		})
	})
}

// mapError translates domain errors into HTTP responses.
func mapError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		bre   *badRequestError
		vErr  *coupon.ValidationError
		limit *coupon.ExceedsTypeLimitError
		exh   *payment.ExhaustedError
	)
	switch {
	case errors.As(err, &bre):
		writeError(w, r, http.StatusBadRequest, bre.Error())
	case errors.Is(err, course.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "course not found")
	case errors.Is(err, coupon.ErrCouponNotFound):
		writeError(w, r, http.StatusNotFound, coupon.ReasonNotFound.Message(), func(e *jx.Encoder) {
			field(e, "reason", string(coupon.ReasonNotFound))
		})
	case errors.As(err, &vErr):
		writeError(w, r, http.StatusUnprocessableEntity, vErr.Error(), func(e *jx.Encoder) {
			field(e, "field", vErr.Field)
		})
	case errors.As(err, &limit):
		writeError(w, r, http.StatusUnprocessableEntity, limit.Error())
	case errors.Is(err, coupon.ErrTypeNotFound):
		writeError(w, r, http.StatusUnprocessableEntity, "coupon type not found")
	case errors.Is(err, coupon.ErrDuplicateCode):
		writeError(w, r, http.StatusConflict, "coupon code already exists")
	case errors.As(err, &exh):
		writeError(w, r, http.StatusConflict, exh.Error(), func(e *jx.Encoder) {
			field(e, "couponId", exh.CouponID)
		})
	case errors.Is(err, payment.ErrPriceMismatch):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, payment.ErrInvalidRequest):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, payment.ErrSerialization):
		w.Header().Set("Retry-After", "1")
		writeError(w, r, http.StatusServiceUnavailable, "payment store busy, retry")
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
