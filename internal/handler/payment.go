package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/academy-pricing/internal/domain/payment"
)

// completePayment handles POST /payments. A first completion answers 201,
// a replay of a known payment id answers 200 with the stored record.
func (h *Handler) completePayment(w http.ResponseWriter, r *http.Request) {
	var req payment.CompleteRequest
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "paymentId":
			req.PaymentID, err = d.Str()
		case "courseId":
			req.CourseID, err = d.Str()
		case "buyerId":
			req.BuyerID, err = d.Str()
		case "amount":
			amount, derr := readDecimal(d)
			req.Amount, err = &amount, derr
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		mapError(w, r, err)
		return
	}

	res, err := h.payments.Complete(r.Context(), req)
	if err != nil {
		mapError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	c := res.Completion
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			field(e, "paymentId", c.PaymentID)
			field(e, "courseId", c.CourseID)
			if c.BuyerID != "" {
				field(e, "buyerId", c.BuyerID)
			}
			decimalField(e, "originalPrice", c.OriginalPrice)
			decimalField(e, "finalPrice", c.FinalPrice)
			e.Field("couponIds", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, id := range c.CouponIDs {
						e.Str(id)
					}
				})
			})
			e.Field("commissions", func(e *jx.Encoder) { encodeCommissions(e, c.Commissions) })
			field(e, "completedAt", c.CompletedAt.UTC().Format(time.RFC3339))
			e.Field("replayed", func(e *jx.Encoder) { e.Bool(res.Replayed) })
		})
	})
}
