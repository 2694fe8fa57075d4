package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/academy-pricing/internal/domain/pricing"
)

// getQuote handles GET /courses/{courseID}/quote?buyerId=&at=.
func (h *Handler) getQuote(w http.ResponseWriter, r *http.Request) {
	req := pricing.QuoteRequest{
		CourseID: chi.URLParam(r, "courseID"),
		BuyerID:  r.URL.Query().Get("buyerId"),
	}
	if at := r.URL.Query().Get("at"); at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid RFC 3339 time in at")
			return
		}
		req.At = t
	}

	q, err := h.quotes.Quote(r.Context(), req)
	if err != nil {
		mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeQuote(e, q) })
}
