// Package handler exposes the pricing engine over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/academy-pricing/internal/domain/auth"
	"github.com/xenking/academy-pricing/internal/domain/coupon"
	"github.com/xenking/academy-pricing/internal/domain/payment"
	"github.com/xenking/academy-pricing/internal/domain/pricing"
	"github.com/xenking/academy-pricing/pkg/httpmiddleware"
)

// Quoter prices a prospective purchase.
type Quoter interface {
	Quote(ctx context.Context, req pricing.QuoteRequest) (*pricing.Quote, error)
}

// CouponValidator checks a single coupon code.
type CouponValidator interface {
	Validate(ctx context.Context, req coupon.ValidateRequest) (*coupon.Validation, error)
}

// CouponAuthor creates and maintains coupons.
type CouponAuthor interface {
	Create(ctx context.Context, d coupon.Draft) (*coupon.Coupon, error)
	Assign(ctx context.Context, a coupon.Assignment) error
	Deactivate(ctx context.Context, couponID string) error
}

// PaymentCompleter records completed payments.
type PaymentCompleter interface {
	Complete(ctx context.Context, req payment.CompleteRequest) (*payment.Result, error)
}

// Authenticator resolves raw API keys.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*auth.APIKey, error)
}

// Handler serves the /api routes.
type Handler struct {
	quotes    Quoter
	validator CouponValidator
	authoring CouponAuthor
	payments  PaymentCompleter
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	quotes Quoter,
	validator CouponValidator,
	authoring CouponAuthor,
	payments PaymentCompleter,
) *Handler {
	return &Handler{
		quotes:    quotes,
		validator: validator,
		authoring: authoring,
		payments:  payments,
	}
}

// Routes returns the API router. Every route requires an API key with the
// scope named next to it; extra middlewares run inside the router, before
// authentication.
func (h *Handler) Routes(authn Authenticator, mws ...httpmiddleware.Middleware) http.Handler {
	r := chi.NewRouter()
	for _, mw := range mws {
		r.Use(mw)
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Group(func(r chi.Router) {
		r.Use(RequireScope(authn, auth.ScopePricing))
		r.Get("/courses/{courseID}/quote", h.getQuote)
		r.Post("/coupons/validate", h.validateCoupon)
	})
	r.Group(func(r chi.Router) {
		r.Use(RequireScope(authn, auth.ScopeAdmin))
		r.Post("/coupons", h.createCoupon)
		r.Post("/coupons/{couponID}/assignments", h.assignCoupon)
		r.Post("/coupons/{couponID}/deactivate", h.deactivateCoupon)
	})
	r.Group(func(r chi.Router) {
		r.Use(RequireScope(authn, auth.ScopePayments))
		r.Post("/payments", h.completePayment)
	})
	return r
}
