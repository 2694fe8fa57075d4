package payment

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/academy-pricing/internal/domain/pricing"
)

// CompleteRequest describes a payment that the payment provider confirmed.
type CompleteRequest struct {
	PaymentID string
	CourseID  string
	BuyerID   string
	// Amount is what the buyer paid. When set it must equal the quoted final price.
	Amount *decimal.Decimal
}

// Result is the outcome of Complete.
type Result struct {
	Completion Completion
	Quote      *pricing.Quote
	// Replayed is set when the payment id had already been completed; nothing
	// was written.
	Replayed bool
}

// Service completes payments.
type Service struct {
	quoter     Quoter
	store      Store
	maxRetries uint64
	newBackOff func() backoff.BackOff
	now        func() time.Time
}

// NewService creates a payment Service. maxRetries bounds retries of
// serialization conflicts.
func NewService(quoter Quoter, store Store, maxRetries uint64) *Service {
	return &Service{
		quoter:     quoter,
		store:      store,
		maxRetries: maxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 10 * time.Millisecond
			b.MaxInterval = 250 * time.Millisecond
			return b
		},
		now: time.Now,
	}
}

// Complete re-prices the purchase and commits it. Coupon usage is checked
// again inside the transaction; a coupon that ran out since the quote yields
// an error matching ErrConcurrentExhaustion and nothing is written.
func (s *Service) Complete(ctx context.Context, req CompleteRequest) (*Result, error) {
	if req.PaymentID == "" || req.CourseID == "" {
		return nil, errors.Wrap(ErrInvalidRequest, "payment and course ids are required")
	}
	lg := zctx.From(ctx).With(zap.String("payment_id", req.PaymentID))

	if prev, err := s.store.Get(ctx, req.PaymentID); err == nil {
		return &Result{Completion: *prev, Replayed: true}, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "lookup payment")
	}

	now := s.now()
	q, err := s.quoter.Quote(ctx, pricing.QuoteRequest{
		CourseID: req.CourseID,
		BuyerID:  req.BuyerID,
		At:       now,
	})
	if err != nil {
		return nil, errors.Wrap(err, "quote")
	}
	if req.Amount != nil && !req.Amount.Equal(q.FinalPrice) {
		return nil, errors.Wrapf(ErrPriceMismatch, "paid %s, quoted %s", req.Amount, q.FinalPrice)
	}

	c := Completion{
		PaymentID:     req.PaymentID,
		CourseID:      q.CourseID,
		BuyerID:       req.BuyerID,
		OriginalPrice: q.OriginalPrice,
		FinalPrice:    q.FinalPrice,
		CouponIDs:     q.CouponIDs(),
		Commissions:   q.Commissions,
		CompletedAt:   now,
	}

	replayed := false
	attempt := 0
	op := func() error {
		attempt++
		err := s.store.Complete(ctx, c)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrAlreadyCompleted):
			replayed = true
			return nil
		case errors.Is(err, ErrSerialization):
			lg.Warn("Serialization conflict, retrying", zap.Int("attempt", attempt))
			return err
		default:
			return backoff.Permanent(err)
		}
	}
	b := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), s.maxRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, errors.Wrap(err, "complete payment")
	}

	if replayed {
		prev, err := s.store.Get(ctx, req.PaymentID)
		if err != nil {
			return nil, errors.Wrap(err, "load completed payment")
		}
		return &Result{Completion: *prev, Replayed: true}, nil
	}

	lg.Info("Payment completed",
		zap.String("course_id", c.CourseID),
		zap.Stringer("final_price", c.FinalPrice),
		zap.Strings("coupons", c.CouponIDs),
		zap.Int("commissions", len(c.Commissions)),
	)
	return &Result{Completion: c, Quote: q}, nil
}
