// Package payment records completed course purchases, consuming coupon uses
// and booking agent commissions.
package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/academy-pricing/internal/domain/pricing"
)

var (
	// ErrConcurrentExhaustion is returned when a coupon can no longer be
	// consumed at commit time: its last use was taken, or it was deactivated
	// or expired after the quote.
	ErrConcurrentExhaustion = errors.New("coupon no longer available")
	// ErrAlreadyCompleted is returned by a Store when the payment id exists.
	ErrAlreadyCompleted = errors.New("payment already completed")
	// ErrSerialization marks transient transaction conflicts that may be retried.
	ErrSerialization = errors.New("transaction serialization failure")
	// ErrPriceMismatch is returned when the amount paid differs from the
	// current quote.
	ErrPriceMismatch = errors.New("paid amount does not match quote")
	// ErrInvalidRequest is returned for structurally invalid requests.
	ErrInvalidRequest = errors.New("invalid payment request")
	// ErrNotFound is returned by Store.Get for unknown payment ids.
	ErrNotFound = errors.New("payment not found")
)

// ExhaustedError names the coupon that failed the commit-time check.
type ExhaustedError struct {
	CouponID string
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("coupon %s no longer available", e.CouponID)
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrConcurrentExhaustion
}

// Completion is what gets persisted for one successful payment.
type Completion struct {
	PaymentID     string
	CourseID      string
	BuyerID       string
	OriginalPrice decimal.Decimal
	FinalPrice    decimal.Decimal
	// CouponIDs are consumed once each, in order.
	CouponIDs   []string
	Commissions []pricing.Commission
	CompletedAt time.Time
}

// Store persists completions atomically.
type Store interface {
	// Complete inserts the payment, consumes one use of every coupon and
	// records commissions in a single transaction. It returns
	// ErrAlreadyCompleted for a known payment id, an error matching
	// ErrConcurrentExhaustion when a coupon cannot be consumed and
	// ErrSerialization for retryable conflicts.
	Complete(ctx context.Context, c Completion) error
	// Get returns a stored completion.
	Get(ctx context.Context, paymentID string) (*Completion, error)
}

// Quoter prices a purchase.
type Quoter interface {
	Quote(ctx context.Context, req pricing.QuoteRequest) (*pricing.Quote, error)
}
