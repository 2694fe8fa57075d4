package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/academy-pricing/internal/domain/payment"
	"github.com/xenking/academy-pricing/internal/domain/pricing"
)

const (
	insertPaymentSQL = `INSERT INTO payments (id, course_id, buyer_id, original_price, final_price, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`

	// consumeCouponSQL re-checks availability at commit time; zero affected
	// rows means the coupon can no longer be used.
	consumeCouponSQL = `UPDATE coupons SET current_usage_count = current_usage_count + 1
		WHERE id = $1
		  AND is_active
		  AND $2 BETWEEN valid_from AND valid_until
		  AND (max_usage_count IS NULL OR current_usage_count < max_usage_count)`

	insertPaymentCouponSQL = `INSERT INTO payment_coupons (payment_id, coupon_id, position) VALUES ($1, $2, $3)`

	insertCommissionSQL = `INSERT INTO commissions
		(id, payment_id, agent_id, coupon_id, sale_amount, rate, rate_source, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	getPaymentSQL = `SELECT id, course_id, buyer_id, original_price, final_price, completed_at
		FROM payments WHERE id = $1`

	getPaymentCouponsSQL = `SELECT coupon_id FROM payment_coupons WHERE payment_id = $1 ORDER BY position`

	getCommissionsSQL = `SELECT cm.agent_id, a.code, cm.coupon_id, cm.sale_amount, cm.rate, cm.rate_source, cm.amount
		FROM commissions cm JOIN agents a ON a.id = cm.agent_id
		WHERE cm.payment_id = $1 ORDER BY cm.created_at, cm.id`
)

var _ payment.Store = (*PaymentRepository)(nil)

// PaymentRepository implements payment.Store backed by PostgreSQL.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository returns a PaymentRepository that uses the given pool.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// Complete stores the payment, consumes one use of each coupon and books
// commissions in one serializable transaction.
func (r *PaymentRepository) Complete(ctx context.Context, c payment.Completion) error {
	err := inTx(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, insertPaymentSQL,
			c.PaymentID, c.CourseID, c.BuyerID, c.OriginalPrice, c.FinalPrice, c.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting payment: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return payment.ErrAlreadyCompleted
		}

		for i, couponID := range c.CouponIDs {
			tag, err := tx.Exec(ctx, consumeCouponSQL, couponID, c.CompletedAt)
			if err != nil {
				return fmt.Errorf("consuming coupon %q: %w", couponID, err)
			}
			if tag.RowsAffected() == 0 {
				return &payment.ExhaustedError{CouponID: couponID}
			}
			if _, err := tx.Exec(ctx, insertPaymentCouponSQL, c.PaymentID, couponID, i); err != nil {
				return fmt.Errorf("linking coupon %q: %w", couponID, err)
			}
		}

		for _, cm := range c.Commissions {
			if _, err := tx.Exec(ctx, insertCommissionSQL,
				uuid.New().String(), c.PaymentID, cm.AgentID, cm.CouponID,
				cm.SaleAmount, cm.Rate, string(cm.RateSource), cm.Amount,
			); err != nil {
				return fmt.Errorf("inserting commission for agent %q: %w", cm.AgentID, err)
			}
		}
		return nil
	})

	switch pgCode(err) {
	case codeSerializationFailure, codeDeadlockDetected:
		return fmt.Errorf("%w: %w", payment.ErrSerialization, err)
	}
	return err
}

// Get loads a completed payment with its coupons and commissions.
func (r *PaymentRepository) Get(ctx context.Context, paymentID string) (*payment.Completion, error) {
	var c payment.Completion
	err := r.pool.QueryRow(ctx, getPaymentSQL, paymentID).Scan(
		&c.PaymentID, &c.CourseID, &c.BuyerID, &c.OriginalPrice, &c.FinalPrice, &c.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("getting payment %q: %w", paymentID, err)
	}

	rows, err := r.pool.Query(ctx, getPaymentCouponsSQL, paymentID)
	if err != nil {
		return nil, fmt.Errorf("getting payment coupons: %w", err)
	}
	if c.CouponIDs, err = pgx.CollectRows(rows, pgx.RowTo[string]); err != nil {
		return nil, fmt.Errorf("getting payment coupons: %w", err)
	}

	rows, err = r.pool.Query(ctx, getCommissionsSQL, paymentID)
	if err != nil {
		return nil, fmt.Errorf("getting commissions: %w", err)
	}
	c.Commissions, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (pricing.Commission, error) {
		var (
			cm  pricing.Commission
			src string
		)
		err := row.Scan(&cm.AgentID, &cm.AgentCode, &cm.CouponID, &cm.SaleAmount, &cm.Rate, &src, &cm.Amount)
		cm.RateSource = pricing.RateSource(src)
		return cm, err
	})
	if err != nil {
		return nil, fmt.Errorf("getting commissions: %w", err)
	}
	return &c, nil
}
