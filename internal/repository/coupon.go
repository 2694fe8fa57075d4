package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/academy-pricing/internal/domain/coupon"
)

const couponColumns = `c.id, c.code, c.discount_type, c.discount_value, COALESCE(c.agent_id, ''),
		c.type_id, c.description, c.valid_from, c.valid_until, c.max_usage_count,
		c.current_usage_count, c.is_active,
		ARRAY(SELECT cc.course_id FROM coupon_courses cc WHERE cc.coupon_id = c.id ORDER BY cc.course_id)`

const (
	generalCouponsSQL = `SELECT ` + couponColumns + `
		FROM coupons c
		WHERE c.is_active
		  AND (NOT EXISTS (SELECT 1 FROM coupon_courses cc WHERE cc.coupon_id = c.id)
		       OR EXISTS (SELECT 1 FROM coupon_courses cc WHERE cc.coupon_id = c.id AND cc.course_id = $1))
		ORDER BY c.created_at, c.id`

	personalCouponsSQL = `SELECT ` + couponColumns + `
		FROM coupons c
		JOIN coupon_assignments a ON a.coupon_id = c.id
		WHERE a.buyer_id = $1 AND a.course_id = $2
		ORDER BY c.created_at, c.id`

	assignmentsSQL = `SELECT coupon_id, buyer_id, course_id
		FROM coupon_assignments WHERE coupon_id = ANY($1)
		ORDER BY coupon_id, buyer_id, course_id`

	couponByCodeSQL = `SELECT ` + couponColumns + `
		FROM coupons c WHERE UPPER(c.code) = UPPER($1)`

	couponTypeSQL = `SELECT id, name, max_limit FROM coupon_types WHERE id = $1`

	insertCouponSQL = `INSERT INTO coupons (id, code, discount_type, discount_value, agent_id, type_id,
		description, valid_from, valid_until, max_usage_count, current_usage_count, is_active)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11, $12)`

	insertCouponCourseSQL = `INSERT INTO coupon_courses (coupon_id, course_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`

	insertAssignmentSQL = `INSERT INTO coupon_assignments (coupon_id, buyer_id, course_id) VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`

	deactivateCouponSQL = `UPDATE coupons SET is_active = FALSE WHERE id = $1`

	upsertCouponTypeSQL = `INSERT INTO coupon_types (id, name, max_limit) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, max_limit = EXCLUDED.max_limit`

	existingCodesSQL = `SELECT UPPER(code) FROM coupons`
)

var (
	_ coupon.Catalog = (*CouponRepository)(nil)
	_ coupon.Store   = (*CouponRepository)(nil)
)

// CouponRepository implements coupon.Catalog and coupon.Store backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// GeneralCoupons returns active coupons that are unrestricted or restricted to
// courseID. Personal coupons are included; eligibility sorts them out.
func (r *CouponRepository) GeneralCoupons(ctx context.Context, courseID string) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, generalCouponsSQL, courseID)
	if err != nil {
		return nil, fmt.Errorf("listing general coupons for %q: %w", courseID, err)
	}
	return pgx.CollectRows(rows, scanCoupon)
}

// PersonalCoupons returns coupons assigned to buyerID for courseID.
func (r *CouponRepository) PersonalCoupons(ctx context.Context, buyerID, courseID string) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, personalCouponsSQL, buyerID, courseID)
	if err != nil {
		return nil, fmt.Errorf("listing personal coupons: %w", err)
	}
	return pgx.CollectRows(rows, scanCoupon)
}

// Assignments returns all assignments of the given coupons keyed by coupon id.
func (r *CouponRepository) Assignments(ctx context.Context, couponIDs []string) (map[string][]coupon.Assignment, error) {
	rows, err := r.pool.Query(ctx, assignmentsSQL, couponIDs)
	if err != nil {
		return nil, fmt.Errorf("listing assignments: %w", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (coupon.Assignment, error) {
		var a coupon.Assignment
		err := row.Scan(&a.CouponID, &a.BuyerID, &a.CourseID)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing assignments: %w", err)
	}

	out := make(map[string][]coupon.Assignment, len(couponIDs))
	for _, a := range list {
		out[a.CouponID] = append(out[a.CouponID], a)
	}
	return out, nil
}

// FindByCode looks up a coupon by code (case-insensitive), active or not.
// Returns coupon.ErrCouponNotFound when no coupon has the code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, couponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrCouponNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// GetType returns a coupon type or coupon.ErrTypeNotFound.
func (r *CouponRepository) GetType(ctx context.Context, id string) (*coupon.Type, error) {
	var t coupon.Type
	err := r.pool.QueryRow(ctx, couponTypeSQL, id).Scan(&t.ID, &t.Name, &t.MaxLimit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrTypeNotFound
		}
		return nil, fmt.Errorf("getting coupon type %q: %w", id, err)
	}
	return &t, nil
}

// UpsertType inserts or replaces a coupon type. Used by seeding.
func (r *CouponRepository) UpsertType(ctx context.Context, t coupon.Type) error {
	if _, err := r.pool.Exec(ctx, upsertCouponTypeSQL, t.ID, t.Name, t.MaxLimit); err != nil {
		return fmt.Errorf("upserting coupon type %q: %w", t.ID, err)
	}
	return nil
}

// Create inserts a coupon with its course restriction set. A code clash
// returns coupon.ErrDuplicateCode; an unknown agent, type or course returns a
// *coupon.ValidationError naming the field.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	err := inTx(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertCouponSQL,
			c.ID, c.Code, string(c.Discount.Kind()), c.Discount.Value(), c.AgentID, c.TypeID,
			c.Description, c.ValidFrom, c.ValidUntil, c.MaxUsageCount, c.CurrentUsageCount, c.Active,
		); err != nil {
			return err
		}
		for _, courseID := range c.CourseIDs {
			if _, err := tx.Exec(ctx, insertCouponCourseSQL, c.ID, courseID); err != nil {
				return err
			}
		}
		return nil
	})
	switch pgCode(err) {
	case "":
	case codeUniqueViolation:
		return coupon.ErrDuplicateCode
	case codeForeignKeyViolation:
		return unknownReference(err)
	}
	if err != nil {
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// CreateAssignment records a personal assignment. Repeating an existing
// assignment is a no-op.
func (r *CouponRepository) CreateAssignment(ctx context.Context, a coupon.Assignment) error {
	_, err := r.pool.Exec(ctx, insertAssignmentSQL, a.CouponID, a.BuyerID, a.CourseID)
	if pgCode(err) == codeForeignKeyViolation {
		if pgConstraint(err) == "coupon_assignments_coupon_id_fkey" {
			return coupon.ErrCouponNotFound
		}
		return unknownReference(err)
	}
	if err != nil {
		return fmt.Errorf("creating assignment for coupon %q: %w", a.CouponID, err)
	}
	return nil
}

// Deactivate clears the active flag of a coupon.
func (r *CouponRepository) Deactivate(ctx context.Context, couponID string) error {
	tag, err := r.pool.Exec(ctx, deactivateCouponSQL, couponID)
	if err != nil {
		return fmt.Errorf("deactivating coupon %q: %w", couponID, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrCouponNotFound
	}
	return nil
}

// ExistingCodes streams every stored code, upper-cased, to fn.
func (r *CouponRepository) ExistingCodes(ctx context.Context, fn func(code string)) error {
	rows, err := r.pool.Query(ctx, existingCodesSQL)
	if err != nil {
		return fmt.Errorf("listing coupon codes: %w", err)
	}
	var code string
	_, err = pgx.ForEachRow(rows, []any{&code}, func() error {
		fn(code)
		return nil
	})
	if err != nil {
		return fmt.Errorf("listing coupon codes: %w", err)
	}
	return nil
}

// referenceFields maps the foreign keys a coupon write can violate to the
// draft field that carried the unknown id.
var referenceFields = map[string]string{
	"coupons_agent_id_fkey":             "AgentID",
	"coupons_type_id_fkey":              "TypeID",
	"coupon_courses_course_id_fkey":     "CourseIDs",
	"coupon_assignments_course_id_fkey": "CourseID",
}

func unknownReference(err error) *coupon.ValidationError {
	return &coupon.ValidationError{
		Field:   referenceFields[pgConstraint(err)],
		Message: "references an unknown record",
	}
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c     coupon.Coupon
		kind  string
		value decimal.Decimal
	)
	err := row.Scan(
		&c.ID, &c.Code, &kind, &value, &c.AgentID,
		&c.TypeID, &c.Description, &c.ValidFrom, &c.ValidUntil, &c.MaxUsageCount,
		&c.CurrentUsageCount, &c.Active, &c.CourseIDs,
	)
	if err != nil {
		return c, err
	}
	c.Discount, err = coupon.NewDiscount(coupon.DiscountKind(kind), value)
	if err != nil {
		// Kept so the integrity check can name the stored kind.
		c.Discount = coupon.Unrecognized{StoredKind: coupon.DiscountKind(kind), Payload: value}
	}
	return c, nil
}
