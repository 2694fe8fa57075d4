package repository

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/academy-pricing/internal/domain/coupon"
)

func TestUnknownReference(t *testing.T) {
	tests := []struct {
		constraint string
		wantField  string
	}{
		{constraint: "coupons_agent_id_fkey", wantField: "AgentID"},
		{constraint: "coupons_type_id_fkey", wantField: "TypeID"},
		{constraint: "coupon_courses_course_id_fkey", wantField: "CourseIDs"},
		{constraint: "coupon_assignments_course_id_fkey", wantField: "CourseID"},
		{constraint: "something_else_fkey", wantField: ""},
	}

	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			err := fmt.Errorf("exec: %w", &pgconn.PgError{
				Code:           codeForeignKeyViolation,
				ConstraintName: tt.constraint,
			})
			require.Equal(t, codeForeignKeyViolation, pgCode(err))

			vErr := unknownReference(err)
			assert.Equal(t, tt.wantField, vErr.Field)
			assert.Equal(t, "references an unknown record", vErr.Message)
		})
	}
}

// fakeRow feeds fixed column values to a scan function.
type fakeRow struct {
	values []any
}

func (r fakeRow) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r fakeRow) Values() ([]any, error)                       { return r.values, nil }
func (r fakeRow) RawValues() [][]byte                          { return nil }

func (r fakeRow) Scan(dest ...any) error {
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(r.values))
	}
	for i, v := range r.values {
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(v))
	}
	return nil
}

var _ pgx.CollectableRow = fakeRow{}

func couponRow(kind string) fakeRow {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return fakeRow{values: []any{
		"c-1", "SPRING", kind, decimal.NewFromInt(15), "",
		"promo", "", from, from.AddDate(0, 1, 0), (*int)(nil),
		0, true, []string(nil),
	}}
}

func TestScanCoupon(t *testing.T) {
	c, err := scanCoupon(couponRow("PERCENTAGE"))
	require.NoError(t, err)
	assert.Equal(t, coupon.Percentage{Percent: decimal.NewFromInt(15)}, c.Discount)
	require.NoError(t, coupon.Check(&c))
}

func TestScanCoupon_UnknownKindKept(t *testing.T) {
	c, err := scanCoupon(couponRow("BOGO"))
	require.NoError(t, err)
	require.NotNil(t, c.Discount)
	assert.Equal(t, coupon.DiscountKind("BOGO"), c.Discount.Kind())

	err = coupon.Check(&c)
	require.ErrorIs(t, err, coupon.ErrCorrupt)
	assert.Contains(t, err.Error(), "BOGO")
}
