package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/academy-pricing/internal/domain/auth"
	"github.com/xenking/academy-pricing/internal/domain/coupon"
	"github.com/xenking/academy-pricing/internal/domain/course"
	"github.com/xenking/academy-pricing/internal/domain/payment"
	"github.com/xenking/academy-pricing/internal/domain/pricing"
)

// --- Mock implementations ---

type mockQuoter struct {
	last pricing.QuoteRequest
	err  error
}

func (m *mockQuoter) Quote(_ context.Context, req pricing.QuoteRequest) (*pricing.Quote, error) {
	m.last = req
	if m.err != nil {
		return nil, m.err
	}
	return &pricing.Quote{
		CourseID:                req.CourseID,
		BuyerID:                 req.BuyerID,
		OriginalPrice:           decimal.NewFromInt(20000),
		AdministratorDiscount:   decimal.NewFromInt(2000),
		PriceAfterAdministrator: decimal.NewFromInt(18000),
		AgentDiscount:           decimal.NewFromInt(1000),
		FinalPrice:              decimal.NewFromInt(17000),
		Applied: []pricing.AppliedCoupon{
			{CouponID: "a1", Code: "SPRING", Kind: coupon.KindPercentage, Value: decimal.NewFromInt(10),
				Amount: decimal.NewFromInt(2000), PriceBefore: decimal.NewFromInt(20000), Tier: coupon.TierAdministrator},
			{CouponID: "g1", Code: "AGENT", Kind: coupon.KindFixedAmount, Value: decimal.NewFromInt(1000),
				Amount: decimal.NewFromInt(1000), PriceBefore: decimal.NewFromInt(18000), Tier: coupon.TierAgent, AgentID: "agent-1"},
		},
		Commissions: []pricing.Commission{
			{AgentID: "agent-1", AgentCode: "AG1", CouponID: "g1", SaleAmount: decimal.NewFromInt(17000),
				Rate: decimal.RequireFromString("0.1"), RateSource: pricing.RateAgent, Amount: decimal.NewFromInt(1700)},
		},
		EvaluatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

type mockValidator struct {
	res *coupon.Validation
	err error
}

func (m *mockValidator) Validate(context.Context, coupon.ValidateRequest) (*coupon.Validation, error) {
	return m.res, m.err
}

type mockAuthor struct {
	draft    coupon.Draft
	assigned []coupon.Assignment
	err      error
}

func (m *mockAuthor) Create(_ context.Context, d coupon.Draft) (*coupon.Coupon, error) {
	m.draft = d
	if m.err != nil {
		return nil, m.err
	}
	disc, err := coupon.NewDiscount(d.Kind, d.Value)
	if err != nil {
		return nil, err
	}
	return &coupon.Coupon{
		ID: "new-id", Code: d.Code, Discount: disc, TypeID: d.TypeID,
		ValidFrom: d.ValidFrom, ValidUntil: d.ValidUntil, Active: true,
	}, nil
}

func (m *mockAuthor) Assign(_ context.Context, a coupon.Assignment) error {
	m.assigned = append(m.assigned, a)
	return m.err
}

func (m *mockAuthor) Deactivate(context.Context, string) error { return m.err }

type mockPayments struct {
	last     payment.CompleteRequest
	replayed bool
	err      error
}

func (m *mockPayments) Complete(_ context.Context, req payment.CompleteRequest) (*payment.Result, error) {
	m.last = req
	if m.err != nil {
		return nil, m.err
	}
	return &payment.Result{
		Replayed: m.replayed,
		Completion: payment.Completion{
			PaymentID:     req.PaymentID,
			CourseID:      req.CourseID,
			OriginalPrice: decimal.NewFromInt(20000),
			FinalPrice:    decimal.NewFromInt(17000),
			CouponIDs:     []string{"a1"},
			CompletedAt:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		},
	}, nil
}

// mockAuthn maps raw keys to scopes.
type mockAuthn map[string][]string

func (m mockAuthn) Authenticate(_ context.Context, raw string) (*auth.APIKey, error) {
	scopes, ok := m[raw]
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	return &auth.APIKey{ID: raw, Name: raw, Scopes: scopes}, nil
}

// --- Helpers ---

type fixture struct {
	quotes    *mockQuoter
	validator *mockValidator
	author    *mockAuthor
	payments  *mockPayments
	router    http.Handler
}

func newFixture() *fixture {
	f := &fixture{
		quotes:    &mockQuoter{},
		validator: &mockValidator{},
		author:    &mockAuthor{},
		payments:  &mockPayments{},
	}
	h := NewHandler(f.quotes, f.validator, f.author, f.payments)
	f.router = h.Routes(mockAuthn{
		"pricing-key":  {auth.ScopePricing},
		"admin-key":    {auth.ScopeAdmin},
		"payments-key": {auth.ScopePayments},
	})
	return f
}

func (f *fixture) do(method, target, key, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	if key != "" {
		r.Header.Set(APIKeyHeader, key)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	return w
}

// fields decodes a flat JSON object into raw values for assertions.
func fields(t *testing.T, body []byte) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		raw, err := d.Raw()
		out[key] = strings.Trim(raw.String(), `"`)
		return err
	})
	require.NoError(t, err)
	return out
}

// --- Tests ---

func TestAuthentication(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		key    string
		want   int
	}{
		{"missing key", http.MethodGet, "/courses/c1/quote", "", http.StatusUnauthorized},
		{"unknown key", http.MethodGet, "/courses/c1/quote", "nope", http.StatusUnauthorized},
		{"pricing key on admin route", http.MethodPost, "/coupons/c1/deactivate", "pricing-key", http.StatusForbidden},
		{"payments key on pricing route", http.MethodGet, "/courses/c1/quote", "payments-key", http.StatusForbidden},
		{"admin key everywhere", http.MethodGet, "/courses/c1/quote", "admin-key", http.StatusOK},
		{"scoped key", http.MethodGet, "/courses/c1/quote", "pricing-key", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newFixture().do(tt.method, tt.target, tt.key, "")
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestAuthentication_BackendFailure(t *testing.T) {
	h := NewHandler(&mockQuoter{}, &mockValidator{}, &mockAuthor{}, &mockPayments{})
	router := h.Routes(failingAuthn{})

	r := httptest.NewRequest(http.MethodGet, "/courses/c1/quote", nil)
	r.Header.Set(APIKeyHeader, "k")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

type failingAuthn struct{}

func (failingAuthn) Authenticate(context.Context, string) (*auth.APIKey, error) {
	return nil, errors.New("db down")
}

func TestGetQuote(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodGet, "/courses/course-x/quote?buyerId=buyer-a&at=2026-03-01T00:00:00Z", "pricing-key", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	assert.Equal(t, "course-x", f.quotes.last.CourseID)
	assert.Equal(t, "buyer-a", f.quotes.last.BuyerID)
	assert.True(t, f.quotes.last.At.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))

	got := fields(t, w.Body.Bytes())
	assert.Equal(t, "20000", got["originalPrice"])
	assert.Equal(t, "17000", got["finalPrice"])
	assert.Equal(t, "3000", got["totalDiscount"])
	assert.Equal(t, "18000", got["priceAfterAdministrator"])
	assert.Contains(t, got["appliedCoupons"], `"tier":"agent"`)
	assert.Contains(t, got["commissions"], `"amount":"1700"`)
}

func TestGetQuote_Errors(t *testing.T) {
	t.Run("bad time", func(t *testing.T) {
		w := newFixture().do(http.MethodGet, "/courses/course-x/quote?at=yesterday", "pricing-key", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
	t.Run("unknown course", func(t *testing.T) {
		f := newFixture()
		f.quotes.err = errors.Wrap(course.ErrNotFound, "get course")
		w := f.do(http.MethodGet, "/courses/nope/quote", "pricing-key", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
	t.Run("internal", func(t *testing.T) {
		f := newFixture()
		f.quotes.err = errors.New("boom")
		w := f.do(http.MethodGet, "/courses/course-x/quote", "pricing-key", "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "internal error", fields(t, w.Body.Bytes())["message"])
	})
}

func TestValidateCoupon(t *testing.T) {
	c := &coupon.Coupon{
		ID: "c1", Code: "OLD",
		Discount: coupon.FixedAmount{Amount: decimal.NewFromInt(100)},
	}

	t.Run("ineligible is not an error", func(t *testing.T) {
		f := newFixture()
		f.validator.res = &coupon.Validation{Coupon: c, Reason: coupon.ReasonExpired, Discount: decimal.Zero}
		w := f.do(http.MethodPost, "/coupons/validate", "pricing-key", `{"code":"old","courseId":"course-x"}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		got := fields(t, w.Body.Bytes())
		assert.Equal(t, "false", got["eligible"])
		assert.Equal(t, "expired", got["reason"])
		assert.Equal(t, "coupon has expired", got["message"])
		assert.Equal(t, "0", got["discount"])
	})

	t.Run("unknown code", func(t *testing.T) {
		f := newFixture()
		f.validator.err = coupon.ErrCouponNotFound
		w := f.do(http.MethodPost, "/coupons/validate", "pricing-key", `{"code":"nope","courseId":"course-x"}`)
		require.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "not_found", fields(t, w.Body.Bytes())["reason"])
	})

	t.Run("missing fields", func(t *testing.T) {
		w := newFixture().do(http.MethodPost, "/coupons/validate", "pricing-key", `{"code":"x"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		w := newFixture().do(http.MethodPost, "/coupons/validate", "pricing-key", `{"code":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCreateCoupon(t *testing.T) {
	f := newFixture()
	body := `{
		"code": "SPRING25",
		"kind": "percentage",
		"value": "12.5",
		"typeId": "promo",
		"validFrom": "2026-03-01T00:00:00Z",
		"validUntil": "2026-04-01T00:00:00Z",
		"maxUsageCount": 50,
		"courseIds": ["course-x"],
		"unknown": {"nested": true}
	}`
	w := f.do(http.MethodPost, "/coupons", "admin-key", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	d := f.author.draft
	assert.Equal(t, coupon.KindPercentage, d.Kind)
	assert.True(t, decimal.RequireFromString("12.5").Equal(d.Value))
	require.NotNil(t, d.MaxUsageCount)
	assert.Equal(t, 50, *d.MaxUsageCount)
	assert.Equal(t, []string{"course-x"}, d.CourseIDs)

	got := fields(t, w.Body.Bytes())
	assert.Equal(t, "new-id", got["id"])
	assert.Equal(t, "administrator", got["tier"])
}

func TestCreateCoupon_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{name: "numeric value accepted", body: `{"kind":"FIXED_AMOUNT","value":10}`, want: http.StatusCreated},
		{name: "bad decimal", body: `{"value":"ten"}`, want: http.StatusBadRequest},
		{name: "bad time", body: `{"validFrom":"tomorrow"}`, want: http.StatusBadRequest},
		{name: "validation", body: `{}`, err: &coupon.ValidationError{Field: "Code", Message: "is required"}, want: http.StatusUnprocessableEntity},
		{name: "type limit", body: `{}`, err: &coupon.ExceedsTypeLimitError{TypeID: "promo"}, want: http.StatusUnprocessableEntity},
		{name: "unknown type", body: `{}`, err: errors.Wrap(coupon.ErrTypeNotFound, "get type"), want: http.StatusUnprocessableEntity},
		{name: "duplicate", body: `{}`, err: coupon.ErrDuplicateCode, want: http.StatusConflict},
		{
			name: "unknown course",
			body: `{}`,
			err:  errors.Wrap(&coupon.ValidationError{Field: "CourseIDs", Message: "references an unknown record"}, "create coupon"),
			want: http.StatusUnprocessableEntity,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.author.err = tt.err
			w := f.do(http.MethodPost, "/coupons", "admin-key", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestCreateCoupon_UnknownReferenceNamesField(t *testing.T) {
	f := newFixture()
	f.author.err = errors.Wrap(&coupon.ValidationError{Field: "AgentID", Message: "references an unknown record"}, "create coupon")
	w := f.do(http.MethodPost, "/coupons", "admin-key", `{}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	assert.Equal(t, "AgentID", fields(t, w.Body.Bytes())["field"])

	w = f.do(http.MethodPost, "/coupons/c1/assignments", "admin-key", `{"buyerId":"buyer-a","courseId":"nope"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
}

func TestAssignAndDeactivate(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodPost, "/coupons/c1/assignments", "admin-key", `{"buyerId":"buyer-a","courseId":"course-x"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []coupon.Assignment{{CouponID: "c1", BuyerID: "buyer-a", CourseID: "course-x"}}, f.author.assigned)

	w = f.do(http.MethodPost, "/coupons/c1/deactivate", "admin-key", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	f.author.err = coupon.ErrCouponNotFound
	w = f.do(http.MethodPost, "/coupons/missing/deactivate", "admin-key", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCompletePayment(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		f := newFixture()
		w := f.do(http.MethodPost, "/payments", "payments-key",
			`{"paymentId":"pay-1","courseId":"course-x","buyerId":"buyer-a","amount":"17000.00"}`)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		require.NotNil(t, f.payments.last.Amount)
		assert.True(t, decimal.NewFromInt(17000).Equal(*f.payments.last.Amount))
		assert.Equal(t, "false", fields(t, w.Body.Bytes())["replayed"])
	})

	t.Run("replayed", func(t *testing.T) {
		f := newFixture()
		f.payments.replayed = true
		w := f.do(http.MethodPost, "/payments", "payments-key", `{"paymentId":"pay-1","courseId":"course-x"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Nil(t, f.payments.last.Amount)
	})

	errs := []struct {
		name string
		err  error
		want int
	}{
		{"exhausted", &payment.ExhaustedError{CouponID: "a1"}, http.StatusConflict},
		{"price mismatch", errors.Wrap(payment.ErrPriceMismatch, "paid 1"), http.StatusConflict},
		{"invalid", errors.Wrap(payment.ErrInvalidRequest, "payment id required"), http.StatusBadRequest},
		{"serialization", payment.ErrSerialization, http.StatusServiceUnavailable},
	}
	for _, tt := range errs {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.payments.err = tt.err
			w := f.do(http.MethodPost, "/payments", "payments-key", `{"paymentId":"pay-1","courseId":"course-x"}`)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	w := newFixture().do(http.MethodGet, "/nope", "admin-key", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "404", fields(t, w.Body.Bytes())["code"])
}
