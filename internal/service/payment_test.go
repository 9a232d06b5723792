package service

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/harborpay/payment-engine/internal/domain"
	"github.com/harborpay/payment-engine/internal/gateway"
	"github.com/harborpay/payment-engine/internal/outbox"
	"github.com/harborpay/payment-engine/internal/txn"
	"github.com/harborpay/payment-engine/pkg/database"
	apperrors "github.com/harborpay/payment-engine/pkg/errors"
	"github.com/harborpay/payment-engine/pkg/logger"
)

// ─── Mocks ───────────────────────────────────────────────────────────────────

type mockStore struct {
	mock.Mock
}

func (m *mockStore) FindPayment(ctx context.Context, scope *txn.Scope, id string, fields ...string) (*domain.Payment, error) {
	args := m.Called(ctx, scope, id, fields)
	if p := args.Get(0); p != nil {
		return p.(*domain.Payment), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) FindPaymentForUpdate(ctx context.Context, scope *txn.Scope, id string) (*domain.Payment, error) {
	args := m.Called(ctx, scope, id)
	if p := args.Get(0); p != nil {
		return p.(*domain.Payment), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) CreatePayment(ctx context.Context, scope *txn.Scope, p *domain.Payment) error {
	return m.Called(ctx, scope, p).Error(0)
}

func (m *mockStore) SavePayment(ctx context.Context, scope *txn.Scope, p *domain.Payment) error {
	return m.Called(ctx, scope, p).Error(0)
}

func (m *mockStore) SaveRefund(ctx context.Context, scope *txn.Scope, r *domain.Refund) error {
	return m.Called(ctx, scope, r).Error(0)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Name() string {
	return "mock"
}

func (m *mockGateway) CapturePayment(ctx context.Context, p *domain.Payment) (*gateway.CaptureResult, error) {
	args := m.Called(ctx, p)
	if r := args.Get(0); r != nil {
		return r.(*gateway.CaptureResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGateway) RefundPayment(ctx context.Context, p *domain.Payment, input gateway.RefundInput) (*gateway.RefundResult, error) {
	args := m.Called(ctx, p, input)
	if r := args.Get(0); r != nil {
		return r.(*gateway.RefundResult), args.Error(1)
	}
	return nil, args.Error(1)
}

type recordingBus struct {
	published []string
}

func (b *recordingBus) Publish(_ context.Context, eventName string, _ any) error {
	b.published = append(b.published, eventName)
	return nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

type testHarness struct {
	service *PaymentService
	store   *mockStore
	gateway *mockGateway
	bus     *recordingBus
	pool    pgxmock.PgxPoolIface
}

func newTestService(t *testing.T) *testHarness {
	t.Helper()

	pool, err := database.NewMockPool()
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := &mockStore{}
	gw := &mockGateway{}
	bus := &recordingBus{}
	l := logger.NewWithWriter("payment-engine", "error", io.Discard)

	ob := outbox.New(bus, l)
	coordinator := txn.NewCoordinator(pool, ob, l)

	return &testHarness{
		service: NewPaymentService(store, gw, coordinator, ob, l),
		store:   store,
		gateway: gw,
		bus:     bus,
		pool:    pool,
	}
}

func newTestPayment(captured bool) *domain.Payment {
	p := &domain.Payment{
		ID:             "9c5b94b1-35ad-49bb-b118-8e8fc24abf80",
		ProviderID:     "stripe",
		Amount:         10000,
		CurrencyCode:   "usd",
		AmountRefunded: 0,
		CreatedAt:      time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt:      time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	if captured {
		at := time.Date(2026, 6, 1, 13, 0, 0, 0, time.UTC)
		p.CapturedAt = &at
	}
	return p
}

// ─── Create ──────────────────────────────────────────────────────────────────

func TestCreate(t *testing.T) {
	h := newTestService(t)

	h.pool.ExpectBegin()
	h.pool.ExpectCommit()

	h.store.On("CreatePayment", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	p, err := h.service.Create(context.Background(), &CreatePaymentInput{
		ProviderID:   "stripe",
		Amount:       10000,
		CurrencyCode: "USD",
		OrderID:      "order-1",
		Data:         json.RawMessage(`{"intent":"pi_abc"}`),
	})

	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "usd", p.CurrencyCode)
	assert.Equal(t, int64(0), p.AmountRefunded)
	assert.False(t, p.IsCaptured())

	// The created event is released only after commit.
	assert.Equal(t, []string{"payment.created"}, h.bus.published)
	assert.NoError(t, h.pool.ExpectationsWereMet())
}

func TestCreate_InvalidInput(t *testing.T) {
	h := newTestService(t)

	cases := []struct {
		name  string
		input *CreatePaymentInput
	}{
		{"missing provider", &CreatePaymentInput{Amount: 100, CurrencyCode: "usd"}},
		{"zero amount", &CreatePaymentInput{ProviderID: "stripe", CurrencyCode: "usd"}},
		{"negative amount", &CreatePaymentInput{ProviderID: "stripe", Amount: -1, CurrencyCode: "usd"}},
		{"bad currency", &CreatePaymentInput{ProviderID: "stripe", Amount: 100, CurrencyCode: "dollars"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.service.Create(context.Background(), tc.input)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}

	// No transaction was opened and nothing was staged.
	h.store.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, h.bus.published)
	assert.NoError(t, h.pool.ExpectationsWereMet())
}

func TestCreate_StoreError(t *testing.T) {
	h := newTestService(t)

	h.pool.ExpectBegin()
	h.pool.ExpectRollback()

	h.store.On("CreatePayment", mock.Anything, mock.Anything, mock.Anything).
		Return(apperrors.Internal(assert.AnError))

	_, err := h.service.Create(context.Background(), &CreatePaymentInput{
		ProviderID:   "stripe",
		Amount:       10000,
		CurrencyCode: "usd",
	})

	require.Error(t, err)
	assert.Empty(t, h.bus.published)
	assert.NoError(t, h.pool.ExpectationsWereMet())
}

// ─── Retrieve ────────────────────────────────────────────────────────────────

func TestRetrieve(t *testing.T) {
	h := newTestService(t)

	h.pool.ExpectBegin()
	h.pool.ExpectCommit()

	want := newTestPayment(false)
	h.store.On("FindPayment", mock.Anything, mock.Anything, want.ID, mock.Anything).Return(want, nil)

	got, err := h.service.Retrieve(context.Background(), want.ID)

	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Empty(t, h.bus.published)
}

func TestRetrieve_FieldSelection(t *testing.T) {
	h := newTestService(t)

	h.pool.ExpectBegin()
	h.pool.ExpectCommit()

	want := &domain.Payment{ID: "pay-1", Amount: 10000}
	h.store.On("FindPayment", mock.Anything, mock.Anything, "pay-1", []string{"amount"}).Return(want, nil)

	got, err := h.service.Retrieve(context.Background(), "pay-1", "amount")

	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRetrieve_NotFound(t *testing.T) {
	h := newTestService(t)

	h.pool.ExpectBegin()
	h.pool.ExpectRollback()

	h.store.On("FindPayment", mock.Anything, mock.Anything, "missing", mock.Anything).
		Return(nil, apperrors.NotFound("payment", "missing"))

	_, err := h.service.Retrieve(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

// ─── Update ──────────────────────────────────────────────────────────────────

func TestUpdate_AppliesOnlyPresentFields(t *testing.T) {
	h := newTestService(t)

	h.pool.ExpectBegin()
	h.pool.ExpectCommit()

	p := newTestPayment(false)
	p.OrderID = "order-old"
	p.SwapID = "swap-old"

	h.store.On("FindPaymentForUpdate", mock.Anything, mock.Anything, p.ID).Return(p, nil)
	h.store.On("SavePayment", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	orderID := "order-new"
	got, err := h.service.Update(context.Background(), p.ID, &UpdatePaymentInput{OrderID: &orderID})

	require.NoError(t, err)
	assert.Equal(t, "order-new", got.OrderID)
	assert.Equal(t, "swap-old", got.SwapID)
	assert.Equal(t, []string{"payment.updated"}, h.bus.published)
}

// ─── Capture ─────────────────────────────────────────────────────────────────

func TestCapture(t *testing.T) {
	h := newTestService(t)

	h.pool.ExpectBegin()
	h.pool.ExpectCommit()

	p := newTestPayment(false)
	h.store.On("FindPaymentForUpdate", mock.Anything, mock.Anything, p.ID).Return(p, nil)
	h.gateway.On("CapturePayment", mock.Anything, p).
		Return(&gateway.CaptureResult{Data: json.RawMessage(`{"capture_id":"cap_1"}`)}, nil)
	h.store.On("SavePayment", mock.Anything, mock.Anything, mock.MatchedBy(func(p *domain.Payment) bool {
		return p.IsCaptured()
	})).Return(nil)

	got, err := h.service.Capture(context.Background(), p.ID)

	require.NoError(t, err)
	assert.True(t, got.IsCaptured())
	assert.JSONEq(t, `{"capture_id":"cap_1"}`, string(got.Data))
	assert.Equal(t, []string{"payment.payment_captured"}, h.bus.published)

	// Capture mutates, so it must go through the locking read.
	h.store.AssertNotCalled(t, "FindPayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.NoError(t, h.pool.ExpectationsWereMet())
}

func TestCapture_AlreadyCapturedIsIdempotent(t *testing.T) {
	h := newTestService(t)

	h.pool.ExpectBegin()
	h.pool.ExpectCommit()

	p := newTestPayment(true)
	capturedAt := *p.CapturedAt
	h.store.On("FindPaymentForUpdate", mock.Anything, mock.Anything, p.ID).Return(p, nil)

	got, err := h.service.Capture(context.Background(), p.ID)

	require.NoError(t, err)
	assert.Equal(t, capturedAt, *got.CapturedAt)

	// No second gateway call, no write, no event.
	h.gateway.AssertNotCalled(t, "CapturePayment", mock.Anything, mock.Anything)
	h.store.AssertNotCalled(t, "SavePayment", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, h.bus.published)
}

func TestCapture_GatewayFailure(t *testing.T) {
	h := newTestService(t)

	h.pool.ExpectBegin()
	h.pool.ExpectRollback()

	p := newTestPayment(false)
	h.store.On("FindPaymentForUpdate", mock.Anything, mock.Anything, p.ID).Return(p, nil)
	h.gateway.On("CapturePayment", mock.Anything, p).
		Return(nil, &gateway.Failure{Provider: "mock", Op: "capture", Reason: "card declined"})

	_, err := h.service.Capture(context.Background(), p.ID)

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnexpectedState)
	assert.Contains(t, err.Error(), p.ID)

	// The underlying gateway failure stays reachable for callers.
	var failure *gateway.Failure
	assert.ErrorAs(t, err, &failure)

	// Nothing was persisted, and only the failure event escaped the rollback.
	h.store.AssertNotCalled(t, "SavePayment", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, []string{"payment.payment_capture_failed"}, h.bus.published)
	assert.NoError(t, h.pool.ExpectationsWereMet())
}

func TestCapture_NotFound(t *testing.T) {
	h := newTestService(t)

	h.pool.ExpectBegin()
	h.pool.ExpectRollback()

	h.store.On("FindPaymentForUpdate", mock.Anything, mock.Anything, "missing").
		Return(nil, apperrors.NotFound("payment", "missing"))

	_, err := h.service.Capture(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	h.gateway.AssertNotCalled(t, "CapturePayment", mock.Anything, mock.Anything)
}

// ─── Refund ──────────────────────────────────────────────────────────────────

func TestRefund(t *testing.T) {
	h := newTestService(t)

	h.pool.ExpectBegin()
	h.pool.ExpectCommit()

	p := newTestPayment(true)
	h.store.On("FindPaymentForUpdate", mock.Anything, mock.Anything, p.ID).Return(p, nil)
	h.gateway.On("RefundPayment", mock.Anything, p, gateway.RefundInput{
		Amount: 400, Reason: "return", Note: "damaged",
	}).Return(&gateway.RefundResult{}, nil)
	h.store.On("SaveRefund", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	h.store.On("SavePayment", mock.Anything, mock.Anything, mock.MatchedBy(func(p *domain.Payment) bool {
		return p.AmountRefunded == 400
	})).Return(nil)

	r, err := h.service.Refund(context.Background(), p.ID, &RefundPaymentInput{
		Amount: 400,
		Reason: domain.RefundReasonReturn,
		Note:   "damaged",
	})

	require.NoError(t, err)
	assert.Equal(t, p.ID, r.PaymentID)
	assert.Equal(t, int64(400), r.Amount)
	assert.Equal(t, "return", r.Reason)
	assert.Equal(t, []string{"payment.payment_refund_created"}, h.bus.published)
	assert.NoError(t, h.pool.ExpectationsWereMet())
}

func TestRefund_NotCaptured(t *testing.T) {
	h := newTestService(t)

	h.pool.ExpectBegin()
	h.pool.ExpectRollback()

	p := newTestPayment(false)
	h.store.On("FindPaymentForUpdate", mock.Anything, mock.Anything, p.ID).Return(p, nil)

	_, err := h.service.Refund(context.Background(), p.ID, &RefundPaymentInput{
		Amount: 400,
		Reason: domain.RefundReasonReturn,
	})

	assert.ErrorIs(t, err, apperrors.ErrNotAllowed)
	assert.Contains(t, err.Error(), "not captured")
	h.gateway.AssertNotCalled(t, "RefundPayment", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, h.bus.published)
}

func TestRefund_ExceedsRefundable(t *testing.T) {
	h := newTestService(t)

	h.pool.ExpectBegin()
	h.pool.ExpectRollback()

	p := newTestPayment(true)
	p.AmountRefunded = 9800
	h.store.On("FindPaymentForUpdate", mock.Anything, mock.Anything, p.ID).Return(p, nil)

	_, err := h.service.Refund(context.Background(), p.ID, &RefundPaymentInput{
		Amount: 500,
		Reason: domain.RefundReasonOther,
	})

	assert.ErrorIs(t, err, apperrors.ErrNotAllowed)
	assert.Contains(t, err.Error(), "200")
	h.gateway.AssertNotCalled(t, "RefundPayment", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, h.bus.published)
}

func TestRefund_BalanceCheckedAgainstLockedRow(t *testing.T) {
	h := newTestService(t)

	h.pool.ExpectBegin()
	h.pool.ExpectRollback()

	// A refund request racing an earlier refund blocks on the row lock and
	// then reads the balance the earlier refund committed. With 600 of 1000
	// already refunded, a second 600 must be rejected without a gateway call.
	p := newTestPayment(true)
	p.Amount = 1000
	p.AmountRefunded = 600
	h.store.On("FindPaymentForUpdate", mock.Anything, mock.Anything, p.ID).Return(p, nil)

	_, err := h.service.Refund(context.Background(), p.ID, &RefundPaymentInput{
		Amount: 600,
		Reason: domain.RefundReasonReturn,
	})

	assert.ErrorIs(t, err, apperrors.ErrNotAllowed)
	h.gateway.AssertNotCalled(t, "RefundPayment", mock.Anything, mock.Anything, mock.Anything)
	h.store.AssertNotCalled(t, "SaveRefund", mock.Anything, mock.Anything, mock.Anything)
	h.store.AssertNotCalled(t, "FindPayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, h.bus.published)
}

func TestRefund_FullBalanceAllowed(t *testing.T) {
	h := newTestService(t)

	h.pool.ExpectBegin()
	h.pool.ExpectCommit()

	p := newTestPayment(true)
	p.AmountRefunded = 4000
	h.store.On("FindPaymentForUpdate", mock.Anything, mock.Anything, p.ID).Return(p, nil)
	h.gateway.On("RefundPayment", mock.Anything, p, mock.Anything).Return(&gateway.RefundResult{}, nil)
	h.store.On("SaveRefund", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	h.store.On("SavePayment", mock.Anything, mock.Anything, mock.MatchedBy(func(p *domain.Payment) bool {
		return p.AmountRefunded == p.Amount
	})).Return(nil)

	r, err := h.service.Refund(context.Background(), p.ID, &RefundPaymentInput{
		Amount: 6000,
		Reason: domain.RefundReasonClaim,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(6000), r.Amount)
}

func TestRefund_GatewayFailure(t *testing.T) {
	h := newTestService(t)

	h.pool.ExpectBegin()
	h.pool.ExpectRollback()

	p := newTestPayment(true)
	h.store.On("FindPaymentForUpdate", mock.Anything, mock.Anything, p.ID).Return(p, nil)
	h.gateway.On("RefundPayment", mock.Anything, p, mock.Anything).
		Return(nil, &gateway.Failure{Provider: "mock", Op: "refund", Reason: "already disputed"})

	_, err := h.service.Refund(context.Background(), p.ID, &RefundPaymentInput{
		Amount: 400,
		Reason: domain.RefundReasonReturn,
	})

	assert.ErrorIs(t, err, apperrors.ErrUnexpectedState)
	h.store.AssertNotCalled(t, "SaveRefund", mock.Anything, mock.Anything, mock.Anything)
	h.store.AssertNotCalled(t, "SavePayment", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, []string{"payment.payment_refund_failed"}, h.bus.published)
	assert.NoError(t, h.pool.ExpectationsWereMet())
}

func TestRefund_InvalidInput(t *testing.T) {
	h := newTestService(t)

	_, err := h.service.Refund(context.Background(), "pay-1", &RefundPaymentInput{
		Amount: 0,
		Reason: domain.RefundReasonReturn,
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = h.service.Refund(context.Background(), "pay-1", &RefundPaymentInput{
		Amount: 100,
		Reason: "goodwill",
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	// Validation happens before any transaction is opened.
	assert.NoError(t, h.pool.ExpectationsWereMet())
}
