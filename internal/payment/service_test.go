package payment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adjeiq/Hearth/internal/kafka"
	"github.com/Adjeiq/Hearth/internal/model"
	"github.com/Adjeiq/Hearth/internal/psp"
	"github.com/Adjeiq/Hearth/internal/redis"
	"github.com/Adjeiq/Hearth/internal/transaction"
)

// fakeStore backs both the payment repository and the transaction slice the
// service depends on, mirroring how the two share a database in production.
type fakeStore struct {
	txns     map[uuid.UUID]*model.Transaction
	payments map[uuid.UUID]*model.Payment
	refunds  map[uuid.UUID]*model.Refund
	outbox   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		txns:     make(map[uuid.UUID]*model.Transaction),
		payments: make(map[uuid.UUID]*model.Payment),
		refunds:  make(map[uuid.UUID]*model.Refund),
	}
}

func (f *fakeStore) addTransaction(amount string, status model.TransactionStatus) uuid.UUID {
	id := uuid.New()
	f.txns[id] = &model.Transaction{
		ID:     id,
		Amount: decimal.RequireFromString(amount),
		Status: status,
	}
	return id
}

// Transactions

func (f *fakeStore) Get(_ context.Context, id uuid.UUID) (*model.Transaction, error) {
	t, ok := f.txns[id]
	if !ok {
		return nil, transaction.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeStore) MarkPaymentCompleted(_ context.Context, id uuid.UUID) (bool, error) {
	t, ok := f.txns[id]
	if !ok {
		return false, nil
	}
	if t.Status == model.StatusPaymentCompleted || t.Status.IsTerminal() {
		return false, nil
	}
	completed := decimal.Zero
	for _, p := range f.payments {
		if p.TransactionID == id && p.Status == model.PaymentCompleted {
			completed = completed.Add(p.Amount)
		}
	}
	if completed.GreaterThanOrEqual(t.Amount) {
		t.Status = model.StatusPaymentCompleted
		return true, nil
	}
	return false, nil
}

// Repository

func (f *fakeStore) CreateReserved(_ context.Context, p *model.Payment) error {
	t, ok := f.txns[p.TransactionID]
	if !ok {
		return ErrTransactionNotFound
	}
	reserved := decimal.Zero
	for _, existing := range f.payments {
		if existing.TransactionID == p.TransactionID &&
			existing.Status != model.PaymentFailed && existing.Status != model.PaymentRefunded {
			reserved = reserved.Add(existing.Amount)
		}
	}
	if reserved.Add(p.Amount).GreaterThan(t.Amount) {
		return ErrOverpayment
	}
	cp := *p
	f.payments[p.ID] = &cp
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*model.Payment, error) {
	p, ok := f.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) GetByReference(_ context.Context, reference string) (*model.Payment, error) {
	for _, p := range f.payments {
		if p.PaymentReference == reference {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStore) ListByTransaction(_ context.Context, transactionID uuid.UUID) ([]model.Payment, error) {
	var out []model.Payment
	for _, p := range f.payments {
		if p.TransactionID == transactionID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, id uuid.UUID, status model.PaymentStatus) error {
	p, ok := f.payments[id]
	if !ok {
		return ErrNotFound
	}
	p.Status = status
	return nil
}

func (f *fakeStore) CreateRefund(_ context.Context, rf *model.Refund) error {
	cp := *rf
	f.refunds[rf.ID] = &cp
	return nil
}

func (f *fakeStore) GetRefund(_ context.Context, id uuid.UUID) (*model.Refund, error) {
	rf, ok := f.refunds[id]
	if !ok {
		return nil, ErrRefundNotFound
	}
	cp := *rf
	return &cp, nil
}

func (f *fakeStore) ListRefundsByPayment(_ context.Context, paymentID uuid.UUID) ([]model.Refund, error) {
	var out []model.Refund
	for _, rf := range f.refunds {
		if rf.PaymentID == paymentID {
			out = append(out, *rf)
		}
	}
	return out, nil
}

func (f *fakeStore) ListUnsettledRefunds(_ context.Context, limit int) ([]model.Refund, error) {
	var out []model.Refund
	for _, rf := range f.refunds {
		if rf.Status != "succeeded" && rf.Status != "failed" && rf.Status != "canceled" {
			out = append(out, *rf)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateRefundStatus(_ context.Context, id uuid.UUID, status string) error {
	rf, ok := f.refunds[id]
	if !ok {
		return ErrRefundNotFound
	}
	rf.Status = status
	return nil
}

func (f *fakeStore) InsertOutboxEvent(_ context.Context, eventType string, _ []byte, _ string) error {
	f.outbox = append(f.outbox, eventType)
	return nil
}

func newTestService(store *fakeStore, fake *psp.Fake) *Service {
	return NewService(store, store, fake, nil, "usd")
}

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestInitiateImmediateSuccess(t *testing.T) {
	store := newFakeStore()
	fake := psp.NewFake()
	svc := newTestService(store, fake)
	txnID := store.addTransaction("1000.00", model.StatusPaymentPending)

	resp, err := svc.Initiate(context.Background(), txnID, amt("1000.00"), model.MethodBankTransfer, "")
	require.NoError(t, err)

	assert.Equal(t, string(model.PaymentCompleted), resp.Status)
	assert.NotEmpty(t, resp.ClientSecret)
	assert.Equal(t, model.StatusPaymentCompleted, store.txns[txnID].Status)
	assert.Equal(t, []string{kafka.EventPaymentCompleted}, store.outbox)
}

func TestInitiateValidation(t *testing.T) {
	store := newFakeStore()
	fake := psp.NewFake()
	svc := newTestService(store, fake)
	txnID := store.addTransaction("1000.00", model.StatusPaymentPending)

	_, err := svc.Initiate(context.Background(), txnID, amt("0"), model.MethodBankTransfer, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Initiate(context.Background(), txnID, amt("100"), model.PaymentMethod("CASH_UNDER_TABLE"), "")
	assert.ErrorIs(t, err, ErrInvalidMethod)

	_, err = svc.Initiate(context.Background(), uuid.New(), amt("100"), model.MethodBankTransfer, "")
	assert.ErrorIs(t, err, transaction.ErrNotFound)

	assert.Empty(t, fake.Calls, "validation failures must not reach the processor")
}

func TestInitiateRejectsNotPayableTransaction(t *testing.T) {
	for _, status := range []model.TransactionStatus{
		model.StatusPaymentCompleted, model.StatusCompleted, model.StatusCancelled,
	} {
		store := newFakeStore()
		fake := psp.NewFake()
		svc := newTestService(store, fake)
		txnID := store.addTransaction("1000.00", status)

		_, err := svc.Initiate(context.Background(), txnID, amt("100"), model.MethodBankTransfer, "")
		assert.ErrorIs(t, err, ErrTransactionNotPayable, "status %s", status)
		assert.Empty(t, fake.Calls)
	}
}

func TestInitiateOverpaymentPreCheck(t *testing.T) {
	store := newFakeStore()
	fake := psp.NewFake()
	svc := newTestService(store, fake)
	txnID := store.addTransaction("1000.00", model.StatusPaymentPending)

	_, err := svc.Initiate(context.Background(), txnID, amt("1500.00"), model.MethodBankTransfer, "")
	assert.ErrorIs(t, err, ErrOverpayment)
	assert.Empty(t, fake.Calls, "pre-check must reject before the processor is called")
}

func TestPartialPaymentsUpToFullAmount(t *testing.T) {
	store := newFakeStore()
	fake := psp.NewFake()
	fake.NextIntentStatus = "requires_payment_method"
	svc := newTestService(store, fake)
	ctx := context.Background()
	txnID := store.addTransaction("1000.00", model.StatusPaymentPending)

	first, err := svc.Initiate(ctx, txnID, amt("600.00"), model.MethodBankTransfer, "")
	require.NoError(t, err)
	assert.Equal(t, string(model.PaymentPending), first.Status)

	// 600 is reserved, 500 more would overshoot. The intent was already
	// created, so it must be cancelled.
	_, err = svc.Initiate(ctx, txnID, amt("500.00"), model.MethodBankTransfer, "")
	assert.ErrorIs(t, err, ErrOverpayment)
	assert.Contains(t, fake.Calls, "CancelIntent")

	second, err := svc.Initiate(ctx, txnID, amt("400.00"), model.MethodBankTransfer, "")
	require.NoError(t, err)

	// Both payments settle on the processor side.
	fake.SetIntentStatus(first.PaymentReference, "succeeded")
	fake.SetIntentStatus(second.PaymentReference, "succeeded")

	p, err := svc.Process(ctx, uuid.MustParse(first.PaymentID))
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCompleted, p.Status)
	assert.Equal(t, model.StatusPaymentPending, store.txns[txnID].Status, "600 of 1000 paid")

	_, err = svc.Process(ctx, uuid.MustParse(second.PaymentID))
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaymentCompleted, store.txns[txnID].Status)
}

func TestProcessIsIdempotent(t *testing.T) {
	store := newFakeStore()
	fake := psp.NewFake()
	svc := newTestService(store, fake)
	ctx := context.Background()
	txnID := store.addTransaction("1000.00", model.StatusPaymentPending)

	resp, err := svc.Initiate(ctx, txnID, amt("1000.00"), model.MethodBankTransfer, "")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		p, err := svc.Process(ctx, uuid.MustParse(resp.PaymentID))
		require.NoError(t, err)
		assert.Equal(t, model.PaymentCompleted, p.Status)
	}
	assert.Equal(t, []string{kafka.EventPaymentCompleted}, store.outbox,
		"repeated processing must not emit duplicate events")
}

func TestProcessByReference(t *testing.T) {
	store := newFakeStore()
	fake := psp.NewFake()
	fake.NextIntentStatus = "processing"
	svc := newTestService(store, fake)
	ctx := context.Background()
	txnID := store.addTransaction("1000.00", model.StatusPaymentPending)

	resp, err := svc.Initiate(ctx, txnID, amt("1000.00"), model.MethodBankTransfer, "")
	require.NoError(t, err)
	assert.Equal(t, string(model.PaymentProcessing), resp.Status)

	fake.SetIntentStatus(resp.PaymentReference, "succeeded")
	p, err := svc.ProcessByReference(ctx, resp.PaymentReference)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCompleted, p.Status)

	_, err = svc.ProcessByReference(ctx, "pi_unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIntentStatusMapping(t *testing.T) {
	tests := []struct {
		intent string
		want   model.PaymentStatus
	}{
		{"succeeded", model.PaymentCompleted},
		{"processing", model.PaymentProcessing},
		{"requires_payment_method", model.PaymentPending},
		{"requires_confirmation", model.PaymentPending},
		{"requires_action", model.PaymentPending},
		{"canceled", model.PaymentFailed},
		{"some_future_status", model.PaymentFailed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mapIntentStatus(tt.intent), "intent status %q", tt.intent)
	}
}

func TestRefundRejectedBeforeProcessorCall(t *testing.T) {
	store := newFakeStore()
	fake := psp.NewFake()
	svc := newTestService(store, fake)
	ctx := context.Background()
	txnID := store.addTransaction("500.00", model.StatusPaymentPending)

	resp, err := svc.Initiate(ctx, txnID, amt("500.00"), model.MethodCreditCard, "")
	require.NoError(t, err)
	paymentID := uuid.MustParse(resp.PaymentID)
	callsBefore := len(fake.Calls)

	_, err = svc.Refund(ctx, paymentID, amt("600.00"), "buyer withdrew")
	assert.ErrorIs(t, err, ErrRefundExceedsPayment)
	assert.Len(t, fake.Calls, callsBefore, "rejected refund must not reach the processor")
}

func TestRefundOnlyCompletedPayments(t *testing.T) {
	store := newFakeStore()
	fake := psp.NewFake()
	fake.NextIntentStatus = "requires_payment_method"
	svc := newTestService(store, fake)
	ctx := context.Background()
	txnID := store.addTransaction("500.00", model.StatusPaymentPending)

	resp, err := svc.Initiate(ctx, txnID, amt("500.00"), model.MethodCreditCard, "")
	require.NoError(t, err)

	_, err = svc.Refund(ctx, uuid.MustParse(resp.PaymentID), amt("100.00"), "")
	assert.ErrorIs(t, err, ErrNotRefundable)
}

func TestFullRefundMarksPaymentRefunded(t *testing.T) {
	store := newFakeStore()
	fake := psp.NewFake()
	svc := newTestService(store, fake)
	ctx := context.Background()
	txnID := store.addTransaction("500.00", model.StatusPaymentPending)

	resp, err := svc.Initiate(ctx, txnID, amt("500.00"), model.MethodCreditCard, "")
	require.NoError(t, err)
	paymentID := uuid.MustParse(resp.PaymentID)

	rf, err := svc.Refund(ctx, paymentID, amt("500.00"), "sale fell through")
	require.NoError(t, err)
	assert.Equal(t, "succeeded", rf.Status)

	p, err := svc.Get(ctx, paymentID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRefunded, p.Status)
	assert.Contains(t, store.outbox, kafka.EventPaymentRefunded)
}

func TestPartialRefundKeepsPaymentCompleted(t *testing.T) {
	store := newFakeStore()
	fake := psp.NewFake()
	svc := newTestService(store, fake)
	ctx := context.Background()
	txnID := store.addTransaction("500.00", model.StatusPaymentPending)

	resp, err := svc.Initiate(ctx, txnID, amt("500.00"), model.MethodCreditCard, "")
	require.NoError(t, err)
	paymentID := uuid.MustParse(resp.PaymentID)

	_, err = svc.Refund(ctx, paymentID, amt("200.00"), "")
	require.NoError(t, err)

	p, err := svc.Get(ctx, paymentID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCompleted, p.Status)

	// A second refund may only take what is left.
	_, err = svc.Refund(ctx, paymentID, amt("400.00"), "")
	assert.ErrorIs(t, err, ErrRefundExceedsPayment)

	_, err = svc.Refund(ctx, paymentID, amt("300.00"), "")
	require.NoError(t, err)

	p, err = svc.Get(ctx, paymentID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRefunded, p.Status)
}

func TestUnconfirmedRefundLeavesNoRecord(t *testing.T) {
	store := newFakeStore()
	fake := psp.NewFake()
	fake.NextRefundStatus = "failed"
	svc := newTestService(store, fake)
	ctx := context.Background()
	txnID := store.addTransaction("500.00", model.StatusPaymentPending)

	resp, err := svc.Initiate(ctx, txnID, amt("500.00"), model.MethodBankTransfer, "")
	require.NoError(t, err)
	paymentID := uuid.MustParse(resp.PaymentID)

	_, err = svc.Refund(ctx, paymentID, amt("500.00"), "buyer withdrew")
	assert.ErrorIs(t, err, ErrRefundRejected)

	refunds, err := svc.ListRefunds(ctx, paymentID)
	require.NoError(t, err)
	assert.Empty(t, refunds, "unconfirmed refund must leave no local record")

	p, err := svc.Get(ctx, paymentID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCompleted, p.Status)

	// A pending answer is no more a confirmation than a failed one.
	fake.NextRefundStatus = "pending"
	_, err = svc.Refund(ctx, paymentID, amt("500.00"), "")
	assert.ErrorIs(t, err, ErrRefundRejected)

	// Once the processor confirms, the full balance is still refundable.
	fake.NextRefundStatus = ""
	rf, err := svc.Refund(ctx, paymentID, amt("500.00"), "")
	require.NoError(t, err)
	assert.Equal(t, "succeeded", rf.Status)

	p, err = svc.Get(ctx, paymentID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRefunded, p.Status)
}

func TestSyncRefundTracksProcessorStatus(t *testing.T) {
	store := newFakeStore()
	fake := psp.NewFake()
	svc := newTestService(store, fake)
	ctx := context.Background()
	txnID := store.addTransaction("500.00", model.StatusPaymentPending)

	resp, err := svc.Initiate(ctx, txnID, amt("500.00"), model.MethodBankTransfer, "")
	require.NoError(t, err)
	paymentID := uuid.MustParse(resp.PaymentID)

	rf, err := svc.Refund(ctx, paymentID, amt("500.00"), "")
	require.NoError(t, err)

	// The processor moves the refund back to pending on its side.
	fake.SetRefundStatus(rf.ExternalRefundID, "pending")
	rf, err = svc.SyncRefund(ctx, rf.ID)
	require.NoError(t, err)
	assert.Equal(t, "pending", rf.Status)

	// The sync worker now sees an unsettled refund and resolves it once the
	// processor settles again.
	fake.SetRefundStatus(rf.ExternalRefundID, "succeeded")
	synced, err := svc.SyncPendingRefunds(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, synced)

	rf, err = svc.GetRefund(ctx, rf.ID)
	require.NoError(t, err)
	assert.Equal(t, "succeeded", rf.Status)

	// Re-settling must not repeat the refunded event.
	events := 0
	for _, e := range store.outbox {
		if e == kafka.EventPaymentRefunded {
			events++
		}
	}
	assert.Equal(t, 1, events)

	synced, err = svc.SyncPendingRefunds(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, synced)
}

// fakeIdemStore is a map-backed IdempotencyStore.
type fakeIdemStore struct {
	inflight map[string]bool
	results  map[string][]byte
}

func newFakeIdemStore() *fakeIdemStore {
	return &fakeIdemStore{inflight: make(map[string]bool), results: make(map[string][]byte)}
}

func (f *fakeIdemStore) CheckAndSetIdempotency(_ context.Context, key string, _ time.Duration) ([]byte, error) {
	if body, ok := f.results[key]; ok {
		return body, nil
	}
	if f.inflight[key] {
		return nil, redis.ErrKeyExists
	}
	f.inflight[key] = true
	return nil, nil
}

func (f *fakeIdemStore) MarkIdempotencyComplete(_ context.Context, key string, response []byte, _ time.Duration) error {
	delete(f.inflight, key)
	f.results[key] = response
	return nil
}

func (f *fakeIdemStore) MarkIdempotencyFailed(_ context.Context, key string) error {
	delete(f.inflight, key)
	return nil
}

func TestInitiateIdempotencyKey(t *testing.T) {
	store := newFakeStore()
	fake := psp.NewFake()
	idem := newFakeIdemStore()
	svc := NewService(store, store, fake, idem, "usd")
	ctx := context.Background()
	txnID := store.addTransaction("1000.00", model.StatusPaymentPending)

	first, err := svc.Initiate(ctx, txnID, amt("1000.00"), model.MethodBankTransfer, "key-1")
	require.NoError(t, err)

	second, err := svc.Initiate(ctx, txnID, amt("1000.00"), model.MethodBankTransfer, "key-1")
	require.NoError(t, err)
	assert.Equal(t, first.PaymentID, second.PaymentID)
	assert.Len(t, store.payments, 1, "replay must not create a second payment")

	// A failed attempt releases the key so the caller can retry.
	_, err = svc.Initiate(ctx, txnID, amt("9999.00"), model.MethodBankTransfer, "key-2")
	require.Error(t, err)
	_, err = svc.Initiate(ctx, uuid.New(), amt("100.00"), model.MethodBankTransfer, "key-2")
	assert.ErrorIs(t, err, transaction.ErrNotFound, "key must be reusable after a failure")
}
