package transaction

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adjeiq/Hearth/internal/kafka"
	"github.com/Adjeiq/Hearth/internal/model"
)

// fakeRepo keeps transactions in memory. Completed payment sums are supplied
// per transaction so the payment-driven transition can be exercised without
// a database.
type fakeRepo struct {
	transactions map[uuid.UUID]*model.Transaction
	documents    map[uuid.UUID][]model.Document
	completedSum map[uuid.UUID]decimal.Decimal
	outbox       []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		transactions: make(map[uuid.UUID]*model.Transaction),
		documents:    make(map[uuid.UUID][]model.Document),
		completedSum: make(map[uuid.UUID]decimal.Decimal),
	}
}

func (f *fakeRepo) Create(_ context.Context, t *model.Transaction) error {
	cp := *t
	f.transactions[t.ID] = &cp
	return nil
}

func (f *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Transaction, error) {
	t, ok := f.transactions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeRepo) List(_ context.Context) ([]model.Transaction, error) {
	var out []model.Transaction
	for _, t := range f.transactions {
		out = append(out, *t)
	}
	return out, nil
}

func (f *fakeRepo) ListByBuyer(_ context.Context, buyerID int64) ([]model.Transaction, error) {
	var out []model.Transaction
	for _, t := range f.transactions {
		if t.BuyerID == buyerID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListBySeller(_ context.Context, sellerID int64) ([]model.Transaction, error) {
	var out []model.Transaction
	for _, t := range f.transactions {
		if t.SellerID == sellerID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListByProperty(_ context.Context, propertyID int64) ([]model.Transaction, error) {
	var out []model.Transaction
	for _, t := range f.transactions {
		if t.PropertyID == propertyID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpdateStatus(_ context.Context, id uuid.UUID, status model.TransactionStatus) error {
	t, ok := f.transactions[id]
	if !ok {
		return ErrNotFound
	}
	t.Status = status
	return nil
}

func (f *fakeRepo) CompleteIfFullyPaid(_ context.Context, id uuid.UUID) (bool, error) {
	t, ok := f.transactions[id]
	if !ok {
		return false, nil
	}
	if t.Status == model.StatusPaymentCompleted || t.Status.IsTerminal() {
		return false, nil
	}
	if f.completedSum[id].GreaterThanOrEqual(t.Amount) {
		t.Status = model.StatusPaymentCompleted
		return true, nil
	}
	return false, nil
}

func (f *fakeRepo) AddDocument(_ context.Context, d *model.Document) error {
	f.documents[d.TransactionID] = append(f.documents[d.TransactionID], *d)
	return nil
}

func (f *fakeRepo) ListDocuments(_ context.Context, transactionID uuid.UUID) ([]model.Document, error) {
	return f.documents[transactionID], nil
}

func (f *fakeRepo) VerifyDocument(_ context.Context, documentID uuid.UUID) error {
	for _, docs := range f.documents {
		for i := range docs {
			if docs[i].ID == documentID {
				docs[i].Verified = true
				return nil
			}
		}
	}
	return ErrNotFound
}

func (f *fakeRepo) InsertOutboxEvent(_ context.Context, eventType string, _ []byte, _ string) error {
	f.outbox = append(f.outbox, eventType)
	return nil
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCreateAssignsNumberAndInitialStatus(t *testing.T) {
	svc := NewService(newFakeRepo())

	created, err := svc.Create(context.Background(), 5, 10, 20, amount("250000.00"))
	require.NoError(t, err)

	assert.Equal(t, model.StatusInitiated, created.Status)
	assert.Regexp(t, `^TXN-\d+-\d{4}$`, created.TransactionNumber)

	other, err := svc.Create(context.Background(), 5, 10, 20, amount("250000.00"))
	require.NoError(t, err)
	assert.NotEqual(t, created.TransactionNumber, other.TransactionNumber)
}

func TestUpdateStatusFollowsLifecycle(t *testing.T) {
	tests := []struct {
		name    string
		from    model.TransactionStatus
		to      model.TransactionStatus
		wantErr error
	}{
		{"forward step", model.StatusInitiated, model.StatusDocumentCollection, nil},
		{"skip ahead", model.StatusInitiated, model.StatusPaymentPending, ErrInvalidTransition},
		{"backwards", model.StatusPaymentPending, model.StatusInitiated, ErrInvalidTransition},
		{"cancel from initiated", model.StatusInitiated, model.StatusCancelled, nil},
		{"cancel from verification", model.StatusDocumentVerification, model.StatusCancelled, nil},
		{"cancel completed", model.StatusCompleted, model.StatusCancelled, ErrInvalidTransition},
		{"resurrect cancelled", model.StatusCancelled, model.StatusInitiated, ErrInvalidTransition},
		{"client-set payment completed", model.StatusPaymentPending, model.StatusPaymentCompleted, ErrPaymentDriven},
		{"finish verification", model.StatusDocumentVerification, model.StatusCompleted, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo()
			svc := NewService(repo)

			created, err := svc.Create(context.Background(), 1, 2, 3, amount("1000.00"))
			require.NoError(t, err)
			repo.transactions[created.ID].Status = tt.from

			updated, err := svc.UpdateStatus(context.Background(), created.ID, tt.to)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.from, repo.transactions[created.ID].Status, "status must be unchanged")
				assert.Empty(t, repo.outbox, "refused transition must not emit an event")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, updated.Status)
			assert.Equal(t, []string{kafka.EventTransactionStatus}, repo.outbox)
		})
	}
}

func TestUpdateStatusUnknownTransaction(t *testing.T) {
	svc := NewService(newFakeRepo())

	_, err := svc.UpdateStatus(context.Background(), uuid.New(), model.StatusCancelled)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkPaymentCompleted(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	created, err := svc.Create(context.Background(), 1, 2, 3, amount("1000.00"))
	require.NoError(t, err)
	repo.transactions[created.ID].Status = model.StatusPaymentPending

	// Partial payment: no transition.
	repo.completedSum[created.ID] = amount("600.00")
	transitioned, err := svc.MarkPaymentCompleted(context.Background(), created.ID)
	require.NoError(t, err)
	assert.False(t, transitioned)
	assert.Equal(t, model.StatusPaymentPending, repo.transactions[created.ID].Status)

	// Full payment: transition fires.
	repo.completedSum[created.ID] = amount("1000.00")
	transitioned, err = svc.MarkPaymentCompleted(context.Background(), created.ID)
	require.NoError(t, err)
	assert.True(t, transitioned)
	assert.Equal(t, model.StatusPaymentCompleted, repo.transactions[created.ID].Status)

	// Duplicate delivery: no second transition, no second event.
	transitioned, err = svc.MarkPaymentCompleted(context.Background(), created.ID)
	require.NoError(t, err)
	assert.False(t, transitioned)
	assert.Equal(t, []string{kafka.EventTransactionStatus}, repo.outbox)
}

func TestQueriesByParty(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, 1, 10, 20, amount("100.00"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, 2, 10, 30, amount("200.00"))
	require.NoError(t, err)

	byBuyer, err := svc.ListByBuyer(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, byBuyer, 2)

	bySeller, err := svc.ListBySeller(ctx, 30)
	require.NoError(t, err)
	assert.Len(t, bySeller, 1)

	byProperty, err := svc.ListByProperty(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, byProperty, 1)
}

func TestDocuments(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, 1, 2, 3, amount("100.00"))
	require.NoError(t, err)

	doc, err := svc.AddDocument(ctx, created.ID, "deed.pdf", "DEED", "https://docs.example.com/deed.pdf")
	require.NoError(t, err)
	assert.False(t, doc.Verified)

	_, err = svc.AddDocument(ctx, uuid.New(), "x", "DEED", "https://docs.example.com/x.pdf")
	assert.ErrorIs(t, err, ErrNotFound)

	docs, err := svc.ListDocuments(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	require.NoError(t, svc.VerifyDocument(ctx, doc.ID))
	docs, err = svc.ListDocuments(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, docs[0].Verified)
}
