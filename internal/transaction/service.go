package transaction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Adjeiq/Hearth/internal/kafka"
	"github.com/Adjeiq/Hearth/internal/middleware"
	"github.com/Adjeiq/Hearth/internal/model"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrPaymentDriven marks transitions that only payment reconciliation
	// may perform.
	ErrPaymentDriven = errors.New("status is driven by payment completion")
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// newTransactionNumber builds a unique, human-readable reference. Collisions
// are negligible: nanosecond timestamp plus a random suffix.
func newTransactionNumber() string {
	return fmt.Sprintf("TXN-%d-%04d", time.Now().UnixNano(), rand.Intn(10000))
}

func (s *Service) Create(ctx context.Context, propertyID, buyerID, sellerID int64, amount decimal.Decimal) (*model.Transaction, error) {
	logger := middleware.GetLogger(ctx)

	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidTransition)
	}

	t := &model.Transaction{
		ID:                uuid.New(),
		TransactionNumber: newTransactionNumber(),
		PropertyID:        propertyID,
		BuyerID:           buyerID,
		SellerID:          sellerID,
		Amount:            amount,
		Status:            model.StatusInitiated,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		logger.Error().Err(err).Msg("failed to create transaction")
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	logger.Info().Str("transaction_number", t.TransactionNumber).Msg("transaction created")
	return t, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]model.Transaction, error) {
	return s.repo.List(ctx)
}

func (s *Service) ListByBuyer(ctx context.Context, buyerID int64) ([]model.Transaction, error) {
	return s.repo.ListByBuyer(ctx, buyerID)
}

func (s *Service) ListBySeller(ctx context.Context, sellerID int64) ([]model.Transaction, error) {
	return s.repo.ListBySeller(ctx, sellerID)
}

func (s *Service) ListByProperty(ctx context.Context, propertyID int64) ([]model.Transaction, error) {
	return s.repo.ListByProperty(ctx, propertyID)
}

// UpdateStatus applies a client-requested transition. PAYMENT_COMPLETED is
// refused here: a transaction becomes paid as a consequence of payment
// events, never on request.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, newStatus model.TransactionStatus) (*model.Transaction, error) {
	logger := middleware.GetLogger(ctx)

	if !newStatus.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, newStatus)
	}
	if newStatus == model.StatusPaymentCompleted {
		return nil, ErrPaymentDriven
	}

	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !CanTransition(t.Status, newStatus) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, newStatus)
	}

	if err := s.repo.UpdateStatus(ctx, id, newStatus); err != nil {
		return nil, err
	}
	if err := s.recordStatusEvent(ctx, id, t.Status, newStatus); err != nil {
		return nil, err
	}

	logger.Info().
		Str("transaction_id", id.String()).
		Str("from", string(t.Status)).
		Str("to", string(newStatus)).
		Msg("transaction status updated")

	t.Status = newStatus
	return t, nil
}

// recordStatusEvent queues a status change for the analytics pipeline. The
// payment-driven transition passes an empty from, its prior status is not
// read back.
func (s *Service) recordStatusEvent(ctx context.Context, id uuid.UUID, from, to model.TransactionStatus) error {
	event := map[string]any{
		"transaction_id": id,
		"to":             to,
		"changed_at":     time.Now().UTC(),
	}
	if from != "" {
		event["from"] = from
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := s.repo.InsertOutboxEvent(ctx, kafka.EventTransactionStatus, payload, id.String()); err != nil {
		return fmt.Errorf("failed to record status event: %w", err)
	}
	return nil
}

// MarkPaymentCompleted is the payment-driven path to PAYMENT_COMPLETED. It
// is a no-op unless the completed payment sum covers the full amount, and a
// no-op when the transaction is already paid or terminal, so repeated
// delivery of the same payment event has no further effect.
func (s *Service) MarkPaymentCompleted(ctx context.Context, id uuid.UUID) (bool, error) {
	logger := middleware.GetLogger(ctx)

	transitioned, err := s.repo.CompleteIfFullyPaid(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to reconcile transaction status: %w", err)
	}
	if transitioned {
		if err := s.recordStatusEvent(ctx, id, "", model.StatusPaymentCompleted); err != nil {
			return false, err
		}
		logger.Info().Str("transaction_id", id.String()).Msg("transaction fully paid")
	}
	return transitioned, nil
}

func (s *Service) AddDocument(ctx context.Context, transactionID uuid.UUID, name, documentType, url string) (*model.Document, error) {
	if _, err := s.repo.GetByID(ctx, transactionID); err != nil {
		return nil, err
	}

	d := &model.Document{
		ID:            uuid.New(),
		TransactionID: transactionID,
		Name:          name,
		DocumentType:  documentType,
		URL:           url,
	}
	if err := s.repo.AddDocument(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to add document: %w", err)
	}
	return d, nil
}

func (s *Service) ListDocuments(ctx context.Context, transactionID uuid.UUID) ([]model.Document, error) {
	if _, err := s.repo.GetByID(ctx, transactionID); err != nil {
		return nil, err
	}
	return s.repo.ListDocuments(ctx, transactionID)
}

func (s *Service) VerifyDocument(ctx context.Context, documentID uuid.UUID) error {
	return s.repo.VerifyDocument(ctx, documentID)
}
