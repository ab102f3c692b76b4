package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Adjeiq/Hearth/internal/kafka"
	"github.com/Adjeiq/Hearth/internal/middleware"
	"github.com/Adjeiq/Hearth/internal/model"
	"github.com/Adjeiq/Hearth/internal/psp"
	"github.com/Adjeiq/Hearth/internal/redis"
	"github.com/Adjeiq/Hearth/pkg/types"
)

var (
	ErrInvalidAmount = errors.New("payment amount must be positive")
	ErrInvalidMethod = errors.New("unknown payment method")
	// ErrRequestInFlight means a request with the same idempotency key has
	// not finished yet.
	ErrRequestInFlight       = errors.New("a request with this idempotency key is already in flight")
	ErrTransactionNotPayable = errors.New("transaction does not accept payments in its current state")
	ErrNotRefundable         = errors.New("only completed payments can be refunded")
	ErrRefundExceedsPayment  = errors.New("refund amount exceeds the refundable balance")
	// ErrRefundRejected means the processor accepted the call but did not
	// confirm the refund. No local record exists for it.
	ErrRefundRejected = errors.New("refund was not confirmed by the payment processor")
)

const (
	idempotencyInFlightTTL = 5 * time.Minute
	idempotencyResultTTL   = 24 * time.Hour
)

// Transactions is the slice of the transaction service the payment flow
// needs. Satisfied by *transaction.Service.
type Transactions interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Transaction, error)
	MarkPaymentCompleted(ctx context.Context, id uuid.UUID) (bool, error)
}

// IdempotencyStore is satisfied by *redis.Client. A nil store disables
// idempotency caching.
type IdempotencyStore interface {
	CheckAndSetIdempotency(ctx context.Context, key string, ttl time.Duration) ([]byte, error)
	MarkIdempotencyComplete(ctx context.Context, key string, response []byte, ttl time.Duration) error
	MarkIdempotencyFailed(ctx context.Context, key string) error
}

type Service struct {
	repo         Repository
	transactions Transactions
	processor    psp.Processor
	idem         IdempotencyStore
	currency     string
}

func NewService(repo Repository, transactions Transactions, processor psp.Processor, idem IdempotencyStore, currency string) *Service {
	return &Service{
		repo:         repo,
		transactions: transactions,
		processor:    processor,
		idem:         idem,
		currency:     currency,
	}
}

// mapIntentStatus translates the processor's payment intent vocabulary into
// ours. Anything unrecognized is treated as FAILED rather than guessed at.
func mapIntentStatus(status string) model.PaymentStatus {
	switch {
	case status == "succeeded":
		return model.PaymentCompleted
	case status == "processing":
		return model.PaymentProcessing
	case strings.HasPrefix(status, "requires_"):
		return model.PaymentPending
	default:
		return model.PaymentFailed
	}
}

// Initiate creates a payment intent with the processor and records the
// payment locally. The local insert re-checks the transaction balance under
// a row lock; if a concurrent initiation won the race, the just-created
// intent is cancelled on a best-effort basis.
func (s *Service) Initiate(ctx context.Context, transactionID uuid.UUID, amount decimal.Decimal, method model.PaymentMethod, idempotencyKey string) (*types.InitiatePaymentResponse, error) {
	logger := middleware.GetLogger(ctx)

	if idempotencyKey != "" && s.idem != nil {
		cached, err := s.idem.CheckAndSetIdempotency(ctx, idempotencyKey, idempotencyInFlightTTL)
		if errors.Is(err, redis.ErrKeyExists) {
			return nil, ErrRequestInFlight
		}
		if err != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", err)
		}
		if cached != nil {
			var resp types.InitiatePaymentResponse
			if err := json.Unmarshal(cached, &resp); err == nil {
				logger.Info().Str("idempotency_key", idempotencyKey).Msg("returning cached payment response")
				return &resp, nil
			}
		}
	}

	resp, err := s.initiate(ctx, transactionID, amount, method)
	if idempotencyKey != "" && s.idem != nil {
		if err != nil {
			_ = s.idem.MarkIdempotencyFailed(ctx, idempotencyKey)
		} else if body, mErr := json.Marshal(resp); mErr == nil {
			_ = s.idem.MarkIdempotencyComplete(ctx, idempotencyKey, body, idempotencyResultTTL)
		}
	}
	return resp, err
}

func (s *Service) initiate(ctx context.Context, transactionID uuid.UUID, amount decimal.Decimal, method model.PaymentMethod) (*types.InitiatePaymentResponse, error) {
	logger := middleware.GetLogger(ctx)

	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !method.Valid() {
		return nil, ErrInvalidMethod
	}

	t, err := s.transactions.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if t.Status.IsTerminal() || t.Status == model.StatusPaymentCompleted {
		return nil, ErrTransactionNotPayable
	}
	// Cheap pre-check before touching the processor. The authoritative
	// check runs under the row lock in CreateReserved.
	if amount.GreaterThan(t.Amount) {
		return nil, ErrOverpayment
	}

	cents, err := toCents(amount)
	if err != nil {
		return nil, err
	}

	paymentID := uuid.New()
	intent, err := s.processor.CreateIntent(ctx, psp.CreateIntentParams{
		AmountCents:   cents,
		Currency:      s.currency,
		TransactionID: transactionID.String(),
		PaymentID:     paymentID.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	p := &model.Payment{
		ID:               paymentID,
		TransactionID:    transactionID,
		PaymentReference: intent.ID,
		Amount:           amount,
		Status:           mapIntentStatus(intent.Status),
		PaymentMethod:    method,
		PaymentDate:      time.Now().UTC(),
	}
	if err := s.repo.CreateReserved(ctx, p); err != nil {
		if _, cErr := s.processor.CancelIntent(ctx, intent.ID); cErr != nil {
			logger.Warn().Err(cErr).
				Str("intent_id", intent.ID).
				Msg("failed to cancel orphaned payment intent")
		}
		return nil, err
	}

	logger.Info().
		Str("payment_id", p.ID.String()).
		Str("transaction_id", transactionID.String()).
		Str("intent_id", intent.ID).
		Str("status", string(p.Status)).
		Msg("payment initiated")

	if p.Status == model.PaymentCompleted {
		if err := s.onPaymentCompleted(ctx, p); err != nil {
			return nil, err
		}
	}

	return &types.InitiatePaymentResponse{
		PaymentID:        p.ID.String(),
		PaymentReference: p.PaymentReference,
		Amount:           p.Amount,
		Status:           string(p.Status),
		ClientSecret:     intent.ClientSecret,
	}, nil
}

// toCents converts a decimal amount to the processor's integer minor unit.
func toCents(amount decimal.Decimal) (int64, error) {
	shifted := amount.Shift(2)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("%w: sub-cent precision", ErrInvalidAmount)
	}
	return shifted.IntPart(), nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByReference(ctx context.Context, reference string) (*model.Payment, error) {
	return s.repo.GetByReference(ctx, reference)
}

func (s *Service) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]model.Payment, error) {
	if _, err := s.transactions.Get(ctx, transactionID); err != nil {
		return nil, err
	}
	return s.repo.ListByTransaction(ctx, transactionID)
}

// Process reconciles the local payment with the processor's view of its
// intent. Repeated calls are no-ops once the status has settled.
func (s *Service) Process(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.reconcile(ctx, p)
}

// ProcessByReference reconciles the payment addressed by its processor
// intent ID, the form both webhooks and the process endpoint use.
func (s *Service) ProcessByReference(ctx context.Context, reference string) (*model.Payment, error) {
	p, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	return s.reconcile(ctx, p)
}

func (s *Service) reconcile(ctx context.Context, p *model.Payment) (*model.Payment, error) {
	logger := middleware.GetLogger(ctx)

	intent, err := s.processor.RetrieveIntent(ctx, p.PaymentReference)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve payment intent: %w", err)
	}

	newStatus := mapIntentStatus(intent.Status)
	if newStatus == p.Status {
		return p, nil
	}
	// REFUNDED is owned by the refund flow, a stale intent read must not
	// undo it.
	if p.Status == model.PaymentRefunded {
		return p, nil
	}

	wasCompleted := p.Status == model.PaymentCompleted
	if err := s.repo.UpdateStatus(ctx, p.ID, newStatus); err != nil {
		return nil, err
	}
	logger.Info().
		Str("payment_id", p.ID.String()).
		Str("from", string(p.Status)).
		Str("to", string(newStatus)).
		Msg("payment status updated")
	p.Status = newStatus

	if newStatus == model.PaymentCompleted && !wasCompleted {
		if err := s.onPaymentCompleted(ctx, p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (s *Service) onPaymentCompleted(ctx context.Context, p *model.Payment) error {
	logger := middleware.GetLogger(ctx)

	transitioned, err := s.transactions.MarkPaymentCompleted(ctx, p.TransactionID)
	if err != nil {
		return err
	}
	if transitioned {
		logger.Info().
			Str("transaction_id", p.TransactionID.String()).
			Msg("transaction marked fully paid")
	}

	payload, err := json.Marshal(map[string]any{
		"payment_id":     p.ID,
		"transaction_id": p.TransactionID,
		"amount":         p.Amount,
		"completed_at":   time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := s.repo.InsertOutboxEvent(ctx, kafka.EventPaymentCompleted, payload, p.TransactionID.String()); err != nil {
		return fmt.Errorf("failed to record payment event: %w", err)
	}
	return nil
}

// Refund asks the processor to refund part or all of a completed payment.
// The amount is validated against the refundable balance before the
// processor is called, and a local Refund row exists only once the
// processor has reported "succeeded". Refunds are never fabricated ahead
// of external confirmation.
func (s *Service) Refund(ctx context.Context, paymentID uuid.UUID, amount decimal.Decimal, reason string) (*model.Refund, error) {
	logger := middleware.GetLogger(ctx)

	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	p, err := s.repo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != model.PaymentCompleted && p.Status != model.PaymentRefunded {
		return nil, ErrNotRefundable
	}

	existing, err := s.repo.ListRefundsByPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	refunded := decimal.Zero
	for _, rf := range existing {
		if rf.Status != "failed" && rf.Status != "canceled" {
			refunded = refunded.Add(rf.Amount)
		}
	}
	if refunded.Add(amount).GreaterThan(p.Amount) {
		return nil, ErrRefundExceedsPayment
	}

	cents, err := toCents(amount)
	if err != nil {
		return nil, err
	}
	external, err := s.processor.CreateRefund(ctx, psp.CreateRefundParams{
		PaymentIntentID: p.PaymentReference,
		AmountCents:     cents,
		Reason:          reason,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create refund: %w", err)
	}
	if external.Status != "succeeded" {
		logger.Warn().
			Str("payment_id", paymentID.String()).
			Str("external_refund_id", external.ID).
			Str("status", external.Status).
			Msg("refund not confirmed by processor")
		return nil, ErrRefundRejected
	}

	rf := &model.Refund{
		ID:               uuid.New(),
		PaymentID:        paymentID,
		ExternalRefundID: external.ID,
		Amount:           amount,
		Status:           external.Status,
		Reason:           reason,
		RefundDate:       time.Now().UTC(),
	}
	if err := s.repo.CreateRefund(ctx, rf); err != nil {
		return nil, err
	}

	logger.Info().
		Str("refund_id", rf.ID.String()).
		Str("payment_id", paymentID.String()).
		Str("external_refund_id", external.ID).
		Msg("refund created")

	if err := s.settleRefund(ctx, p, refunded.Add(amount)); err != nil {
		return nil, err
	}
	return rf, nil
}

// settleRefund flips the payment to REFUNDED once the full amount has been
// returned and records the event for downstream consumers.
func (s *Service) settleRefund(ctx context.Context, p *model.Payment, totalRefunded decimal.Decimal) error {
	if totalRefunded.LessThan(p.Amount) {
		return nil
	}
	if p.Status == model.PaymentRefunded {
		return nil
	}
	if err := s.repo.UpdateStatus(ctx, p.ID, model.PaymentRefunded); err != nil {
		return err
	}
	p.Status = model.PaymentRefunded

	payload, err := json.Marshal(map[string]any{
		"payment_id":     p.ID,
		"transaction_id": p.TransactionID,
		"amount":         totalRefunded,
		"refunded_at":    time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return s.repo.InsertOutboxEvent(ctx, kafka.EventPaymentRefunded, payload, p.TransactionID.String())
}

func (s *Service) GetRefund(ctx context.Context, id uuid.UUID) (*model.Refund, error) {
	return s.repo.GetRefund(ctx, id)
}

func (s *Service) ListRefunds(ctx context.Context, paymentID uuid.UUID) ([]model.Refund, error) {
	if _, err := s.repo.GetByID(ctx, paymentID); err != nil {
		return nil, err
	}
	return s.repo.ListRefundsByPayment(ctx, paymentID)
}

// SyncRefund pulls the processor's current status for one refund and stores
// it verbatim. Safe to repeat.
func (s *Service) SyncRefund(ctx context.Context, id uuid.UUID) (*model.Refund, error) {
	rf, err := s.repo.GetRefund(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.syncRefund(ctx, rf)
}

func (s *Service) syncRefund(ctx context.Context, rf *model.Refund) (*model.Refund, error) {
	logger := middleware.GetLogger(ctx)

	external, err := s.processor.RetrieveRefund(ctx, rf.ExternalRefundID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve refund: %w", err)
	}
	if external.Status == rf.Status {
		return rf, nil
	}

	if err := s.repo.UpdateRefundStatus(ctx, rf.ID, external.Status); err != nil {
		return nil, err
	}
	logger.Info().
		Str("refund_id", rf.ID.String()).
		Str("from", rf.Status).
		Str("to", external.Status).
		Msg("refund status updated")
	rf.Status = external.Status

	if external.Status == "succeeded" {
		p, err := s.repo.GetByID(ctx, rf.PaymentID)
		if err != nil {
			return nil, err
		}
		refunds, err := s.repo.ListRefundsByPayment(ctx, rf.PaymentID)
		if err != nil {
			return nil, err
		}
		total := decimal.Zero
		for _, other := range refunds {
			if other.Status == "succeeded" {
				total = total.Add(other.Amount)
			}
		}
		if err := s.settleRefund(ctx, p, total); err != nil {
			return nil, err
		}
	}
	return rf, nil
}

// SyncPendingRefunds reconciles every refund the processor may still move.
// Used by the periodic sync worker.
func (s *Service) SyncPendingRefunds(ctx context.Context, limit int) (int, error) {
	logger := middleware.GetLogger(ctx)

	pending, err := s.repo.ListUnsettledRefunds(ctx, limit)
	if err != nil {
		return 0, err
	}

	synced := 0
	for i := range pending {
		if _, err := s.syncRefund(ctx, &pending[i]); err != nil {
			logger.Error().Err(err).
				Str("refund_id", pending[i].ID.String()).
				Msg("failed to sync refund")
			continue
		}
		synced++
	}
	return synced, nil
}
