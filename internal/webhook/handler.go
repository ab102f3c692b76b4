package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Adjeiq/Hearth/internal/kafka"
	"github.com/Adjeiq/Hearth/internal/middleware"
	"github.com/Adjeiq/Hearth/internal/model"
	"github.com/Adjeiq/Hearth/internal/payment"
	"github.com/Adjeiq/Hearth/pkg/types"
)

const signatureHeader = "Stripe-Signature"

// maxBodySize caps webhook payloads at 64 KiB.
const maxBodySize = 64 << 10

// Payments is the slice of the payment service the webhook needs.
type Payments interface {
	ProcessByReference(ctx context.Context, reference string) (*model.Payment, error)
}

type WebhookHandler struct {
	secret   string
	payments Payments
	db       *pgxpool.Pool
}

func NewWebhookHandler(secret string, payments Payments, db *pgxpool.Pool) *WebhookHandler {
	return &WebhookHandler{
		secret:   secret,
		payments: payments,
		db:       db,
	}
}

// HandleWebhook receives processor events. Unsigned or badly signed requests
// are rejected before the body is looked at. Events for unknown payments are
// acknowledged anyway, the processor should not keep redelivering something
// we will never match.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	header := r.Header.Get(signatureHeader)
	if header == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read request body")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := verifySignature(body, header, h.secret, time.Now()); err != nil {
		logger.Error().Err(err).Msg("Invalid webhook signature")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var event types.StripeWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		logger.Error().Err(err).Msg("Failed to parse webhook event")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	logger.Info().
		Str("event_id", event.ID).
		Str("event_type", event.Type).
		Msg("Webhook received")

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.processing", "payment_intent.canceled":
		h.handlePaymentIntent(ctx, w, body, &event)
	default:
		// Acknowledge everything else so the processor stops retrying.
		w.WriteHeader(http.StatusOK)
	}
}

func (h *WebhookHandler) handlePaymentIntent(ctx context.Context, w http.ResponseWriter, body []byte, event *types.StripeWebhookEvent) {
	logger := middleware.GetLogger(ctx)

	var intent types.StripePaymentIntent
	if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
		logger.Error().Err(err).Msg("Failed to parse payment intent from event")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	p, err := h.payments.ProcessByReference(ctx, intent.ID)
	if errors.Is(err, payment.ErrNotFound) {
		logger.Warn().Str("intent_id", intent.ID).Msg("Webhook for unknown payment")
		w.WriteHeader(http.StatusOK)
		return
	}
	if err != nil {
		logger.Error().Err(err).Str("intent_id", intent.ID).Msg("Failed to process webhook")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	// Store in outbox for reliable delivery to downstream consumers.
	_, err = h.db.Exec(ctx, `
		INSERT INTO transaction_outbox (event_type, payload, partition_key, status)
		VALUES ($1, $2, $3, 'pending')
	`, kafka.EventWebhookReceived, body, p.TransactionID.String())
	if err != nil {
		logger.Error().Err(err).Msg("Failed to store webhook in outbox")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	logger.Info().
		Str("event_type", event.Type).
		Str("payment_id", p.ID.String()).
		Str("status", string(p.Status)).
		Msg("Webhook processed")
	w.WriteHeader(http.StatusOK)
}
