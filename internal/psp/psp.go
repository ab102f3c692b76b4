package psp

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/Adjeiq/Hearth/internal/config"
	"github.com/Adjeiq/Hearth/pkg/types"
)

var (
	// ErrIntentNotFound means the processor has no record of the intent or
	// refund that was asked for.
	ErrIntentNotFound = errors.New("payment intent not found")
	// ErrDeclined is a definitive rejection from the processor. Retrying
	// the same request will not change the outcome.
	ErrDeclined = errors.New("payment declined by processor")
)

type CreateIntentParams struct {
	AmountCents int64
	Currency    string
	// TransactionID and PaymentID ride along as metadata so processor-side
	// records can be tied back to ours.
	TransactionID string
	PaymentID     string
}

type CreateRefundParams struct {
	PaymentIntentID string
	AmountCents     int64
	Reason          string
}

// Processor is the external payment processor. CreateIntent, CancelIntent
// and CreateRefund mutate processor state; RetrieveIntent and RetrieveRefund
// are read-only and safe to retry.
type Processor interface {
	CreateIntent(ctx context.Context, params CreateIntentParams) (*types.StripePaymentIntent, error)
	RetrieveIntent(ctx context.Context, id string) (*types.StripePaymentIntent, error)
	CancelIntent(ctx context.Context, id string) (*types.StripePaymentIntent, error)
	CreateRefund(ctx context.Context, params CreateRefundParams) (*types.StripeRefund, error)
	RetrieveRefund(ctx context.Context, id string) (*types.StripeRefund, error)
}

// FromConfig selects the processor implementation. The fake keeps everything
// in memory and is meant for local development and tests only.
func FromConfig(cfg *config.StripeConfig, log zerolog.Logger) Processor {
	var p Processor
	switch cfg.Provider {
	case "fake":
		log.Warn().Msg("using in-memory fake payment processor")
		p = NewFake()
	default:
		p = NewStripeClient(cfg, log)
	}
	return WithRetry(p, log)
}
