package psp

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/Adjeiq/Hearth/pkg/types"
)

// retryingProcessor retries the read-only calls with exponential backoff.
// Mutating calls pass through untouched, a network blip there must be
// surfaced to the caller rather than replayed.
type retryingProcessor struct {
	inner Processor
	log   zerolog.Logger
}

func WithRetry(inner Processor, log zerolog.Logger) Processor {
	return &retryingProcessor{inner: inner, log: log}
}

func (r *retryingProcessor) CreateIntent(ctx context.Context, params CreateIntentParams) (*types.StripePaymentIntent, error) {
	return r.inner.CreateIntent(ctx, params)
}

func (r *retryingProcessor) CancelIntent(ctx context.Context, id string) (*types.StripePaymentIntent, error) {
	return r.inner.CancelIntent(ctx, id)
}

func (r *retryingProcessor) CreateRefund(ctx context.Context, params CreateRefundParams) (*types.StripeRefund, error) {
	return r.inner.CreateRefund(ctx, params)
}

func (r *retryingProcessor) RetrieveIntent(ctx context.Context, id string) (*types.StripePaymentIntent, error) {
	var intent *types.StripePaymentIntent
	err := r.retry(ctx, "RetrieveIntent", func() error {
		var err error
		intent, err = r.inner.RetrieveIntent(ctx, id)
		return err
	})
	return intent, err
}

func (r *retryingProcessor) RetrieveRefund(ctx context.Context, id string) (*types.StripeRefund, error) {
	var refund *types.StripeRefund
	err := r.retry(ctx, "RetrieveRefund", func() error {
		var err error
		refund, err = r.inner.RetrieveRefund(ctx, id)
		return err
	})
	return refund, err
}

func (r *retryingProcessor) retry(ctx context.Context, op string, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = 10 * time.Second

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		// Not-found is a real answer, not a transient failure.
		if errors.Is(err, ErrIntentNotFound) || errors.Is(err, ErrDeclined) {
			return backoff.Permanent(err)
		}
		r.log.Warn().Err(err).
			Str("operation", op).
			Int("attempt", attempt).
			Msg("processor call failed, retrying")
		return err
	}, backoff.WithContext(policy, ctx))
}
