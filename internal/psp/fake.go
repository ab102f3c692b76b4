package psp

import (
	"context"
	"fmt"
	"sync"

	"github.com/Adjeiq/Hearth/pkg/types"
)

// Fake is an in-memory Processor for local development and tests. Created
// intents succeed immediately unless NextIntentStatus overrides the status,
// refunds succeed unless NextRefundStatus overrides it.
type Fake struct {
	mu      sync.Mutex
	seq     int
	intents map[string]*types.StripePaymentIntent
	refunds map[string]*types.StripeRefund

	NextIntentStatus string
	NextRefundStatus string

	// Calls records method names in invocation order.
	Calls []string
}

func NewFake() *Fake {
	return &Fake{
		intents: make(map[string]*types.StripePaymentIntent),
		refunds: make(map[string]*types.StripeRefund),
	}
}

func (f *Fake) CreateIntent(_ context.Context, params CreateIntentParams) (*types.StripePaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "CreateIntent")

	f.seq++
	status := "succeeded"
	if f.NextIntentStatus != "" {
		status = f.NextIntentStatus
	}
	intent := &types.StripePaymentIntent{
		ID:           fmt.Sprintf("pi_fake_%06d", f.seq),
		Object:       "payment_intent",
		Amount:       params.AmountCents,
		Currency:     params.Currency,
		Status:       status,
		ClientSecret: fmt.Sprintf("pi_fake_%06d_secret", f.seq),
	}
	f.intents[intent.ID] = intent
	cp := *intent
	return &cp, nil
}

func (f *Fake) RetrieveIntent(_ context.Context, id string) (*types.StripePaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "RetrieveIntent")

	intent, ok := f.intents[id]
	if !ok {
		return nil, ErrIntentNotFound
	}
	cp := *intent
	return &cp, nil
}

func (f *Fake) CancelIntent(_ context.Context, id string) (*types.StripePaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "CancelIntent")

	intent, ok := f.intents[id]
	if !ok {
		return nil, ErrIntentNotFound
	}
	intent.Status = "canceled"
	cp := *intent
	return &cp, nil
}

func (f *Fake) CreateRefund(_ context.Context, params CreateRefundParams) (*types.StripeRefund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "CreateRefund")

	intent, ok := f.intents[params.PaymentIntentID]
	if !ok {
		return nil, ErrIntentNotFound
	}

	f.seq++
	status := "succeeded"
	if f.NextRefundStatus != "" {
		status = f.NextRefundStatus
	}
	refund := &types.StripeRefund{
		ID:            fmt.Sprintf("re_fake_%06d", f.seq),
		Object:        "refund",
		Amount:        params.AmountCents,
		Currency:      intent.Currency,
		PaymentIntent: params.PaymentIntentID,
		Status:        status,
		Reason:        params.Reason,
	}
	f.refunds[refund.ID] = refund
	cp := *refund
	return &cp, nil
}

func (f *Fake) RetrieveRefund(_ context.Context, id string) (*types.StripeRefund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "RetrieveRefund")

	refund, ok := f.refunds[id]
	if !ok {
		return nil, ErrIntentNotFound
	}
	cp := *refund
	return &cp, nil
}

// SetIntentStatus rewrites a stored intent's status, simulating the payer
// completing or abandoning the payment on the processor side.
func (f *Fake) SetIntentStatus(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i, ok := f.intents[id]; ok {
		i.Status = status
	}
}

// SetRefundStatus rewrites a stored refund's status, simulating the
// processor settling or reversing an async refund.
func (f *Fake) SetRefundStatus(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.refunds[id]; ok {
		r.Status = status
	}
}
