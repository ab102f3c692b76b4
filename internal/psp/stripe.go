package psp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Adjeiq/Hearth/internal/config"
	"github.com/Adjeiq/Hearth/pkg/types"
)

// StripeClient talks to the Stripe REST API. Requests are form-encoded,
// responses are JSON, amounts are integer cents.
type StripeClient struct {
	httpClient *http.Client
	secretKey  string
	baseURL    string
	log        zerolog.Logger
}

func NewStripeClient(cfg *config.StripeConfig, log zerolog.Logger) *StripeClient {
	return &StripeClient{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 50,
				IdleConnTimeout:     90 * time.Second,
				DisableKeepAlives:   false,
			},
		},
		secretKey: cfg.SecretKey,
		baseURL:   cfg.BaseURL,
		log:       log,
	}
}

func (c *StripeClient) CreateIntent(ctx context.Context, params CreateIntentParams) (*types.StripePaymentIntent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(params.AmountCents, 10))
	form.Set("currency", params.Currency)
	form.Set("automatic_payment_methods[enabled]", "true")
	if params.TransactionID != "" {
		form.Set("metadata[transaction_id]", params.TransactionID)
	}
	if params.PaymentID != "" {
		form.Set("metadata[payment_id]", params.PaymentID)
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, "/v1/payment_intents", form)
	if err != nil {
		return nil, err
	}

	var intent types.StripePaymentIntent
	if err := json.Unmarshal(respBody, &intent); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &intent, nil
}

func (c *StripeClient) RetrieveIntent(ctx context.Context, id string) (*types.StripePaymentIntent, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	var intent types.StripePaymentIntent
	if err := json.Unmarshal(respBody, &intent); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &intent, nil
}

func (c *StripeClient) CancelIntent(ctx context.Context, id string) (*types.StripePaymentIntent, error) {
	respBody, err := c.doRequest(ctx, http.MethodPost, "/v1/payment_intents/"+url.PathEscape(id)+"/cancel", url.Values{})
	if err != nil {
		return nil, err
	}

	var intent types.StripePaymentIntent
	if err := json.Unmarshal(respBody, &intent); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &intent, nil
}

func (c *StripeClient) CreateRefund(ctx context.Context, params CreateRefundParams) (*types.StripeRefund, error) {
	form := url.Values{}
	form.Set("payment_intent", params.PaymentIntentID)
	form.Set("amount", strconv.FormatInt(params.AmountCents, 10))
	if params.Reason != "" {
		form.Set("reason", params.Reason)
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, "/v1/refunds", form)
	if err != nil {
		return nil, err
	}

	var refund types.StripeRefund
	if err := json.Unmarshal(respBody, &refund); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &refund, nil
}

func (c *StripeClient) RetrieveRefund(ctx context.Context, id string) (*types.StripeRefund, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/v1/refunds/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	var refund types.StripeRefund
	if err := json.Unmarshal(respBody, &refund); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &refund, nil
}

func (c *StripeClient) doRequest(ctx context.Context, method, path string, form url.Values) ([]byte, error) {
	reqURL := c.baseURL + path

	var reqBody io.Reader
	if form != nil {
		reqBody = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		c.log.Error().Err(err).Msg("Failed to create HTTP request")
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		c.log.Error().Err(err).
			Str("method", method).
			Str("url", reqURL).
			Int64("duration_ms", duration).
			Msg("HTTP request failed")
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.log.Error().Err(err).
			Str("method", method).
			Str("url", reqURL).
			Int64("duration_ms", duration).
			Msg("Failed to read response body")
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr types.StripeError
		_ = json.Unmarshal(respBody, &apiErr)
		c.log.Error().
			Int("status", resp.StatusCode).
			Str("method", method).
			Str("url", reqURL).
			Int64("duration_ms", duration).
			Str("error_type", apiErr.Error.Type).
			Str("error_code", apiErr.Error.Code).
			Msg("Stripe API error response")
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, fmt.Errorf("%w: %s", ErrIntentNotFound, apiErr.Error.Message)
		case apiErr.Error.Type == "card_error":
			return nil, fmt.Errorf("%w: %s", ErrDeclined, apiErr.Error.Message)
		default:
			return nil, fmt.Errorf("stripe error: status=%d type=%s message=%s",
				resp.StatusCode, apiErr.Error.Type, apiErr.Error.Message)
		}
	}

	c.log.Debug().
		Int("status", resp.StatusCode).
		Str("method", method).
		Str("url", reqURL).
		Int64("duration_ms", duration).
		Msg("Stripe API request successful")

	return respBody, nil
}
