package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ErrorResponse is the structured error body returned by every service.
type ErrorResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
}

type CreateTransactionRequest struct {
	PropertyID int64           `json:"property_id" validate:"required,gt=0"`
	BuyerID    int64           `json:"buyer_id" validate:"required,gt=0"`
	SellerID   int64           `json:"seller_id" validate:"required,gt=0"`
	Amount     decimal.Decimal `json:"amount" validate:"required"`
}

type UpdateTransactionStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type InitiatePaymentRequest struct {
	Amount        decimal.Decimal `json:"amount" validate:"required"`
	PaymentMethod string          `json:"payment_method" validate:"required,oneof=BANK_TRANSFER CREDIT_CARD DEBIT_CARD WIRE_TRANSFER ESCROW"`
}

// InitiatePaymentResponse carries the client secret the caller needs to
// complete payment out-of-band.
type InitiatePaymentResponse struct {
	PaymentID        string          `json:"payment_id"`
	PaymentReference string          `json:"payment_reference"`
	Amount           decimal.Decimal `json:"amount"`
	Status           string          `json:"status"`
	ClientSecret     string          `json:"client_secret"`
}

type AddDocumentRequest struct {
	Name         string `json:"name" validate:"required,min=1,max=255"`
	DocumentType string `json:"document_type" validate:"required,oneof=DEED CONTRACT INSPECTION APPRAISAL IDENTITY OTHER"`
	URL          string `json:"url" validate:"required,url"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type LoginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}
