package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Model struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TransactionStatus is the lifecycle of a property sale/purchase.
type TransactionStatus string

const (
	StatusInitiated            TransactionStatus = "INITIATED"
	StatusDocumentCollection   TransactionStatus = "DOCUMENT_COLLECTION"
	StatusPaymentPending       TransactionStatus = "PAYMENT_PENDING"
	StatusPaymentCompleted     TransactionStatus = "PAYMENT_COMPLETED"
	StatusDocumentVerification TransactionStatus = "DOCUMENT_VERIFICATION"
	StatusCompleted            TransactionStatus = "COMPLETED"
	StatusCancelled            TransactionStatus = "CANCELLED"
)

// IsTerminal reports whether no further transitions are allowed.
func (s TransactionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusInitiated, StatusDocumentCollection, StatusPaymentPending,
		StatusPaymentCompleted, StatusDocumentVerification, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "PENDING"
	PaymentProcessing PaymentStatus = "PROCESSING"
	PaymentCompleted  PaymentStatus = "COMPLETED"
	PaymentFailed     PaymentStatus = "FAILED"
	PaymentRefunded   PaymentStatus = "REFUNDED"
)

type PaymentMethod string

const (
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodCreditCard   PaymentMethod = "CREDIT_CARD"
	MethodDebitCard    PaymentMethod = "DEBIT_CARD"
	MethodWireTransfer PaymentMethod = "WIRE_TRANSFER"
	MethodEscrow       PaymentMethod = "ESCROW"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodBankTransfer, MethodCreditCard, MethodDebitCard, MethodWireTransfer, MethodEscrow:
		return true
	}
	return false
}

type Transaction struct {
	ID                uuid.UUID         `json:"id"`
	TransactionNumber string            `json:"transaction_number"`
	PropertyID        int64             `json:"property_id" validate:"required,gt=0"`
	BuyerID           int64             `json:"buyer_id" validate:"required,gt=0"`
	SellerID          int64             `json:"seller_id" validate:"required,gt=0"`
	Amount            decimal.Decimal   `json:"amount"`
	Status            TransactionStatus `json:"status"`
	Model
}

type Payment struct {
	ID               uuid.UUID       `json:"id"`
	TransactionID    uuid.UUID       `json:"transaction_id"`
	PaymentReference string          `json:"payment_reference"`
	Amount           decimal.Decimal `json:"amount"`
	Status           PaymentStatus   `json:"status"`
	PaymentMethod    PaymentMethod   `json:"payment_method"`
	PaymentDate      time.Time       `json:"payment_date"`
	Model
}

// Refund mirrors the processor's status vocabulary verbatim; it is never
// synthesized locally.
type Refund struct {
	ID               uuid.UUID       `json:"id"`
	PaymentID        uuid.UUID       `json:"payment_id"`
	ExternalRefundID string          `json:"external_refund_id"`
	Amount           decimal.Decimal `json:"amount"`
	Status           string          `json:"status"`
	Reason           string          `json:"reason,omitempty"`
	RefundDate       time.Time       `json:"refund_date"`
	Model
}

type Document struct {
	ID            uuid.UUID `json:"id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	Name          string    `json:"name" validate:"required,min=1,max=255"`
	DocumentType  string    `json:"document_type" validate:"required,oneof=DEED CONTRACT INSPECTION APPRAISAL IDENTITY OTHER"`
	URL           string    `json:"url" validate:"required,url"`
	Verified      bool      `json:"verified"`
	Model
}

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email" validate:"required,email"`
	PasswordHash string    `json:"-"`
	Roles        []string  `json:"roles"`
	Model
}

// RefreshToken holds the single active refresh token for a subject.
type RefreshToken struct {
	ID        uuid.UUID `json:"id"`
	Subject   string    `json:"subject"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

type OutboxEvent struct {
	ID           int64     `json:"id"`
	EventType    string    `json:"event_type"`
	Payload      []byte    `json:"payload"`
	PartitionKey string    `json:"partition_key"`
	Status       string    `json:"status"`
	RetryCount   int       `json:"retry_count"`
	LastError    string    `json:"last_error,omitempty"`
	Model
}
