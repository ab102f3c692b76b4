package payment

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Adjeiq/Hearth/internal/middleware"
	"github.com/Adjeiq/Hearth/internal/model"
	"github.com/Adjeiq/Hearth/internal/transaction"
	"github.com/Adjeiq/Hearth/pkg/rest"
	"github.com/Adjeiq/Hearth/pkg/types"
)

const idempotencyKeyHeader = "Idempotency-Key"

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

var validate = validator.New()

func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	transactionID, ok := parseID(w, r, "transactionID")
	if !ok {
		return
	}

	var req types.InitiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rest.Error(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if err := validate.Struct(&req); err != nil {
		rest.Error(w, http.StatusBadRequest, "validation error: "+err.Error())
		return
	}

	resp, err := h.service.Initiate(r.Context(), transactionID, req.Amount,
		model.PaymentMethod(req.PaymentMethod), r.Header.Get(idempotencyKeyHeader))
	if err != nil {
		respondServiceError(w, r, err, "failed to initiate payment")
		return
	}
	rest.JSON(w, http.StatusCreated, resp)
}

// Status re-syncs the payment against the processor before reporting it,
// so a missed webhook does not leave the caller with a stale view.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.ProcessByReference(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		respondServiceError(w, r, err, "failed to get payment status")
		return
	}
	rest.JSON(w, http.StatusOK, p)
}

func (h *Handler) ListByTransaction(w http.ResponseWriter, r *http.Request) {
	transactionID, ok := parseID(w, r, "transactionID")
	if !ok {
		return
	}

	payments, err := h.service.ListByTransaction(r.Context(), transactionID)
	if err != nil {
		respondServiceError(w, r, err, "failed to list payments")
		return
	}
	rest.JSON(w, http.StatusOK, payments)
}

// Process re-reads the processor's view of the payment and applies it.
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.ProcessByReference(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		respondServiceError(w, r, err, "failed to process payment")
		return
	}
	rest.JSON(w, http.StatusOK, p)
}

// Refund reads the amount from the query string. An omitted or malformed
// amount is a 400 before anything is looked up.
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil {
		rest.Error(w, http.StatusBadRequest, "invalid amount")
		return
	}

	p, err := h.service.GetByReference(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		respondServiceError(w, r, err, "failed to refund payment")
		return
	}

	rf, err := h.service.Refund(r.Context(), p.ID, amount, r.URL.Query().Get("reason"))
	if err != nil {
		respondServiceError(w, r, err, "failed to refund payment")
		return
	}
	rest.JSON(w, http.StatusCreated, rf)
}

func (h *Handler) ListRefunds(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetByReference(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		respondServiceError(w, r, err, "failed to list refunds")
		return
	}

	refunds, err := h.service.ListRefunds(r.Context(), p.ID)
	if err != nil {
		respondServiceError(w, r, err, "failed to list refunds")
		return
	}
	rest.JSON(w, http.StatusOK, refunds)
}

func (h *Handler) GetRefund(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	rf, err := h.service.GetRefund(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "failed to get refund")
		return
	}
	rest.JSON(w, http.StatusOK, rf)
}

func (h *Handler) SyncRefund(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	rf, err := h.service.SyncRefund(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "failed to sync refund")
		return
	}
	rest.JSON(w, http.StatusOK, rf)
}

func parseID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		rest.Error(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func respondServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	logger := middleware.GetLogger(r.Context())
	switch {
	case errors.Is(err, ErrNotFound):
		rest.Error(w, http.StatusNotFound, "payment not found")
	case errors.Is(err, ErrRefundNotFound):
		rest.Error(w, http.StatusNotFound, "refund not found")
	case errors.Is(err, ErrTransactionNotFound), errors.Is(err, transaction.ErrNotFound):
		rest.Error(w, http.StatusNotFound, "transaction not found")
	case errors.Is(err, ErrOverpayment),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidMethod),
		errors.Is(err, ErrTransactionNotPayable),
		errors.Is(err, ErrNotRefundable),
		errors.Is(err, ErrRefundExceedsPayment):
		rest.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrRequestInFlight):
		rest.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrRefundRejected):
		logger.Warn().Err(err).Msg("refund rejected by processor")
		rest.Error(w, http.StatusBadGateway, "payment processor could not complete the refund")
	default:
		logger.Error().Err(err).Msg(fallback)
		rest.Error(w, http.StatusInternalServerError, fallback)
	}
}
