package transaction

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Adjeiq/Hearth/internal/middleware"
	"github.com/Adjeiq/Hearth/internal/model"
	"github.com/Adjeiq/Hearth/pkg/rest"
	"github.com/Adjeiq/Hearth/pkg/types"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

var validate = validator.New()

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	var req types.CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rest.Error(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if err := validate.Struct(&req); err != nil {
		rest.Error(w, http.StatusBadRequest, "validation error: "+err.Error())
		return
	}

	t, err := h.service.Create(ctx, req.PropertyID, req.BuyerID, req.SellerID, req.Amount)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			rest.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error().Err(err).Msg("failed to create transaction")
		rest.Error(w, http.StatusInternalServerError, "failed to create transaction")
		return
	}

	rest.JSON(w, http.StatusCreated, t)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	t, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "failed to get transaction")
		return
	}
	rest.JSON(w, http.StatusOK, t)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	transactions, err := h.service.List(r.Context())
	if err != nil {
		respondServiceError(w, r, err, "failed to list transactions")
		return
	}
	rest.JSON(w, http.StatusOK, transactions)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	var req types.UpdateTransactionStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rest.Error(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if err := validate.Struct(&req); err != nil {
		rest.Error(w, http.StatusBadRequest, "validation error: "+err.Error())
		return
	}

	t, err := h.service.UpdateStatus(r.Context(), id, model.TransactionStatus(req.Status))
	if err != nil {
		respondServiceError(w, r, err, "failed to update transaction status")
		return
	}
	rest.JSON(w, http.StatusOK, t)
}

func (h *Handler) ListByBuyer(w http.ResponseWriter, r *http.Request) {
	h.listByParty(w, r, "buyerID", h.service.ListByBuyer)
}

func (h *Handler) ListBySeller(w http.ResponseWriter, r *http.Request) {
	h.listByParty(w, r, "sellerID", h.service.ListBySeller)
}

func (h *Handler) ListByProperty(w http.ResponseWriter, r *http.Request) {
	h.listByParty(w, r, "propertyID", h.service.ListByProperty)
}

func (h *Handler) AddDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	var req types.AddDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rest.Error(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if err := validate.Struct(&req); err != nil {
		rest.Error(w, http.StatusBadRequest, "validation error: "+err.Error())
		return
	}

	d, err := h.service.AddDocument(r.Context(), id, req.Name, req.DocumentType, req.URL)
	if err != nil {
		respondServiceError(w, r, err, "failed to add document")
		return
	}
	rest.JSON(w, http.StatusCreated, d)
}

func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	documents, err := h.service.ListDocuments(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "failed to list documents")
		return
	}
	rest.JSON(w, http.StatusOK, documents)
}

func (h *Handler) VerifyDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.VerifyDocument(r.Context(), id); err != nil {
		respondServiceError(w, r, err, "failed to verify document")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listByParty(w http.ResponseWriter, r *http.Request, param string, list func(ctx context.Context, id int64) ([]model.Transaction, error)) {
	raw := chi.URLParam(r, param)
	partyID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		rest.Error(w, http.StatusBadRequest, "invalid id: "+raw)
		return
	}

	transactions, err := list(r.Context(), partyID)
	if err != nil {
		respondServiceError(w, r, err, "failed to list transactions")
		return
	}
	rest.JSON(w, http.StatusOK, transactions)
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
		rest.Error(w, http.StatusNotFound, "transaction not found")
	case errors.Is(err, ErrPaymentDriven):
		rest.Error(w, http.StatusBadRequest, "PAYMENT_COMPLETED is set by payment processing, not by request")
	case errors.Is(err, ErrInvalidTransition):
		rest.Error(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error().Err(err).Msg(fallback)
		rest.Error(w, http.StatusInternalServerError, fallback)
	}
}
