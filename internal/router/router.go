package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Adjeiq/Hearth/internal/middleware"
	"github.com/Adjeiq/Hearth/internal/payment"
	"github.com/Adjeiq/Hearth/internal/server"
	"github.com/Adjeiq/Hearth/internal/token"
	"github.com/Adjeiq/Hearth/internal/transaction"
	"github.com/Adjeiq/Hearth/internal/webhook"
	"github.com/Adjeiq/Hearth/pkg/rest"
)

type Handlers struct {
	Auth        *token.AuthHandler
	Transaction *transaction.Handler
	Payment     *payment.Handler
	Webhook     *webhook.WebhookHandler
}

func NewRouter(s *server.Server, h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	mw := middleware.NewMiddlewares(s)

	// Apply middleware in order
	r.Use(middleware.RequestID)
	r.Use(mw.Tracing.NewRelicMiddleware())
	r.Use(mw.Tracing.EnhanceTracing)
	r.Use(mw.ContextEnhancer.EnhanceContext)
	r.Use(mw.Global.RequestLogger)
	r.Use(middleware.GatewayIdentity)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		rest.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Auth routes reach this service through the gateway's public
	// /api/auth/** route.
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", h.Auth.Login)
		r.Post("/refresh", h.Auth.Refresh)
		r.Post("/logout", h.Auth.Logout)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireIdentity)

		r.Route("/api/transactions", func(r chi.Router) {
			r.Post("/", h.Transaction.Create)
			r.Get("/", h.Transaction.List)
			r.Get("/{id}", h.Transaction.Get)
			r.Put("/{id}/status", h.Transaction.UpdateStatus)
			r.Get("/buyer/{buyerID}", h.Transaction.ListByBuyer)
			r.Get("/seller/{sellerID}", h.Transaction.ListBySeller)
			r.Get("/property/{propertyID}", h.Transaction.ListByProperty)

			r.Post("/{id}/documents", h.Transaction.AddDocument)
			r.Get("/{id}/documents", h.Transaction.ListDocuments)
		})

		r.Put("/api/documents/{id}/verify", h.Transaction.VerifyDocument)

		r.Route("/api/v1/payments", func(r chi.Router) {
			r.Post("/transaction/{transactionID}", h.Payment.Initiate)
			r.Get("/transaction/{transactionID}", h.Payment.ListByTransaction)
			r.Post("/process/{reference}", h.Payment.Process)
			r.Get("/{reference}/status", h.Payment.Status)
			r.Post("/{reference}/refund", h.Payment.Refund)
			r.Get("/{reference}/refunds", h.Payment.ListRefunds)
		})

		r.Route("/api/v1/refunds", func(r chi.Router) {
			r.Get("/{id}", h.Payment.GetRefund)
			r.Post("/{id}/sync", h.Payment.SyncRefund)
		})
	})

	// The webhook authenticates by signature, not by identity.
	r.Post("/api/v1/webhook/stripe", h.Webhook.HandleWebhook)

	return r
}
