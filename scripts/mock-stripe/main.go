package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Minimal Stripe stand-in for local development: payment intents succeed
// immediately, refunds succeed immediately, nothing is persisted across
// restarts.

type paymentIntent struct {
	ID           string `json:"id"`
	Object       string `json:"object"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
	ClientSecret string `json:"client_secret"`
}

type refund struct {
	ID            string `json:"id"`
	Object        string `json:"object"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	PaymentIntent string `json:"payment_intent"`
	Status        string `json:"status"`
	Reason        string `json:"reason"`
}

type store struct {
	mu      sync.Mutex
	seq     int
	intents map[string]*paymentIntent
	refunds map[string]*refund
}

func main() {
	port := ":8090"
	s := &store{
		intents: make(map[string]*paymentIntent),
		refunds: make(map[string]*refund),
	}

	http.HandleFunc("/v1/payment_intents", s.createIntent)
	http.HandleFunc("/v1/payment_intents/", s.intentByID)
	http.HandleFunc("/v1/refunds", s.createRefund)
	http.HandleFunc("/v1/refunds/", s.refundByID)

	log.Printf("Mock Stripe server starting on %s...", port)
	if err := http.ListenAndServe(port, nil); err != nil {
		log.Fatal(err)
	}
}

func (s *store) createIntent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "malformed form body")
		return
	}
	amount, err := strconv.ParseInt(r.PostForm.Get("amount"), 10, 64)
	if err != nil || amount <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "amount must be a positive integer")
		return
	}

	time.Sleep(1 * time.Millisecond)

	s.mu.Lock()
	s.seq++
	intent := &paymentIntent{
		ID:           fmt.Sprintf("pi_mock_%d", s.seq),
		Object:       "payment_intent",
		Amount:       amount,
		Currency:     r.PostForm.Get("currency"),
		Status:       "succeeded",
		ClientSecret: fmt.Sprintf("pi_mock_%d_secret", s.seq),
	}
	s.intents[intent.ID] = intent
	s.mu.Unlock()

	writeJSON(w, intent)
	log.Printf("Created mock payment intent: %s", intent.ID)
}

func (s *store) intentByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/payment_intents/")
	cancel := false
	if rest, ok := strings.CutSuffix(id, "/cancel"); ok {
		id, cancel = rest, true
	}

	s.mu.Lock()
	intent, ok := s.intents[id]
	if ok && cancel {
		intent.Status = "canceled"
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "invalid_request_error", "no such payment_intent: "+id)
		return
	}
	writeJSON(w, intent)
}

func (s *store) createRefund(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "malformed form body")
		return
	}
	intentID := r.PostForm.Get("payment_intent")
	amount, _ := strconv.ParseInt(r.PostForm.Get("amount"), 10, 64)

	s.mu.Lock()
	intent, ok := s.intents[intentID]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "invalid_request_error", "no such payment_intent: "+intentID)
		return
	}
	s.seq++
	rf := &refund{
		ID:            fmt.Sprintf("re_mock_%d", s.seq),
		Object:        "refund",
		Amount:        amount,
		Currency:      intent.Currency,
		PaymentIntent: intentID,
		Status:        "succeeded",
		Reason:        r.PostForm.Get("reason"),
	}
	s.refunds[rf.ID] = rf
	s.mu.Unlock()

	writeJSON(w, rf)
	log.Printf("Created mock refund: %s", rf.ID)
}

func (s *store) refundByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/refunds/")

	s.mu.Lock()
	rf, ok := s.refunds[id]
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "invalid_request_error", "no such refund: "+id)
		return
	}
	writeJSON(w, rf)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"type": errType, "message": message},
	})
}
