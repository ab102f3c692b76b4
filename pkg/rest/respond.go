package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Adjeiq/Hearth/pkg/types"
)

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Error writes the structured error body from the error-handling contract.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, types.ErrorResponse{
		Timestamp: time.Now().UTC(),
		Status:    status,
		Error:     http.StatusText(status),
		Message:   message,
	})
}
