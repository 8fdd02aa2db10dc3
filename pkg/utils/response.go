package utils

import (
	"encoding/json"
	"log"
	"net/http"
)

// Envelope is the uniform response body on every endpoint.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RespondData wraps a payload in a success envelope.
func RespondData(w http.ResponseWriter, status int, data any) {
	respondJSON(w, status, Envelope{Success: true, Data: data})
}

// RespondError wraps a message in a failure envelope.
func RespondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, Envelope{Success: false, Error: message})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}
