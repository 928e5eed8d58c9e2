// Package server provides the HTTP surface the client depends on: credential
// registration and login backed by the store, and a streaming pass-through
// gateway for the conversation endpoints.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lidahealth/lida/internal/auth"
	"github.com/lidahealth/lida/internal/store"
)

// maxAuthBodySize caps auth request bodies.
const maxAuthBodySize = 16 * 1024

// Handler serves the auth endpoints.
type Handler struct {
	repo       store.UserRepository
	policy     auth.Policy
	jwtSecret  []byte
	bcryptCost int
}

// NewHandler creates a new Handler.
func NewHandler(repo store.UserRepository, policy auth.Policy, jwtSecret []byte, bcryptCost int) *Handler {
	return &Handler{
		repo:       repo,
		policy:     policy,
		jwtSecret:  jwtSecret,
		bcryptCost: bcryptCost,
	}
}

// RegisterRoutes registers the auth routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
