package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/lidahealth/lida/internal/auth"
	"github.com/lidahealth/lida/internal/domain"
	"github.com/lidahealth/lida/internal/store"
	"golang.org/x/crypto/bcrypt"
)

type authRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

func (h *Handler) decodeAuthRequest(w http.ResponseWriter, r *http.Request) (authRequest, bool) {
	var req authRequest
	body := http.MaxBytesReader(w, r.Body, maxAuthBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return authRequest{}, false
	}
	return req, true
}

// Register creates an account and returns a credential token.
// The policy is enforced server-side as well: the client validates for UX,
// the server validates for integrity.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeAuthRequest(w, r)
	if !ok {
		return
	}

	identifier, err := h.policy.ValidateIdentifier(req.Identifier)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.policy.ValidateSecret(req.Secret); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Secret), h.bcryptCost)
	if err != nil {
		slog.Error("bcrypt hash failed", "error", err)
		Error(w, http.StatusInternalServerError, "error creating user")
		return
	}

	user := &domain.User{
		ID:         uuid.NewString(),
		Identifier: identifier,
		SecretHash: string(hash),
		CreatedAt:  time.Now(),
	}
	if err := h.repo.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrIdentifierTaken) {
			Error(w, http.StatusBadRequest, "exists")
			return
		}
		slog.Error("create user failed", "error", err)
		Error(w, http.StatusInternalServerError, "error creating user")
		return
	}

	token, err := generateToken(h.jwtSecret, user.ID)
	if err != nil {
		slog.Error("token generation failed", "user_id", user.ID, "error", err)
		Error(w, http.StatusInternalServerError, "error creating user")
		return
	}

	slog.Info("user registered", "user_id", user.ID)
	JSON(w, http.StatusCreated, map[string]string{"token": token})
}

// Login authenticates an existing account and returns a credential token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeAuthRequest(w, r)
	if !ok {
		return
	}

	user, err := h.repo.UserByIdentifier(r.Context(), auth.NormalizeIdentifier(req.Identifier))
	if err != nil {
		slog.Error("login lookup failed", "error", err)
		Error(w, http.StatusInternalServerError, "error logging in")
		return
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.SecretHash), []byte(req.Secret)) != nil {
		Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := generateToken(h.jwtSecret, user.ID)
	if err != nil {
		slog.Error("token generation failed", "user_id", user.ID, "error", err)
		Error(w, http.StatusInternalServerError, "error logging in")
		return
	}

	slog.Info("user logged in", "user_id", user.ID)
	JSON(w, http.StatusOK, map[string]string{"token": token})
}
