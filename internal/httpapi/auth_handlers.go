package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"authright.org/internal/audit"
	"authright.org/internal/auth"
)

type tokenRequest struct {
	Account  string `json:"account"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.tokens.Enabled() {
		writeError(w, r, http.StatusServiceUnavailable, "token issuing disabled")
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	account := strings.TrimSpace(req.Account)
	if account == "" {
		writeError(w, r, http.StatusBadRequest, "account is required")
		return
	}
	if req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "password is required")
		return
	}

	roles, err := a.directory.Authenticate(account, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUnknownAccount) || errors.Is(err, auth.ErrInvalidCredentials) {
			_ = audit.LogEvent(r.Context(), "auth.token.rejected", map[string]any{"account": account})
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "authentication error")
		return
	}

	token, expiresAt, err := a.tokens.Generate(account, roles, a.tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	fields := map[string]any{
		"account":    account,
		"roles":      roles,
		"expires_at": expiresAt.Format(time.RFC3339),
	}
	_ = audit.LogEvent(r.Context(), "auth.token.issued", fields)

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}
