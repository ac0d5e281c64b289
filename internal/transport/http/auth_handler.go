package http

import (
	"net/http"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

type authHandler struct {
	accounts *app.AccountService
	tokens   TokenService
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expiresAt"`
	Account   domain.Account `json:"account"`
}

func (h *authHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	account, err := h.accounts.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	token, expires, err := h.tokens.Issue(domain.Principal{AccountID: account.ID, Role: account.Role})
	if err != nil {
		writeError(w, r, err)
		return
	}
	loggerFrom(r.Context()).Info("login", "account", account.ID, "role", account.Role)
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expires, Account: account})
}

func (h *authHandler) Me(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.Get(r.Context(), principalFrom(r.Context()).AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}
