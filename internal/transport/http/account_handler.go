package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"live-quiz-service/internal/app"
)

type accountHandler struct {
	accounts *app.AccountService
}

func (h *accountHandler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (h *accountHandler) Get(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *accountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in app.AccountInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	account, err := h.accounts.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

func (h *accountHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in app.AccountInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	account, err := h.accounts.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *accountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
