package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

type ledgerHandler struct {
	quiz *app.QuizService
}

type answerResponse struct {
	Answer domain.Answer `json:"answer"`
	Stored bool          `json:"stored"`
}

// SubmitAnswer answers 201 when the ledger changed and 200 for an identical resubmission.
func (h *ledgerHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var sub domain.AnswerSubmission
	if err := decodeJSON(r, &sub); err != nil {
		writeError(w, r, err)
		return
	}
	caller := principalFrom(r.Context())
	if sub.AccountID == "" {
		sub.AccountID = caller.AccountID
	}

	answer, stored, err := h.quiz.SubmitAnswer(r.Context(), caller, sub)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if stored {
		status = http.StatusCreated
	}
	writeJSON(w, status, answerResponse{Answer: answer, Stored: stored})
}

func (h *ledgerHandler) ListAnswers(w http.ResponseWriter, r *http.Request) {
	caller := principalFrom(r.Context())
	accountID := r.URL.Query().Get("accountId")
	if accountID == "" {
		accountID = caller.AccountID
	}
	answers, err := h.quiz.ListAnswers(r.Context(), caller, accountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answers)
}

func (h *ledgerHandler) SubmitResult(w http.ResponseWriter, r *http.Request) {
	var sub domain.ResultSubmission
	if err := decodeJSON(r, &sub); err != nil {
		writeError(w, r, err)
		return
	}
	caller := principalFrom(r.Context())
	if sub.AccountID == "" {
		sub.AccountID = caller.AccountID
	}

	result, err := h.quiz.SubmitResult(r.Context(), caller, sub)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *ledgerHandler) ListResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.quiz.ListResults(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *ledgerHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	result, err := h.quiz.GetResult(r.Context(), principalFrom(r.Context()), chi.URLParam(r, "accountId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
