package http

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

type questionHandler struct {
	questions *app.QuestionService
	quiz      *app.QuizService
}

// studentView reports whether the caller must get redacted questions. Students only
// see questions while the quiz is running.
func (h *questionHandler) studentView(r *http.Request) (bool, error) {
	if principalFrom(r.Context()).Role.IsStaff() {
		return false, nil
	}
	snap, err := h.quiz.State(r.Context())
	if err != nil {
		return true, err
	}
	if snap.Phase != domain.PhaseStarted {
		return true, fmt.Errorf("%w: questions are available once the quiz starts", domain.ErrQuizNotActive)
	}
	return true, nil
}

func (h *questionHandler) List(w http.ResponseWriter, r *http.Request) {
	redact, err := h.studentView(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	questions, err := h.questions.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if redact {
		for i := range questions {
			questions[i] = questions[i].Redacted()
		}
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *questionHandler) Get(w http.ResponseWriter, r *http.Request) {
	redact, err := h.studentView(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q, err := h.questions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if redact {
		q = q.Redacted()
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *questionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var q domain.Question
	if err := decodeJSON(r, &q); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := h.questions.Create(r.Context(), principalFrom(r.Context()).AccountID, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *questionHandler) Update(w http.ResponseWriter, r *http.Request) {
	var q domain.Question
	if err := decodeJSON(r, &q); err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := h.questions.Update(r.Context(), chi.URLParam(r, "id"), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *questionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.questions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
