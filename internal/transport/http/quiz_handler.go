package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

const maxPollWait = 30 * time.Second

type quizHandler struct {
	quiz *app.QuizService
	feed *app.Feed
}

// State returns the current snapshot. With ?since=v&wait=d it holds the request until
// a snapshot newer than v is published or d elapses, whichever comes first.
func (h *quizHandler) State(w http.ResponseWriter, r *http.Request) {
	since, wait, err := pollParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if wait > 0 && h.feed != nil {
		// subscribe before reading so a transition in between is not missed
		updates, cancel := h.feed.Subscribe()
		defer cancel()

		snap, err := h.quiz.State(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		if snap.Version > since {
			writeJSON(w, http.StatusOK, snap)
			return
		}

		timer := time.NewTimer(wait)
		defer timer.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-timer.C:
				writeJSON(w, http.StatusOK, snap)
				return
			case next, ok := <-updates:
				if !ok {
					writeJSON(w, http.StatusOK, snap)
					return
				}
				if next.Version > since {
					writeJSON(w, http.StatusOK, next)
					return
				}
			}
		}
	}

	snap, err := h.quiz.State(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func pollParams(r *http.Request) (uint64, time.Duration, error) {
	q := r.URL.Query()
	var (
		since uint64
		wait  time.Duration
		err   error
	)
	if v := q.Get("since"); v != "" {
		if since, err = strconv.ParseUint(v, 10, 64); err != nil {
			return 0, 0, fmt.Errorf("%w: since must be a version number", domain.ErrInvalidInput)
		}
	}
	if v := q.Get("wait"); v != "" {
		if wait, err = time.ParseDuration(v); err != nil || wait < 0 {
			return 0, 0, fmt.Errorf("%w: wait must be a duration such as 20s", domain.ErrInvalidInput)
		}
	}
	if wait > maxPollWait {
		wait = maxPollWait
	}
	return since, wait, nil
}

func (h *quizHandler) Start(w http.ResponseWriter, r *http.Request) {
	snap, err := h.quiz.Start(r.Context())
	if err != nil {
		writeError(w, r, fmt.Errorf("start quiz: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *quizHandler) Complete(w http.ResponseWriter, r *http.Request) {
	snap, err := h.quiz.Complete(r.Context())
	if err != nil {
		writeError(w, r, fmt.Errorf("complete quiz: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type resetRequest struct {
	Confirm bool `json:"confirm"`
}

// Reset wipes every answer and result, so the caller has to confirm explicitly.
func (h *quizHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if !req.Confirm {
		writeError(w, r, fmt.Errorf("%w: reset deletes all answers and results; send {\"confirm\":true}", domain.ErrInvalidInput))
		return
	}
	snap, err := h.quiz.Reset(r.Context())
	if err != nil {
		writeError(w, r, fmt.Errorf("reset quiz: %w", err))
		return
	}
	loggerFrom(r.Context()).Warn("quiz reset", "by", principalFrom(r.Context()).AccountID, "cycle", snap.Cycle)
	writeJSON(w, http.StatusOK, snap)
}
