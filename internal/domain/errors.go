package domain

import "errors"

var (
	// ErrInvalidStateTransition is returned when a quiz transition is not allowed from the current phase.
	ErrInvalidStateTransition = errors.New("invalid quiz state transition")
	// ErrQuizNotActive is returned when a write arrives while the quiz is not accepting it.
	ErrQuizNotActive = errors.New("quiz is not accepting submissions")
	// ErrStaleCycle rejects writes tagged with a cycle that a reset has already closed.
	ErrStaleCycle = errors.New("quiz cycle is no longer current")
	// ErrDeadlinePassed is returned for answers that arrive after the question window closed.
	ErrDeadlinePassed = errors.New("question deadline has passed")
	// ErrQuestionLocked is returned when the question bank is edited outside the waiting phase.
	ErrQuestionLocked = errors.New("questions cannot change while a quiz is running or awaiting reset")

	// ErrUnauthorized means the caller has no valid session.
	ErrUnauthorized = errors.New("authentication required")
	// ErrInvalidCredentials means the username or password did not match.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrForbidden means the caller is authenticated but may not perform the action.
	ErrForbidden = errors.New("forbidden")

	// ErrUnknownQuestion indicates a write referenced a question that does not exist.
	ErrUnknownQuestion = errors.New("unknown question")
	// ErrUnknownAccount indicates a write referenced an account that does not exist.
	ErrUnknownAccount    = errors.New("unknown account")
	ErrDuplicateUsername = errors.New("username already taken")
	ErrInvalidInput      = errors.New("invalid input")

	ErrQuestionNotFound = errors.New("question not found")
	ErrAccountNotFound  = errors.New("account not found")
	ErrResultNotFound   = errors.New("result not found")

	// ErrConnectionLost is reported by realtime clients when the push channel drops.
	ErrConnectionLost = errors.New("realtime connection lost")
)
