package domain

import "time"

// Phase is the lifecycle position of the quiz.
type Phase string

const (
	PhaseWaiting   Phase = "waiting"
	PhaseStarted   Phase = "started"
	PhaseCompleted Phase = "completed"
)

// QuizState is the single system-wide quiz record.
// Cycle increments on every reset; Version increments on every transition.
// Epoch names the lineage Version counts in: a store that starts from scratch
// gets a new epoch, so versions are only comparable within one epoch.
type QuizState struct {
	Epoch       string     `json:"epoch,omitempty"`
	Phase       Phase      `json:"phase"`
	Cycle       uint64     `json:"cycle"`
	Version     uint64     `json:"version"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	EndsAt      *time.Time `json:"endsAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	ResetAt     *time.Time `json:"resetAt,omitempty"`
}

// InitialQuizState is the state of a store that has never seen a transition.
func InitialQuizState() QuizState {
	return QuizState{Phase: PhaseWaiting, Cycle: 1, Version: 1}
}

// QuizSnapshot is the full state pushed to clients and returned by pulls.
type QuizSnapshot struct {
	QuizState
	QuestionCount         int       `json:"questionCount"`
	QuestionWindowSeconds int       `json:"questionWindowSeconds"`
	ServerTime            time.Time `json:"serverTime"`
}

// WriteGuard describes the cycle and phases a ledger write is valid for.
// Stores check it atomically with the write.
type WriteGuard struct {
	Cycle  uint64
	Phases []Phase
}

// Check returns the error a store reports when state does not admit the write.
func (g WriteGuard) Check(state QuizState) error {
	if g.Cycle != state.Cycle {
		return ErrStaleCycle
	}
	for _, p := range g.Phases {
		if p == state.Phase {
			return nil
		}
	}
	return ErrQuizNotActive
}

// Answer is the ledger entry for one (account, question) pair.
// Value is nil when the question was skipped.
type Answer struct {
	AccountID    string    `json:"accountId"`
	QuestionID   string    `json:"questionId"`
	Value        *Label    `json:"value"`
	IsCorrect    bool      `json:"isCorrect"`
	ResponseTime int       `json:"responseTime"`
	Cycle        uint64    `json:"cycle"`
	SubmittedAt  time.Time `json:"submittedAt"`
}

// SameValue reports whether v equals the stored value, treating two skips as equal.
func (a Answer) SameValue(v *Label) bool {
	if a.Value == nil || v == nil {
		return a.Value == nil && v == nil
	}
	return *a.Value == *v
}

// ValueToken encodes Value for stores that compare values as strings.
func (a Answer) ValueToken() string {
	if a.Value == nil {
		return "-"
	}
	return string(*a.Value)
}

// AnswerSubmission is what a client sends; Cycle zero means "current".
type AnswerSubmission struct {
	AccountID    string `json:"accountId"`
	QuestionID   string `json:"questionId"`
	Value        *Label `json:"value"`
	ResponseTime int    `json:"responseTime"`
	Cycle        uint64 `json:"cycle,omitempty"`
}

// ResultSubmission carries the only client-supplied field the server trusts.
type ResultSubmission struct {
	AccountID      string `json:"accountId"`
	CompletionTime int    `json:"completionTime"`
	Cycle          uint64 `json:"cycle,omitempty"`
}

// ScoreResult is the outcome of scoring one account's answers.
type ScoreResult struct {
	Score           int `json:"score"`
	Correct         int `json:"correct"`
	Incorrect       int `json:"incorrect"`
	Skipped         int `json:"skipped"`
	Total           int `json:"total"`
	AvgResponseTime int `json:"avgResponseTime"`
}

// Result is the finalized, ranked score of an account for one cycle.
type Result struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName"`
	School      string `json:"school,omitempty"`
	ScoreResult
	CompletionTime int       `json:"completionTime"`
	Rank           *int      `json:"rank"`
	Cycle          uint64    `json:"cycle"`
	SubmittedAt    time.Time `json:"submittedAt"`
}
