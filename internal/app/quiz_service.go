package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/metrics"
)

// QuizStore persists the quiz state and the ledger for the current cycle.
// Every method is atomic with respect to the others.
type QuizStore interface {
	State(ctx context.Context) (domain.QuizState, error)
	// Transition applies fn to the current state and stores the result. When the
	// returned state has a different cycle, all answers and results are deleted
	// in the same step.
	Transition(ctx context.Context, fn func(domain.QuizState) (domain.QuizState, error)) (domain.QuizState, error)
	// PutAnswer upserts an answer if guard admits the current state. It reports
	// false when the stored value already equals the new one.
	PutAnswer(ctx context.Context, guard domain.WriteGuard, answer domain.Answer) (bool, error)
	Answers(ctx context.Context, accountID string) ([]domain.Answer, error)
	// PutResult hands rank the stored results plus the new one, persists what rank
	// returns and reports the account's surviving entry.
	PutResult(ctx context.Context, guard domain.WriteGuard, result domain.Result, rank func([]domain.Result) []domain.Result) (domain.Result, error)
	Results(ctx context.Context) ([]domain.Result, error)
	Result(ctx context.Context, accountID string) (domain.Result, error)
}

// QuestionBank stores quiz questions, listed in delivery order.
type QuestionBank interface {
	ListQuestions(ctx context.Context) ([]domain.Question, error)
	GetQuestion(ctx context.Context, id string) (domain.Question, error)
	CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error)
	UpdateQuestion(ctx context.Context, q domain.Question) (domain.Question, error)
	DeleteQuestion(ctx context.Context, id string) error
}

// QuizOptions tunes timing. A zero QuestionWindow disables automatic completion and deadlines.
type QuizOptions struct {
	QuestionWindow   time.Duration
	Grace            time.Duration
	EnforceDeadlines bool
	Now              func() time.Time
	Logger           *slog.Logger
}

// QuizService owns the quiz lifecycle, the answer ledger and result finalization.
type QuizService struct {
	store     QuizStore
	questions QuestionBank
	accounts  AccountStore
	notifier  Notifier
	opts      QuizOptions
	log       *slog.Logger

	mu    sync.Mutex // serializes transitions and the completion timer
	timer *time.Timer
}

func NewQuizService(store QuizStore, questions QuestionBank, accounts AccountStore, notifier Notifier, opts QuizOptions) *QuizService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if notifier == nil {
		notifier = PollOnly{}
	}
	return &QuizService{
		store:     store,
		questions: questions,
		accounts:  accounts,
		notifier:  notifier,
		opts:      opts,
		log:       opts.Logger.With("component", "quiz"),
	}
}

// State returns the current snapshot. It never depends on push delivery.
func (s *QuizService) State(ctx context.Context) (domain.QuizSnapshot, error) {
	state, err := s.store.State(ctx)
	if err != nil {
		return domain.QuizSnapshot{}, fmt.Errorf("load quiz state: %w", err)
	}
	return s.snapshot(ctx, state)
}

// Start moves a waiting quiz to started. Starting any other phase fails with
// ErrInvalidStateTransition and leaves the state untouched.
func (s *QuizService) Start(ctx context.Context) (domain.QuizSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	questions, err := s.questions.ListQuestions(ctx)
	if err != nil {
		return domain.QuizSnapshot{}, fmt.Errorf("list questions: %w", err)
	}

	now := s.opts.Now()
	state, err := s.store.Transition(ctx, func(cur domain.QuizState) (domain.QuizState, error) {
		if cur.Phase != domain.PhaseWaiting {
			return cur, fmt.Errorf("%w: cannot start a %s quiz", domain.ErrInvalidStateTransition, cur.Phase)
		}
		next := cur
		next.Phase = domain.PhaseStarted
		next.Version++
		next.StartedAt = &now
		next.CompletedAt = nil
		next.EndsAt = nil
		if s.opts.QuestionWindow > 0 {
			end := now.Add(time.Duration(len(questions))*s.opts.QuestionWindow + s.opts.Grace)
			next.EndsAt = &end
		}
		return next, nil
	})
	if err != nil {
		return domain.QuizSnapshot{}, err
	}

	s.armLocked(state)
	return s.announce(ctx, state)
}

// Complete ends a started quiz.
func (s *QuizService) Complete(ctx context.Context) (domain.QuizSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.completeLocked(ctx, 0)
	if err != nil {
		return domain.QuizSnapshot{}, err
	}
	return s.announce(ctx, state)
}

// completeLocked completes the quiz; a non-zero cycle restricts it to that cycle.
func (s *QuizService) completeLocked(ctx context.Context, cycle uint64) (domain.QuizState, error) {
	now := s.opts.Now()
	state, err := s.store.Transition(ctx, func(cur domain.QuizState) (domain.QuizState, error) {
		if cur.Phase != domain.PhaseStarted || (cycle != 0 && cur.Cycle != cycle) {
			return cur, fmt.Errorf("%w: cannot complete a %s quiz", domain.ErrInvalidStateTransition, cur.Phase)
		}
		next := cur
		next.Phase = domain.PhaseCompleted
		next.Version++
		next.CompletedAt = &now
		return next, nil
	})
	if err != nil {
		return domain.QuizState{}, err
	}
	s.disarmLocked()
	return state, nil
}

// Reset returns the quiz to waiting, opens a new cycle and deletes every answer and result.
func (s *QuizService) Reset(ctx context.Context) (domain.QuizSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Now()
	state, err := s.store.Transition(ctx, func(cur domain.QuizState) (domain.QuizState, error) {
		return domain.QuizState{
			Epoch:   cur.Epoch,
			Phase:   domain.PhaseWaiting,
			Cycle:   cur.Cycle + 1,
			Version: cur.Version + 1,
			ResetAt: &now,
		}, nil
	})
	if err != nil {
		return domain.QuizSnapshot{}, err
	}
	s.disarmLocked()
	return s.announce(ctx, state)
}

// Resume re-arms the completion timer for a quiz that was started before a restart.
func (s *QuizService) Resume(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.store.State(ctx)
	if err != nil {
		return fmt.Errorf("load quiz state: %w", err)
	}
	s.armLocked(state)
	return nil
}

// Follow re-arms the completion timer after a transition committed by any instance
// sharing the store. Each instance then completes on schedule; the first commit wins
// and the others fail the phase check.
func (s *QuizService) Follow(ctx context.Context, _ domain.QuizSnapshot) error {
	return s.Resume(ctx)
}

// WhileWaiting runs fn only while the quiz is waiting. It holds the transition lock,
// so a Start on this instance cannot begin until fn has returned.
func (s *QuizService) WhileWaiting(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.store.State(ctx)
	if err != nil {
		return fmt.Errorf("load quiz state: %w", err)
	}
	if state.Phase != domain.PhaseWaiting {
		return fmt.Errorf("%w (phase %s)", domain.ErrQuestionLocked, state.Phase)
	}
	return fn()
}

// Close stops the completion timer.
func (s *QuizService) Close() {
	s.mu.Lock()
	s.disarmLocked()
	s.mu.Unlock()
}

func (s *QuizService) armLocked(state domain.QuizState) {
	s.disarmLocked()
	if state.Phase != domain.PhaseStarted || state.EndsAt == nil {
		return
	}
	cycle := state.Cycle
	wait := state.EndsAt.Sub(s.opts.Now())
	if wait < 0 {
		wait = 0
	}
	s.timer = time.AfterFunc(wait, func() { s.autoComplete(cycle) })
}

func (s *QuizService) disarmLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *QuizService) autoComplete(cycle uint64) {
	ctx := context.Background()
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.completeLocked(ctx, cycle)
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidStateTransition) {
			s.log.Error("auto-complete failed", "cycle", cycle, "error", err)
		}
		return
	}
	s.log.Info("quiz completed on schedule", "cycle", cycle)
	_, _ = s.announce(ctx, state)
}

// announce builds the snapshot for a committed transition and hands it to the notifier.
func (s *QuizService) announce(ctx context.Context, state domain.QuizState) (domain.QuizSnapshot, error) {
	metrics.ObservePhase(string(state.Phase))
	snap, err := s.snapshot(ctx, state)
	if err != nil {
		return domain.QuizSnapshot{}, err
	}
	s.log.Info("quiz transition", "phase", state.Phase, "cycle", state.Cycle, "version", state.Version)
	if err := s.notifier.Publish(ctx, snap); err != nil {
		s.log.Warn("publish quiz snapshot", "version", state.Version, "error", err)
	}
	return snap, nil
}

func (s *QuizService) snapshot(ctx context.Context, state domain.QuizState) (domain.QuizSnapshot, error) {
	questions, err := s.questions.ListQuestions(ctx)
	if err != nil {
		return domain.QuizSnapshot{}, fmt.Errorf("list questions: %w", err)
	}
	return domain.QuizSnapshot{
		QuizState:             state,
		QuestionCount:         len(questions),
		QuestionWindowSeconds: int(s.opts.QuestionWindow / time.Second),
		ServerTime:            s.opts.Now(),
	}, nil
}

// SubmitAnswer records the caller's answer. The returned flag is false when the
// submission repeated the stored value and nothing was written.
func (s *QuizService) SubmitAnswer(ctx context.Context, caller domain.Principal, sub domain.AnswerSubmission) (domain.Answer, bool, error) {
	if caller.AccountID == "" || caller.AccountID != sub.AccountID {
		return domain.Answer{}, false, fmt.Errorf("%w: answers can only be submitted for your own account", domain.ErrForbidden)
	}
	if sub.Value != nil && !sub.Value.Valid() {
		return domain.Answer{}, false, fmt.Errorf("%w: answer must be A, B, C, D or null", domain.ErrInvalidInput)
	}
	if sub.ResponseTime < 0 {
		return domain.Answer{}, false, fmt.Errorf("%w: response time cannot be negative", domain.ErrInvalidInput)
	}
	if _, err := s.account(ctx, sub.AccountID); err != nil {
		return domain.Answer{}, false, err
	}

	state, err := s.store.State(ctx)
	if err != nil {
		return domain.Answer{}, false, fmt.Errorf("load quiz state: %w", err)
	}
	guard := domain.WriteGuard{Cycle: sub.Cycle, Phases: []domain.Phase{domain.PhaseStarted}}
	if guard.Cycle == 0 {
		guard.Cycle = state.Cycle
	}
	if err := guard.Check(state); err != nil {
		metrics.ObserveAnswer("rejected")
		return domain.Answer{}, false, err
	}

	questions, err := s.questions.ListQuestions(ctx)
	if err != nil {
		return domain.Answer{}, false, fmt.Errorf("list questions: %w", err)
	}
	idx := -1
	for i := range questions {
		if questions[i].ID == sub.QuestionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		metrics.ObserveAnswer("rejected")
		return domain.Answer{}, false, fmt.Errorf("%w: %s", domain.ErrUnknownQuestion, sub.QuestionID)
	}

	now := s.opts.Now()
	if deadline, ok := s.deadline(state, idx); ok && now.After(deadline) {
		metrics.ObserveAnswer("rejected")
		return domain.Answer{}, false, fmt.Errorf("%w: question %d closed at %s", domain.ErrDeadlinePassed, idx+1, deadline.Format(time.RFC3339))
	}

	q := questions[idx]
	answer := domain.Answer{
		AccountID:    sub.AccountID,
		QuestionID:   q.ID,
		Value:        sub.Value,
		IsCorrect:    sub.Value != nil && *sub.Value == q.Correct,
		ResponseTime: sub.ResponseTime,
		Cycle:        guard.Cycle,
		SubmittedAt:  now,
	}
	stored, err := s.store.PutAnswer(ctx, guard, answer)
	if err != nil {
		metrics.ObserveAnswer("rejected")
		return domain.Answer{}, false, err
	}
	if stored {
		metrics.ObserveAnswer("stored")
	} else {
		metrics.ObserveAnswer("unchanged")
	}
	return answer, stored, nil
}

// account loads the account a ledger write belongs to. A deleted account
// yields ErrUnknownAccount even while its session token is still valid.
func (s *QuizService) account(ctx context.Context, id string) (domain.Account, error) {
	account, err := s.accounts.GetAccount(ctx, id)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return domain.Account{}, fmt.Errorf("%w: %s", domain.ErrUnknownAccount, id)
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("load account: %w", err)
	}
	return account, nil
}

// deadline reports when question idx stops accepting answers, if deadlines are enforced.
func (s *QuizService) deadline(state domain.QuizState, idx int) (time.Time, bool) {
	if !s.opts.EnforceDeadlines || s.opts.QuestionWindow <= 0 || state.StartedAt == nil {
		return time.Time{}, false
	}
	return state.StartedAt.Add(time.Duration(idx+1)*s.opts.QuestionWindow + s.opts.Grace), true
}

// ListAnswers returns the current cycle's answers of an account. Staff may read any account.
func (s *QuizService) ListAnswers(ctx context.Context, caller domain.Principal, accountID string) ([]domain.Answer, error) {
	if caller.AccountID != accountID && !caller.Role.IsStaff() {
		return nil, domain.ErrForbidden
	}
	return s.store.Answers(ctx, accountID)
}

// SubmitResult scores the caller's answers on the server and folds the result into the ranking.
// Only the completion time is taken from the client.
func (s *QuizService) SubmitResult(ctx context.Context, caller domain.Principal, sub domain.ResultSubmission) (domain.Result, error) {
	if caller.AccountID == "" || caller.AccountID != sub.AccountID {
		return domain.Result{}, fmt.Errorf("%w: results can only be submitted for your own account", domain.ErrForbidden)
	}
	if sub.CompletionTime < 0 {
		return domain.Result{}, fmt.Errorf("%w: completion time cannot be negative", domain.ErrInvalidInput)
	}

	account, err := s.account(ctx, sub.AccountID)
	if err != nil {
		return domain.Result{}, err
	}

	state, err := s.store.State(ctx)
	if err != nil {
		return domain.Result{}, fmt.Errorf("load quiz state: %w", err)
	}
	guard := domain.WriteGuard{Cycle: sub.Cycle, Phases: []domain.Phase{domain.PhaseStarted, domain.PhaseCompleted}}
	if guard.Cycle == 0 {
		guard.Cycle = state.Cycle
	}
	if err := guard.Check(state); err != nil {
		return domain.Result{}, err
	}

	questions, err := s.questions.ListQuestions(ctx)
	if err != nil {
		return domain.Result{}, fmt.Errorf("list questions: %w", err)
	}
	answers, err := s.store.Answers(ctx, sub.AccountID)
	if err != nil {
		return domain.Result{}, fmt.Errorf("load answers: %w", err)
	}

	result := domain.Result{
		AccountID:      account.ID,
		DisplayName:    account.DisplayName,
		School:         account.School,
		ScoreResult:    ComputeScore(questions, answers),
		CompletionTime: sub.CompletionTime,
		Cycle:          guard.Cycle,
		SubmittedAt:    s.opts.Now(),
	}
	saved, err := s.store.PutResult(ctx, guard, result, RankResults)
	if err != nil {
		return domain.Result{}, err
	}
	metrics.ObserveResult()
	s.log.Info("result finalized", "account", saved.AccountID, "score", saved.Score, "cycle", saved.Cycle)
	return saved, nil
}

// ListResults returns the leaderboard ordered by rank.
func (s *QuizService) ListResults(ctx context.Context) ([]domain.Result, error) {
	results, err := s.store.Results(ctx)
	if err != nil {
		return nil, err
	}
	SortByRank(results)
	return results, nil
}

// GetResult returns one account's result. Students may only read their own.
func (s *QuizService) GetResult(ctx context.Context, caller domain.Principal, accountID string) (domain.Result, error) {
	if caller.AccountID != accountID && !caller.Role.IsStaff() {
		return domain.Result{}, domain.ErrForbidden
	}
	return s.store.Result(ctx, accountID)
}
