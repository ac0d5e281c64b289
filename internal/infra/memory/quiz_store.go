package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"live-quiz-service/internal/domain"
)

// QuizStore is an in-memory implementation of app.QuizStore. One mutex covers
// the state and the ledger, so guards and writes are checked in one step.
type QuizStore struct {
	mu      sync.RWMutex
	state   domain.QuizState
	answers map[string]map[string]domain.Answer // account -> question -> answer
	results map[string]domain.Result
}

func NewQuizStore() *QuizStore {
	state := domain.InitialQuizState()
	state.Epoch = uuid.NewString()
	return &QuizStore{
		state:   state,
		answers: make(map[string]map[string]domain.Answer),
		results: make(map[string]domain.Result),
	}
}

func (s *QuizStore) State(_ context.Context) (domain.QuizState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, nil
}

func (s *QuizStore) Transition(_ context.Context, fn func(domain.QuizState) (domain.QuizState, error)) (domain.QuizState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(s.state)
	if err != nil {
		return s.state, err
	}
	if next.Epoch == "" {
		next.Epoch = s.state.Epoch
	}
	if next.Cycle != s.state.Cycle {
		s.answers = make(map[string]map[string]domain.Answer)
		s.results = make(map[string]domain.Result)
	}
	s.state = next
	return next, nil
}

func (s *QuizStore) PutAnswer(_ context.Context, guard domain.WriteGuard, answer domain.Answer) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := guard.Check(s.state); err != nil {
		return false, err
	}
	byQuestion, ok := s.answers[answer.AccountID]
	if !ok {
		byQuestion = make(map[string]domain.Answer)
		s.answers[answer.AccountID] = byQuestion
	}
	if existing, ok := byQuestion[answer.QuestionID]; ok && existing.SameValue(answer.Value) {
		return false, nil
	}
	byQuestion[answer.QuestionID] = answer
	return true, nil
}

func (s *QuizStore) Answers(_ context.Context, accountID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Answer, 0, len(s.answers[accountID]))
	for _, a := range s.answers[accountID] {
		out = append(out, a)
	}
	return out, nil
}

func (s *QuizStore) PutResult(_ context.Context, guard domain.WriteGuard, result domain.Result, rank func([]domain.Result) []domain.Result) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := guard.Check(s.state); err != nil {
		return domain.Result{}, err
	}
	// the previous result stays in the set so rank can keep the better attempt
	all := make([]domain.Result, 0, len(s.results)+1)
	for _, r := range s.results {
		all = append(all, r)
	}
	all = append(all, result)

	ranked := rank(all)
	next := make(map[string]domain.Result, len(ranked))
	for _, r := range ranked {
		next[r.AccountID] = r
	}
	s.results = next
	return next[result.AccountID], nil
}

func (s *QuizStore) Results(_ context.Context) ([]domain.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Result, 0, len(s.results))
	for _, r := range s.results {
		out = append(out, r)
	}
	return out, nil
}

func (s *QuizStore) Result(_ context.Context, accountID string) (domain.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.results[accountID]
	if !ok {
		return domain.Result{}, domain.ErrResultNotFound
	}
	return r, nil
}
