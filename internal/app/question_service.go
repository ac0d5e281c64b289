package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"live-quiz-service/internal/domain"
)

// EditGate admits question edits. QuizService implements it.
type EditGate interface {
	WhileWaiting(ctx context.Context, fn func() error) error
}

// QuestionService guards the question bank: edits are only allowed while the quiz waits,
// so an answer graded during a cycle can never disagree with the question it references.
type QuestionService struct {
	bank QuestionBank
	gate EditGate
	now  func() time.Time
}

func NewQuestionService(bank QuestionBank, gate EditGate) *QuestionService {
	return &QuestionService{bank: bank, gate: gate, now: time.Now}
}

func (s *QuestionService) List(ctx context.Context) ([]domain.Question, error) {
	return s.bank.ListQuestions(ctx)
}

func (s *QuestionService) Get(ctx context.Context, id string) (domain.Question, error) {
	return s.bank.GetQuestion(ctx, id)
}

func (s *QuestionService) Create(ctx context.Context, creator string, q domain.Question) (domain.Question, error) {
	q.Normalize()
	if err := q.Validate(); err != nil {
		return domain.Question{}, err
	}
	now := s.now()
	q.ID = uuid.NewString()
	q.CreatedBy = creator
	q.CreatedAt = now
	q.UpdatedAt = now

	var created domain.Question
	err := s.gate.WhileWaiting(ctx, func() error {
		var err error
		created, err = s.bank.CreateQuestion(ctx, q)
		return err
	})
	return created, err
}

func (s *QuestionService) Update(ctx context.Context, id string, q domain.Question) (domain.Question, error) {
	q.Normalize()
	if err := q.Validate(); err != nil {
		return domain.Question{}, err
	}

	var updated domain.Question
	err := s.gate.WhileWaiting(ctx, func() error {
		current, err := s.bank.GetQuestion(ctx, id)
		if err != nil {
			return err
		}
		q.ID = current.ID
		q.CreatedBy = current.CreatedBy
		q.CreatedAt = current.CreatedAt
		q.UpdatedAt = s.now()
		updated, err = s.bank.UpdateQuestion(ctx, q)
		return err
	})
	return updated, err
}

func (s *QuestionService) Delete(ctx context.Context, id string) error {
	return s.gate.WhileWaiting(ctx, func() error {
		return s.bank.DeleteQuestion(ctx, id)
	})
}

// Seed loads questions into an empty bank. It returns how many were added.
func (s *QuestionService) Seed(ctx context.Context, creator string, questions []domain.Question) (int, error) {
	existing, err := s.bank.ListQuestions(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}
	for i, q := range questions {
		if _, err := s.Create(ctx, creator, q); err != nil {
			return i, fmt.Errorf("seed question %d: %w", i+1, err)
		}
	}
	return len(questions), nil
}
