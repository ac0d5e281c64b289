package memory

import (
	"context"
	"sync"

	"live-quiz-service/internal/domain"
)

// QuestionBank keeps questions in insertion order (useful for tests/demos).
type QuestionBank struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]domain.Question
}

func NewQuestionBank(questions ...domain.Question) *QuestionBank {
	b := &QuestionBank{byID: make(map[string]domain.Question)}
	for _, q := range questions {
		b.order = append(b.order, q.ID)
		b.byID[q.ID] = q
	}
	return b
}

func (b *QuestionBank) ListQuestions(_ context.Context) ([]domain.Question, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Question, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.byID[id])
	}
	return out, nil
}

func (b *QuestionBank) GetQuestion(_ context.Context, id string) (domain.Question, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.byID[id]
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return q, nil
}

func (b *QuestionBank) CreateQuestion(_ context.Context, q domain.Question) (domain.Question, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.byID[q.ID]; !ok {
		b.order = append(b.order, q.ID)
	}
	b.byID[q.ID] = q
	return q, nil
}

func (b *QuestionBank) UpdateQuestion(_ context.Context, q domain.Question) (domain.Question, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.byID[q.ID]; !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	b.byID[q.ID] = q
	return q, nil
}

func (b *QuestionBank) DeleteQuestion(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.byID[id]; !ok {
		return domain.ErrQuestionNotFound
	}
	delete(b.byID, id)
	for i, qid := range b.order {
		if qid == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return nil
}
