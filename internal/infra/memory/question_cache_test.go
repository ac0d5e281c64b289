package memory

import (
	"context"
	"testing"
	"time"

	"live-quiz-service/internal/domain"
)

func TestQuestionCacheCaches(t *testing.T) {
	source := &countingSource{QuestionSource: NewQuestionBank(sampleQuestions()...)}
	cache := NewQuestionCache(source, time.Minute)

	if _, err := cache.ListQuestions(context.Background()); err != nil {
		t.Fatalf("list questions: %v", err)
	}
	if source.calls != 1 {
		t.Fatalf("expected source once, got %d", source.calls)
	}

	q, err := cache.GetQuestion(context.Background(), "q2")
	if err != nil {
		t.Fatalf("get question: %v", err)
	}
	if q.Correct != domain.LabelB {
		t.Fatalf("expected cached q2 with correct B, got %+v", q)
	}
	if source.calls != 1 {
		t.Fatalf("expected cache hit, source calls %d", source.calls)
	}
}

func TestQuestionCacheInvalidatesOnWrite(t *testing.T) {
	source := &countingSource{QuestionSource: NewQuestionBank(sampleQuestions()...)}
	cache := NewQuestionCache(source, time.Minute)
	ctx := context.Background()

	if _, err := cache.ListQuestions(ctx); err != nil {
		t.Fatalf("list questions: %v", err)
	}
	extra := sampleQuestions()[0]
	extra.ID = "q3"
	if _, err := cache.CreateQuestion(ctx, extra); err != nil {
		t.Fatalf("create question: %v", err)
	}

	qs, err := cache.ListQuestions(ctx)
	if err != nil {
		t.Fatalf("list questions: %v", err)
	}
	if len(qs) != 3 {
		t.Fatalf("expected 3 questions after create, got %d", len(qs))
	}
	if source.calls != 2 {
		t.Fatalf("expected reload after write, source calls %d", source.calls)
	}
}

func TestQuestionCacheExpires(t *testing.T) {
	source := &countingSource{QuestionSource: NewQuestionBank(sampleQuestions()...)}
	cache := NewQuestionCache(source, time.Minute)
	now := time.Now()
	cache.clock = func() time.Time { return now }

	_, _ = cache.ListQuestions(context.Background())
	now = now.Add(2 * time.Minute)
	_, _ = cache.ListQuestions(context.Background())
	if source.calls != 2 {
		t.Fatalf("expected reload after ttl, source calls %d", source.calls)
	}
}

type countingSource struct {
	QuestionSource
	calls int
}

func (s *countingSource) ListQuestions(ctx context.Context) ([]domain.Question, error) {
	s.calls++
	return s.QuestionSource.ListQuestions(ctx)
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q1", Text: "2 + 2?", OptionA: "4", OptionB: "3", OptionC: "5", OptionD: "22", Correct: domain.LabelA, Difficulty: domain.DifficultyEasy},
		{ID: "q2", Text: "Capital of France?", OptionA: "Rome", OptionB: "Paris", OptionC: "Oslo", OptionD: "Bern", Correct: domain.LabelB, Difficulty: domain.DifficultyMedium},
	}
}
