package memory

import (
	"context"
	"errors"
	"testing"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

func label(l domain.Label) *domain.Label { return &l }

func startStore(t *testing.T) *QuizStore {
	t.Helper()
	store := NewQuizStore()
	_, err := store.Transition(context.Background(), func(cur domain.QuizState) (domain.QuizState, error) {
		cur.Phase = domain.PhaseStarted
		cur.Version++
		return cur, nil
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return store
}

var startedGuard = domain.WriteGuard{Cycle: 1, Phases: []domain.Phase{domain.PhaseStarted}}

func TestQuizStoreAnswerUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := startStore(t)

	a := domain.Answer{AccountID: "u1", QuestionID: "q5", Value: label(domain.LabelA), Cycle: 1}
	stored, err := store.PutAnswer(ctx, startedGuard, a)
	if err != nil || !stored {
		t.Fatalf("first put: stored=%v err=%v", stored, err)
	}
	stored, err = store.PutAnswer(ctx, startedGuard, a)
	if err != nil || stored {
		t.Fatalf("identical put should be a no-op: stored=%v err=%v", stored, err)
	}

	a.Value = label(domain.LabelB)
	stored, err = store.PutAnswer(ctx, startedGuard, a)
	if err != nil || !stored {
		t.Fatalf("changed put: stored=%v err=%v", stored, err)
	}

	answers, _ := store.Answers(ctx, "u1")
	if len(answers) != 1 || *answers[0].Value != domain.LabelB {
		t.Fatalf("expected a single answer B, got %+v", answers)
	}
}

func TestQuizStoreRejectsStaleCycleAfterReset(t *testing.T) {
	ctx := context.Background()
	store := startStore(t)

	if _, err := store.PutAnswer(ctx, startedGuard, domain.Answer{AccountID: "u1", QuestionID: "q1", Value: label(domain.LabelA)}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.PutResult(ctx, domain.WriteGuard{Cycle: 1, Phases: []domain.Phase{domain.PhaseStarted}}, domain.Result{AccountID: "u1"}, app.RankResults); err != nil {
		t.Fatalf("put result: %v", err)
	}

	_, err := store.Transition(ctx, func(cur domain.QuizState) (domain.QuizState, error) {
		return domain.QuizState{Phase: domain.PhaseWaiting, Cycle: cur.Cycle + 1, Version: cur.Version + 1}, nil
	})
	if err != nil {
		t.Fatalf("reset: %v", err)
	}

	if answers, _ := store.Answers(ctx, "u1"); len(answers) != 0 {
		t.Fatalf("expected answers cleared, got %d", len(answers))
	}
	if results, _ := store.Results(ctx); len(results) != 0 {
		t.Fatalf("expected results cleared, got %d", len(results))
	}
	_, err = store.PutAnswer(ctx, startedGuard, domain.Answer{AccountID: "u1", QuestionID: "q1"})
	if !errors.Is(err, domain.ErrStaleCycle) {
		t.Fatalf("expected stale cycle, got %v", err)
	}
}

func TestQuizStoreRanksOnEveryResult(t *testing.T) {
	ctx := context.Background()
	store := startStore(t)

	for id, score := range map[string]int{"a": 10, "b": 10, "c": 8, "d": 5} {
		r := domain.Result{AccountID: id, ScoreResult: domain.ScoreResult{Score: score}}
		if _, err := store.PutResult(ctx, startedGuard, r, app.RankResults); err != nil {
			t.Fatalf("put result %s: %v", id, err)
		}
	}
	// a better attempt replaces the old one; a worse one is ignored
	if _, err := store.PutResult(ctx, startedGuard, domain.Result{AccountID: "d", ScoreResult: domain.ScoreResult{Score: 9}}, app.RankResults); err != nil {
		t.Fatalf("replace result: %v", err)
	}
	kept, err := store.PutResult(ctx, startedGuard, domain.Result{AccountID: "d", ScoreResult: domain.ScoreResult{Score: 1}}, app.RankResults)
	if err != nil {
		t.Fatalf("worse result: %v", err)
	}
	if kept.Score != 9 {
		t.Fatalf("expected best attempt 9 to be kept, got %d", kept.Score)
	}

	results, _ := store.Results(ctx)
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	want := map[string]int{"a": 1, "b": 1, "d": 3, "c": 4}
	for _, r := range results {
		if r.Rank == nil || *r.Rank != want[r.AccountID] {
			t.Fatalf("account %s: expected rank %d, got %v", r.AccountID, want[r.AccountID], r.Rank)
		}
	}
}

func TestQuizStoreEpochIsStablePerStore(t *testing.T) {
	ctx := context.Background()
	a, b := NewQuizStore(), NewQuizStore()

	before, _ := a.State(ctx)
	other, _ := b.State(ctx)
	if before.Epoch == "" || before.Epoch == other.Epoch {
		t.Fatalf("each store needs its own epoch, got %q and %q", before.Epoch, other.Epoch)
	}

	// a transition that builds a fresh state keeps the epoch
	after, err := a.Transition(ctx, func(cur domain.QuizState) (domain.QuizState, error) {
		return domain.QuizState{Phase: domain.PhaseWaiting, Cycle: cur.Cycle + 1, Version: cur.Version + 1}, nil
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if after.Epoch != before.Epoch {
		t.Fatalf("epoch changed across a transition: %q -> %q", before.Epoch, after.Epoch)
	}
}
