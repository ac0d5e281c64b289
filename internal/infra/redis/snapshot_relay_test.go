package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

func TestSnapshotRelayForwardsToLocalSubscribers(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	relay := NewSnapshotRelay(newClient(mr), "test:snapshots", nil)
	feed := app.NewFeed()
	updates, cancel := feed.Subscribe()
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx, feed, ready) }()

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatalf("relay did not subscribe")
	}

	snap := domain.QuizSnapshot{QuizState: domain.QuizState{Phase: domain.PhaseStarted, Cycle: 1, Version: 2}, QuestionCount: 3}
	if err := relay.Publish(ctx, snap); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-updates:
		if got.Phase != domain.PhaseStarted || got.Version != 2 || got.QuestionCount != 3 {
			t.Fatalf("unexpected snapshot %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("expected relayed snapshot")
	}

	stop()
	if err := <-done; err != nil {
		t.Fatalf("relay run: %v", err)
	}
}
