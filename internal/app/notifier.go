package app

import (
	"context"
	"errors"
	"sync"

	"live-quiz-service/internal/domain"
)

// Notifier delivers quiz snapshots after every transition. Delivery is best effort:
// clients can always pull the state, so no caller depends on a Notifier succeeding.
type Notifier interface {
	Publish(ctx context.Context, snapshot domain.QuizSnapshot) error
}

// PollOnly is the strategy used when push delivery is disabled.
type PollOnly struct{}

func (PollOnly) Publish(context.Context, domain.QuizSnapshot) error { return nil }

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, snapshot domain.QuizSnapshot) error

func (f NotifierFunc) Publish(ctx context.Context, snapshot domain.QuizSnapshot) error {
	return f(ctx, snapshot)
}

// Notifiers publishes to every notifier and joins their errors.
type Notifiers []Notifier

func (ns Notifiers) Publish(ctx context.Context, snapshot domain.QuizSnapshot) error {
	var errs []error
	for _, n := range ns {
		if n == nil {
			continue
		}
		if err := n.Publish(ctx, snapshot); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Feed fans snapshots out to in-process subscribers such as long-poll requests.
type Feed struct {
	mu          sync.Mutex
	subscribers map[chan domain.QuizSnapshot]struct{}
}

func NewFeed() *Feed {
	return &Feed{subscribers: make(map[chan domain.QuizSnapshot]struct{})}
}

// Subscribe returns a channel of snapshots published after the call.
// The caller must invoke the returned cancel function to avoid leaks.
func (f *Feed) Subscribe() (<-chan domain.QuizSnapshot, func()) {
	ch := make(chan domain.QuizSnapshot, 8)

	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subscribers[ch]; ok {
			delete(f.subscribers, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

func (f *Feed) Publish(_ context.Context, snapshot domain.QuizSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers {
		select {
		case ch <- snapshot:
		default:
			// slow subscriber: drop the oldest snapshot, the newest supersedes it
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
	return nil
}

// Len reports the number of live subscribers.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}
