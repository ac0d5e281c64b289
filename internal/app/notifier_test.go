package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"live-quiz-service/internal/domain"
)

type failingNotifier struct{ err error }

func (f failingNotifier) Publish(context.Context, domain.QuizSnapshot) error { return f.err }

func TestNotifiersPublishToAllAndJoinErrors(t *testing.T) {
	feed := NewFeed()
	updates, cancel := feed.Subscribe()
	defer cancel()

	boom := errors.New("broker down")
	ns := Notifiers{failingNotifier{boom}, nil, PollOnly{}, feed}
	err := ns.Publish(context.Background(), domain.QuizSnapshot{QuizState: domain.QuizState{Version: 5}})

	assert.ErrorIs(t, err, boom)
	got := <-updates
	assert.Equal(t, uint64(5), got.Version, "a failing notifier does not block the others")
}

func TestFeedKeepsNewestForSlowSubscriber(t *testing.T) {
	feed := NewFeed()
	updates, cancel := feed.Subscribe()

	for v := uint64(1); v <= 20; v++ {
		require.NoError(t, feed.Publish(context.Background(), domain.QuizSnapshot{QuizState: domain.QuizState{Version: v}}))
	}

	var last uint64
	for len(updates) > 0 {
		last = (<-updates).Version
	}
	assert.Equal(t, uint64(20), last)

	assert.Equal(t, 1, feed.Len())
	cancel()
	cancel()
	assert.Equal(t, 0, feed.Len())
	_, open := <-updates
	assert.False(t, open)
}
