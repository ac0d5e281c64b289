package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"live-quiz-service/internal/domain"
)

type recordingChannel struct {
	exchange, key string
	msg           amqp.Publishing
	closed        bool
}

func (c *recordingChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.exchange, c.key, c.msg = exchange, key, msg
	return nil
}

func (c *recordingChannel) Close() error {
	c.closed = true
	return nil
}

func TestPublisherRoutesByPhase(t *testing.T) {
	ch := &recordingChannel{}
	p := &Publisher{channel: ch, exchange: "quiz.events"}

	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	snap := domain.QuizSnapshot{
		QuizState:  domain.QuizState{Phase: domain.PhaseStarted, Cycle: 3, Version: 7},
		ServerTime: now,
	}
	require.NoError(t, p.Publish(context.Background(), snap))

	assert.Equal(t, "quiz.events", ch.exchange)
	assert.Equal(t, "quiz.state.started", ch.key)
	assert.Equal(t, "quiz-3-7", ch.msg.MessageId)
	assert.Equal(t, "application/json", ch.msg.ContentType)

	var ev struct {
		Type    string              `json:"type"`
		Payload domain.QuizSnapshot `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(ch.msg.Body, &ev))
	assert.Equal(t, "STATE_UPDATE", ev.Type)
	assert.Equal(t, uint64(7), ev.Payload.Version)

	p.Close()
	assert.True(t, ch.closed)
}
