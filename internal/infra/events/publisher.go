package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"live-quiz-service/internal/domain"
)

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type event struct {
	Type       string              `json:"type"`
	Payload    domain.QuizSnapshot `json:"payload"`
	OccurredAt time.Time           `json:"occurredAt"`
}

// Publisher emits quiz lifecycle events to a topic exchange, routed as quiz.state.<phase>.
type Publisher struct {
	conn     *amqp.Connection
	channel  channel
	exchange string
}

func NewPublisher(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Publisher{conn: conn, channel: ch, exchange: exchange}, nil
}

func RoutingKey(phase domain.Phase) string {
	return "quiz.state." + string(phase)
}

func (p *Publisher) Publish(ctx context.Context, snapshot domain.QuizSnapshot) error {
	body, err := json.Marshal(event{
		Type:       "STATE_UPDATE",
		Payload:    snapshot,
		OccurredAt: snapshot.ServerTime,
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		RoutingKey(snapshot.Phase),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    fmt.Sprintf("quiz-%d-%d", snapshot.Cycle, snapshot.Version),
			Timestamp:    snapshot.ServerTime,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", RoutingKey(snapshot.Phase), err)
	}
	return nil
}

func (p *Publisher) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}
