package producer

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	skafka "github.com/radieske/friendsbet/internal/shared/kafka"
	"github.com/radieske/friendsbet/pkg/contracts/events"
)

// Topics names the topic of each domain event.
type Topics struct {
	EventCreated  string
	EventApproved string
	BetPlaced     string
	EventResolved string
}

// KafkaPublisher writes domain events through one unbound writer, keyed by event
// id so every message about an event stays ordered on its partition.
type KafkaPublisher struct {
	Writer *kafka.Writer
	Topics Topics
	now    func() time.Time
}

// NewKafkaPublisher expects w to have no default topic.
func NewKafkaPublisher(w *kafka.Writer, topics Topics) *KafkaPublisher {
	return &KafkaPublisher{Writer: w, Topics: topics, now: time.Now}
}

func (p *KafkaPublisher) PublishEventCreated(ctx context.Context, e events.EventCreated) error {
	e.TsUnixMs = p.now().UnixMilli()
	return skafka.WriteJSON(ctx, p.Writer, p.Topics.EventCreated, e.EventID, e)
}

func (p *KafkaPublisher) PublishEventApproved(ctx context.Context, e events.EventApproved) error {
	e.TsUnixMs = p.now().UnixMilli()
	return skafka.WriteJSON(ctx, p.Writer, p.Topics.EventApproved, e.EventID, e)
}

func (p *KafkaPublisher) PublishBetPlaced(ctx context.Context, e events.BetPlaced) error {
	e.TsUnixMs = p.now().UnixMilli()
	return skafka.WriteJSON(ctx, p.Writer, p.Topics.BetPlaced, e.EventID, e)
}

func (p *KafkaPublisher) PublishEventResolved(ctx context.Context, e events.EventResolved) error {
	e.TsUnixMs = p.now().UnixMilli()
	return skafka.WriteJSON(ctx, p.Writer, p.Topics.EventResolved, e.EventID, e)
}
