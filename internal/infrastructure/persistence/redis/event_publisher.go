package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kiongozi/gamification-engine/internal/domain/shared"
)

// channelPublisher is the subset of Cache used by EventPublisher.
type channelPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// EventPublisher forwards domain events to Redis pub/sub, one channel per event type.
type EventPublisher struct {
	pub     channelPublisher
	timeout time.Duration
}

// NewEventPublisher creates a publisher. timeout bounds each PUBLISH call.
func NewEventPublisher(pub channelPublisher, timeout time.Duration) *EventPublisher {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &EventPublisher{pub: pub, timeout: timeout}
}

// Publish implements shared.EventPublisher.
func (p *EventPublisher) Publish(event shared.Event) error {
	env, err := Envelope(event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.pub.Publish(ctx, PubSubChannel(string(event.EventType())), env); err != nil {
		return fmt.Errorf("publish %s: %w", event.EventType(), err)
	}
	return nil
}

// Envelope wraps an event for transport.
func Envelope(event shared.Event) (shared.EventEnvelope, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return shared.EventEnvelope{}, fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}

	env := shared.EventEnvelope{
		ID:          uuid.NewString(),
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   event.OccurredAt(),
		Version:     1,
		Payload:     payload,
	}
	if b, ok := event.(interface{ Base() shared.BaseEvent }); ok {
		env.Version = b.Base().Version
		env.CorrelationID = b.Base().CorrelationID
	}
	return env, nil
}
