// Package presence relays join and leave notifications to external
// reporting consumers. Publishing is fire-and-forget: nothing here is
// stored, and a slow or absent broker never stalls the collaboration loop.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	EventUserJoined = "user-joined"
	EventUserLeft   = "user-left"
)

// Event describes a single presence transition on one document.
type Event struct {
	Type         string    `json:"type"`
	DocumentID   string    `json:"documentId"`
	ConnectionID string    `json:"connectionId"`
	UserName     string    `json:"userName,omitempty"`
	InstanceID   string    `json:"instanceId"`
	Timestamp    time.Time `json:"timestamp"`
}

// Publisher accepts presence events. Implementations must not block.
type Publisher interface {
	Publish(e Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(Event) {}

// RedisPublisher queues events and publishes them to a Redis pub/sub
// channel from its own goroutine (see Run).
type RedisPublisher struct {
	rdb        *redis.Client
	channel    string
	instanceID string
	queue      chan Event
}

func NewRedisPublisher(rdb *redis.Client, channel string, buffer int) *RedisPublisher {
	return &RedisPublisher{
		rdb:        rdb,
		channel:    channel,
		instanceID: uuid.New().String(),
		queue:      make(chan Event, buffer),
	}
}

func (p *RedisPublisher) InstanceID() string {
	return p.instanceID
}

func (p *RedisPublisher) Publish(e Event) {
	e.InstanceID = p.instanceID
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	select {
	case p.queue <- e:
	default:
		slog.Warn("presence queue full, dropping event", "type", e.Type, "document", e.DocumentID)
	}
}

// Run drains the queue until ctx is cancelled.
func (p *RedisPublisher) Run(ctx context.Context) {
	slog.Info("presence publisher started", "channel", p.channel, "instance", p.instanceID)
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-p.queue:
			if err := p.send(ctx, e); err != nil {
				slog.Warn("publish presence event", "error", err, "type", e.Type)
			}
		}
	}
}

func (p *RedisPublisher) send(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal presence event: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return nil
}
