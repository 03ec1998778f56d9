package events

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultEventChannel is the default Redis channel prefix for events
	DefaultEventChannel = "shc:events"

	publishTimeout = 2 * time.Second
)

// PublisherConfig contains configuration for the Redis publisher
type PublisherConfig struct {
	RedisClient   redis.UniversalClient
	ChannelPrefix string // Prefix for Redis channels
}

// Publisher mirrors bus events onto Redis Pub/Sub so other processes (the
// API server, dashboards) can follow a session.
type Publisher struct {
	config     *PublisherConfig
	client     redis.UniversalClient
	channelMap map[EventType]string

	eventsPublished atomic.Uint64
	publishErrors   atomic.Uint64
}

// NewPublisher creates a new Redis event publisher
func NewPublisher(config *PublisherConfig) (*Publisher, error) {
	if config == nil || config.RedisClient == nil {
		return nil, fmt.Errorf("invalid publisher configuration")
	}
	if config.ChannelPrefix == "" {
		config.ChannelPrefix = DefaultEventChannel
	}

	p := &Publisher{
		config:     config,
		client:     config.RedisClient,
		channelMap: make(map[EventType]string),
	}
	p.initChannelMap()
	return p, nil
}

// initChannelMap sets up the mapping from event types to Redis channels
func (p *Publisher) initChannelMap() {
	prefix := p.config.ChannelPrefix

	p.channelMap[EventLedgerLoaded] = fmt.Sprintf("%s:ledger", prefix)
	p.channelMap[EventLedgerLoadFailed] = fmt.Sprintf("%s:ledger", prefix)

	p.channelMap[EventRecordSubmitted] = fmt.Sprintf("%s:submission", prefix)
	p.channelMap[EventSubmissionFailed] = fmt.Sprintf("%s:submission", prefix)

	p.channelMap[EventPendingReconciled] = fmt.Sprintf("%s:reconcile", prefix)
	p.channelMap[EventRecordObserved] = fmt.Sprintf("%s:ledger", prefix)

	p.channelMap[EventContentPinned] = fmt.Sprintf("%s:storage", prefix)
}

// Channel returns the Redis channel used for eventType.
func (p *Publisher) Channel(eventType EventType) string {
	if channel, ok := p.channelMap[eventType]; ok {
		return channel
	}
	return p.config.ChannelPrefix
}

// Publish sends one event to its channel.
func (p *Publisher) Publish(ctx context.Context, event *Event) error {
	data, err := event.ToJSON()
	if err != nil {
		p.publishErrors.Add(1)
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	if err := p.client.Publish(ctx, p.Channel(event.Type), data).Err(); err != nil {
		p.publishErrors.Add(1)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.eventsPublished.Add(1)
	return nil
}

// PublishBatch publishes multiple events in one pipeline.
func (p *Publisher) PublishBatch(ctx context.Context, events []*Event) error {
	pipe := p.client.Pipeline()
	queued := 0
	for _, evt := range events {
		data, err := evt.ToJSON()
		if err != nil {
			log.WithError(err).Error("Failed to serialize event")
			p.publishErrors.Add(1)
			continue
		}
		pipe.Publish(ctx, p.Channel(evt.Type), data)
		queued++
	}
	if queued == 0 {
		return nil
	}

	if _, err := pipe.Exec(ctx); err != nil {
		p.publishErrors.Add(1)
		return fmt.Errorf("failed to publish batch: %w", err)
	}

	p.eventsPublished.Add(uint64(queued))
	return nil
}

// Attach subscribes the publisher to every event on the emitter. The
// returned function detaches it.
func (p *Publisher) Attach(emitter *Emitter) (func(), error) {
	id := "redis-publisher-" + p.config.ChannelPrefix
	err := emitter.Subscribe(&Subscriber{
		ID: id,
		Handler: func(event *Event) {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			defer cancel()
			if err := p.Publish(ctx, event); err != nil {
				log.WithError(err).WithField("event_type", event.Type).Warn("Failed to mirror event to Redis")
			}
		},
	})
	if err != nil {
		return nil, err
	}
	return func() { _ = emitter.Unsubscribe(id) }, nil
}

// GetMetrics returns publisher metrics
func (p *Publisher) GetMetrics() map[string]interface{} {
	return map[string]interface{}{
		"events_published": p.eventsPublished.Load(),
		"publish_errors":   p.publishErrors.Load(),
	}
}
