package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/garyjia/editorial-workflow/internal/application/port"
	"github.com/garyjia/editorial-workflow/internal/domain/event"
	"github.com/garyjia/editorial-workflow/internal/domain/workflow"
)

// PublishObserver is told the result of every publish ("accepted", "full", "cancelled",
// "closed", "failed")
type PublishObserver interface {
	ObservePublish(result string)
}

type nopPublishObserver struct{}

func (nopPublishObserver) ObservePublish(string) {}

// PublisherConfig configures the bounded queue in front of the broker
type PublisherConfig struct {
	Topic          string
	Capacity       int
	EnqueueTimeout time.Duration

	// Broker failures are retried with exponential backoff before the event is dropped
	RetryCount   uint64
	RetryBackoff time.Duration
}

// Publisher implements port.EventPublisher with a bounded in-process queue drained by
// one goroutine into the broker. A single pump keeps the broker order equal to the
// enqueue order.
type Publisher struct {
	out      message.Publisher
	cfg      PublisherConfig
	queue    chan *message.Message
	observer PublishObserver
	logger   *zap.Logger

	mu     deadlock.RWMutex
	closed bool
	done   chan struct{}
}

// NewPublisher creates a publisher and starts its pump
func NewPublisher(out message.Publisher, cfg PublisherConfig, observer PublishObserver, logger *zap.Logger) *Publisher {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1000
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = 5 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	if observer == nil {
		observer = nopPublishObserver{}
	}

	p := &Publisher{
		out:      out,
		cfg:      cfg,
		queue:    make(chan *message.Message, cfg.Capacity),
		observer: observer,
		logger:   logger,
		done:     make(chan struct{}),
	}
	go p.pump()
	return p
}

// Publish enqueues the event. When the queue is full it waits for room until the
// enqueue timeout and then fails with ErrQueueFull. A context that ends first fails
// with its own error.
func (p *Publisher) Publish(ctx context.Context, evt *event.WorkflowStateChangedEvent) error {
	payload, err := event.Encode(evt)
	if err != nil {
		p.observer.ObservePublish("failed")
		return fmt.Errorf("encode event %s: %w", evt.EventID, err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set(event.MetadataEventType, evt.Type().String())
	msg.Metadata.Set(event.MetadataRoutingKey, evt.RoutingKey())

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.observer.ObservePublish("closed")
		return fmt.Errorf("%w: event %s", workflow.ErrQueueClosed, evt.EventID)
	}

	select {
	case p.queue <- msg:
		p.observer.ObservePublish("accepted")
		return nil
	default:
	}

	timer := time.NewTimer(p.cfg.EnqueueTimeout)
	defer timer.Stop()

	select {
	case p.queue <- msg:
		p.observer.ObservePublish("accepted")
		return nil
	case <-timer.C:
		p.observer.ObservePublish("full")
		return fmt.Errorf("%w: event %s not accepted within %s", workflow.ErrQueueFull, evt.EventID, p.cfg.EnqueueTimeout)
	case <-ctx.Done():
		p.observer.ObservePublish("cancelled")
		return fmt.Errorf("enqueue event %s: %w", evt.EventID, ctx.Err())
	}
}

// Len returns the number of queued events
func (p *Publisher) Len() int {
	return len(p.queue)
}

func (p *Publisher) pump() {
	defer close(p.done)

	for msg := range p.queue {
		if err := p.forward(msg); err != nil {
			p.observer.ObservePublish("failed")
			p.logger.Error("Dropped event after broker retries",
				zap.String("message_id", msg.UUID),
				zap.String("routing_key", msg.Metadata.Get(event.MetadataRoutingKey)),
				zap.Uint64("retries", p.cfg.RetryCount),
				zap.Error(err))
		}
	}
}

func (p *Publisher) forward(msg *message.Message) error {
	attempt := 0
	backoff := retry.WithMaxRetries(p.cfg.RetryCount, retry.NewExponential(p.cfg.RetryBackoff))

	return retry.Do(context.Background(), backoff, func(ctx context.Context) error {
		attempt++
		if err := p.out.Publish(p.cfg.Topic, msg); err != nil {
			p.logger.Warn("Broker rejected event",
				zap.String("message_id", msg.UUID),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return retry.RetryableError(err)
		}
		return nil
	})
}

// Close stops accepting events and waits until the queued ones reached the broker
// or ctx ends
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	select {
	case <-p.done:
		p.logger.Info("Event publisher drained")
		return nil
	case <-ctx.Done():
		p.logger.Error("Event publisher closed before draining", zap.Int("pending", len(p.queue)))
		return ctx.Err()
	}
}

// Verify interface compliance
var _ port.EventPublisher = (*Publisher)(nil)
