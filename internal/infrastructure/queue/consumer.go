package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/sasha-s/go-deadlock"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/garyjia/editorial-workflow/internal/domain/event"
	"github.com/garyjia/editorial-workflow/internal/domain/workflow"
)

// Consumer outcomes reported to the ConsumerObserver
const (
	ResultProcessed = "processed"
	ResultMalformed = "malformed"
	ResultOversized = "oversized"
	ResultFailed    = "failed"
)

var errHandlerPanic = errors.New("handler panic")

// HandlerFunc materializes one decoded event
type HandlerFunc func(ctx context.Context, evt *event.WorkflowStateChangedEvent) error

// ConsumerObserver is told the outcome of every message a consumer receives
type ConsumerObserver interface {
	ObserveConsume(consumer, result string)
}

type nopConsumerObserver struct{}

func (nopConsumerObserver) ObserveConsume(string, string) {}

// ConsumerConfig holds the per-consumer retry and skip policy
type ConsumerConfig struct {
	Topic           string
	RetryCount      uint64
	RetryBackoff    time.Duration
	MessageTimeout  time.Duration
	MaxMessageBytes int
}

// Consumer drains the event topic into one handler. A message that cannot be decoded,
// is too large or keeps failing after the retries is logged and acknowledged so the
// messages behind it are not blocked.
type Consumer struct {
	name       string
	subscriber message.Subscriber
	cfg        ConsumerConfig
	handler    HandlerFunc
	observer   ConsumerObserver
	logger     *zap.Logger

	mu      deadlock.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewConsumer creates a consumer; Start subscribes it
func NewConsumer(name string, subscriber message.Subscriber, cfg ConsumerConfig, handler HandlerFunc, observer ConsumerObserver, logger *zap.Logger) *Consumer {
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	if cfg.MessageTimeout <= 0 {
		cfg.MessageTimeout = 30 * time.Second
	}
	if observer == nil {
		observer = nopConsumerObserver{}
	}

	return &Consumer{
		name:       name,
		subscriber: subscriber,
		cfg:        cfg,
		handler:    handler,
		observer:   observer,
		logger:     logger.With(zap.String("consumer", name)),
	}
}

// Name returns the consumer name
func (c *Consumer) Name() string {
	return c.name
}

// Start subscribes to the topic and processes messages in the background
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("consumer %s already running", c.name)
	}

	runCtx, cancel := context.WithCancel(ctx)
	messages, err := c.subscriber.Subscribe(runCtx, c.cfg.Topic)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe %s to %s: %w", c.name, c.cfg.Topic, err)
	}

	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true

	go c.run(runCtx, messages)

	c.logger.Info("Consumer started", zap.String("topic", c.cfg.Topic))
	return nil
}

// Stop cancels the subscription and waits for the message in flight to finish
func (c *Consumer) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()
	<-done

	c.logger.Info("Consumer stopped")
	return nil
}

func (c *Consumer) run(ctx context.Context, messages <-chan *message.Message) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			c.process(ctx, msg)
			msg.Ack()
		}
	}
}

// process never returns an error; the message is acknowledged whatever happens
func (c *Consumer) process(ctx context.Context, msg *message.Message) {
	if c.cfg.MaxMessageBytes > 0 && len(msg.Payload) > c.cfg.MaxMessageBytes {
		c.observer.ObserveConsume(c.name, ResultOversized)
		c.logger.Error("Skipping oversized message",
			zap.String("message_id", msg.UUID),
			zap.Int("size", len(msg.Payload)),
			zap.Int("max_message_bytes", c.cfg.MaxMessageBytes))
		return
	}

	evt, err := event.Decode(msg.Payload)
	if err != nil {
		c.observer.ObserveConsume(c.name, ResultMalformed)
		c.logger.Error("Skipping malformed message",
			zap.String("message_id", msg.UUID),
			zap.Error(err))
		return
	}

	// Shutdown lets the current message finish; only the timeout bounds it
	handlerCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.MessageTimeout)
	defer cancel()

	backoff := retry.WithMaxRetries(c.cfg.RetryCount, retry.NewExponential(c.cfg.RetryBackoff))
	attempts := 0
	err = retry.Do(handlerCtx, backoff, func(ctx context.Context) error {
		attempts++
		if err := c.safeHandle(ctx, evt); err != nil {
			if errors.Is(err, errHandlerPanic) || workflow.KindOf(err) == workflow.KindValidation {
				return err
			}
			c.logger.Debug("Handler attempt failed",
				zap.String("event_id", evt.EventID),
				zap.Int("attempt", attempts),
				zap.Error(err))
			return retry.RetryableError(err)
		}
		return nil
	})

	if err != nil {
		c.observer.ObserveConsume(c.name, ResultFailed)
		c.logger.Error("Skipping message after failed attempts",
			zap.String("event_id", evt.EventID),
			zap.String("instance_id", evt.WorkflowInstanceID),
			zap.String("content_id", evt.ContentID),
			zap.Int("attempts", attempts),
			zap.Error(err))
		return
	}

	c.observer.ObserveConsume(c.name, ResultProcessed)
}

// safeHandle turns a handler panic into an error
func (c *Consumer) safeHandle(ctx context.Context, evt *event.WorkflowStateChangedEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errHandlerPanic, r)
		}
	}()

	if err := c.handler(ctx, evt); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("handler timed out after %s: %w", c.cfg.MessageTimeout, err)
		}
		return err
	}
	return nil
}
