package queue

import (
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"

	"github.com/garyjia/editorial-workflow/internal/domain/event"
)

// Supported transports
const (
	TransportGoChannel = "gochannel"
	TransportKafka     = "kafka"
)

// TransportConfig selects and configures the message broker
type TransportConfig struct {
	Kind                string
	KafkaBrokers        []string
	ConsumerGroupPrefix string
	MaxMessageBytes     int
}

// Transport owns the broker connections shared by the publisher and the consumers
type Transport struct {
	publisher     message.Publisher
	newSubscriber func(consumer string) (message.Subscriber, error)
	closers       []func() error
	logger        *zap.Logger
}

// NewTransport connects to the configured broker.
// The in-process transport fans every message out to all subscribers and blocks the
// publisher until they acknowledge, so events of one instance are consumed in order.
func NewTransport(cfg TransportConfig, logger *zap.Logger) (*Transport, error) {
	wmLogger := NewLoggerAdapter(logger)

	switch cfg.Kind {
	case TransportGoChannel, "":
		pubSub := gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer:            64,
				Persistent:                     false,
				BlockPublishUntilSubscriberAck: true,
			},
			wmLogger,
		)
		return &Transport{
			publisher:     pubSub,
			newSubscriber: func(string) (message.Subscriber, error) { return pubSub, nil },
			closers:       []func() error{pubSub.Close},
			logger:        logger,
		}, nil

	case TransportKafka:
		return newKafkaTransport(cfg, wmLogger, logger)

	default:
		return nil, fmt.Errorf("unsupported queue transport: %s", cfg.Kind)
	}
}

func newKafkaTransport(cfg TransportConfig, wmLogger watermill.LoggerAdapter, logger *zap.Logger) (*Transport, error) {
	if len(cfg.KafkaBrokers) == 0 || cfg.KafkaBrokers[0] == "" {
		return nil, errors.New("kafka transport requires at least one broker")
	}

	// Messages of one instance share a partition and keep their order
	marshaler := kafka.NewWithPartitioningMarshaler(func(topic string, msg *message.Message) (string, error) {
		return msg.Metadata.Get(event.MetadataRoutingKey), nil
	})

	saramaPublisherConfig := sarama.NewConfig()
	saramaPublisherConfig.Producer.Return.Successes = true
	saramaPublisherConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaPublisherConfig.Producer.Partitioner = sarama.NewHashPartitioner
	saramaPublisherConfig.Producer.Retry.Max = 5
	saramaPublisherConfig.Producer.Retry.Backoff = 250 * time.Millisecond
	if cfg.MaxMessageBytes > 0 {
		saramaPublisherConfig.Producer.MaxMessageBytes = cfg.MaxMessageBytes
	}

	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:               cfg.KafkaBrokers,
			Marshaler:             marshaler,
			OverwriteSaramaConfig: saramaPublisherConfig,
		},
		wmLogger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka publisher: %w", err)
	}

	t := &Transport{
		publisher: publisher,
		closers:   []func() error{publisher.Close},
		logger:    logger,
	}

	// Each consumer has its own group so it sees every event
	t.newSubscriber = func(consumer string) (message.Subscriber, error) {
		saramaSubscriberConfig := kafka.DefaultSaramaSubscriberConfig()
		saramaSubscriberConfig.Consumer.Offsets.Initial = sarama.OffsetOldest

		subscriber, err := kafka.NewSubscriber(
			kafka.SubscriberConfig{
				Brokers:               cfg.KafkaBrokers,
				Unmarshaler:           marshaler,
				OverwriteSaramaConfig: saramaSubscriberConfig,
				ConsumerGroup:         cfg.ConsumerGroupPrefix + consumer,
			},
			wmLogger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka subscriber %s: %w", consumer, err)
		}
		t.closers = append(t.closers, subscriber.Close)
		return subscriber, nil
	}

	logger.Info("Kafka transport configured",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("consumer_group_prefix", cfg.ConsumerGroupPrefix))
	return t, nil
}

// Publisher returns the broker publisher
func (t *Transport) Publisher() message.Publisher {
	return t.publisher
}

// Subscriber returns a subscriber for the named consumer
func (t *Transport) Subscriber(consumer string) (message.Subscriber, error) {
	return t.newSubscriber(consumer)
}

// Close closes every broker connection, publisher first
func (t *Transport) Close() error {
	var errs []error
	for _, closeFn := range t.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		t.logger.Error("Failed to close transport", zap.Error(errors.Join(errs...)))
		return errors.Join(errs...)
	}
	return nil
}
