// Package queue carries grading jobs from the request path to the grading worker
// over watermill.
package queue

import (
	"fmt"

	"exam-engine/internal/config"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const (
	DriverGoChannel = "gochannel"
	DriverKafka     = "kafka"
)

// PubSub bundles the publisher and subscriber of one driver.
type PubSub struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	// shared is set when one object serves both sides.
	shared bool
}

func (p *PubSub) Close() error {
	pubErr := p.Publisher.Close()
	if !p.shared {
		if err := p.Subscriber.Close(); err != nil {
			return err
		}
	}
	return pubErr
}

// NewPubSub builds the publisher and subscriber selected by cfg.Driver.
func NewPubSub(cfg config.QueueConfig, logger watermill.LoggerAdapter) (*PubSub, error) {
	switch cfg.Driver {
	case "", DriverGoChannel:
		ch := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: cfg.Buffer,
		}, logger)
		return &PubSub{Publisher: ch, Subscriber: ch, shared: true}, nil
	case DriverKafka:
		if len(cfg.Brokers) == 0 {
			return nil, fmt.Errorf("queue.brokers is required for the kafka driver")
		}
		publisher, err := kafka.NewPublisher(kafka.PublisherConfig{
			Brokers:   cfg.Brokers,
			Marshaler: kafka.DefaultMarshaler{},
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka publisher: %w", err)
		}
		subscriber, err := kafka.NewSubscriber(kafka.SubscriberConfig{
			Brokers:               cfg.Brokers,
			Unmarshaler:           kafka.DefaultMarshaler{},
			ConsumerGroup:         cfg.ConsumerGroup,
			OverwriteSaramaConfig: kafka.DefaultSaramaSubscriberConfig(),
		}, logger)
		if err != nil {
			_ = publisher.Close()
			return nil, fmt.Errorf("failed to create kafka subscriber: %w", err)
		}
		return &PubSub{Publisher: publisher, Subscriber: subscriber}, nil
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Driver)
	}
}
