// Package kafka publishes chunk events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/chunkstore/pkg/eventstream"
)

const (
	// batchTimeout bounds how long a message waits for its batch to fill.
	batchTimeout = 10 * time.Millisecond

	// maxAttempts bounds delivery attempts per batch.
	maxAttempts = 3

	// writeTimeout bounds a single write to a broker.
	writeTimeout = 5 * time.Second
)

// Config configures the Kafka publisher.
type Config struct {
	// Brokers are the bootstrap broker addresses, e.g. "localhost:9092".
	Brokers []string

	// Topic receives every event.
	Topic string
}

// messageWriter is the subset of *kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes one message per event, keyed by the event's first
// document ID so a document's events stay on one partition.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewPublisher creates a Kafka publisher for c.
func NewPublisher(c Config, logger *slog.Logger) (*Publisher, error) {
	if len(c.Brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	if c.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}

	return newPublisher(newWriter(c, logger), c.Topic, logger), nil
}

// newWriter builds an asynchronous writer: WriteMessages only enqueues, and
// delivery failures are reported to the log by the completion callback.
func newWriter(c Config, logger *slog.Logger) *kafkago.Writer {
	logger = logger.With("topic", c.Topic)

	return &kafkago.Writer{
		Addr:                   kafkago.TCP(c.Brokers...),
		Topic:                  c.Topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		AllowAutoTopicCreation: true,
		Async:                  true,
		BatchTimeout:           batchTimeout,
		MaxAttempts:            maxAttempts,
		WriteTimeout:           writeTimeout,
		Completion: func(messages []kafkago.Message, err error) {
			if err != nil {
				logger.Warn("failed to deliver chunk events",
					"messages", len(messages),
					"error", err,
				)
			}
		},
	}
}

func newPublisher(w messageWriter, topic string, logger *slog.Logger) *Publisher {
	return &Publisher{
		writer: w,
		topic:  topic,
		logger: logger.With("topic", topic),
	}
}

// Publish encodes the event as JSON and hands it to the writer. Delivery
// happens in the background.
func (p *Publisher) Publish(ctx context.Context, event *eventstream.ChunkEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", event.EventType, err)
	}

	msg := kafkago.Message{
		Key:   []byte(event.Key()),
		Value: payload,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing %s event to %s: %w", event.EventType, p.topic, err)
	}

	p.logger.Debug("queued chunk event",
		"event_type", event.EventType,
		"event_id", event.EventID,
		"documents", len(event.DocumentIDs),
	)
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ eventstream.Publisher = (*Publisher)(nil)
