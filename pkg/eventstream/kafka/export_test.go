package kafka

import (
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"
)

// NewPublisherWithWriter builds a publisher around a test writer.
func NewPublisherWithWriter(w messageWriter, topic string, logger *slog.Logger) *Publisher {
	return newPublisher(w, topic, logger)
}

// NewWriter exposes the writer configuration NewPublisher uses.
func NewWriter(c Config, logger *slog.Logger) *kafkago.Writer {
	return newWriter(c, logger)
}
