package kafka_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/chunkstore/pkg/eventstream"
	"github.com/papercomputeco/chunkstore/pkg/eventstream/kafka"
	"github.com/papercomputeco/chunkstore/pkg/logger"
)

type fakeWriter struct {
	messages []kafkago.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

var _ = Describe("Publisher", func() {
	var (
		writer    *fakeWriter
		publisher *kafka.Publisher
		ctx       context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		writer = &fakeWriter{}
		publisher = kafka.NewPublisherWithWriter(writer, "chunk-events", logger.Nop())
	})

	Describe("NewPublisher", func() {
		It("requires brokers", func() {
			_, err := kafka.NewPublisher(kafka.Config{Topic: "t"}, logger.Nop())
			Expect(err).To(MatchError(ContainSubstring("broker")))
		})

		It("requires a topic", func() {
			_, err := kafka.NewPublisher(kafka.Config{Brokers: []string{"localhost:9092"}}, logger.Nop())
			Expect(err).To(MatchError(ContainSubstring("topic")))
		})

		It("creates a publisher without dialing", func() {
			p, err := kafka.NewPublisher(kafka.Config{Brokers: []string{"localhost:9092"}, Topic: "t"}, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Close()).To(Succeed())
		})
	})

	Describe("writer configuration", func() {
		var (
			buf bytes.Buffer
			w   *kafkago.Writer
		)

		BeforeEach(func() {
			buf.Reset()
			w = kafka.NewWriter(kafka.Config{Brokers: []string{"localhost:9092"}, Topic: "t"},
				logger.New(logger.WithWriter(&buf)))
		})

		AfterEach(func() {
			Expect(w.Close()).To(Succeed())
		})

		It("does not block callers on delivery", func() {
			Expect(w.Async).To(BeTrue())
			Expect(w.BatchTimeout).To(BeNumerically(">", 0))
			Expect(w.BatchTimeout).To(BeNumerically("<=", 50*time.Millisecond))
			Expect(w.MaxAttempts).To(BeNumerically(">", 0))
			Expect(w.WriteTimeout).To(BeNumerically(">", 0))
		})

		It("logs failed deliveries at warn", func() {
			Expect(w.Completion).NotTo(BeNil())
			w.Completion([]kafkago.Message{{}, {}}, errors.New("broker unavailable"))
			Expect(buf.String()).To(ContainSubstring("failed to deliver chunk events"))
			Expect(buf.String()).To(ContainSubstring("broker unavailable"))
		})

		It("stays quiet on success", func() {
			w.Completion([]kafkago.Message{{}}, nil)
			Expect(buf.String()).To(BeEmpty())
		})
	})

	It("writes the event as a keyed JSON message", func() {
		event := eventstream.NewChunksStoredEvent("docs", []string{"readme"}, []string{"p1"})
		Expect(publisher.Publish(ctx, event)).To(Succeed())

		Expect(writer.messages).To(HaveLen(1))
		msg := writer.messages[0]
		Expect(string(msg.Key)).To(Equal("readme"))
		Expect(msg.Headers).To(ContainElement(kafkago.Header{Key: "event_type", Value: []byte(eventstream.EventTypeChunksStored)}))

		var decoded eventstream.ChunkEvent
		Expect(json.Unmarshal(msg.Value, &decoded)).To(Succeed())
		Expect(decoded.EventID).To(Equal(event.EventID))
		Expect(decoded.PointIDs).To(Equal([]string{"p1"}))
	})

	It("rejects nil events", func() {
		Expect(publisher.Publish(ctx, nil)).To(MatchError(eventstream.ErrNilEvent))
		Expect(writer.messages).To(BeEmpty())
	})

	It("wraps writer failures", func() {
		writer.err = errors.New("broker down")

		err := publisher.Publish(ctx, eventstream.NewDocumentDeletedEvent("docs", "a"))
		Expect(err).To(MatchError(ContainSubstring("broker down")))
		Expect(err).To(MatchError(ContainSubstring("chunk-events")))
	})

	It("closes the writer", func() {
		Expect(publisher.Close()).To(Succeed())
		Expect(writer.closed).To(BeTrue())
	})
})
