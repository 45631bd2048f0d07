package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

var (
	// ErrKafkaBrokersRequired is returned when no Kafka brokers are configured.
	ErrKafkaBrokersRequired = errors.New("messaging: kafka brokers are required")
	// ErrKafkaGroupRequired is returned when Consume is called without a group.
	ErrKafkaGroupRequired = errors.New("messaging: kafka consumer group is required")
)

// KafkaConfig configures the Kafka implementation.
type KafkaConfig struct {
	Brokers []string
	// BatchTimeout bounds how long the writer waits to fill a batch.
	BatchTimeout time.Duration
}

// Kafka is a messaging implementation backed by kafka-go. Groups map to
// consumer groups; offsets are committed after the handler succeeds.
type Kafka struct {
	brokers []string
	writer  *kafka.Writer

	mu      sync.Mutex
	readers []*kafka.Reader
}

// NewKafka constructs a Kafka messaging client.
func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrKafkaBrokersRequired
	}

	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}

	return &Kafka{
		brokers: cfg.Brokers,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.Hash{},
			BatchTimeout:           batchTimeout,
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}, nil
}

// Close shuts down the writer and every reader.
func (k *Kafka) Close() error {
	k.mu.Lock()
	readers := k.readers
	k.readers = nil
	k.mu.Unlock()

	var err error
	for _, r := range readers {
		err = errors.Join(err, r.Close())
	}
	return errors.Join(err, k.writer.Close())
}

// Publish implements Publisher.
func (k *Kafka) Publish(ctx context.Context, topic string, msg Message) error {
	if topic == "" {
		return ErrTopicRequired
	}

	kmsg := kafka.Message{Topic: topic, Key: msg.Key, Value: msg.Body, Time: time.Now()}
	for key, v := range msg.Headers {
		kmsg.Headers = append(kmsg.Headers, kafka.Header{Key: key, Value: []byte(v)})
	}

	if err := k.writer.WriteMessages(ctx, kmsg); err != nil {
		return fmt.Errorf("messaging: kafka publish: %w", err)
	}
	return nil
}

// Consume implements Consumer. Messages are handled in order per reader;
// concurrency opens that many readers in the same group.
func (k *Kafka) Consume(ctx context.Context, topic, group string, handler Handler, opts ...ConsumeOption) error {
	if err := validate(topic, handler); err != nil {
		return err
	}
	if group == "" {
		return ErrKafkaGroupRequired
	}

	co := newConsumeOptions(opts...)
	var wg sync.WaitGroup
	for range co.concurrency {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers: k.brokers,
			GroupID: group,
			Topic:   topic,
		})
		k.mu.Lock()
		k.readers = append(k.readers, reader)
		k.mu.Unlock()

		wg.Go(func() { k.readLoop(ctx, reader, handler) })
	}
	wg.Wait()

	return nil
}

func (k *Kafka) readLoop(ctx context.Context, reader *kafka.Reader, handler Handler) {
	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.ErrorContext(ctx, "kafka fetch failed", "error", err)
			}
			return
		}

		headers := make(map[string]string, len(m.Headers))
		for _, h := range m.Headers {
			headers[h.Key] = string(h.Value)
		}

		herr := callHandler(ctx, DriverKafka, handler, Message{
			Key:       m.Key,
			Body:      m.Value,
			Headers:   headers,
			Topic:     m.Topic,
			Timestamp: m.Time,
		})
		if herr != nil {
			// leave the offset uncommitted so the group redelivers after a rebalance
			slog.WarnContext(ctx, "kafka handler failed", "topic", m.Topic, "offset", m.Offset, "error", herr)
			continue
		}

		if err := reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			slog.ErrorContext(ctx, "kafka commit failed", "topic", m.Topic, "offset", m.Offset, "error", err)
		}
	}
}
