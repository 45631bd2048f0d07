package messaging

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrTopicRequired is returned when the topic is empty.
	ErrTopicRequired = errors.New("messaging: topic is required")
	// ErrHandlerRequired is returned when Consume is called with a nil handler.
	ErrHandlerRequired = errors.New("messaging: handler is required")
	// ErrClosed is returned when the client was already closed.
	ErrClosed = errors.New("messaging: client closed")
)

// Messaging is a broker-agnostic client that can publish and consume messages.
type Messaging interface {
	io.Closer
	Publisher
	Consumer
}

// Publisher publishes messages to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg Message) error
}

// Consumer consumes messages from a topic.
//
// Consume blocks until ctx is done or the client is closed. Consumers sharing
// the same group split the messages between them.
type Consumer interface {
	Consume(ctx context.Context, topic, group string, handler Handler, opts ...ConsumeOption) error
}

// Handler processes a received message.
type Handler func(ctx context.Context, msg Message) error

// Message is the broker-agnostic unit of delivery.
type Message struct {
	// Key is used for partitioning where the broker supports it.
	Key []byte
	// Body is the payload.
	Body []byte
	// Headers carries string metadata such as the correlation id.
	Headers map[string]string
	// Topic is set on received messages.
	Topic string
	// Timestamp is set on received messages when the broker provides one.
	Timestamp time.Time
}

// Header returns a header value or "".
func (m Message) Header(key string) string {
	if m.Headers == nil {
		return ""
	}
	return m.Headers[key]
}

type consumeOptions struct {
	concurrency int
}

// ConsumeOption configures Consume.
type ConsumeOption func(*consumeOptions)

// WithConcurrency sets how many handler goroutines process messages in parallel.
func WithConcurrency(n int) ConsumeOption {
	return func(o *consumeOptions) { o.concurrency = n }
}

func newConsumeOptions(opts ...ConsumeOption) consumeOptions {
	co := consumeOptions{concurrency: 1}
	for _, opt := range opts {
		if opt != nil {
			opt(&co)
		}
	}
	if co.concurrency < 1 {
		co.concurrency = 1
	}
	return co
}

func validate(topic string, handler Handler) error {
	if topic == "" {
		return ErrTopicRequired
	}
	if handler == nil {
		return ErrHandlerRequired
	}
	return nil
}
