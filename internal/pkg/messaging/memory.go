package messaging

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"
)

// Memory is an in-process broker. Each group receives every message once;
// members of the same group share it round-robin through a common channel.
type Memory struct {
	mu     sync.RWMutex
	groups map[string]map[string]chan Message // topic -> group -> queue
	closed bool
	done   chan struct{}
	buffer int
}

// NewMemory returns an empty in-process broker.
func NewMemory() *Memory {
	return &Memory{
		groups: make(map[string]map[string]chan Message),
		done:   make(chan struct{}),
		buffer: 256,
	}
}

func (m *Memory) queue(topic, group string) (chan Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	byGroup, ok := m.groups[topic]
	if !ok {
		byGroup = make(map[string]chan Message)
		m.groups[topic] = byGroup
	}
	q, ok := byGroup[group]
	if !ok {
		q = make(chan Message, m.buffer)
		byGroup[group] = q
	}
	return q, nil
}

// Declare creates the queue of group on topic so that messages published
// before the first Consume call are kept.
func (m *Memory) Declare(topic, group string) error {
	_, err := m.queue(topic, group)
	return err
}

// Publish delivers msg to every group subscribed to topic. Messages for a
// topic without consumers are dropped.
func (m *Memory) Publish(ctx context.Context, topic string, msg Message) error {
	if topic == "" {
		return ErrTopicRequired
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}

	msg.Topic = topic
	msg.Timestamp = time.Now()
	msg.Headers = maps.Clone(msg.Headers)

	for group, q := range m.groups[topic] {
		select {
		case q <- msg:
		case <-ctx.Done():
			return ctx.Err()
		default:
			slog.WarnContext(ctx, "memory broker queue full, message dropped", "topic", topic, "group", group)
		}
	}
	return nil
}

// Consume implements Consumer.
func (m *Memory) Consume(ctx context.Context, topic, group string, handler Handler, opts ...ConsumeOption) error {
	if err := validate(topic, handler); err != nil {
		return err
	}

	q, err := m.queue(topic, group)
	if err != nil {
		return err
	}

	co := newConsumeOptions(opts...)
	var wg sync.WaitGroup
	for range co.concurrency {
		wg.Go(func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-m.done:
					return
				case msg := <-q:
					if err := callHandler(ctx, DriverMemory, handler, msg); err != nil {
						slog.WarnContext(ctx, "memory broker handler failed", "topic", topic, "group", group, "error", err)
					}
				}
			}
		})
	}
	wg.Wait()
	return nil
}

// Close stops all consumers.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}
