package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	nsq "github.com/nsqio/go-nsq"
)

var (
	// ErrNSQProducerAddrRequired is returned when publishing without a producer.
	ErrNSQProducerAddrRequired = errors.New("messaging: nsq producer address is required")
	// ErrNSQConsumerAddrsRequired is returned when no nsqd/lookupd addresses are configured.
	ErrNSQConsumerAddrsRequired = errors.New("messaging: nsq consumer nsqd/lookupd addresses are required")
)

// NSQConfig configures the NSQ implementation.
type NSQConfig struct {
	ProducerAddr         string
	ConsumerNSQDAddrs    []string
	ConsumerLookupdAddrs []string
	// Config is shared by producer and consumers; nil uses nsq.NewConfig().
	Config *nsq.Config
}

// NSQ is a messaging implementation backed by NSQ. Groups map to channels.
type NSQ struct {
	cfg      NSQConfig
	producer *nsq.Producer

	mu        sync.Mutex
	consumers []*nsq.Consumer
}

// NewNSQ constructs an NSQ messaging client.
func NewNSQ(cfg NSQConfig) (*NSQ, error) {
	if cfg.Config == nil {
		cfg.Config = nsq.NewConfig()
	}

	n := &NSQ{cfg: cfg}
	if cfg.ProducerAddr != "" {
		p, err := nsq.NewProducer(cfg.ProducerAddr, cfg.Config)
		if err != nil {
			return nil, fmt.Errorf("messaging: nsq new producer: %w", err)
		}
		p.SetLoggerLevel(nsq.LogLevelError)
		n.producer = p
	}

	return n, nil
}

// Close stops the producer and all consumers.
func (n *NSQ) Close() error {
	n.mu.Lock()
	consumers := n.consumers
	n.consumers = nil
	n.mu.Unlock()

	for _, c := range consumers {
		c.Stop()
		<-c.StopChan
	}
	if n.producer != nil {
		n.producer.Stop()
	}
	return nil
}

// Publish implements Publisher. NSQ has no headers, so the message is framed
// as a CBOR envelope carrying headers and body.
func (n *NSQ) Publish(ctx context.Context, topic string, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if topic == "" {
		return ErrTopicRequired
	}
	if n.producer == nil {
		return ErrNSQProducerAddrRequired
	}

	frame, err := encodeEnvelope(msg)
	if err != nil {
		return err
	}
	if err := n.producer.Publish(topic, frame); err != nil {
		return fmt.Errorf("messaging: nsq publish: %w", err)
	}
	return nil
}

// Consume implements Consumer.
func (n *NSQ) Consume(ctx context.Context, topic, group string, handler Handler, opts ...ConsumeOption) error {
	if err := validate(topic, handler); err != nil {
		return err
	}
	if len(n.cfg.ConsumerNSQDAddrs) == 0 && len(n.cfg.ConsumerLookupdAddrs) == 0 {
		return ErrNSQConsumerAddrsRequired
	}

	co := newConsumeOptions(opts...)
	c, err := nsq.NewConsumer(topic, group, n.cfg.Config)
	if err != nil {
		return fmt.Errorf("messaging: nsq new consumer: %w", err)
	}
	c.SetLoggerLevel(nsq.LogLevelError)
	c.ChangeMaxInFlight(co.concurrency)
	c.AddConcurrentHandlers(nsq.HandlerFunc(func(m *nsq.Message) error {
		msg, err := decodeEnvelope(m.Body)
		if err != nil {
			// undecodable frames are dropped, redelivery would not help
			return nil //nolint:nilerr
		}
		msg.Topic = topic
		return callHandler(ctx, DriverNSQ, handler, msg)
	}), co.concurrency)

	if len(n.cfg.ConsumerLookupdAddrs) > 0 {
		err = c.ConnectToNSQLookupds(n.cfg.ConsumerLookupdAddrs)
	} else {
		err = c.ConnectToNSQDs(n.cfg.ConsumerNSQDAddrs)
	}
	if err != nil {
		c.Stop()
		return fmt.Errorf("messaging: nsq connect: %w", err)
	}

	n.mu.Lock()
	n.consumers = append(n.consumers, c)
	n.mu.Unlock()

	select {
	case <-ctx.Done():
		c.Stop()
		<-c.StopChan
	case <-c.StopChan:
	}
	return nil
}
