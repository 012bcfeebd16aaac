package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer writes messages to Kafka topics.
type Producer interface {
	Produce(ctx context.Context, topic string, key, value []byte) error
	Close() error
}

// KafkaProducer implements Producer with a single kafka-go writer. The topic is
// set per message.
type KafkaProducer struct {
	w *kafka.Writer
}

// NewKafkaProducer creates a producer for the comma-separated broker list.
func NewKafkaProducer(brokers string) *KafkaProducer {
	return &KafkaProducer{w: &kafka.Writer{
		Addr:         kafka.TCP(splitBrokers(brokers)...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
	}}
}

func (p *KafkaProducer) Produce(ctx context.Context, topic string, key, value []byte) error {
	err := p.w.WriteMessages(ctx, kafka.Message{Topic: topic, Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("kafka produce %s: %w", topic, err)
	}
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.w.Close()
}

// ProducedMessage is a message captured by ChannelProducer.
type ProducedMessage struct {
	Topic string
	Key   []byte
	Value []byte
}

// ChannelProducer is an in-process Producer that delivers to a Go channel.
type ChannelProducer struct {
	ch   chan ProducedMessage
	once sync.Once
}

// NewChannelProducer creates an in-process producer for testing.
func NewChannelProducer() *ChannelProducer {
	return &ChannelProducer{ch: make(chan ProducedMessage, 100)}
}

func (p *ChannelProducer) Produce(ctx context.Context, topic string, key, value []byte) error {
	select {
	case p.ch <- ProducedMessage{Topic: topic, Key: key, Value: value}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Produced returns the channel of produced messages.
func (p *ChannelProducer) Produced() <-chan ProducedMessage { return p.ch }

func (p *ChannelProducer) Close() error {
	p.once.Do(func() { close(p.ch) })
	return nil
}
