package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// Message is a record to publish. Topic falls back to the producer default.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Producer writes messages synchronously and waits for all in-sync replicas.
// Messages with the same key land on the same partition.
type Producer struct {
	w            messageWriter
	defaultTopic string
	brokers      []string
}

// NewProducer builds a producer for the given brokers. The writer is
// topic-less so each message may name its own topic.
func NewProducer(brokers []string, defaultTopic string) (*Producer, error) {
	cleaned := make([]string, 0, len(brokers))
	for _, b := range brokers {
		if b = strings.TrimSpace(b); b != "" {
			cleaned = append(cleaned, b)
		}
	}
	if len(cleaned) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	return &Producer{
		w: &kafkago.Writer{
			Addr:         kafkago.TCP(cleaned...),
			Balancer:     &kafkago.Hash{},
			RequiredAcks: kafkago.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
		defaultTopic: defaultTopic,
		brokers:      cleaned,
	}, nil
}

// Publish writes msg and returns once the broker acknowledged it.
func (p *Producer) Publish(ctx context.Context, msg Message) error {
	topic := msg.Topic
	if topic == "" {
		topic = p.defaultTopic
	}
	if topic == "" {
		return errors.New("kafka topic is required")
	}
	err := p.w.WriteMessages(ctx, kafkago.Message{
		Topic:   topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: toHeaders(msg.Headers),
		Time:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("kafka write %s: %w", topic, err)
	}
	return nil
}

// Ping dials the first reachable broker.
func (p *Producer) Ping(ctx context.Context) error {
	var lastErr error
	for _, broker := range p.brokers {
		conn, err := kafkago.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	return fmt.Errorf("kafka ping: %w", lastErr)
}

func (p *Producer) Close() error {
	return p.w.Close()
}
