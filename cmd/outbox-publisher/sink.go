package main

import (
	"context"
	"errors"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/stockledger/pkg/kafka"
)

// sinkMessage is a resolved outbox row ready for delivery.
type sinkMessage struct {
	Key        string
	Data       []byte
	Attributes map[string]string
}

// sink delivers messages to a broker topic and reports once the broker acked.
type sink interface {
	Name() string
	Ping(context.Context) error
	Publish(ctx context.Context, topic string, msg sinkMessage) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type pubSubSink struct {
	client pubSubClient
}

func newPubSubSink(client pubSubClient) *pubSubSink {
	return &pubSubSink{client: client}
}

func (s *pubSubSink) Name() string { return "pubsub" }

func (s *pubSubSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *pubSubSink) Publish(ctx context.Context, topic string, msg sinkMessage) error {
	pub := s.client.Publisher(topic)
	if pub == nil {
		return errUnknownTopic
	}
	// Ordering keys would require message ordering on the topic; the key
	// travels as an attribute instead.
	attrs := make(map[string]string, len(msg.Attributes)+1)
	for k, v := range msg.Attributes {
		attrs[k] = v
	}
	attrs["partition_key"] = msg.Key
	_, err := pub.Publish(ctx, &gcppubsub.Message{Data: msg.Data, Attributes: attrs}).Get(ctx)
	return err
}

type kafkaPublisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

type kafkaSink struct {
	pub  kafkaPublisher
	ping func(context.Context) error
}

func newKafkaSink(pub kafkaPublisher, ping func(context.Context) error) *kafkaSink {
	return &kafkaSink{pub: pub, ping: ping}
}

func (s *kafkaSink) Name() string { return "kafka" }

func (s *kafkaSink) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

func (s *kafkaSink) Publish(ctx context.Context, topic string, msg sinkMessage) error {
	return s.pub.Publish(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(msg.Key),
		Value:   msg.Data,
		Headers: msg.Attributes,
	})
}

var errUnknownTopic = errors.New("publisher not configured for topic")
