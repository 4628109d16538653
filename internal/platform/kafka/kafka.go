// Package kafka wraps the franz-go client used by the outbox relay and the
// Kafka change feed.
package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"nexops/internal/platform/config"
)

// Message is one record bound for the changes topic.
type Message struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Producer publishes to a single topic.
type Producer struct {
	client *kgo.Client
	topic  string
}

// NewProducer returns nil, nil when Kafka is not configured.
func NewProducer(cfg config.KafkaConfig, opts ...kgo.Opt) (*Producer, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	base := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &Producer{client: client, topic: cfg.Topic}, nil
}

// Send produces msgs synchronously and returns the first failure.
func (p *Producer) Send(ctx context.Context, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	records := make([]*kgo.Record, 0, len(msgs))
	for _, m := range msgs {
		rec := &kgo.Record{Topic: p.topic, Key: m.Key, Value: m.Value}
		for k, v := range m.Headers {
			rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
		}
		records = append(records, rec)
	}
	if err := p.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", p.topic, err)
	}
	return nil
}

// EnsureTopic creates the topic when it does not exist yet.
func (p *Producer) EnsureTopic(ctx context.Context, partitions int32) error {
	return EnsureTopic(ctx, p.client, p.topic, partitions)
}

// Health pings the seed brokers.
func (p *Producer) Health(ctx context.Context) error {
	if err := p.client.Ping(ctx); err != nil {
		return fmt.Errorf("ping kafka: %w", err)
	}
	return nil
}

func (p *Producer) Close() {
	p.client.Close()
}

// EnsureTopic creates topic with the broker's default replication factor.
// An existing topic is not an error.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32) error {
	if partitions < 1 {
		partitions = 1
	}
	resp, err := kadm.NewClient(client).CreateTopics(ctx, partitions, -1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// NewConsumer returns a client reading topic from its current end. No group
// is joined: every consumer sees every record published after it starts.
func NewConsumer(cfg config.KafkaConfig, opts ...kgo.Opt) (*kgo.Client, error) {
	if !cfg.Enabled() {
		return nil, errors.New("kafka brokers not configured")
	}
	base := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return client, nil
}
