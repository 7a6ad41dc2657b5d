package infra

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// NewKafkaProducer configures a Kafka client for producing and verifies
// connectivity.
func NewKafkaProducer(ctx context.Context, brokers []string) (*kgo.Client, error) {
	return newKafkaClient(ctx, brokers)
}

// NewKafkaConsumer configures a Kafka client that consumes topic as part of
// group.
func NewKafkaConsumer(ctx context.Context, brokers []string, group, topic string) (*kgo.Client, error) {
	return newKafkaClient(ctx, brokers,
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
}

func newKafkaClient(ctx context.Context, brokers []string, opts ...kgo.Opt) (*kgo.Client, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}

	client, err := kgo.NewClient(append([]kgo.Opt{kgo.SeedBrokers(brokers...)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping kafka: %w", err)
	}

	return client, nil
}

// EnsureTopics creates any missing topics with broker defaults for
// partitions and replication.
func EnsureTopics(ctx context.Context, client *kgo.Client, topics ...string) error {
	resp, err := kadm.NewClient(client).CreateTopics(ctx, -1, -1, nil, topics...)
	if err != nil {
		return fmt.Errorf("create kafka topics: %w", err)
	}
	for topic, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create kafka topic %s: %w", topic, r.Err)
		}
	}
	return nil
}
