package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaSink publishes events to a Kafka topic, keyed by transaction id so
// every event of one instruction lands on the same partition.
type KafkaSink struct {
	client *kgo.Client
	admin  *kadm.Client
	topic  string
}

// NewKafkaSink connects a producer to brokers. The topic must exist before
// the first Append; see EnsureTopic.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaSink{client: client, admin: kadm.NewClient(client), topic: topic}, nil
}

func (k *KafkaSink) Append(ctx context.Context, event Event) error {
	rec, err := record(k.topic, event)
	if err != nil {
		return err
	}
	if err := k.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// EnsureTopic creates the audit topic when it is missing.
func (k *KafkaSink) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	resp, err := k.admin.CreateTopic(ctx, partitions, replicationFactor, nil, k.topic)
	if err != nil {
		return fmt.Errorf("create audit topic: %w", err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create audit topic %s: %w", k.topic, resp.Err)
	}
	return nil
}

// Ping checks that the brokers answer and the audit topic exists.
func (k *KafkaSink) Ping(ctx context.Context) error {
	topics, err := k.admin.ListTopics(ctx, k.topic)
	if err != nil {
		return fmt.Errorf("list audit topic: %w", err)
	}
	detail, ok := topics[k.topic]
	if !ok {
		return fmt.Errorf("audit topic %s not found", k.topic)
	}
	return detail.Err
}

func (k *KafkaSink) Close() {
	k.client.Close()
}

func record(topic string, event Event) (*kgo.Record, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode audit event: %w", err)
	}
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(event.TransactionID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(event.Action)},
			{Key: "outcome", Value: []byte(event.Outcome)},
		},
	}, nil
}
