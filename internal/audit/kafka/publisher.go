// Package kafka forwards audit events to a Kafka topic for downstream
// retention and SIEM consumption.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"

	"tranche/internal/audit"
)

const defaultTopic = "tranche.audit"

// Publisher produces audit events to Kafka. Records are keyed by asset so
// per-asset ordering is preserved within a partition.
type Publisher struct {
	client *kgo.Client
	topic  string
}

// New connects a producer to the given comma-separated broker list.
// Returns nil if brokers is empty (Kafka not configured).
func New(brokers string, topic string) (*Publisher, error) {
	if brokers == "" {
		return nil, nil
	}
	if topic == "" {
		topic = defaultTopic
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(strings.Split(brokers, ",")...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &Publisher{client: client, topic: topic}, nil
}

// Emit produces one event synchronously.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.Asset),
		Value: payload,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// Close flushes and closes the producer.
func (p *Publisher) Close() {
	if p != nil && p.client != nil {
		p.client.Close()
	}
}
