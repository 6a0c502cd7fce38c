package repository

import (
	"context"

	"SentiGate/internal/domain/models"
	domrepo "SentiGate/internal/domain/repository"
	pkgkafka "SentiGate/pkg/kafka"
)

// KafkaPublisher implements Publisher over the shared producer. Messages are
// keyed by instrument so per-instrument ordering survives partitioning.
// Delivery is at-least-once; the writer handles transient broker retries and
// callers that cannot block own the bounded retry and the final drop.
type KafkaPublisher struct {
	producer       *pkgkafka.Producer
	decisionsTopic string
}

// NewKafkaPublisher creates a bus publisher emitting decisions to the given
// topic.
func NewKafkaPublisher(producer *pkgkafka.Producer, decisionsTopic string) domrepo.Publisher {
	return &KafkaPublisher{producer: producer, decisionsTopic: decisionsTopic}
}

func (p *KafkaPublisher) PublishEnvelope(ctx context.Context, topic string, env models.Envelope) error {
	return p.producer.Publish(ctx, topic, []byte(env.InstrumentID), env)
}

func (p *KafkaPublisher) PublishDecision(ctx context.Context, d models.Decision) error {
	return p.producer.Publish(ctx, p.decisionsTopic, []byte(d.InstrumentID), d)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
