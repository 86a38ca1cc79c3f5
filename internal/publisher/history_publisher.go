package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	log "github.com/sirupsen/logrus"

	"field-history/internal/domain"
)

const (
	serviceName     = "field-history"
	deliveryTimeout = 10 * time.Second
	flushTimeoutMs  = 15 * 1000
)

// producer is the part of *kafka.Producer the publisher uses.
type producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Flush(timeoutMs int) int
	Close()
}

// HistoryPublisher sends committed history records to Kafka, keyed by
// entity so records of one entity stay ordered within a partition.
type HistoryPublisher struct {
	producer producer
	topic    string
	timeout  time.Duration
}

func NewHistoryPublisher(bootstrapServers, topic string) (*HistoryPublisher, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{"bootstrap.servers": bootstrapServers})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	log.WithField("topic", topic).Info("Field history Kafka producer created successfully")

	return &HistoryPublisher{producer: p, topic: topic, timeout: deliveryTimeout}, nil
}

func messageKey(r domain.HistoryRecord) []byte {
	return []byte(r.EntityType + "/" + r.EntityID)
}

func (p *HistoryPublisher) Publish(ctx context.Context, record domain.HistoryRecord) error {
	return p.PublishBatch(ctx, []domain.HistoryRecord{record})
}

// PublishBatch produces every record before waiting, then waits for all
// deliveries under a single timeout. The returned error joins one error per
// record that was not delivered.
func (p *HistoryPublisher) PublishBatch(ctx context.Context, records []domain.HistoryRecord) error {
	if len(records) == 0 {
		return nil
	}

	deliveryChan := make(chan kafka.Event, len(records))

	var errs []error
	pending := 0
	for _, record := range records {
		msg, err := p.message(record)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := p.producer.Produce(msg, deliveryChan); err != nil {
			errs = append(errs, fmt.Errorf("failed to produce message: %w", err))
			continue
		}
		pending++
	}

	timeout := time.NewTimer(p.timeout)
	defer timeout.Stop()

	for pending > 0 {
		select {
		case e := <-deliveryChan:
			pending--
			msg, ok := e.(*kafka.Message)
			if !ok {
				errs = append(errs, fmt.Errorf("unexpected event type: %T", e))
				continue
			}
			if msg.TopicPartition.Error != nil {
				errs = append(errs, fmt.Errorf("delivery failed: %w", msg.TopicPartition.Error))
			}
		case <-timeout.C:
			for ; pending > 0; pending-- {
				errs = append(errs, fmt.Errorf("delivery timeout"))
			}
		case <-ctx.Done():
			for ; pending > 0; pending-- {
				errs = append(errs, ctx.Err())
			}
		}
	}

	return errors.Join(errs...)
}

func (p *HistoryPublisher) message(record domain.HistoryRecord) (*kafka.Message, error) {
	event := domain.NewHistoryEvent(serviceName, record)
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal history event: %w", err)
	}

	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            messageKey(record),
		Value:          payload,
		Headers:        []kafka.Header{{Key: "event_type", Value: []byte(event.EventType)}},
	}, nil
}

func (p *HistoryPublisher) Close() {
	log.Info("Closing field history Kafka producer...")
	p.producer.Flush(flushTimeoutMs)
	p.producer.Close()
}
