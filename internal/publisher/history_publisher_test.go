package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"field-history/internal/domain"
)

type fakeProducer struct {
	messages   []*kafka.Message
	produceErr error
	deliverErr error
	silent     bool
	flushed    bool
	closed     bool
}

func (f *fakeProducer) Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error {
	if f.produceErr != nil {
		return f.produceErr
	}
	f.messages = append(f.messages, msg)
	if !f.silent {
		delivered := *msg
		delivered.TopicPartition.Error = f.deliverErr
		deliveryChan <- &delivered
	}
	return nil
}

func (f *fakeProducer) Flush(int) int { f.flushed = true; return 0 }
func (f *fakeProducer) Close()        { f.closed = true }

func newPublisher(f *fakeProducer) *HistoryPublisher {
	return &HistoryPublisher{producer: f, topic: "field-history", timeout: 50 * time.Millisecond}
}

func TestPublishSendsHistoryEvent(t *testing.T) {
	f := &fakeProducer{}
	p := newPublisher(f)
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	err := p.Publish(context.Background(), domain.HistoryRecord{
		ID: 7, EntityID: "1", EntityType: "models.pizzaorder", FieldName: "status",
		SerializedValue: `[{"model":"models.pizzaorder","pk":"1","fields":{"status":"ORDERED"}}]`,
		CreatedAt: created, User: domain.StringPtr("alice"),
	})
	require.NoError(t, err)
	require.Len(t, f.messages, 1)

	msg := f.messages[0]
	assert.Equal(t, "models.pizzaorder/1", string(msg.Key))
	assert.Equal(t, "field-history", *msg.TopicPartition.Topic)

	var event domain.HistoryEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, domain.EventFieldHistoryRecorded, event.EventType)
	assert.Equal(t, int64(7), event.RecordID)
	assert.Equal(t, "alice", event.Actor)
	assert.True(t, created.Equal(event.OccurredAt))
}

func TestPublishErrors(t *testing.T) {
	record := domain.HistoryRecord{EntityID: "1", EntityType: "models.pizzaorder", FieldName: "status"}

	boom := errors.New("queue full")
	err := newPublisher(&fakeProducer{produceErr: boom}).Publish(context.Background(), record)
	assert.ErrorIs(t, err, boom)

	rejected := kafka.NewError(kafka.ErrMsgTimedOut, "timed out", false)
	err = newPublisher(&fakeProducer{deliverErr: rejected}).Publish(context.Background(), record)
	assert.ErrorContains(t, err, "delivery failed")

	err = newPublisher(&fakeProducer{silent: true}).Publish(context.Background(), record)
	assert.ErrorContains(t, err, "delivery timeout")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := newPublisher(&fakeProducer{silent: true})
	p.timeout = time.Minute
	assert.ErrorIs(t, p.Publish(ctx, record), context.Canceled)
}

func TestCloseFlushes(t *testing.T) {
	f := &fakeProducer{}
	newPublisher(f).Close()
	assert.True(t, f.flushed)
	assert.True(t, f.closed)
}

func TestPublishBatchWaitsOnce(t *testing.T) {
	records := []domain.HistoryRecord{
		{EntityID: "1", EntityType: "models.human", FieldName: "age"},
		{EntityID: "1", EntityType: "models.human", FieldName: "is_female"},
		{EntityID: "1", EntityType: "models.human", FieldName: "body_temp"},
		{EntityID: "1", EntityType: "models.human", FieldName: "birth_date"},
	}

	f := &fakeProducer{}
	require.NoError(t, newPublisher(f).PublishBatch(context.Background(), records))
	assert.Len(t, f.messages, 4)

	silent := &fakeProducer{silent: true}
	p := newPublisher(silent)
	p.timeout = 200 * time.Millisecond
	start := time.Now()
	err := p.PublishBatch(context.Background(), records)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorContains(t, err, "delivery timeout")
	assert.Len(t, silent.messages, 4)
	assert.Len(t, err.(interface{ Unwrap() []error }).Unwrap(), 4)
	assert.Less(t, elapsed, 2*p.timeout)
}

func TestPublishBatchReportsEachFailure(t *testing.T) {
	records := []domain.HistoryRecord{
		{EntityID: "1", EntityType: "models.human", FieldName: "age"},
		{EntityID: "1", EntityType: "models.human", FieldName: "is_female"},
	}
	rejected := kafka.NewError(kafka.ErrMsgTimedOut, "timed out", false)

	err := newPublisher(&fakeProducer{deliverErr: rejected}).PublishBatch(context.Background(), records)
	require.Error(t, err)
	assert.Len(t, err.(interface{ Unwrap() []error }).Unwrap(), 2)

	assert.NoError(t, newPublisher(&fakeProducer{}).PublishBatch(context.Background(), nil))
}
