package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/couchcryptid/hazard-fusion-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestMapMessageToRawEvent(t *testing.T) {
	now := time.Now()
	msg := kafkago.Message{
		Key:       []byte("key-1"),
		Value:     []byte(`{"id":"rep-1"}`),
		Topic:     "raw-hazard-reports",
		Partition: 2,
		Offset:    42,
		Time:      now,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte("mobile")},
		},
	}

	raw := mapMessageToRawEvent(msg)

	assert.Equal(t, []byte("key-1"), raw.Key)
	assert.JSONEq(t, `{"id":"rep-1"}`, string(raw.Value))
	assert.Equal(t, "raw-hazard-reports", raw.Topic)
	assert.Equal(t, 2, raw.Partition)
	assert.Equal(t, int64(42), raw.Offset)
	assert.Equal(t, now, raw.Timestamp)
	assert.Equal(t, "mobile", raw.Headers["source"])
	assert.Nil(t, raw.Commit)
}

func TestToMessage(t *testing.T) {
	event := domain.OutputEvent{
		Key:   []byte("rep-1"),
		Value: []byte(`{"reportId":"rep-1","status":"verified"}`),
		Headers: map[string]string{
			"tier":             "2",
			"status":           "verified",
			"confidence_level": "high",
		},
	}

	msg := toMessage(event)

	assert.Equal(t, []byte("rep-1"), msg.Key)
	assert.Equal(t, event.Value, msg.Value)
	assert.Equal(t, []kafkago.Header{
		{Key: "confidence_level", Value: []byte("high")},
		{Key: "status", Value: []byte("verified")},
		{Key: "tier", Value: []byte("2")},
	}, msg.Headers)
}

func TestWriter_LoadBatchEmptyIsNoop(t *testing.T) {
	w := &Writer{}
	assert.NoError(t, w.LoadBatch(context.Background(), nil))
}
