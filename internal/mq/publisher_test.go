package mq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeChannel struct {
	declared   []string
	declareErr error
	publishErr error
	published  []amqp.Publishing
	keys       []string
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.declared = append(f.declared, name+":"+kind)
	return f.declareErr
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.keys = append(f.keys, exchange+"/"+key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestPublishIngestMessage(t *testing.T) {
	ch := &fakeChannel{}
	p, err := NewChannelPublisher(ch, "ingest.exchange", "meter.reading.raw", zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"ingest.exchange:topic"}, ch.declared)

	received := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := IngestMessage{
		RequestID:         "req-1",
		ClientFingerprint: "sngraz-1-2",
		ReceivedAt:        received,
		Payload: Payload{PM: []PMData{
			{Date: "01/03/2024 11:00:00", Data: "1.250", Name: "consumption"},
		}},
	}
	require.NoError(t, p.PublishIngestMessage(context.Background(), msg))

	require.Len(t, ch.published, 1)
	pub := ch.published[0]
	assert.Equal(t, []string{"ingest.exchange/meter.reading.raw"}, ch.keys)
	assert.Equal(t, "application/json", pub.ContentType)
	assert.Equal(t, amqp.Persistent, pub.DeliveryMode)
	assert.Equal(t, "req-1", pub.MessageId)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(pub.Body, &decoded))
	assert.Equal(t, "sngraz-1-2", decoded["client_fingerprint"])
	pm := decoded["payload"].(map[string]any)["PM"].([]any)
	require.Len(t, pm, 1)
	assert.Equal(t, "1.250", pm[0].(map[string]any)["data"])
	assert.NotContains(t, decoded, "user_agent")
}

func TestPublishIngestMessageError(t *testing.T) {
	ch := &fakeChannel{publishErr: errors.New("channel closed")}
	p, err := NewChannelPublisher(ch, "x", "k", zap.NewNop())
	require.NoError(t, err)

	err = p.PublishIngestMessage(context.Background(), IngestMessage{RequestID: "r"})
	assert.ErrorContains(t, err, "channel closed")
}

func TestNewChannelPublisherDeclareError(t *testing.T) {
	ch := &fakeChannel{declareErr: errors.New("access refused")}
	_, err := NewChannelPublisher(ch, "x", "k", zap.NewNop())
	require.Error(t, err)
	assert.True(t, ch.closed)
}
