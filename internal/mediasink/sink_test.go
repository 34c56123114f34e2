package mediasink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidgen/internal/domain"
	"vidgen/internal/infra"
)

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
	closed   bool
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func testLogger(buf *bytes.Buffer) *infra.Logger {
	l := zerolog.New(buf)
	return &l
}

var event = domain.MediaReady{
	JobID:            "job-1",
	OwnerID:          "owner-1",
	OutputURL:        "https://cdn.example.com/v.mp4",
	Provider:         domain.ProviderKling,
	DurationEstimate: 5,
}

func TestAMQPPublish(t *testing.T) {
	ch := &fakeChannel{}
	sink := newAMQP(ch, AMQPConfig{Exchange: "media", RoutingKey: "media.video.ready"}, testLogger(&bytes.Buffer{}), nil)

	require.NoError(t, sink.Publish(context.Background(), event))
	assert.Equal(t, "media", ch.exchange)
	assert.Equal(t, "media.video.ready", ch.key)
	assert.Equal(t, "job-1", ch.msg.MessageId)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)
	assert.Equal(t, ContentType, ch.msg.ContentType)

	var decoded domain.MediaReady
	require.NoError(t, json.Unmarshal(ch.msg.Body, &decoded))
	assert.Equal(t, event, decoded)

	require.NoError(t, sink.Close())
	assert.True(t, ch.closed)
}

func TestAMQPPublishError(t *testing.T) {
	boom := errors.New("channel closed")
	sink := newAMQP(&fakeChannel{err: boom}, AMQPConfig{Exchange: "media"}, testLogger(&bytes.Buffer{}), nil)
	err := sink.Publish(context.Background(), event)
	assert.ErrorIs(t, err, boom)
}

func TestAMQPPublishReconnects(t *testing.T) {
	stale := &fakeChannel{err: amqp.ErrClosed}
	fresh := &fakeChannel{}
	var buf bytes.Buffer
	sink := newAMQP(stale, AMQPConfig{Exchange: "media", RoutingKey: "media.video.ready"}, testLogger(&buf), nil)
	dials := 0
	sink.redial = func() (*amqp.Connection, publisher, error) {
		dials++
		return nil, fresh, nil
	}

	require.NoError(t, sink.Publish(context.Background(), event))
	assert.Equal(t, 1, dials)
	assert.True(t, stale.closed)
	assert.Equal(t, "job-1", fresh.msg.MessageId)
	assert.Contains(t, buf.String(), "mediasink: amqp reconnected")

	// the new channel is kept for later events
	require.NoError(t, sink.Publish(context.Background(), event))
	assert.Equal(t, 1, dials)
}

func TestAMQPPublishReconnectFails(t *testing.T) {
	boom := errors.New("broker unreachable")
	sink := newAMQP(&fakeChannel{err: amqp.ErrClosed}, AMQPConfig{Exchange: "media"}, testLogger(&bytes.Buffer{}), nil)
	sink.redial = func() (*amqp.Connection, publisher, error) { return nil, nil, boom }

	err := sink.Publish(context.Background(), event)
	assert.ErrorIs(t, err, amqp.ErrClosed)
	assert.ErrorIs(t, err, boom)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewLog(testLogger(&buf)).Publish(context.Background(), event))
	assert.Contains(t, buf.String(), `"job_id":"job-1"`)
	assert.Contains(t, buf.String(), `"output_url":"https://cdn.example.com/v.mp4"`)
}
