// Package mediasink hands finished videos to the storage/catalog side.
package mediasink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"vidgen/internal/domain"
	"vidgen/internal/infra"
)

// ContentType of every published event body.
const ContentType = "application/json"

// publisher is the slice of *amqp.Channel the sink uses.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPConfig locates the exchange media-ready events are published to.
type AMQPConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// AMQP publishes MediaReady events to a durable topic exchange. The job id is
// used as the message id so consumers can drop redeliveries. A failed publish
// reconnects once and retries; an event that still fails is dropped by the
// caller.
type AMQP struct {
	mu         sync.Mutex
	conn       *amqp.Connection
	ch         publisher
	redial     func() (*amqp.Connection, publisher, error)
	exchange   string
	routingKey string
	logger     *infra.Logger
}

// DialAMQP connects, opens a channel and declares the exchange.
func DialAMQP(cfg AMQPConfig, logger *infra.Logger) (*AMQP, error) {
	open := func() (*amqp.Connection, publisher, error) {
		conn, err := amqp.DialConfig(cfg.URL, amqp.Config{Heartbeat: 10 * time.Second, Locale: "en_US"})
		if err != nil {
			return nil, nil, fmt.Errorf("mediasink: dial: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("mediasink: open channel: %w", err)
		}
		if err := ch.ExchangeDeclare(
			cfg.Exchange, // name
			"topic",      // type
			true,         // durable
			false,        // auto-deleted
			false,        // internal
			false,        // no-wait
			nil,          // arguments
		); err != nil {
			ch.Close()
			conn.Close()
			return nil, nil, fmt.Errorf("mediasink: declare exchange %s: %w", cfg.Exchange, err)
		}
		return conn, ch, nil
	}
	conn, ch, err := open()
	if err != nil {
		return nil, err
	}
	logger.Info().Str("exchange", cfg.Exchange).Str("routing_key", cfg.RoutingKey).Msg("mediasink: amqp ready")
	a := newAMQP(ch, cfg, logger, conn)
	a.redial = open
	return a, nil
}

func newAMQP(ch publisher, cfg AMQPConfig, logger *infra.Logger, conn *amqp.Connection) *AMQP {
	return &AMQP{
		conn:       conn,
		ch:         ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
	}
}

func (a *AMQP) Publish(ctx context.Context, event domain.MediaReady) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("mediasink: encode event: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    event.JobID,
		Timestamp:    time.Now().UTC(),
		Type:         "media.video.ready",
		Body:         body,
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	err = a.publish(ctx, msg)
	if err != nil && a.redial != nil {
		a.logger.Warn().Err(err).Str("job_id", event.JobID).Msg("mediasink: publish failed, reconnecting")
		if rerr := a.reconnect(); rerr != nil {
			return fmt.Errorf("mediasink: publish %s: %w", event.JobID, errors.Join(err, rerr))
		}
		err = a.publish(ctx, msg)
	}
	if err != nil {
		return fmt.Errorf("mediasink: publish %s: %w", event.JobID, err)
	}
	a.logger.Debug().Str("job_id", event.JobID).Int("body_size", len(body)).Msg("mediasink: event published")
	return nil
}

func (a *AMQP) publish(ctx context.Context, msg amqp.Publishing) error {
	return a.ch.PublishWithContext(
		ctx,
		a.exchange,
		a.routingKey,
		false, // mandatory
		false, // immediate
		msg,
	)
}

// reconnect replaces the channel and connection. Callers hold a.mu.
func (a *AMQP) reconnect() error {
	_ = a.ch.Close()
	if a.conn != nil {
		_ = a.conn.Close()
	}
	conn, ch, err := a.redial()
	if err != nil {
		return err
	}
	a.conn, a.ch = conn, ch
	a.logger.Info().Str("exchange", a.exchange).Msg("mediasink: amqp reconnected")
	return nil
}

// Close releases the channel and the connection.
func (a *AMQP) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.ch.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("mediasink: close channel failed")
	}
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}

// Log records events in the service log. It stands in for the broker when
// AMQP_URL is unset.
type Log struct {
	logger *infra.Logger
}

func NewLog(logger *infra.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Publish(ctx context.Context, event domain.MediaReady) error {
	l.logger.Info().
		Str("job_id", event.JobID).
		Str("owner_id", event.OwnerID).
		Str("provider", string(event.Provider)).
		Str("output_url", event.OutputURL).
		Int("duration_estimate", event.DurationEstimate).
		Msg("mediasink: media ready")
	return nil
}

var (
	_ domain.MediaSink = (*AMQP)(nil)
	_ domain.MediaSink = (*Log)(nil)
)
