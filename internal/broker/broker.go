// Package broker forwards committed registry events to a RabbitMQ exchange.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"authright.org/internal/obs"
	"authright.org/internal/registry"
)

const publishTimeout = 5 * time.Second

// channel is the subset of *amqp.Channel used by Publisher.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher implements registry.Sink over an AMQP topic exchange. The routing
// key is the event kind.
type Publisher struct {
	mu       sync.Mutex
	ch       channel
	conn     *amqp.Connection
	exchange string
	now      func() time.Time
}

var _ registry.Sink = (*Publisher)(nil)

func newPublisher(ch channel, exchange string) *Publisher {
	return &Publisher{ch: ch, exchange: exchange, now: time.Now}
}

// Dial connects to url with exponential backoff, declares a durable topic
// exchange and returns a Publisher bound to it.
func Dial(ctx context.Context, url, exchange string) (*Publisher, error) {
	if exchange == "" {
		return nil, errors.New("broker: exchange is required")
	}
	conn, err := connect(ctx, url, 5)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p := newPublisher(ch, exchange)
	p.conn = conn
	return p, nil
}

func connect(ctx context.Context, url string, maxRetries int) (*amqp.Connection, error) {
	var err error
	wait := time.Second
	for i := 0; i < maxRetries; i++ {
		var conn *amqp.Connection
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		obs.Logger().Warn().Err(err).Int("attempt", i+1).Dur("retry_in", wait).Msg("amqp dial failed")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		wait = time.Duration(math.Pow(2, float64(i+1))) * time.Second
	}
	return nil, err
}

// Publish sends evt as a persistent JSON message.
func (p *Publisher) Publish(ctx context.Context, evt registry.Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx, p.exchange, string(evt.Kind), false, false, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    evt.ID,
		Type:         string(evt.Kind),
		Body:         body,
		Timestamp:    p.now(),
		DeliveryMode: amqp.Persistent,
	})
}

// Deposit implements registry.Sink. Failures are logged; the operation that
// produced evt has already committed.
func (p *Publisher) Deposit(ctx context.Context, evt registry.Event) {
	if err := p.Publish(context.WithoutCancel(ctx), evt); err != nil {
		obs.Logger().Error().Err(err).
			Str("event_id", evt.ID).
			Str("event", string(evt.Kind)).
			Msg("amqp publish failed")
	}
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
