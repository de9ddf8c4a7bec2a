package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/regulacao-api/pkg/circuitbreaker"
	"github.com/jwalitptl/regulacao-api/pkg/messaging"
)

type Config struct {
	URL      string
	Exchange string
}

// Broker publishes to a durable topic exchange using the channel name as
// routing key.
type Broker struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	cb       *circuitbreaker.CircuitBreaker
	logger   zerolog.Logger
	mu       sync.Mutex
}

func NewBroker(config Config, logger zerolog.Logger) (messaging.Broker, error) {
	conn, err := amqp.Dial(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open rabbitMQ channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		config.Exchange, // name
		"topic",         // kind
		true,            // durable
		false,           // autoDelete
		false,           // internal
		false,           // noWait
		nil,             // args
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", config.Exchange, err)
	}

	return &Broker{
		conn:     conn,
		ch:       ch,
		exchange: config.Exchange,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "rabbitmq-broker",
			MaxRequests: 1,
			Interval:    10 * time.Second,
			Timeout:     5 * time.Second,
		}),
		logger: logger.With().Str("component", "rabbitmq-broker").Logger(),
	}, nil
}

func (b *Broker) Publish(ctx context.Context, channel string, message interface{}) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	}

	return b.cb.Execute(func() error {
		// amqp channels are not safe for concurrent publishing
		b.mu.Lock()
		defer b.mu.Unlock()
		if err := b.ch.PublishWithContext(ctx, b.exchange, channel, false, false, msg); err != nil {
			return fmt.Errorf("failed to publish to %s: %w", channel, err)
		}
		return nil
	})
}

// Subscribe declares a durable queue named after channel and consumes it.
func (b *Broker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open rabbitMQ channel: %w", err)
	}
	q, err := ch.QueueDeclare(channel, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", channel, err)
	}
	if err := ch.QueueBind(q.Name, channel, b.exchange, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to bind queue %s: %w", channel, err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to consume %s: %w", channel, err)
	}

	out := make(chan []byte, 100)
	go func() {
		defer func() {
			ch.Close()
			close(out)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				select {
				case out <- d.Body:
					if err := d.Ack(false); err != nil {
						b.logger.Error().Err(err).Str("queue", channel).Msg("failed to ack delivery")
					}
				case <-ctx.Done():
					_ = d.Nack(false, true)
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *Broker) Close() error {
	if err := b.ch.Close(); err != nil {
		b.logger.Warn().Err(err).Msg("failed to close channel")
	}
	return b.conn.Close()
}
