package rabbit

import (
	"context"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/wb-go/wbf/zlog"
)

// Client publishes to and consumes from one queue bound to an
// x-delayed-message exchange. The exchange needs the delayed message
// exchange plugin on the broker.
type Client struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	queue    string
}

// Config holds broker settings. Prefetch bounds unacknowledged deliveries
// per consumer.
type Config struct {
	URL      string
	Exchange string
	Queue    string
	Prefetch int
}

func NewRabbit(cfg Config) (*Client, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to connect to RabbitMQ")
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		zlog.Logger.Error().Err(err).Msg("failed to open RabbitMQ channel")
		return nil, err
	}

	client := &Client{
		conn:     conn,
		channel:  ch,
		exchange: cfg.Exchange,
		queue:    cfg.Queue,
	}

	args := amqp.Table{"x-delayed-type": "direct"}
	if err := ch.ExchangeDeclare(cfg.Exchange, "x-delayed-message", true, false, false, false, args); err != nil {
		client.Close()
		zlog.Logger.Error().Err(err).Msg("failed to declare exchange")
		return nil, err
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		client.Close()
		zlog.Logger.Error().Err(err).Msg("failed to declare queue")
		return nil, err
	}
	if err := ch.QueueBind(cfg.Queue, "", cfg.Exchange, false, nil); err != nil {
		client.Close()
		zlog.Logger.Error().Err(err).Msg("failed to bind queue")
		return nil, err
	}
	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			client.Close()
			zlog.Logger.Error().Err(err).Msg("failed to set prefetch")
			return nil, err
		}
	}

	zlog.Logger.Info().Msgf("RabbitMQ initialized (exchange=%s, queue=%s)", cfg.Exchange, cfg.Queue)
	return client, nil
}

func (c *Client) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	zlog.Logger.Info().Msg("RabbitMQ connection closed")
}

// Publish sends message, delivered to the queue after delay.
func (c *Client) Publish(ctx context.Context, message []byte, delay time.Duration) error {
	headers := amqp.Table{}
	if delay > 0 {
		headers["x-delay"] = int32(delay / time.Millisecond)
	}

	err := c.channel.PublishWithContext(ctx, c.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         message,
		Timestamp:    time.Now(),
		Headers:      headers,
	})
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to publish message to RabbitMQ")
		return err
	}
	zlog.Logger.Debug().Msgf("Message published to exchange=%s delay=%s", c.exchange, delay)
	return nil
}

// Consume delivers messages to handler until ctx is done or the channel
// closes. A handler error requeues the message unless it wraps
// ErrDiscard.
func (c *Client) Consume(ctx context.Context, handler func(context.Context, []byte) error) error {
	msgs, err := c.channel.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to start consuming messages")
		return err
	}
	zlog.Logger.Info().Msgf("Started consuming from queue %s", c.queue)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("rabbit: delivery channel closed")
			}
			if err := handler(ctx, d.Body); err != nil {
				requeue := !errors.Is(err, ErrDiscard)
				zlog.Logger.Warn().Err(err).Bool("requeue", requeue).Msg("failed to process message")
				_ = d.Nack(false, requeue)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// ErrDiscard marks a message that can never be processed.
var ErrDiscard = errors.New("discard message")
