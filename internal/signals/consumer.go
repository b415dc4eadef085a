package signals

import (
	"context"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ConsumerConfig configures the AMQP signal feed.
type ConsumerConfig struct {
	URL      string `yaml:"url" mapstructure:"url"`
	Queue    string `yaml:"queue" mapstructure:"queue"`
	Prefetch int    `yaml:"prefetch" mapstructure:"prefetch"`
}

// Consumer reads signal events off a queue and applies them. Poison
// messages are acked and dropped; transient handler failures requeue.
type Consumer struct {
	cfg     ConsumerConfig
	handler func(ctx context.Context, ev Event) error
}

func NewConsumer(cfg ConsumerConfig, applier Applier) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 8
	}
	return &Consumer{cfg: cfg, handler: NewHandler(applier)}
}

// Run consumes until ctx is cancelled, reconnecting with backoff when the
// broker connection drops.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		err := c.consumeOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		zap.L().Error("signals: consumer disconnected, reconnecting",
			zap.Error(err), zap.Duration("retry_in", backoff))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (c *Consumer) consumeOnce(ctx context.Context) error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return eris.Wrap(err, "signals: dial")
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return eris.Wrap(err, "signals: channel")
	}
	defer ch.Close()

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return eris.Wrap(err, "signals: qos")
	}
	if _, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil); err != nil {
		return eris.Wrap(err, "signals: declare queue")
	}

	msgs, err := ch.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return eris.Wrap(err, "signals: consume")
	}

	closeCh := conn.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closeCh:
			return eris.Wrapf(eris.New("connection closed"), "signals: %v", amqpErr)
		case d, ok := <-msgs:
			if !ok {
				return eris.New("signals: deliveries channel closed")
			}
			c.dispatch(ctx, d)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery) {
	ev, err := decodeEvent(d.Body)
	if err == nil {
		err = c.handler(ctx, ev)
	}

	switch {
	case errors.Is(err, ErrPoison):
		zap.L().Warn("signals: dropping poison message",
			zap.String("body", string(d.Body)))
		_ = d.Ack(false)
	case err != nil:
		zap.L().Error("signals: handler failed, requeueing",
			zap.String("attendee", ev.AttendeeID), zap.Error(err))
		_ = d.Nack(false, true)
	default:
		_ = d.Ack(false)
	}
}
