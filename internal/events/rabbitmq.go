package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	DefaultQueue       = "reservation.events"
	DefaultDialTimeout = 2 * time.Second
)

// RabbitPublisher publishes events as persistent JSON messages to a durable
// queue. The connection is opened on first use and reopened after it closes.
// Dialing is bounded by DialTimeout and by the caller's deadline.
type RabbitPublisher struct {
	url         string
	queue       string
	log         *logrus.Entry
	DialTimeout time.Duration

	// sem guards conn and ch. Waiters give up when their ctx ends.
	sem  chan struct{}
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewRabbitPublisher(url, queue string, log *logrus.Logger) *RabbitPublisher {
	if queue == "" {
		queue = DefaultQueue
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RabbitPublisher{
		url:         url,
		queue:       queue,
		log:         log.WithField("component", "rabbitmq"),
		DialTimeout: DefaultDialTimeout,
		sem:         make(chan struct{}, 1),
	}
}

func (p *RabbitPublisher) lock(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *RabbitPublisher) unlock() { <-p.sem }

func (p *RabbitPublisher) dialTimeout(ctx context.Context) time.Duration {
	timeout := p.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	return timeout
}

func (p *RabbitPublisher) channel(ctx context.Context) (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	if p.conn == nil || p.conn.IsClosed() {
		timeout := p.dialTimeout(ctx)
		if timeout <= 0 {
			return nil, fmt.Errorf("rabbitmq dial: %w", context.DeadlineExceeded)
		}
		conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(timeout)})
		if err != nil {
			return nil, fmt.Errorf("rabbitmq dial: %w", err)
		}
		p.conn = conn
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	p.ch = ch
	return ch, nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, ev ReservationEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.lock(ctx); err != nil {
		p.log.WithError(err).WithField("event", ev.Type).Warn("event not published, broker busy")
		return err
	}
	defer p.unlock()

	ch, err := p.channel(ctx)
	if err != nil {
		p.log.WithError(err).Warn("event not published")
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Type:         string(ev.Type),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		p.log.WithError(err).WithField("event", ev.Type).Warn("event not published")
		return err
	}
	return nil
}

func (p *RabbitPublisher) Close() error {
	p.sem <- struct{}{}
	defer p.unlock()
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}
