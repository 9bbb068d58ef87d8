package eventsvc

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/vilmosmisota/sportapp/core"
)

// channel is the subset of *amqp.Channel used to publish.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes events as persistent JSON messages to a durable queue of the default exchange.
type AMQPPublisher struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    channel
	queue string
}

var _ core.EventPublisher = (*AMQPPublisher)(nil)

func NewAMQPPublisher(conf *core.Config) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(conf.AMQP.URL)
	if err != nil {
		return nil, errors.Wrap(err, "dialing broker")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "opening channel")
	}

	// durable so messages survive broker restarts
	if _, err = ch.QueueDeclare(
		conf.AMQP.Queue, // name
		true,            // durable
		false,           // autoDelete
		false,           // exclusive
		false,           // noWait
		nil,             // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.Wrap(err, "declaring queue")
	}
	return &AMQPPublisher{conn: conn, ch: ch, queue: conf.AMQP.Queue}, nil
}

func newMessage(evt core.Event) (amqp.Publishing, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return amqp.Publishing{}, errors.Wrap(err, "encoding event")
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         evt.Type,
		Body:         body,
	}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, evt core.Event) error {
	msg, err := newMessage(evt)
	if err != nil {
		return err
	}

	// channels are not safe for concurrent use
	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		msg,
	)
	return errors.Wrap(err, "publishing event")
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.Close(); err != nil {
		return err
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// NopPublisher drops every event.
type NopPublisher struct{}

var _ core.EventPublisher = NopPublisher{}

func (NopPublisher) Publish(context.Context, core.Event) error { return nil }
