package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/streadway/amqp"
)

type amqpChannel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher sends events to a RabbitMQ topic exchange keyed by event type.
type AMQPPublisher struct {
	conn     *amqp.Connection
	exchange string
	channel  func() (amqpChannel, error)
}

// NewAMQPPublisher dials the broker and declares the exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("AMQP_URL is required")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp declare exchange %s: %w", exchange, err)
	}

	p := &AMQPPublisher{conn: conn, exchange: exchange}
	p.channel = func() (amqpChannel, error) { return conn.Channel() }
	return p, nil
}

// Publish sends one persistent message on a short-lived channel.
func (p *AMQPPublisher) Publish(ctx context.Context, evt Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := EncodeEvent(evt)
	if err != nil {
		return fmt.Errorf("encode amqp event: %w", err)
	}
	ch, err := p.channel()
	if err != nil {
		return fmt.Errorf("amqp channel: %w", err)
	}
	defer ch.Close()

	err = ch.Publish(p.exchange, evt.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    evt.OccurredAt,
		Type:         evt.Type,
		MessageId:    evt.DocumentID + ":" + evt.Type,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("amqp publish %s: %w", evt.Type, err)
	}
	return nil
}

// Close closes the broker connection.
func (p *AMQPPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

var _ Publisher = (*AMQPPublisher)(nil)
