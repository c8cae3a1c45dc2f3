// Package amqp carries the event contract between collaborators and the
// ledger over RabbitMQ.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"conti/internal/core"
	"conti/internal/log"
)

// EventHandler processes one decoded domain event. Returning an error nacks
// the delivery for redelivery, except validation errors, which drop the
// message: a malformed event never becomes valid by retrying.
type EventHandler func(ctx context.Context, ev core.Event) error

type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		queueName:    queueName,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	err = c.channel.QueueBind(
		c.queueName,    // queue name
		c.queueName,    // routing key (same as queue name for direct exchange)
		c.exchangeName, // exchange
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// PublishEvent publishes a domain event in the wire envelope. Used by
// tooling and tests; the production publishers are the collaborators that
// own expenses and settlements.
func (c *Client) PublishEvent(ctx context.Context, ev core.Event) error {
	msg, err := NewEventMessage(ev)
	if err != nil {
		return err
	}
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	slog.InfoContext(ctx, "Published event",
		log.FieldEventID, ev.ID,
		log.FieldGroupID, ev.GroupID,
		log.FieldSequence, ev.Sequence,
		log.FieldEventType, ev.Type)
	return nil
}

// ConsumeEvents decodes deliveries and hands them to the handler until the
// context ends. Ack/nack policy:
//   - undecodable envelope: nack without requeue, the payload will never parse
//   - validation error from the handler: nack without requeue, same reason
//   - any other handler error: nack with requeue for a later retry
func (c *Client) ConsumeEvents(ctx context.Context, handler EventHandler) error {
	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack (we want manual ack)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming events", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping event consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			msg, err := EventMessageFromJSON(delivery.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to unmarshal event envelope", log.FieldError, err)
				delivery.Nack(false, false)
				continue
			}
			ev, err := msg.ToEvent()
			if err != nil {
				slog.ErrorContext(ctx, "Malformed event payload",
					log.FieldError, err, log.FieldEventID, msg.EventID, log.FieldEventType, msg.Type)
				delivery.Nack(false, false)
				continue
			}

			if err := handler(ctx, ev); err != nil {
				requeue := !errors.Is(err, core.ErrValidation)
				slog.ErrorContext(ctx, "Failed to handle event",
					log.FieldError, err,
					log.FieldEventID, ev.ID,
					log.FieldGroupID, ev.GroupID,
					log.FieldSequence, ev.Sequence,
					"requeue", requeue)
				delivery.Nack(false, requeue)
				continue
			}

			delivery.Ack(false)
		}
	}
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
