// Package outboxmq drains the outbox table to RabbitMQ: a worker claims
// unprocessed rows (FOR UPDATE SKIP LOCKED, via
// postgres.OutboxRepository.ClaimUnprocessed), publishes each to its
// topic exchange, and marks it processed once the publish call returns
// without error. Publisher confirms are not enabled, so this is not a
// broker acknowledgement. Grounded on common/mrabbitmq/rabbitmq.go's
// Connection/GetChannel singleton shape, ported from the teacher's
// streadway/amqp to rabbitmq/amqp091-go (streadway/amqp is unmaintained;
// amqp091-go is its drop-in successor and the one the rest of the
// examples pack pulls in).
package outboxmq

import (
	"context"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/summa-ledger/summa/internal/mlog"
)

// Connection is a singleton RabbitMQ channel holder.
type Connection struct {
	ConnectionStringSource string
	Exchange               string
	conn                   *amqp.Connection
	channel                *amqp.Channel
	Connected              bool
	Logger                 mlog.Logger
}

// Connect dials the broker, opens a channel, and declares the topic
// exchange outbox rows publish to.
func (c *Connection) Connect(ctx context.Context) error {
	conn, err := amqp.Dial(c.ConnectionStringSource)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}
	if err := ch.ExchangeDeclare(c.Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return err
	}
	c.conn = conn
	c.channel = ch
	c.Connected = true
	return nil
}

// GetChannel lazily connects and returns the open channel.
func (c *Connection) GetChannel(ctx context.Context) (*amqp.Channel, error) {
	if !c.Connected {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}
	if c.channel == nil {
		return nil, errors.New("outboxmq: channel not initialized")
	}
	return c.channel, nil
}

// Close tears down the channel and connection.
func (c *Connection) Close() error {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
