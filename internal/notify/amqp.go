package notify

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/AIS-Commercial-Business-Unit/RiskInsure-sub006/internal/domain"
)

// amqpConnection and amqpChannel narrow the amqp091 types to what the
// emitter touches, so reconnect handling is testable without a broker.
type amqpConnection interface {
	Channel() (amqpChannel, error)
	IsClosed() bool
	Close() error
}

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type amqpConn struct {
	*amqp.Connection
}

func (c amqpConn) Channel() (amqpChannel, error) {
	return c.Connection.Channel()
}

func dialAMQP(url string) (amqpConnection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return amqpConn{conn}, nil
}

// AMQPEmitter publishes notifications over RabbitMQ. Broadcast notifications
// go to a topic exchange with the message type as routing key; commands go
// straight to the queue named after the message type via the default
// exchange. Exchange and queue topology is declared by the consumers, not
// here.
type AMQPEmitter struct {
	mu       sync.Mutex
	dial     func(url string) (amqpConnection, error)
	conn     amqpConnection
	ch       amqpChannel
	url      string
	exchange string
}

func NewAMQPEmitter(url, exchange string) (*AMQPEmitter, error) {
	e := &AMQPEmitter{url: url, exchange: exchange, dial: dialAMQP}
	if err := e.connect(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *AMQPEmitter) connect() error {
	// A connection left behind by a failed publish may still hold its TCP
	// socket; close it before dialing a replacement.
	if e.conn != nil && !e.conn.IsClosed() {
		e.conn.Close()
	}
	e.conn, e.ch = nil, nil

	conn, err := e.dial(e.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}
	e.conn = conn
	e.ch = ch
	return nil
}

func (e *AMQPEmitter) Emit(ctx context.Context, n domain.Notification) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ch == nil || e.conn == nil || e.conn.IsClosed() {
		if err := e.connect(); err != nil {
			return err
		}
	}

	exchange := ""
	routingKey := n.Type
	if n.Mode == domain.ModeBroadcast {
		exchange = e.exchange
	}

	err := e.ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   n.ExecutionID.String(),
		Type:        n.Type,
		Body:        n.Body,
		Headers: amqp.Table{
			"tenant_id":        n.TenantID.String(),
			"configuration_id": n.ConfigurationID.String(),
		},
		DeliveryMode: amqp.Persistent,
	})
	if err != nil {
		// Force a reconnect on the next emit; mid-publish channel errors
		// leave the channel unusable.
		e.ch = nil
		return fmt.Errorf("amqp publish %s/%s: %w", n.Mode, n.Type, err)
	}
	return nil
}

// Close tears down the connection.
func (e *AMQPEmitter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn != nil {
		return e.conn.Close()
	}
	return nil
}
