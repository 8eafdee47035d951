package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"resume-revamp/internal/shared/telemetry"
)

// ErrNoAMQPURL is returned when the AMQP backend is selected without a broker URL.
var ErrNoAMQPURL = errors.New("AMQP_URL is required")

// amqpChannel is the subset of *amqp.Channel the client uses.
type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// AMQPClient publishes and consumes delivery messages on a durable RabbitMQ queue.
type AMQPClient struct {
	conn  *amqp.Connection
	ch    amqpChannel
	queue string
}

// NewAMQPClient dials the broker and declares the queue.
func NewAMQPClient(url, queueName string) (*AMQPClient, error) {
	if strings.TrimSpace(url) == "" {
		return nil, ErrNoAMQPURL
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	client, err := newAMQPClient(ch, queueName)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	client.conn = conn
	return client, nil
}

func newAMQPClient(ch amqpChannel, queueName string) (*AMQPClient, error) {
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("amqp declare queue %s: %w", queueName, err)
	}
	return &AMQPClient{ch: ch, queue: queueName}, nil
}

// Send publishes a persistent JSON message to the default exchange.
func (c *AMQPClient) Send(ctx context.Context, msg Message) error {
	payload, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode amqp message: %w", err)
	}
	err = c.ch.PublishWithContext(ctx, "", c.queue, false, false, amqp.Publishing{
		DeliveryMode:  amqp.Persistent,
		ContentType:   "application/json",
		CorrelationId: msg.RequestID,
		MessageId:     msg.RewriteID,
		Timestamp:     time.Now(),
		Body:          payload,
	})
	if err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

// Outcome tells Consume how to settle a delivery.
type Outcome int

const (
	// Ack removes the message.
	Ack Outcome = iota
	// Retry requeues the message once; a redelivered message is dropped instead.
	Retry
	// Drop rejects the message without requeueing.
	Drop
)

// Consume runs handle for each delivery with at most prefetch in flight until
// ctx is done or the channel closes.
func (c *AMQPClient) Consume(ctx context.Context, prefetch int, handle func(ctx context.Context, body []byte) Outcome) error {
	if prefetch < 1 {
		prefetch = 1
	}
	if err := c.ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("amqp qos: %w", err)
	}
	deliveries, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp consume: %w", err)
	}

	sem := make(chan struct{}, prefetch)
	done := make(chan struct{}, prefetch)
	inFlight := 0
	for {
		select {
		case <-ctx.Done():
			for ; inFlight > 0; inFlight-- {
				<-done
			}
			return nil
		case <-done:
			inFlight--
		case d, ok := <-deliveries:
			if !ok {
				for ; inFlight > 0; inFlight-- {
					<-done
				}
				return errors.New("amqp delivery channel closed")
			}
			sem <- struct{}{}
			inFlight++
			go func(d amqp.Delivery) {
				defer func() {
					<-sem
					done <- struct{}{}
				}()
				settle(d, handle(ctx, d.Body))
			}(d)
		}
	}
}

func settle(d amqp.Delivery, outcome Outcome) {
	var err error
	switch {
	case outcome == Ack:
		err = d.Ack(false)
	case outcome == Retry && !d.Redelivered:
		err = d.Nack(false, true)
	default:
		err = d.Nack(false, false)
	}
	if err != nil {
		telemetry.Error("queue.amqp_settle_failed", map[string]any{"message_id": d.MessageId, "error": err.Error()})
	}
}

// Close releases the channel and connection.
func (c *AMQPClient) Close() error {
	var errs []error
	if c.ch != nil {
		errs = append(errs, c.ch.Close())
	}
	if c.conn != nil {
		errs = append(errs, c.conn.Close())
	}
	return errors.Join(errs...)
}

var _ Client = (*AMQPClient)(nil)
