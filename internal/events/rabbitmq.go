package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName = "crm.events"
	QueueDealWon = "crm.deal-won"
	DLXName      = "crm.dlx"
	DLQName      = "crm.deal-won.dlq"
)

// RabbitMQ holds the broker connection and channel plus declared topology
type RabbitMQ struct {
	Conn *amqp.Connection
	Ch   *amqp.Channel
}

// NewRabbitMQ connects to the broker and declares the CRM topology
func NewRabbitMQ(user, pass, host, port string) (*RabbitMQ, error) {
	dsn := fmt.Sprintf("amqp://%s:%s@%s:%s/", user, pass, host, port)

	conn, err := amqp.Dial(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := setupTopology(ch); err != nil {
		conn.Close()
		return nil, err
	}

	return &RabbitMQ{Conn: conn, Ch: ch}, nil
}

// setupTopology declares the exchange, the deal-won queue and its dead
// letter route
func setupTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(DLXName, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(DLQName, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(DLQName, TopicDealWon, DLXName, false, nil); err != nil {
		return err
	}

	if err := ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil); err != nil {
		return err
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    DLXName,
		"x-dead-letter-routing-key": TopicDealWon,
	}
	if _, err := ch.QueueDeclare(QueueDealWon, true, false, false, false, args); err != nil {
		return err
	}
	return ch.QueueBind(QueueDealWon, TopicDealWon, ExchangeName, false, nil)
}

// Close tears down the channel and connection
func (r *RabbitMQ) Close() {
	if r.Ch != nil {
		r.Ch.Close()
	}
	if r.Conn != nil {
		r.Conn.Close()
	}
}

// RabbitPublisher publishes CRM events to the topic exchange
type RabbitPublisher struct {
	ch *amqp.Channel
}

// NewRabbitPublisher creates a publisher on an established channel
func NewRabbitPublisher(r *RabbitMQ) *RabbitPublisher {
	return &RabbitPublisher{ch: r.Ch}
}

// Publish sends one event with its topic as the routing key
func (p *RabbitPublisher) Publish(ctx context.Context, event *Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	err = p.ch.PublishWithContext(ctx,
		ExchangeName,
		event.Topic, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish '%s' event: %w", event.Topic, err)
	}
	return nil
}
