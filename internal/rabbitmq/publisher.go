package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"ridepool/internal/ports"
)

// Topology.
const (
	ExchangeMarketplace = "marketplace.events"

	QueueRideEvents    = "marketplace.ride_events"
	QueueBookingEvents = "marketplace.booking_events"
)

func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(ExchangeMarketplace, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", ExchangeMarketplace, err)
	}

	bindings := []struct {
		queue      string
		routingKey string
	}{
		{QueueRideEvents, "ride.*"},
		{QueueBookingEvents, "booking.*"},
	}

	for _, b := range bindings {
		if _, err := ch.QueueDeclare(b.queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", b.queue, err)
		}
		if err := ch.QueueBind(b.queue, b.routingKey, ExchangeMarketplace, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", b.queue, err)
		}
	}

	return nil
}

// Publisher publishes JSON lifecycle events through the Client.
type Publisher struct {
	Client *Client
}

var _ ports.EventPublisher = (*Publisher)(nil)

// NewPublisher constructs a Publisher using the provided RabbitMQ client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{Client: client}
}

// Publish marshals event and sends it to the marketplace exchange.
func (p *Publisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", routingKey, err)
	}
	return p.Client.publishMessage(ctx, ExchangeMarketplace, routingKey, body)
}

// publishMessage publishes a persistent message and waits for the broker
// confirm.
func (client *Client) publishMessage(ctx context.Context, exchange, routingKey string, body []byte) error {
	client.mu.RLock()
	ch := client.pubChan
	conn := client.conn
	client.mu.RUnlock()

	// quick fail if no channel
	if conn == nil || conn.IsClosed() {
		return errors.New("rabbitmq: connection is not open")
	}
	if ch == nil || ch.IsClosed() {
		return errors.New("rabbitmq: publish channel is not open")
	}

	client.pubMu.Lock()
	defer client.pubMu.Unlock()
	confirms := client.pubConfirms

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := ch.PublishWithContext(ctx, exchange, routingKey, true /* mandatory */, false, /* immediate */
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
		},
	); err != nil {
		return err
	}

	select {
	case c := <-confirms:
		if !c.Ack {
			return fmt.Errorf("rabbitmq: publish not acknowledged")
		}
	case <-ctx.Done():
		// keep the confirm stream aligned: try to consume exactly one confirm
		// even if we return a timeout to the caller
		select {
		case c := <-confirms:
			if !c.Ack {
				return fmt.Errorf("rabbitmq: publish not acknowledged after timeout")
			}
		case <-time.After(2 * time.Second):
			// give up trying to read from the confirms channel
		}

		return ctx.Err()
	}

	return nil
}
