package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/subkeeper/internal/logging"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RoutingKeyOwnerChanged is the routing key of resync events.
const RoutingKeyOwnerChanged = "registry.owner_changed"

// OwnerChangedEvent is the message body.
type OwnerChangedEvent struct {
	OwnerID string `json:"ownerId"`
}

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPHook publishes OwnerChanged events instead of resyncing inline. When
// publishing fails and a fallback hook is set, the fallback runs.
type AMQPHook struct {
	ch       publisher
	exchange string
	fallback Hook
	log      logging.Logger
}

func NewAMQPHook(ch publisher, exchange string, fallback Hook, log logging.Logger) *AMQPHook {
	return &AMQPHook{ch: ch, exchange: exchange, fallback: fallback, log: log.With("module", "registry")}
}

func (h *AMQPHook) OwnerChanged(ctx context.Context, ownerID string) {
	body, err := json.Marshal(OwnerChangedEvent{OwnerID: ownerID})
	if err == nil {
		err = h.ch.PublishWithContext(context.WithoutCancel(ctx), h.exchange, RoutingKeyOwnerChanged, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
	}
	if err == nil {
		return
	}

	h.log.Warn(ctx, "registry event publish failed", "user_id", ownerID, "error", err)
	if h.fallback != nil {
		h.fallback.OwnerChanged(ctx, ownerID)
	}
}

// Broker owns the AMQP connection and channel used by the hook and consumer.
type Broker struct {
	conn     *amqp.Connection
	Channel  *amqp.Channel
	Exchange string
}

// DialBroker connects and declares the topic exchange.
func DialBroker(url, exchange string) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Broker{conn: conn, Channel: ch, Exchange: exchange}, nil
}

// Deliveries declares the resync queue, binds it and starts consuming.
func (b *Broker) Deliveries(ctx context.Context, queue string) (<-chan amqp.Delivery, error) {
	q, err := b.Channel.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := b.Channel.QueueBind(q.Name, RoutingKeyOwnerChanged, b.Exchange, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue: %w", err)
	}
	if err := b.Channel.Qos(8, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	return b.Channel.ConsumeWithContext(ctx, q.Name, "", false, false, false, false, nil)
}

func (b *Broker) Close() error {
	if b.Channel != nil {
		_ = b.Channel.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
