package registry

import (
	"context"
	"encoding/json"

	"github.com/dmitrijs2005/subkeeper/internal/logging"
	amqp "github.com/rabbitmq/amqp091-go"
)

// resyncer is the part of Synchronizer the consumer needs.
type resyncer interface {
	Resync(ctx context.Context, ownerID string) error
}

// Consumer applies OwnerChanged events by resyncing the owner. A failed
// resync is dropped, not requeued: the next change resyncs from scratch.
type Consumer struct {
	sync resyncer
	log  logging.Logger
}

func NewConsumer(sync resyncer, log logging.Logger) *Consumer {
	return &Consumer{sync: sync, log: log.With("module", "registry-consumer")}
}

// Run processes deliveries until ctx is done or the channel closes.
func (c *Consumer) Run(ctx context.Context, msgs <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := c.handle(ctx, d.Body); err != nil {
				c.log.Warn(ctx, "registry event failed", "routing_key", d.RoutingKey, "error", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, body []byte) error {
	var ev OwnerChangedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return err
	}
	if ev.OwnerID == "" {
		return nil
	}
	return c.sync.Resync(ctx, ev.OwnerID)
}
