// Package messaging delivers outbound messages to channel adapters.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the topic exchange outbound messages are published to.
const DefaultExchange = "chatflow.outbound"

// RoutingKey is the key a channel adapter binds its queue with.
func RoutingKey(channel string) string {
	return "outbound." + channel
}

// AMQPMessenger publishes outbound messages to RabbitMQ, one routing key per
// channel, as persistent JSON deliveries.
type AMQPMessenger struct {
	conn     *Connection
	exchange string
	logger   *slog.Logger
}

func NewAMQPMessenger(conn *Connection, exchange string, logger *slog.Logger) (*AMQPMessenger, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	err := conn.WithChannel(func(ch *amqp.Channel) error {
		return ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &AMQPMessenger{
		conn:     conn,
		exchange: exchange,
		logger:   logger.With("module", "amqp_messenger"),
	}, nil
}

func (m *AMQPMessenger) Send(ctx context.Context, msg models.OutboundMessage) error {
	publishing, err := newPublishing(msg, time.Now().UTC())
	if err != nil {
		return err
	}

	routingKey := RoutingKey(msg.Channel)

	return m.conn.WithChannel(func(ch *amqp.Channel) error {
		if err := ch.PublishWithContext(ctx, m.exchange, routingKey, false, false, publishing); err != nil {
			return fmt.Errorf("publish to %s/%s: %w", m.exchange, routingKey, err)
		}

		m.logger.DebugContext(ctx, "Published outbound message",
			"routing_key", routingKey,
			"message_id", publishing.MessageId,
			"execution_id", msg.ExecutionID,
			"kind", msg.Kind,
		)

		return nil
	})
}

func newPublishing(msg models.OutboundMessage, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal outbound message: %w", err)
	}

	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     uuid.New().String(),
		CorrelationId: msg.ExecutionID,
		Type:          string(msg.Kind),
		Timestamp:     now,
		Body:          body,
	}, nil
}
