package messaging

import (
	"context"
	"log/slog"

	"github.com/dukex/chatflow/pkg/models"
)

// LogMessenger writes outbound messages to the log instead of delivering
// them. It backs local runs without a broker.
type LogMessenger struct {
	logger *slog.Logger
}

func NewLogMessenger(logger *slog.Logger) *LogMessenger {
	return &LogMessenger{logger: logger.With("module", "log_messenger")}
}

func (m *LogMessenger) Send(ctx context.Context, msg models.OutboundMessage) error {
	m.logger.InfoContext(ctx, "Outbound message",
		"subscriber_id", msg.SubscriberID,
		"channel", msg.Channel,
		"kind", msg.Kind,
		"text", msg.Text,
		"choices", len(msg.Choices),
		"cards", len(msg.Cards),
		"products", len(msg.Products),
	)

	return nil
}
