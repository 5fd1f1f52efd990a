package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "outbound.whatsapp", RoutingKey("whatsapp"))
}

func TestNewPublishing(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := models.OutboundMessage{
		ExecutionID:  "exec-1",
		SubscriberID: "sub-1",
		Channel:      "web",
		Kind:         models.MessageText,
		Text:         "Hello",
		Choices:      []models.Choice{{ID: "yes", Title: "Yes", Kind: models.ChoiceReply}},
	}

	publishing, err := newPublishing(msg, now)
	require.NoError(t, err)

	assert.Equal(t, "application/json", publishing.ContentType)
	assert.Equal(t, amqp.Persistent, publishing.DeliveryMode)
	assert.Equal(t, "exec-1", publishing.CorrelationId)
	assert.Equal(t, "text", publishing.Type)
	assert.Equal(t, now, publishing.Timestamp)
	assert.NotEmpty(t, publishing.MessageId)

	var decoded models.OutboundMessage
	require.NoError(t, json.Unmarshal(publishing.Body, &decoded))
	assert.Equal(t, msg, decoded)
}

func TestLogMessenger(t *testing.T) {
	var buf bytes.Buffer

	messenger := NewLogMessenger(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := messenger.Send(context.Background(), models.OutboundMessage{
		SubscriberID: "sub-1",
		Channel:      "web",
		Kind:         models.MessageText,
		Text:         "Hello",
	})
	require.NoError(t, err)

	assert.Contains(t, buf.String(), `"msg":"Outbound message"`)
	assert.Contains(t, buf.String(), `"subscriber_id":"sub-1"`)
}
