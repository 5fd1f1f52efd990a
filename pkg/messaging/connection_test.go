package messaging

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRabbitMQ(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping RabbitMQ test in short mode")
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "rabbitmq:3-alpine",
			ExposedPorts: []string{"5672/tcp"},
			WaitingFor: wait.ForAll(
				wait.ForLog("Server startup complete"),
				wait.ForListeningPort("5672/tcp"),
			).WithDeadline(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	return "amqp://guest:guest@" + endpoint + "/"
}

func TestConnection_ReopensClosedChannel(t *testing.T) {
	url := setupRabbitMQ(t)
	logger := slog.New(slog.DiscardHandler)

	conn, err := NewConnection(url, logger)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close(context.Background())
	})

	messenger, err := NewAMQPMessenger(conn, "", logger)
	require.NoError(t, err)

	// A passive declare of a missing queue makes the broker close the channel.
	err = conn.WithChannel(func(ch *amqp.Channel) error {
		_, err := ch.QueueDeclarePassive("missing-queue", false, false, false, false, nil)

		return err
	})
	require.Error(t, err)

	assert.Eventually(t, func() bool {
		return conn.WithChannel(func(*amqp.Channel) error { return nil }) == nil
	}, 10*time.Second, 50*time.Millisecond)

	assert.True(t, conn.IsConnected())
	assert.NoError(t, messenger.Send(context.Background(), models.OutboundMessage{
		ExecutionID:  "exec-1",
		SubscriberID: "sub-1",
		Channel:      "web",
		Kind:         models.MessageText,
		Text:         "Hello again",
	}))
}
