package events

import (
	"encoding/json"
	"testing"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInboundEvent(t *testing.T) {
	tap := NewInboundEvent(models.InboundEvent{Type: models.InboundTap, SubscriberID: "sub-1", ChoiceID: "b1"})
	require.IsType(t, &ButtonTapped{}, tap)
	assert.Equal(t, ButtonTappedEvent, tap.(*ButtonTapped).Type)

	message := NewInboundEvent(models.InboundEvent{Type: models.InboundMessage, SubscriberID: "sub-1", Text: "hi"})
	require.IsType(t, &MessageReceived{}, message)
	assert.Equal(t, "hi", message.(*MessageReceived).Inbound.Text)
}

func TestExecutionFailed_JSONSerialization(t *testing.T) {
	original := &ExecutionFailed{
		BaseEvent:    NewBaseEvent(ExecutionFailedEvent, "flow-1"),
		ExecutionID:  "exec-1",
		SubscriberID: "sub-1",
		Error:        "flow flow-2 not found",
	}

	jsonData, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), `"type":"execution.failed"`)
	assert.Contains(t, string(jsonData), `"flow_id":"flow-1"`)
	assert.Contains(t, string(jsonData), `"execution_id":"exec-1"`)

	var deserialized ExecutionFailed

	err = json.Unmarshal(jsonData, &deserialized)
	require.NoError(t, err)
	assert.Equal(t, original.Error, deserialized.Error)
	assert.Equal(t, original.GetType(), deserialized.Type)
}

func TestNodeExecuted_GetType(t *testing.T) {
	event := NodeExecuted{}
	assert.Equal(t, NodeExecutedEvent, event.GetType())
}
