package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/mocks"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence/file"
	"github.com/dukex/chatflow/pkg/registry"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T, publisher eventbus.EventPublisher) *fiber.App {
	t.Helper()

	persistence := file.NewPersistence(t.TempDir())

	app := NewAPI(
		slog.New(slog.DiscardHandler),
		persistence,
		registry.NewDefaultRegistry(slog.New(slog.DiscardHandler)),
		publisher,
		nil,
		"",
	)

	return app.App()
}

func request(t *testing.T, app *fiber.App, method, path, body string) (int, string) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(respBody)
}

func TestAPI_RootEndpoint(t *testing.T) {
	app := setupTestApp(t, &mocks.MockEventBus{})

	status, body := request(t, app, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Chatflow API", body)
}

func TestAPI_HealthCheck(t *testing.T) {
	app := setupTestApp(t, &mocks.MockEventBus{})

	status, body := request(t, app, http.MethodGet, "/livez", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", body)

	status, _ = request(t, app, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)
}

func TestAPI_Metrics(t *testing.T) {
	app := setupTestApp(t, &mocks.MockEventBus{})

	status, body := request(t, app, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "go_goroutines")
}

func TestAPI_GetFlows_Empty(t *testing.T) {
	app := setupTestApp(t, &mocks.MockEventBus{})

	status, body := request(t, app, http.MethodGet, "/flows", "")
	require.Equal(t, http.StatusOK, status)

	var result struct {
		Flows      []*models.Flow `json:"flows"`
		TotalCount int64          `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &result))
	assert.Empty(t, result.Flows)
	assert.Zero(t, result.TotalCount)
}

// TestAPI_EditorRoundTrip builds a flow the way the editor does and activates it.
func TestAPI_EditorRoundTrip(t *testing.T) {
	app := setupTestApp(t, &mocks.MockEventBus{})

	status, body := request(t, app, http.MethodPost, "/flows",
		`{"owner":"owner-1","name":"Welcome","trigger_keyword":"hi"}`)
	require.Equal(t, http.StatusCreated, status, body)

	var flow models.Flow
	require.NoError(t, json.Unmarshal([]byte(body), &flow))

	start, ok := flow.StartNode()
	require.True(t, ok)

	status, body = request(t, app, http.MethodPost, "/flows/"+flow.ID+"/nodes",
		`{"id":"menu","nodeType":"text","data":{"content":"Pick one","buttons":[{"id":"b1","title":"Prices"}]}}`)
	require.Equal(t, http.StatusCreated, status, body)

	status, body = request(t, app, http.MethodPost, "/flows/"+flow.ID+"/nodes",
		`{"id":"prices","nodeType":"text","data":{"content":"Everything is free"}}`)
	require.Equal(t, http.StatusCreated, status, body)

	for _, edge := range []string{
		`{"source":"` + start.ID + `","sourceHandle":"next","target":"menu"}`,
		`{"source":"menu","sourceHandle":"button:b1","target":"prices"}`,
	} {
		status, body = request(t, app, http.MethodPost, "/flows/"+flow.ID+"/edges", edge)
		require.Equal(t, http.StatusCreated, status, body)
	}

	status, body = request(t, app, http.MethodPost, "/flows/"+flow.ID+"/activate", "")
	require.Equal(t, http.StatusOK, status, body)
	assert.True(t, strings.Contains(body, `"active":true`))
}

func TestAPI_Events(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "sub-1", mock.Anything).Return(nil).Once()

	app := setupTestApp(t, bus)

	status, body := request(t, app, http.MethodPost, "/events/messages",
		`{"subscriber_id":"sub-1","channel":"web","text":"hi"}`)
	assert.Equal(t, http.StatusAccepted, status, body)

	bus.AssertExpectations(t)
}
