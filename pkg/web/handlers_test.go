package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/events"
	"github.com/dukex/chatflow/pkg/mocks"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/persistence/file"
	"github.com/dukex/chatflow/pkg/registry"
	"github.com/dukex/chatflow/pkg/services"
	"github.com/dukex/chatflow/pkg/uploads"
	"github.com/dukex/chatflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	app     *fiber.App
	flows   *services.Flow
	store   persistence.Persistence
	bus     *mocks.MockEventBus
	uploads string
}

func setupTestApp(t *testing.T) *testApp {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	store := file.NewPersistence(t.TempDir())
	nodeTypes := registry.NewDefaultRegistry(logger)
	flowService := services.NewFlow(store, nodeTypes, logger)
	bus := &mocks.MockEventBus{}

	mediaRoot := t.TempDir()
	uploader := uploads.NewUploader(
		uploads.StaticSettings(uploads.DefaultSettings()),
		uploads.NewDiskStore(mediaRoot, "/media"),
		logger,
	)

	handlers := web.NewAPIHandlers(
		flowService,
		services.NewExecution(store),
		validator.New(validator.WithRequiredStructEnabled()),
		nodeTypes,
		bus,
		uploader,
		mediaRoot,
	)

	return &testApp{
		app:     newApp(handlers),
		flows:   flowService,
		store:   store,
		bus:     bus,
		uploads: mediaRoot,
	}
}

func newApp(handlers *web.APIHandlers) *fiber.App {
	app := fiber.New()

	f := app.Group("/flows")
	f.Get("/", handlers.GetFlows)
	f.Post("/", handlers.CreateFlow)
	f.Get("/:id", handlers.GetFlow)
	f.Patch("/:id", handlers.UpdateFlow)
	f.Post("/:id/activate", handlers.ActivateFlow)
	f.Post("/:id/deactivate", handlers.DeactivateFlow)
	f.Put("/:id/graph", handlers.ReplaceGraph)
	f.Get("/:id/connectivity", handlers.GetConnectivity)
	f.Post("/:id/nodes", handlers.CreateNode)
	f.Put("/:id/nodes/:nodeId", handlers.UpdateNode)
	f.Delete("/:id/nodes/:nodeId", handlers.DeleteNode)
	f.Post("/:id/edges", handlers.CreateEdge)
	f.Delete("/:id/edges/:edgeId", handlers.DeleteEdge)
	f.Get("/:id/executions", handlers.GetFlowExecutions)

	app.Get("/executions/:id", handlers.GetExecution)
	app.Get("/node-types", handlers.GetNodeTypes)
	app.Post("/node-types/:type/validate", handlers.ValidateDraft)
	app.Post("/events/messages", handlers.ReceiveMessage)
	app.Post("/events/taps", handlers.ReceiveTap)
	app.Post("/uploads/:kind", handlers.Upload)
	app.Get("/media/*", handlers.ServeMedia)
	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *testApp) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, ok := body.(string)
		if !ok {
			encoded, err := json.Marshal(body)
			require.NoError(t, err)

			raw = string(encoded)
		}

		reader = bytes.NewBufferString(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, respBody
}

func (a *testApp) createFlow(t *testing.T) *models.Flow {
	t.Helper()

	status, body := a.do(t, http.MethodPost, "/flows", web.CreateFlowRequest{
		Owner:          "owner-1",
		Name:           "Welcome",
		TriggerKeyword: "hi",
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	var flow models.Flow
	require.NoError(t, json.Unmarshal(body, &flow))

	return &flow
}

type problemBody struct {
	Type   string `json:"type"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
	Errors []struct {
		Field  string `json:"field"`
		Reason string `json:"reason"`
	} `json:"errors"`
}

func (p problemBody) fields() []string {
	fields := make([]string, len(p.Errors))
	for i, fieldErr := range p.Errors {
		fields[i] = fieldErr.Field
	}

	return fields
}

func decodeProblem(t *testing.T, body []byte) problemBody {
	t.Helper()

	var problem problemBody
	require.NoError(t, json.Unmarshal(body, &problem))

	return problem
}

func TestAPIHandlers_CreateFlow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "successful creation",
			requestBody:    web.CreateFlowRequest{Owner: "owner-1", Name: "Welcome", TriggerKeyword: "hi"},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "missing name",
			requestBody:    web.CreateFlowRequest{Owner: "owner-1"},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Name",
		},
		{
			name:           "unknown match type",
			requestBody:    web.CreateFlowRequest{Owner: "owner-1", Name: "Welcome", MatchType: "fuzzy"},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "MatchType",
		},
		{
			name:           "invalid json",
			requestBody:    "{",
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Invalid JSON format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := setupTestApp(t)
			status, body := a.do(t, http.MethodPost, "/flows", tt.requestBody)

			assert.Equal(t, tt.expectedStatus, status)

			if tt.expectedError != "" {
				assert.Contains(t, decodeProblem(t, body).Detail, tt.expectedError)

				return
			}

			var flow models.Flow
			require.NoError(t, json.Unmarshal(body, &flow))
			assert.NotEmpty(t, flow.ID)
			assert.False(t, flow.Active)
			assert.Equal(t, []string{"hi"}, flow.TriggerKeywords)
			require.Len(t, flow.Nodes, 1)
			assert.Equal(t, models.NodeTypeStart, flow.Nodes[0].Type)
		})
	}
}

func TestAPIHandlers_GetFlows(t *testing.T) {
	a := setupTestApp(t)
	a.createFlow(t)
	a.createFlow(t)

	status, body := a.do(t, http.MethodGet, "/flows?owner=owner-1&limit=1", nil)
	require.Equal(t, http.StatusOK, status)

	var result struct {
		Flows       []*models.Flow `json:"flows"`
		TotalCount  int64          `json:"total_count"`
		HasNextPage bool           `json:"has_next_page"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Len(t, result.Flows, 1)
	assert.Equal(t, int64(2), result.TotalCount)
	assert.True(t, result.HasNextPage)

	status, _ = a.do(t, http.MethodGet, "/flows?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = a.do(t, http.MethodGet, "/flows?sort_by=owner", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", decodeProblem(t, body).Type)
}

func TestAPIHandlers_GetFlow(t *testing.T) {
	a := setupTestApp(t)
	flow := a.createFlow(t)

	status, _ := a.do(t, http.MethodGet, "/flows/"+flow.ID, nil)
	assert.Equal(t, http.StatusOK, status)

	status, body := a.do(t, http.MethodGet, "/flows/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "flow_not_found", decodeProblem(t, body).Type)
}

func TestAPIHandlers_UpdateFlow(t *testing.T) {
	a := setupTestApp(t)
	flow := a.createFlow(t)

	status, body := a.do(t, http.MethodPatch, "/flows/"+flow.ID, map[string]string{"name": "Greetings"})
	require.Equal(t, http.StatusOK, status)

	var updated models.Flow
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, "Greetings", updated.Name)
}

func TestAPIHandlers_Nodes(t *testing.T) {
	a := setupTestApp(t)
	flow := a.createFlow(t)
	start, _ := flow.StartNode()

	t.Run("create normalizes the payload", func(t *testing.T) {
		status, body := a.do(t, http.MethodPost, "/flows/"+flow.ID+"/nodes",
			`{"id":"greet","nodeType":"text","position":{"x":10,"y":20},"data":{"content":"  Hello  "}}`)
		require.Equal(t, http.StatusCreated, status, string(body))

		var node models.Node
		require.NoError(t, json.Unmarshal(body, &node))
		assert.Equal(t, "Hello", node.Data.(*models.TextData).Content)
		assert.InDelta(t, 10, node.Position.X, 0.001)
	})

	t.Run("wrongly typed field", func(t *testing.T) {
		status, body := a.do(t, http.MethodPost, "/flows/"+flow.ID+"/nodes",
			`{"id":"wait","nodeType":"sequence","data":{"delay":"5","delayUnit":"minutes"}}`)
		require.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, []string{"delay"}, decodeProblem(t, body).fields())
	})

	t.Run("every failing field is reported", func(t *testing.T) {
		status, body := a.do(t, http.MethodPost, "/flows/"+flow.ID+"/nodes",
			`{"id":"card","nodeType":"card","data":{"title":"","imageUrl":"not a url"}}`)
		require.Equal(t, http.StatusBadRequest, status)
		assert.ElementsMatch(t, []string{"title", "imageUrl"}, decodeProblem(t, body).fields())
	})

	t.Run("unknown node type", func(t *testing.T) {
		status, _ := a.do(t, http.MethodPost, "/flows/"+flow.ID+"/nodes",
			`{"id":"x","nodeType":"sticker","data":{}}`)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("update uses the path id", func(t *testing.T) {
		status, body := a.do(t, http.MethodPut, "/flows/"+flow.ID+"/nodes/greet",
			`{"id":"ignored","nodeType":"text","data":{"content":"Hi again"}}`)
		require.Equal(t, http.StatusOK, status, string(body))

		stored, err := a.flows.FetchByID(context.Background(), flow.ID)
		require.NoError(t, err)

		node, ok := stored.NodeByID("greet")
		require.True(t, ok)
		assert.Equal(t, "Hi again", node.Data.(*models.TextData).Content)

		_, ok = stored.NodeByID("ignored")
		assert.False(t, ok)
	})

	t.Run("start node cannot be deleted", func(t *testing.T) {
		status, body := a.do(t, http.MethodDelete, "/flows/"+flow.ID+"/nodes/"+start.ID, nil)
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "conflict", decodeProblem(t, body).Type)
	})

	t.Run("delete", func(t *testing.T) {
		status, _ := a.do(t, http.MethodDelete, "/flows/"+flow.ID+"/nodes/greet", nil)
		assert.Equal(t, http.StatusNoContent, status)

		status, body := a.do(t, http.MethodDelete, "/flows/"+flow.ID+"/nodes/greet", nil)
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "node_not_found", decodeProblem(t, body).Type)
	})
}

func TestAPIHandlers_EdgesAndActivation(t *testing.T) {
	a := setupTestApp(t)
	flow := a.createFlow(t)
	start, _ := flow.StartNode()

	status, _ := a.do(t, http.MethodPost, "/flows/"+flow.ID+"/nodes",
		`{"id":"greet","nodeType":"text","data":{"content":"Hello"}}`)
	require.Equal(t, http.StatusCreated, status)

	status, body := a.do(t, http.MethodPost, "/flows/"+flow.ID+"/edges", web.EdgeRequest{
		Source: start.ID, SourceHandle: models.HandleItems, Target: "greet",
	})
	assert.Equal(t, http.StatusBadRequest, status, string(body))

	status, body = a.do(t, http.MethodPost, "/flows/"+flow.ID+"/edges", web.EdgeRequest{
		Source: start.ID, SourceHandle: models.HandleNext, Target: "greet",
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	var edge models.Edge
	require.NoError(t, json.Unmarshal(body, &edge))
	assert.NotEmpty(t, edge.ID)

	status, body = a.do(t, http.MethodGet, "/flows/"+flow.ID+"/connectivity", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"connected":true,"issues":[]}`, string(body))

	status, _ = a.do(t, http.MethodPost, "/flows/"+flow.ID+"/activate", nil)
	require.Equal(t, http.StatusOK, status)

	status, body = a.do(t, http.MethodDelete, "/flows/"+flow.ID+"/nodes/greet", nil)
	assert.Equal(t, http.StatusConflict, status)

	problem := decodeProblem(t, body)
	assert.Equal(t, "active_flow_invalid", problem.Type)
	assert.NotEmpty(t, problem.Errors)

	status, _ = a.do(t, http.MethodPost, "/flows/"+flow.ID+"/deactivate", nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = a.do(t, http.MethodDelete, "/flows/"+flow.ID+"/edges/"+edge.ID, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, body = a.do(t, http.MethodDelete, "/flows/"+flow.ID+"/edges/"+edge.ID, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "edge_not_found", decodeProblem(t, body).Type)
}

func TestAPIHandlers_ReplaceGraph(t *testing.T) {
	a := setupTestApp(t)
	flow := a.createFlow(t)

	status, body := a.do(t, http.MethodPut, "/flows/"+flow.ID+"/graph", `{
		"nodes": [
			{"id":"start","nodeType":"start","data":{"flowName":"Rebuilt","triggerKeyword":"go"}},
			{"id":"greet","nodeType":"text","data":{"content":5}},
			{"id":"wait","nodeType":"sequence","data":{"delay":"soon","delayUnit":"minutes"}}
		],
		"edges": []
	}`)
	require.Equal(t, http.StatusBadRequest, status)
	assert.ElementsMatch(t, []string{"nodes[greet].content", "nodes[wait].delay"}, decodeProblem(t, body).fields())

	status, body = a.do(t, http.MethodPut, "/flows/"+flow.ID+"/graph", `{
		"nodes": [
			{"id":"start","nodeType":"start","data":{"flowName":"Rebuilt","triggerKeyword":"go"}},
			{"id":"greet","nodeType":"text","data":{"content":"Hello"}}
		],
		"edges": [{"source":"start","sourceHandle":"next","target":"greet"}]
	}`)
	require.Equal(t, http.StatusOK, status, string(body))

	var replaced models.Flow
	require.NoError(t, json.Unmarshal(body, &replaced))
	assert.Equal(t, "Rebuilt", replaced.Name)
	assert.Len(t, replaced.Edges, 1)
}

func TestAPIHandlers_NodeTypes(t *testing.T) {
	a := setupTestApp(t)

	status, body := a.do(t, http.MethodGet, "/node-types", nil)
	require.Equal(t, http.StatusOK, status)

	var result struct {
		NodeTypes []registry.Descriptor `json:"node_types"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Len(t, result.NodeTypes, len(models.NodeTypes))

	status, body = a.do(t, http.MethodPost, "/node-types/text/validate", `{"content":"  Hello  "}`)
	require.Equal(t, http.StatusOK, status, string(body))

	var draft struct {
		Valid bool            `json:"valid"`
		Label string          `json:"label"`
		Data  models.TextData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &draft))
	assert.True(t, draft.Valid)
	assert.Equal(t, "Hello", draft.Data.Content)

	status, body = a.do(t, http.MethodPost, "/node-types/image/validate", `{"imageUrl":"nope"}`)
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, []string{"imageUrl"}, decodeProblem(t, body).fields())

	status, _ = a.do(t, http.MethodPost, "/node-types/sticker/validate", `{}`)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_Executions(t *testing.T) {
	a := setupTestApp(t)
	flow := a.createFlow(t)

	status, body := a.do(t, http.MethodGet, "/flows/"+flow.ID+"/executions", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"executions":[],"total_count":0}`, string(body))

	status, _ = a.do(t, http.MethodGet, "/flows/missing/executions", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = a.do(t, http.MethodGet, "/executions/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "execution_not_found", decodeProblem(t, body).Type)
}

func TestAPIHandlers_Events(t *testing.T) {
	a := setupTestApp(t)

	a.bus.On("Publish", mock.Anything, "sub-1", mock.MatchedBy(func(event eventbus.Event) bool {
		received, ok := event.(*events.MessageReceived)

		return ok && received.Inbound.Text == "hi" && received.Inbound.Type == models.InboundMessage
	})).Return(nil).Once()

	a.bus.On("Publish", mock.Anything, "sub-1", mock.MatchedBy(func(event eventbus.Event) bool {
		tapped, ok := event.(*events.ButtonTapped)

		return ok && tapped.Inbound.ChoiceID == "node-1:b1"
	})).Return(nil).Once()

	status, body := a.do(t, http.MethodPost, "/events/messages", web.MessageEventRequest{
		SubscriberID: "sub-1", Channel: "web", Text: "hi",
	})
	require.Equal(t, http.StatusAccepted, status, string(body))
	assert.JSONEq(t, `{"status":"accepted","event_type":"message.received"}`, string(body))

	status, _ = a.do(t, http.MethodPost, "/events/taps", web.TapEventRequest{
		SubscriberID: "sub-1", Channel: "web", ChoiceID: "node-1:b1",
	})
	require.Equal(t, http.StatusAccepted, status)

	status, _ = a.do(t, http.MethodPost, "/events/taps", web.TapEventRequest{SubscriberID: "sub-1", Channel: "web"})
	assert.Equal(t, http.StatusBadRequest, status)

	a.bus.AssertExpectations(t)
}

func TestAPIHandlers_EventsPublishFailure(t *testing.T) {
	a := setupTestApp(t)
	a.bus.On("Publish", mock.Anything, "sub-1", mock.Anything).Return(errors.New("broker down"))

	status, body := a.do(t, http.MethodPost, "/events/messages", web.MessageEventRequest{
		SubscriberID: "sub-1", Channel: "web", Text: "hi",
	})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal_error", decodeProblem(t, body).Type)
}

func TestAPIHandlers_UploadAndServe(t *testing.T) {
	a := setupTestApp(t)

	upload := func(kind, filename string, content []byte) (int, []byte) {
		var buf bytes.Buffer

		writer := multipart.NewWriter(&buf)
		part, err := writer.CreateFormFile("file", filename)
		require.NoError(t, err)

		_, err = part.Write(content)
		require.NoError(t, err)
		require.NoError(t, writer.Close())

		req := httptest.NewRequest(http.MethodPost, "/uploads/"+kind, &buf)
		req.Header.Set("Content-Type", writer.FormDataContentType())

		resp, err := a.app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		return resp.StatusCode, body
	}

	status, body := upload("image", "logo.png", []byte("png"))
	require.Equal(t, http.StatusCreated, status, string(body))

	var stored uploads.Upload
	require.NoError(t, json.Unmarshal(body, &stored))
	assert.Equal(t, uploads.KindImage, stored.Kind)

	status, body = a.do(t, http.MethodGet, stored.URL, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "png", string(body))

	status, _ = upload("image", "script.exe", []byte("mz"))
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = upload("sticker", "logo.png", []byte("png"))
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = a.do(t, http.MethodGet, "/media/image/missing.png", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	a := setupTestApp(t)

	status, _ := a.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestAPIHandlers_UnhealthyPersistence(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	store := mocks.NewMockPersistence()
	store.On("HealthCheck", mock.Anything).Return(errors.New("connection refused"))
	store.Flows.On("GetByID", mock.Anything, "flow-1").Return(nil, errors.New("connection refused"))

	nodeTypes := registry.NewDefaultRegistry(logger)
	handlers := web.NewAPIHandlers(
		services.NewFlow(store, nodeTypes, logger),
		services.NewExecution(store),
		validator.New(validator.WithRequiredStructEnabled()),
		nodeTypes,
		&mocks.MockEventBus{},
		nil,
		"",
	)
	a := &testApp{app: newApp(handlers)}

	status, body := a.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, string(body), "unhealthy")

	status, body = a.do(t, http.MethodGet, "/flows/flow-1", nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal_error", decodeProblem(t, body).Type)

	status, _ = a.do(t, http.MethodPost, "/uploads/image", nil)
	assert.Equal(t, http.StatusNotFound, status)

	store.AssertExpectations(t)
	store.Flows.AssertExpectations(t)
}
