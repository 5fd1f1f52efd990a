package services_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/persistence/file"
	"github.com/dukex/chatflow/pkg/registry"
	"github.com/dukex/chatflow/pkg/services"
	"github.com/dukex/chatflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupFlowService(t *testing.T) (*services.Flow, persistence.Persistence) {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	store := file.NewPersistence(t.TempDir())

	return services.NewFlow(store, registry.NewDefaultRegistry(logger), logger), store
}

func createFlow(t *testing.T, service *services.Flow) *models.Flow {
	t.Helper()

	flow, err := service.Create(context.Background(), services.CreateFlowRequest{
		Owner:          "owner-1",
		Name:           "Welcome",
		TriggerKeyword: "hi, hello",
		MatchType:      models.MatchTypePartial,
	})
	require.NoError(t, err)

	return flow
}

func startNodeID(t *testing.T, flow *models.Flow) string {
	t.Helper()

	start, ok := flow.StartNode()
	require.True(t, ok)

	return start.ID
}

func TestFlow_Create(t *testing.T) {
	service, store := setupFlowService(t)

	flow := createFlow(t, service)

	assert.NotEmpty(t, flow.ID)
	assert.False(t, flow.Active)
	assert.Equal(t, []string{"hi", "hello"}, flow.TriggerKeywords)
	assert.Equal(t, models.MatchTypePartial, flow.MatchType)
	require.Len(t, flow.Nodes, 1)
	assert.Equal(t, "Welcome", flow.Nodes[0].Label)

	stored, err := store.FlowRepository().GetByID(context.Background(), flow.ID)
	require.NoError(t, err)
	assert.Equal(t, flow.Name, stored.Name)
}

func TestFlow_CreateInvalid(t *testing.T) {
	service, _ := setupFlowService(t)

	tests := []struct {
		name string
		req  services.CreateFlowRequest
	}{
		{"missing owner", services.CreateFlowRequest{Owner: "  ", Name: "Welcome"}},
		{"missing name", services.CreateFlowRequest{Owner: "owner-1"}},
		{"unknown match type", services.CreateFlowRequest{Owner: "owner-1", Name: "Welcome", MatchType: "fuzzy"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Create(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, services.IsValidationError(err))
		})
	}
}

func TestFlow_Update(t *testing.T) {
	service, _ := setupFlowService(t)
	flow := createFlow(t, service)

	name := "Greetings"
	updated, err := service.Update(context.Background(), flow.ID, services.UpdateFlowRequest{Name: &name})
	require.NoError(t, err)

	assert.Equal(t, "Greetings", updated.Name)

	start, _ := updated.StartNode()
	assert.Equal(t, "Greetings", start.Data.(*models.StartData).FlowName)
	assert.Equal(t, "Greetings", start.Label)

	_, err = service.Update(context.Background(), "missing", services.UpdateFlowRequest{Name: &name})
	assert.True(t, services.IsNotFoundError(err))
}

func TestFlow_List(t *testing.T) {
	service, _ := setupFlowService(t)
	ctx := context.Background()

	createFlow(t, service)
	createFlow(t, service)

	_, err := service.Create(ctx, services.CreateFlowRequest{Owner: "owner-2", Name: "Other"})
	require.NoError(t, err)

	result, err := service.List(ctx, services.ListFlowsRequest{Owner: "owner-1"})
	require.NoError(t, err)
	assert.Len(t, result.Flows, 2)
	assert.Equal(t, int64(2), result.TotalCount)

	_, err = service.List(ctx, services.ListFlowsRequest{SortBy: "owner"})
	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))
	assert.ErrorIs(t, err, services.ErrInvalidSort)
}

func TestFlow_ActivateAndDeactivate(t *testing.T) {
	service, _ := setupFlowService(t)
	ctx := context.Background()
	flow := createFlow(t, service)

	_, err := service.SaveNode(ctx, flow.ID, testutil.Text("greet", "Hello"))
	require.NoError(t, err)

	_, err = service.AddEdge(ctx, flow.ID, testutil.Edge(startNodeID(t, flow), models.HandleNext, "greet"))
	require.NoError(t, err)

	activated, err := service.Activate(ctx, flow.ID)
	require.NoError(t, err)
	assert.True(t, activated.Active)

	deactivated, err := service.Deactivate(ctx, flow.ID)
	require.NoError(t, err)
	assert.False(t, deactivated.Active)
}

func TestFlow_ActivateRejectsInvalidDocument(t *testing.T) {
	service, _ := setupFlowService(t)
	ctx := context.Background()
	flow := createFlow(t, service)

	_, err := service.SaveNode(ctx, flow.ID, models.NewNode("jump", &models.QuickReplyData{
		ReplyText:  "Jump",
		ActionType: models.ActionStartFlow,
		FlowID:     "deleted-flow",
	}))
	require.NoError(t, err)

	_, err = service.AddEdge(ctx, flow.ID, testutil.Edge(startNodeID(t, flow), models.HandleNext, "jump"))
	require.NoError(t, err)
	require.NoError(t, service.DeleteNode(ctx, flow.ID, "jump"))

	_, err = service.Activate(ctx, flow.ID)
	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))
	assert.NotEmpty(t, services.ValidationErrors(err))

	stored, err := service.FetchByID(ctx, flow.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)
}

func TestFlow_ActivateRejectsUnknownTargetFlow(t *testing.T) {
	service, _ := setupFlowService(t)
	ctx := context.Background()
	flow := createFlow(t, service)

	_, err := service.SaveNode(ctx, flow.ID, models.NewNode("jump", &models.QuickReplyData{
		ReplyText:  "Jump",
		ActionType: models.ActionStartFlow,
		FlowID:     "deleted-flow",
	}))
	require.NoError(t, err)

	_, err = service.Activate(ctx, flow.ID)
	require.Error(t, err)
	assert.Contains(t, services.ValidationErrors(err).Fields(), "flowId")
}

func TestFlow_ActiveFlowStaysValid(t *testing.T) {
	service, _ := setupFlowService(t)
	ctx := context.Background()
	flow := createFlow(t, service)

	_, err := service.SaveNode(ctx, flow.ID, testutil.Text("greet", "Hello"))
	require.NoError(t, err)

	_, err = service.AddEdge(ctx, flow.ID, testutil.Edge(startNodeID(t, flow), models.HandleNext, "greet"))
	require.NoError(t, err)

	_, err = service.Activate(ctx, flow.ID)
	require.NoError(t, err)

	err = service.DeleteNode(ctx, flow.ID, "greet")
	require.Error(t, err)
	assert.True(t, services.IsConflictError(err))
	assert.False(t, services.IsValidationError(err))
	assert.NotEmpty(t, services.ValidationErrors(err))

	stored, err := service.FetchByID(ctx, flow.ID)
	require.NoError(t, err)

	_, ok := stored.NodeByID("greet")
	assert.True(t, ok)
}
