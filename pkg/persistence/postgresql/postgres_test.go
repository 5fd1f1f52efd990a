package postgresql_test

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/persistence/postgresql"
	"github.com/dukex/chatflow/pkg/testutil"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"node_executions", "flow_executions", "flows", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("chatflow_test"),
			postgres.WithUsername("chatflow"),
			postgres.WithPassword("chatflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	for _, table := range []string{"flows", "flow_executions", "node_executions", "schema_migrations"} {
		var exists bool

		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	assert.NoError(t, p.HealthCheck(ctx))
}

func TestFlowRepository_SaveAndGet(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.FlowRepository()

	flow := testutil.CreateTestFlow(
		testutil.WithTrigger("hi, hello", models.MatchTypePartial),
		testutil.WithNodes(
			testutil.Text("greet", "Hello {{.name}}", models.Button{ID: "b1", Title: "Yes"}),
			models.NewNode("wait", &models.SequenceData{Delay: 5, DelayUnit: models.DelayMinutes}),
		),
		testutil.Chain("greet", "wait"),
	)

	require.NoError(t, repo.Save(ctx, flow))

	got, err := repo.GetByID(ctx, flow.ID)
	require.NoError(t, err)

	assert.Equal(t, flow.Name, got.Name)
	assert.Equal(t, []string{"hi", "hello"}, got.TriggerKeywords)
	assert.Equal(t, models.MatchTypePartial, got.MatchType)
	assert.Equal(t, flow.Nodes, got.Nodes)
	assert.Equal(t, flow.Edges, got.Edges)

	wait, ok := got.NodeByID("wait")
	require.True(t, ok)
	assert.Equal(t, 5, wait.Data.(*models.SequenceData).Delay)
}

func TestFlowRepository_GetByIDNotFound(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	_, err := p.FlowRepository().GetByID(ctx, "missing")
	assert.True(t, persistence.IsFlowNotFound(err))
}

func TestFlowRepository_ListAndActive(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.FlowRepository()

	active := testutil.CreateTestFlow()
	inactive := testutil.CreateTestFlow(testutil.Inactive())
	other := testutil.CreateTestFlow(func(f *models.Flow) { f.Owner = "owner-2" })

	for _, flow := range []*models.Flow{active, inactive, other} {
		require.NoError(t, repo.Save(ctx, flow))
	}

	flows, err := repo.GetActive(ctx)
	require.NoError(t, err)
	assert.Len(t, flows, 2)

	result, err := repo.ListFlows(ctx, persistence.ListFlowsOptions{Owner: "owner-1", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.TotalCount)
	assert.Len(t, result.Flows, 1)
	assert.True(t, result.HasNextPage)

	isActive := false
	result, err = repo.ListFlows(ctx, persistence.ListFlowsOptions{Active: &isActive})
	require.NoError(t, err)
	require.Len(t, result.Flows, 1)
	assert.Equal(t, inactive.ID, result.Flows[0].ID)

	_, err = repo.ListFlows(ctx, persistence.ListFlowsOptions{SortBy: "nodes"})
	assert.ErrorIs(t, err, persistence.ErrInvalidSort)
}

func TestExecutionRepository_Lifecycle(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.ExecutionRepository()

	resumeAt := time.Now().UTC().Add(time.Minute).Truncate(time.Microsecond)
	delayed := &models.FlowExecution{
		ID:           uuid.New().String(),
		FlowID:       "flow-1",
		SubscriberID: "sub-1",
		Channel:      "web",
		Status:       models.ExecutionStatusRunning,
		Variables:    map[string]string{"name": "Ada"},
		Wait:         &models.Suspension{Kind: models.WaitDelay, NodeID: "wait", ResumeAt: &resumeAt},
	}
	choice := &models.FlowExecution{
		ID:           uuid.New().String(),
		FlowID:       "flow-1",
		SubscriberID: "sub-1",
		Status:       models.ExecutionStatusRunning,
		Wait: &models.Suspension{Kind: models.WaitChoice, NodeID: "greet", Choices: []models.Choice{
			{ID: "b1", Title: "Yes", Kind: models.ChoiceReply, Handle: models.ButtonHandle("b1")},
		}},
	}

	require.NoError(t, repo.SaveExecution(ctx, delayed))
	require.NoError(t, repo.SaveExecution(ctx, choice))

	got, err := repo.GetExecution(ctx, delayed.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Variables["name"])
	require.NotNil(t, got.Wait)
	assert.True(t, resumeAt.Equal(*got.Wait.ResumeAt))

	waiting, err := repo.FindWaitingBySubscriber(ctx, "sub-1")
	require.NoError(t, err)
	assert.Len(t, waiting, 2)

	due, err := repo.FindDueDelays(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = repo.FindDueDelays(ctx, resumeAt.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, delayed.ID, due[0].ID)

	completedAt := time.Now().UTC()
	choice.Status = models.ExecutionStatusCompleted
	choice.Wait = nil
	choice.CompletedAt = &completedAt
	require.NoError(t, repo.SaveExecution(ctx, choice))

	waiting, err = repo.FindWaitingBySubscriber(ctx, "sub-1")
	require.NoError(t, err)
	require.Len(t, waiting, 1)
	assert.Equal(t, delayed.ID, waiting[0].ID)

	byFlow, err := repo.GetExecutionsByFlow(ctx, "flow-1")
	require.NoError(t, err)
	assert.Len(t, byFlow, 2)

	_, err = repo.GetExecution(ctx, "missing")
	assert.True(t, persistence.IsExecutionNotFound(err))
}

func TestExecutionRepository_ClaimDueDelayOnce(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.ExecutionRepository()

	resumeAt := time.Now().UTC().Add(-time.Minute).Truncate(time.Microsecond)
	delayed := &models.FlowExecution{
		ID:           uuid.New().String(),
		FlowID:       "flow-1",
		SubscriberID: "sub-1",
		Status:       models.ExecutionStatusRunning,
		Wait:         &models.Suspension{Kind: models.WaitDelay, NodeID: "wait", Fallback: "later", ResumeAt: &resumeAt},
	}
	require.NoError(t, repo.SaveExecution(ctx, delayed))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claims  []*models.FlowExecution
		notDue  int
		now     = time.Now().UTC()
		callers = 8
	)

	for range callers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			claimed, err := repo.ClaimDueDelay(ctx, delayed.ID, now)

			mu.Lock()
			defer mu.Unlock()

			if errors.Is(err, persistence.ErrExecutionNotDue) {
				notDue++

				return
			}

			assert.NoError(t, err)
			claims = append(claims, claimed)
		}()
	}

	wg.Wait()

	require.Len(t, claims, 1)
	assert.Equal(t, callers-1, notDue)
	require.NotNil(t, claims[0].Wait)
	assert.Equal(t, "later", claims[0].Wait.Fallback)

	due, err := repo.FindDueDelays(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)

	waiting, err := repo.FindWaitingBySubscriber(ctx, "sub-1")
	require.NoError(t, err)
	assert.Empty(t, waiting)
}

func TestExecutionRepository_FinishedExecutionIsKept(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.ExecutionRepository()

	execution := &models.FlowExecution{
		ID:           uuid.New().String(),
		FlowID:       "flow-1",
		SubscriberID: "sub-1",
		Status:       models.ExecutionStatusFailed,
		Error:        "abandoned",
	}
	require.NoError(t, repo.SaveExecution(ctx, execution))

	execution.Status = models.ExecutionStatusCompleted
	execution.Error = ""
	require.ErrorIs(t, repo.SaveExecution(ctx, execution), persistence.ErrExecutionFinished)

	stored, err := repo.GetExecution(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)
	assert.Equal(t, "abandoned", stored.Error)
}

func TestExecutionRepository_NodeExecutionsKeepOrder(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.ExecutionRepository()

	executionID := uuid.New().String()

	for _, nodeID := range []string{"start", "greet", "ask"} {
		require.NoError(t, repo.RecordNodeExecution(ctx, &models.NodeExecution{
			ID:          uuid.New().String(),
			ExecutionID: executionID,
			FlowID:      "flow-1",
			NodeID:      nodeID,
			NodeType:    models.NodeTypeText,
			Status:      models.NodeStatusSuccess,
			Output:      map[string]string{"node": nodeID},
		}))
	}

	rows, err := repo.GetNodeExecutions(ctx, executionID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "start", rows[0].NodeID)
	assert.Equal(t, "ask", rows[2].NodeID)
	assert.Equal(t, "greet", rows[1].Output["node"])
}
