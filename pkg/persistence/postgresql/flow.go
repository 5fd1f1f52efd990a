package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
)

const flowColumns = `id, owner, name, active, trigger_keywords, match_type, nodes, edges, created_at, updated_at`

// FlowRepository handles flow-related database operations. The graph is
// stored as JSONB so a document round-trips exactly as authored.
type FlowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewFlowRepository creates a new flow repository.
func NewFlowRepository(db *sql.DB, logger *slog.Logger) *FlowRepository {
	return &FlowRepository{db: db, logger: logger}
}

// GetAll returns every flow ordered by creation time.
func (r *FlowRepository) GetAll(ctx context.Context) ([]*models.Flow, error) {
	return r.query(ctx, `SELECT `+flowColumns+` FROM flows ORDER BY created_at`)
}

// GetActive returns the flows eligible for trigger matching.
func (r *FlowRepository) GetActive(ctx context.Context) ([]*models.Flow, error) {
	return r.query(ctx, `SELECT `+flowColumns+` FROM flows WHERE active ORDER BY updated_at DESC`)
}

// ListFlows returns filtered and paginated flows.
func (r *FlowRepository) ListFlows(ctx context.Context, opts persistence.ListFlowsOptions) (*persistence.FlowListResult, error) {
	if err := opts.Normalize(); err != nil {
		return nil, err
	}

	var (
		conditions []string
		args       []any
	)

	if opts.Owner != "" {
		args = append(args, opts.Owner)
		conditions = append(conditions, fmt.Sprintf("owner = $%d", len(args)))
	}

	if opts.Active != nil {
		args = append(args, *opts.Active)
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM flows`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count flows: %w", err)
	}

	// SortBy and SortOrder are checked against an allowlist by Normalize.
	query := fmt.Sprintf(`SELECT %s FROM flows%s ORDER BY %s %s LIMIT $%d OFFSET $%d`,
		flowColumns, where, opts.SortBy, strings.ToUpper(opts.SortOrder), len(args)+1, len(args)+2)

	flows, err := r.query(ctx, query, append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, err
	}

	return &persistence.FlowListResult{
		Flows:       flows,
		TotalCount:  total,
		HasNextPage: int64(opts.Offset+len(flows)) < total,
	}, nil
}

// GetByID retrieves a flow by its ID.
func (r *FlowRepository) GetByID(ctx context.Context, id string) (*models.Flow, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+flowColumns+` FROM flows WHERE id = $1`, id)

	flow, err := scanFlow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewFlowError("GetByID", id, persistence.ErrFlowNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get flow %s: %w", id, err)
	}

	return flow, nil
}

// Save upserts a flow, stamping its timestamps.
func (r *FlowRepository) Save(ctx context.Context, flow *models.Flow) error {
	now := time.Now().UTC()
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}

	flow.UpdatedAt = now

	keywords, err := json.Marshal(nonNil(flow.TriggerKeywords))
	if err != nil {
		return fmt.Errorf("failed to marshal trigger keywords: %w", err)
	}

	nodes, err := json.Marshal(nonNil(flow.Nodes))
	if err != nil {
		return fmt.Errorf("failed to marshal nodes of flow %s: %w", flow.ID, err)
	}

	edges, err := json.Marshal(nonNil(flow.Edges))
	if err != nil {
		return fmt.Errorf("failed to marshal edges of flow %s: %w", flow.ID, err)
	}

	query := `
		INSERT INTO flows (` + flowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			owner = EXCLUDED.owner,
			name = EXCLUDED.name,
			active = EXCLUDED.active,
			trigger_keywords = EXCLUDED.trigger_keywords,
			match_type = EXCLUDED.match_type,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			updated_at = EXCLUDED.updated_at`

	_, err = r.db.ExecContext(ctx, query,
		flow.ID, flow.Owner, flow.Name, flow.Active, keywords, string(flow.MatchType),
		nodes, edges, flow.CreatedAt, flow.UpdatedAt)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to save flow", "flow_id", flow.ID, "error", err)

		return persistence.NewFlowError("Save", flow.ID, err)
	}

	return nil
}

func (r *FlowRepository) query(ctx context.Context, query string, args ...any) ([]*models.Flow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query flows: %w", err)
	}
	defer rows.Close()

	flows := make([]*models.Flow, 0)

	for rows.Next() {
		flow, err := scanFlow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}

		flows = append(flows, flow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate flows: %w", err)
	}

	return flows, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFlow(row scanner) (*models.Flow, error) {
	var (
		flow                   models.Flow
		matchType              string
		keywords, nodes, edges []byte
	)

	err := row.Scan(&flow.ID, &flow.Owner, &flow.Name, &flow.Active, &keywords, &matchType,
		&nodes, &edges, &flow.CreatedAt, &flow.UpdatedAt)
	if err != nil {
		return nil, err
	}

	flow.MatchType = models.MatchType(matchType)

	if err := json.Unmarshal(keywords, &flow.TriggerKeywords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger keywords: %w", err)
	}

	if err := json.Unmarshal(nodes, &flow.Nodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes of flow %s: %w", flow.ID, err)
	}

	if err := json.Unmarshal(edges, &flow.Edges); err != nil {
		return nil, fmt.Errorf("failed to unmarshal edges of flow %s: %w", flow.ID, err)
	}

	return &flow, nil
}

func nonNil[T any](values []T) []T {
	if values == nil {
		return make([]T, 0)
	}

	return values
}
