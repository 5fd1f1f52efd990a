package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
)

// FlowRepository handles flow-related file operations.
type FlowRepository struct {
	root string
	mu   sync.RWMutex
}

// NewFlowRepository creates a new flow repository.
func NewFlowRepository(root string) *FlowRepository {
	return &FlowRepository{root: root}
}

func (fr *FlowRepository) dir() string {
	return filepath.Join(fr.root, "flows")
}

// GetAll loads every stored flow.
func (fr *FlowRepository) GetAll(ctx context.Context) ([]*models.Flow, error) {
	fr.mu.RLock()
	defer fr.mu.RUnlock()

	jsonFiles, err := fs.Glob(os.DirFS(fr.dir()), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list flow files: %w", err)
	}

	flows := make([]*models.Flow, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		flow, err := fr.read(strings.TrimSuffix(file, ".json"))
		if err != nil {
			return nil, err
		}

		flows = append(flows, flow)
	}

	return flows, nil
}

// ListFlows returns paginated and filtered flows with in-memory operations.
func (fr *FlowRepository) ListFlows(ctx context.Context, opts persistence.ListFlowsOptions) (*persistence.FlowListResult, error) {
	if err := opts.Normalize(); err != nil {
		return nil, err
	}

	all, err := fr.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.Flow, 0, len(all))

	for _, flow := range all {
		if opts.Owner != "" && flow.Owner != opts.Owner {
			continue
		}

		if opts.Active != nil && flow.Active != *opts.Active {
			continue
		}

		filtered = append(filtered, flow)
	}

	sortFlows(filtered, opts.SortBy, opts.SortOrder)

	totalCount := int64(len(filtered))

	if opts.Offset >= len(filtered) {
		return &persistence.FlowListResult{
			Flows:      make([]*models.Flow, 0),
			TotalCount: totalCount,
		}, nil
	}

	end := min(opts.Offset+opts.Limit, len(filtered))

	return &persistence.FlowListResult{
		Flows:       filtered[opts.Offset:end],
		TotalCount:  totalCount,
		HasNextPage: end < len(filtered),
	}, nil
}

func sortFlows(flows []*models.Flow, sortBy, sortOrder string) {
	sort.SliceStable(flows, func(i, j int) bool {
		var less bool

		switch sortBy {
		case "updated_at":
			less = flows[i].UpdatedAt.Before(flows[j].UpdatedAt)
		case "name":
			less = flows[i].Name < flows[j].Name
		default:
			less = flows[i].CreatedAt.Before(flows[j].CreatedAt)
		}

		if sortOrder == "desc" {
			return !less
		}

		return less
	})
}

// GetByID retrieves a flow by its ID from the file system.
func (fr *FlowRepository) GetByID(_ context.Context, id string) (*models.Flow, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.NewFlowError("GetByID", id, persistence.ErrFlowNotFound)
	}

	fr.mu.RLock()
	defer fr.mu.RUnlock()

	return fr.read(id)
}

// GetActive returns the flows eligible for trigger matching.
func (fr *FlowRepository) GetActive(ctx context.Context) ([]*models.Flow, error) {
	all, err := fr.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	active := make([]*models.Flow, 0, len(all))

	for _, flow := range all {
		if flow.Active {
			active = append(active, flow)
		}
	}

	return active, nil
}

// Save writes a flow, stamping its timestamps.
func (fr *FlowRepository) Save(_ context.Context, flow *models.Flow) error {
	if err := validateID(flow.ID); err != nil {
		return persistence.NewFlowError("Save", flow.ID, err)
	}

	fr.mu.Lock()
	defer fr.mu.Unlock()

	if err := os.MkdirAll(fr.dir(), 0750); err != nil {
		return fmt.Errorf("failed to create flows directory: %w", err)
	}

	now := time.Now().UTC()
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}

	flow.UpdatedAt = now

	data, err := json.MarshalIndent(flow, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal flow %s: %w", flow.ID, err)
	}

	return os.WriteFile(filepath.Join(fr.dir(), flow.ID+".json"), data, 0600)
}

func (fr *FlowRepository) read(id string) (*models.Flow, error) {
	body, err := os.ReadFile(filepath.Join(fr.dir(), id+".json")) // #nosec G304 -- id is validated
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewFlowError("GetByID", id, persistence.ErrFlowNotFound)
		}

		return nil, fmt.Errorf("failed to fetch flow %s: %w", id, err)
	}

	var flow models.Flow
	if err := json.Unmarshal(body, &flow); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flow %s: %w", id, err)
	}

	return &flow, nil
}
