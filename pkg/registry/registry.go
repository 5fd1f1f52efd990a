// Package registry describes the node types a flow can use: their output
// handles and the JSON schema of their payloads.
package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// Descriptor describes one node type to the editor and to edge validation.
type Descriptor struct {
	Type        models.NodeType `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Handles     []string        `json:"handles"`
	// InlineButtons allows one "button:{id}" handle per button of the payload.
	InlineButtons bool           `json:"inline_buttons"`
	Schema        map[string]any `json:"schema"`
}

// SchemaError is a raw payload violation reported by the JSON schema.
type SchemaError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

type Registry struct {
	logger      *slog.Logger
	mu          sync.RWMutex
	descriptors map[models.NodeType]Descriptor
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:      log,
		descriptors: make(map[models.NodeType]Descriptor),
	}
}

// NewDefaultRegistry returns a registry holding every built-in node type.
func NewDefaultRegistry(log *slog.Logger) *Registry {
	r := NewRegistry(log)
	r.RegisterDefaultNodes()

	return r
}

func (r *Registry) Register(descriptor Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.descriptors[descriptor.Type] = descriptor
	r.logger.Debug("Registered node type", "node_type", descriptor.Type)
}

// RegisterDefaultNodes registers all built-in node types.
func (r *Registry) RegisterDefaultNodes() {
	for _, descriptor := range DefaultDescriptors() {
		r.Register(descriptor)
	}
}

func (r *Registry) Descriptor(nodeType models.NodeType) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptor, ok := r.descriptors[nodeType]

	return descriptor, ok
}

// List returns descriptors in editor palette order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]Descriptor, 0, len(r.descriptors))

	for _, nodeType := range models.NodeTypes {
		if descriptor, ok := r.descriptors[nodeType]; ok {
			descriptors = append(descriptors, descriptor)
		}
	}

	return descriptors
}

// AllowsHandle reports whether an edge may leave node through handle.
func (r *Registry) AllowsHandle(node *models.Node, handle string) bool {
	descriptor, ok := r.Descriptor(node.Type)
	if !ok {
		return false
	}

	if handle == "" {
		handle = models.HandleNext
	}

	if slices.Contains(descriptor.Handles, handle) {
		return true
	}

	buttonID, ok := models.ParseButtonHandle(handle)
	if !ok || !descriptor.InlineButtons {
		return false
	}

	return slices.ContainsFunc(inlineButtons(node.Data), func(button models.Button) bool {
		return button.ID == buttonID
	})
}

func inlineButtons(data models.NodeData) []models.Button {
	switch d := data.(type) {
	case *models.TextData:
		return d.Buttons
	case *models.ConditionData:
		return d.Buttons
	default:
		return nil
	}
}

// ValidateRaw checks a raw JSON payload against the schema of nodeType
// before it is decoded, so type mismatches such as "delay":"5" are reported
// per field instead of failing the whole decode.
func (r *Registry) ValidateRaw(nodeType models.NodeType, raw json.RawMessage) ([]SchemaError, error) {
	descriptor, ok := r.Descriptor(nodeType)
	if !ok {
		return nil, &models.UnknownNodeTypeError{NodeType: nodeType}
	}

	schemaLoader := gojsonschema.NewGoLoader(descriptor.Schema)
	dataLoader := gojsonschema.NewBytesLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return nil, fmt.Errorf("failed to validate %s payload: %w", nodeType, err)
	}

	if result.Valid() {
		return nil, nil
	}

	schemaErrors := make([]SchemaError, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		field := desc.Field()
		if property, ok := desc.Details()["property"].(string); ok && desc.Type() == "required" {
			field = property
		} else if field == "(root)" {
			field = "data"
		}

		schemaErrors = append(schemaErrors, SchemaError{Field: field, Reason: desc.Description()})
	}

	return schemaErrors, nil
}
