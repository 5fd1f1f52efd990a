package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/registry"
	"github.com/dukex/chatflow/pkg/validation"
	"gopkg.in/yaml.v3"
)

// decodeDocument reads a flow document. Files ending in .yaml or .yml are
// YAML, anything else JSON; both use the JSON field names.
func decodeDocument(path string) (*models.Flow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var document any
		if err := yaml.Unmarshal(data, &document); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}

		data, err = json.Marshal(document)
		if err != nil {
			return nil, fmt.Errorf("failed to convert %s to JSON: %w", path, err)
		}
	}

	var flow models.Flow
	if err := json.Unmarshal(data, &flow); err != nil {
		return nil, fmt.Errorf("failed to decode flow %s: %w", path, err)
	}

	return &flow, nil
}

// checkDocument normalizes every node and validates the whole document.
// It returns every problem found, or nil.
func checkDocument(flow *models.Flow, nodeTypes *registry.Registry) (validation.Errors, error) {
	var errs validation.Errors

	for _, node := range flow.Nodes {
		if err := validation.ValidateNode(node); err != nil {
			fieldErrs, ok := validation.AsErrors(err)
			if !ok {
				return nil, err
			}

			errs = append(errs, fieldErrs.Prefix(fmt.Sprintf("nodes[%s]", node.ID))...)
		}
	}

	if len(errs) > 0 {
		return errs, nil
	}

	flow.SyncTrigger()

	if err := validation.ValidateFlow(flow, nodeTypes); err != nil {
		fieldErrs, ok := validation.AsErrors(err)
		if !ok {
			return nil, err
		}

		return fieldErrs, nil
	}

	return nil, nil
}
