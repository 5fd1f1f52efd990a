package registry

import (
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ListsEveryNodeType(t *testing.T) {
	r := NewDefaultRegistry(slog.Default())

	descriptors := r.List()
	require.Len(t, descriptors, len(models.NodeTypes))

	for i, nodeType := range models.NodeTypes {
		assert.Equal(t, nodeType, descriptors[i].Type)
		assert.NotEmpty(t, descriptors[i].Schema, "schema for %s", nodeType)
	}
}

func TestRegistry_AllowsHandle(t *testing.T) {
	r := NewDefaultRegistry(slog.Default())

	text := models.NewNode("t1", &models.TextData{
		Content: "hi",
		Buttons: []models.Button{{ID: "b1", Title: "Yes"}},
	})
	condition := models.NewNode("c1", &models.ConditionData{
		ConditionField: "plan",
		Buttons:        []models.Button{{ID: "gold", Title: "Gold"}},
	})
	carousel := models.NewNode("k1", &models.CarouselData{})
	item := models.NewNode("i1", &models.CarouselItemData{Title: "Hat"})

	tests := []struct {
		name     string
		node     *models.Node
		handle   string
		expected bool
	}{
		{"text next", text, models.HandleNext, true},
		{"empty handle is next", text, "", true},
		{"text buttons", text, models.HandleButtons, true},
		{"text inline button", text, models.ButtonHandle("b1"), true},
		{"text unknown inline button", text, models.ButtonHandle("b2"), false},
		{"text items", text, models.HandleItems, false},
		{"condition inline button", condition, models.ButtonHandle("gold"), true},
		{"condition no match", condition, models.HandleNoMatch, true},
		{"condition next", condition, models.HandleNext, false},
		{"carousel items", carousel, models.HandleItems, true},
		{"carousel item has no outputs", item, models.HandleNext, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, r.AllowsHandle(tt.node, tt.handle))
		})
	}
}

func TestRegistry_ValidateRaw(t *testing.T) {
	r := NewDefaultRegistry(slog.Default())

	t.Run("valid payload", func(t *testing.T) {
		errs, err := r.ValidateRaw(models.NodeTypeSequence, json.RawMessage(`{"delay":5,"delayUnit":"minutes"}`))
		require.NoError(t, err)
		assert.Empty(t, errs)
	})

	t.Run("numbers are not coerced from strings", func(t *testing.T) {
		errs, err := r.ValidateRaw(models.NodeTypeSequence, json.RawMessage(`{"delay":"5","delayUnit":"minutes"}`))
		require.NoError(t, err)
		require.Len(t, errs, 1)
		assert.Equal(t, "delay", errs[0].Field)
	})

	t.Run("delay above a year of minutes", func(t *testing.T) {
		errs, err := r.ValidateRaw(models.NodeTypeSequence, json.RawMessage(`{"delay":525601,"delayUnit":"minutes"}`))
		require.NoError(t, err)
		require.Len(t, errs, 1)
		assert.Equal(t, "delay", errs[0].Field)
	})

	t.Run("foreign fields are rejected", func(t *testing.T) {
		errs, err := r.ValidateRaw(models.NodeTypeText, json.RawMessage(`{"content":"hi","imageUrl":"x"}`))
		require.NoError(t, err)
		assert.NotEmpty(t, errs)
	})

	t.Run("missing required field names the field", func(t *testing.T) {
		errs, err := r.ValidateRaw(models.NodeTypeText, json.RawMessage(`{}`))
		require.NoError(t, err)
		require.Len(t, errs, 1)
		assert.Equal(t, "content", errs[0].Field)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := r.ValidateRaw("bogus", json.RawMessage(`{}`))

		var unknown *models.UnknownNodeTypeError
		assert.ErrorAs(t, err, &unknown)
	})
}
