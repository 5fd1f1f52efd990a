package catalog_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/chatflow/pkg/catalog"
	"github.com/dukex/chatflow/pkg/engine"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic_Products(t *testing.T) {
	static := catalog.NewStatic([]models.Product{
		{ID: "p1", Name: "Hat", Price: 10},
		{ID: "p2", Name: "Scarf", Price: 20},
	})

	products, err := static.Products(context.Background(), []string{"p2", "p1"})
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Scarf", products[0].Name)
	assert.Equal(t, "Hat", products[1].Name)

	_, err = static.Products(context.Background(), []string{"p1", "p9", "p8"})
	require.ErrorIs(t, err, engine.ErrProductNotFound)
	assert.Contains(t, err.Error(), "p9, p8")
}

func TestLoadStatic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"p1","name":"Hat","price":9.5,"currency":"EUR"}]`), 0600))

	static, err := catalog.LoadStatic(path)
	require.NoError(t, err)

	products, err := static.Products(context.Background(), []string{"p1"})
	require.NoError(t, err)
	assert.Equal(t, 9.5, products[0].Price)
	assert.Equal(t, "EUR", products[0].Currency)

	_, err = catalog.LoadStatic(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
