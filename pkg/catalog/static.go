package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dukex/chatflow/pkg/models"
)

// Static serves products from memory. It backs local runs and tests.
type Static struct {
	products map[string]models.Product
}

func NewStatic(products []models.Product) *Static {
	byID := make(map[string]models.Product, len(products))
	for _, product := range products {
		byID[product.ID] = product
	}

	return &Static{products: byID}
}

// LoadStatic reads a JSON array of products.
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}

	var products []models.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("failed to decode catalog %s: %w", path, err)
	}

	return NewStatic(products), nil
}

func (s *Static) Products(_ context.Context, ids []string) ([]models.Product, error) {
	return ordered(ids, s.products)
}
