// Package catalog resolves the product ids referenced by product nodes.
package catalog

import (
	"fmt"
	"strings"

	"github.com/dukex/chatflow/pkg/engine"
	"github.com/dukex/chatflow/pkg/models"
)

// ordered returns the products in the order of ids. Any id without a product
// fails the whole lookup.
func ordered(ids []string, found map[string]models.Product) ([]models.Product, error) {
	products := make([]models.Product, 0, len(ids))

	var missing []string

	for _, id := range ids {
		product, ok := found[id]
		if !ok {
			missing = append(missing, id)

			continue
		}

		products = append(products, product)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", engine.ErrProductNotFound, strings.Join(missing, ", "))
	}

	return products, nil
}
