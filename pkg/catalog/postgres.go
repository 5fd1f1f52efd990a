package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool opens a pgx pool and checks the database answers.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	cfg.MaxConns = 10
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()

		return nil, fmt.Errorf("ping db: %w", err)
	}

	return pool, nil
}

// Postgres reads products from the storefront's products table.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Products(ctx context.Context, ids []string) ([]models.Product, error) {
	query := `
		SELECT id, name, price::float8, COALESCE(currency, ''), COALESCE(image_url, ''), COALESCE(url, '')
		FROM products
		WHERE id = ANY($1)
	`

	rows, err := p.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	found := make(map[string]models.Product, len(ids))

	for rows.Next() {
		var product models.Product
		if err := rows.Scan(
			&product.ID,
			&product.Name,
			&product.Price,
			&product.Currency,
			&product.ImageURL,
			&product.URL,
		); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}

		found[product.ID] = product
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}

	return ordered(ids, found)
}
