package bom

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository loads BOM reference data from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LoadAll reads every BOM entry. The result is consumed, never mutated,
// by stock operations.
func (r *Repository) LoadAll(ctx context.Context) ([]Entry, error) {
	if r == nil {
		return nil, errors.New("bom repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `
SELECT product_id, material_id, per_unit_qty
FROM bom_entries
ORDER BY product_id, material_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.ProductID, &entry.MaterialID, &entry.PerUnit); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// LoadForProducts reads BOM entries for a set of finished products.
func (r *Repository) LoadForProducts(ctx context.Context, productIDs []int64) ([]Entry, error) {
	if r == nil {
		return nil, errors.New("bom repository not initialised")
	}
	if len(productIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
SELECT product_id, material_id, per_unit_qty
FROM bom_entries
WHERE product_id = ANY($1)
ORDER BY product_id, material_id`, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.ProductID, &entry.MaterialID, &entry.PerUnit); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
