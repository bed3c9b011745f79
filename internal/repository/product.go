package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/circuitshop/api/internal/domain/product"
)

const (
	productColumns = `id, COALESCE(sku, ''), title, COALESCE(description, ''), price, stock,
		COALESCE(category, ''), COALESCE(image_url, ''), is_active, created_at`

	listActiveProductsSQL = `SELECT ` + productColumns + `
		FROM products WHERE is_active ORDER BY created_at DESC, id`

	getProductByIDSQL = `SELECT ` + productColumns + `
		FROM products WHERE id = $1`

	insertProductSQL = `INSERT INTO products (sku, title, description, price, stock, category, image_url, is_active)
		VALUES (NULLIF($1, ''), $2, NULLIF($3, ''), $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8)
		RETURNING id, created_at`

	updateProductSQL = `UPDATE products SET
		title       = COALESCE($2, title),
		description = COALESCE($3, description),
		price       = COALESCE($4, price),
		stock       = COALESCE($5, stock),
		category    = COALESCE($6, category),
		image_url   = COALESCE($7, image_url),
		is_active   = COALESCE($8, is_active)
		WHERE id = $1
		RETURNING ` + productColumns

	deleteProductSQL = `DELETE FROM products WHERE id = $1`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// ListActive returns active catalog entries, newest first.
func (r *ProductRepository) ListActive(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listActiveProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, product.ErrNotFound
	}

	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// Create inserts a catalog entry, writing the generated id and creation
// time back into p.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	err := r.pool.QueryRow(ctx, insertProductSQL,
		p.SKU, p.Title, p.Description, p.Price, p.Stock, p.Category, p.ImageURL, p.IsActive,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting product %q: %w", p.Title, err)
	}
	return nil
}

// Update applies a partial edit; nil fields keep their stored value.
func (r *ProductRepository) Update(ctx context.Context, id string, upd product.Update) (*product.Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, product.ErrNotFound
	}

	rows, err := r.pool.Query(ctx, updateProductSQL, id,
		upd.Title, upd.Description, upd.Price, upd.Stock, upd.Category, upd.ImageURL, upd.IsActive,
	)
	if err != nil {
		return nil, fmt.Errorf("updating product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("updating product %q: %w", id, err)
	}
	return &p, nil
}

// Delete removes a catalog entry. Historical order items keep their
// snapshots and are unaffected.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return product.ErrNotFound
	}

	ct, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return fmt.Errorf("deleting product %q: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.SKU, &p.Title, &p.Description, &p.Price, &p.Stock,
		&p.Category, &p.ImageURL, &p.IsActive, &p.CreatedAt,
	)
	return p, err
}
