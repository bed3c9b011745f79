package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/circuitshop/api/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders (user_id, status, total, currency, shipping_address)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	getOrderSQL = `SELECT id, COALESCE(user_id, ''), status, total, currency, shipping_address, created_at
		FROM orders WHERE id = $1`

	listOrderItemsSQL = `SELECT order_id, product_id, qty, price_each, title_snapshot
		FROM order_items WHERE order_id = $1 ORDER BY id`

	updateOrderStatusSQL = `UPDATE orders SET status = $2 WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order row and all item rows in one transaction, so a
// failed item write can never leave an order without its lines. The
// store-assigned id and creation time are written back into o.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order, items []order.Item) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin order transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var userID *string
	if o.UserID != "" {
		userID = &o.UserID
	}

	err = tx.QueryRow(ctx, insertOrderSQL,
		userID, string(o.Status), o.Total, o.Currency, o.Shipping,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting order: %w", err)
	}

	rows := make([][]any, len(items))
	for i, it := range items {
		rows[i] = []any{o.ID, it.ProductID, it.Quantity, it.UnitPrice, it.Title}
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"order_items"},
		[]string{"order_id", "product_id", "qty", "price_each", "title_snapshot"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("inserting order items for %q: %w", o.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns a single order. Malformed ids are reported as not found
// rather than as a database error.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, order.ErrNotFound
	}

	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// ListItems returns the order's line items in insertion order.
func (r *OrderRepository) ListItems(ctx context.Context, orderID string) ([]order.Item, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, order.ErrNotFound
	}

	rows, err := r.pool.Query(ctx, listOrderItemsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing items for order %q: %w", orderID, err)
	}
	return pgx.CollectRows(rows, scanOrderItem)
}

// UpdateStatus sets only the status column; totals and item snapshots are
// never written after creation.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status) error {
	if _, err := uuid.Parse(id); err != nil {
		return order.ErrNotFound
	}

	ct, err := r.pool.Exec(ctx, updateOrderStatusSQL, id, string(status))
	if err != nil {
		return fmt.Errorf("updating status of order %q: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(&o.ID, &o.UserID, &status, &o.Total, &o.Currency, &o.Shipping, &o.CreatedAt)
	o.Status = order.Status(status)
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var it order.Item
	err := row.Scan(&it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.Title)
	return it, err
}
