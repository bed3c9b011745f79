package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase. Orders copy the
// title and price into snapshots at checkout, so edits here never affect
// existing orders.
type Product struct {
	ID          string
	SKU         string
	Title       string
	Description string
	Price       decimal.Decimal
	Stock       int
	Category    string
	ImageURL    string
	IsActive    bool
	CreatedAt   time.Time
}

// Update describes a partial catalog edit. Nil fields are left unchanged.
type Update struct {
	Title       *string
	Description *string
	Price       *decimal.Decimal
	Stock       *int
	Category    *string
	ImageURL    *string
	IsActive    *bool
}

// Repository defines persistence operations for the product catalog.
type Repository interface {
	// ListActive returns active products, newest first.
	ListActive(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, id string, upd Update) (*Product, error)
	Delete(ctx context.Context, id string) error
}
