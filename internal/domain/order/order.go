package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when an order does not exist or has no readable
// line items.
var ErrNotFound = errors.New("order not found")

// ShippingInfo is the delivery contact block embedded in an order. It is
// immutable once the order is created.
type ShippingInfo struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// Order is a finalized checkout. Total is computed exactly once, at creation,
// from the line items that accompany it; no later code path recomputes it.
type Order struct {
	ID        string
	UserID    string
	Status    Status
	Total     decimal.Decimal
	Currency  string
	Shipping  ShippingInfo
	CreatedAt time.Time
}

// Item is a single order line. Title and UnitPrice are snapshots captured at
// checkout so that later catalog edits never alter historical orders or
// their invoices.
type Item struct {
	OrderID   string
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
	Title     string
}

// Subtotal returns UnitPrice x Quantity.
func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Repository defines persistence operations for orders and their items.
//
// Create must persist the order and all items atomically, filling in the
// store-assigned ID and CreatedAt on the order. Items must be returned by
// ListItems in insertion order so invoice rendering stays deterministic.
type Repository interface {
	Create(ctx context.Context, o *Order, items []Item) error
	GetByID(ctx context.Context, id string) (*Order, error)
	ListItems(ctx context.Context, orderID string) ([]Item, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
}
