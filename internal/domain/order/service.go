package order

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when the checkout request carries no currency code.
const DefaultCurrency = "USD"

// ErrEmptyCart is returned when a checkout request contains no lines.
var ErrEmptyCart = errors.New("empty cart")

// LineRequest is one untrusted cart entry submitted at checkout. Title and
// UnitPrice are client-asserted snapshots of the product at cart time; the
// ledger freezes them as-is rather than re-pricing from the live catalog
// (price lock at cart time).
type LineRequest struct {
	ProductID string
	Title     string
	UnitPrice decimal.Decimal
	Quantity  int
}

// InvalidLineError indicates a malformed cart line.
type InvalidLineError struct {
	Index  int
	Reason string
}

func (e *InvalidLineError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Index, e.Reason)
}

// InvalidShippingError indicates a missing shipping field.
type InvalidShippingError struct {
	Field string
}

func (e *InvalidShippingError) Error() string {
	return fmt.Sprintf("shipping %s is required", e.Field)
}

// IsValidation reports whether err stems from bad caller input, as opposed
// to a store failure.
func IsValidation(err error) bool {
	var (
		lineErr *InvalidLineError
		shipErr *InvalidShippingError
	)
	return errors.Is(err, ErrEmptyCart) || errors.As(err, &lineErr) || errors.As(err, &shipErr)
}

// CreateOrderRequest holds the input for finalizing a checkout.
type CreateOrderRequest struct {
	Lines    []LineRequest
	Shipping ShippingInfo
	// Currency defaults to DefaultCurrency when empty.
	Currency string
	// SubmitterID optionally associates the order with an identity.
	// Anonymous checkout is permitted.
	SubmitterID string
}

// Service is the order ledger: it converts a validated cart snapshot into a
// durable Order plus its line items in one transaction.
type Service struct {
	orders Repository
}

// NewService creates an order Service backed by the given repository.
func NewService(orders Repository) *Service {
	return &Service{orders: orders}
}

// CreateOrder validates the cart, computes the total with decimal arithmetic,
// and persists the order together with its item snapshots atomically. The
// total is frozen here and never recomputed from the catalog.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if len(req.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	if err := validateShipping(req.Shipping); err != nil {
		return nil, err
	}

	items := make([]Item, len(req.Lines))
	total := decimal.Zero
	for i, line := range req.Lines {
		if line.Quantity < 1 {
			return nil, &InvalidLineError{Index: i, Reason: "quantity must be a positive integer"}
		}
		if line.UnitPrice.IsNegative() {
			return nil, &InvalidLineError{Index: i, Reason: "unit price must not be negative"}
		}
		// Snapshots persist as two-decimal money; a sub-cent price would
		// freeze a total the stored items can never recompute to.
		if !line.UnitPrice.Equal(line.UnitPrice.Round(2)) {
			return nil, &InvalidLineError{Index: i, Reason: "unit price must have at most two decimal places"}
		}
		if strings.TrimSpace(line.ProductID) == "" {
			return nil, &InvalidLineError{Index: i, Reason: "product id is required"}
		}

		items[i] = Item{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Title:     line.Title,
		}
		total = total.Add(items[i].Subtotal())
	}

	currency := req.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	o := &Order{
		UserID:   req.SubmitterID,
		Status:   StatusPending,
		Total:    total.Round(2),
		Currency: currency,
		Shipping: req.Shipping,
	}
	if err := s.orders.Create(ctx, o, items); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	return o, nil
}

// UpdateStatus moves an order to the next lifecycle state, rejecting
// transitions not named in the transition table. It never touches the
// order's total or item snapshots.
func (s *Service) UpdateStatus(ctx context.Context, id string, next Status) error {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !o.Status.CanTransitionTo(next) {
		return &InvalidTransitionError{From: o.Status, To: next}
	}
	if err := s.orders.UpdateStatus(ctx, id, next); err != nil {
		return errors.Wrapf(err, "update order %s status", id)
	}
	return nil
}

func validateShipping(s ShippingInfo) error {
	if strings.TrimSpace(s.Name) == "" {
		return &InvalidShippingError{Field: "name"}
	}
	if strings.TrimSpace(s.Phone) == "" {
		return &InvalidShippingError{Field: "phone"}
	}
	if strings.TrimSpace(s.Address) == "" {
		return &InvalidShippingError{Field: "address"}
	}
	return nil
}
