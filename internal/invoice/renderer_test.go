package invoice

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/circuitshop/api/internal/domain/order"
)

// --- Mock repository ---

type mockOrderRepo struct {
	orders   map[string]*order.Order
	items    map[string][]order.Item
	itemsErr error
}

func (m *mockOrderRepo) Create(_ context.Context, _ *order.Order, _ []order.Item) error {
	return errors.New("not implemented")
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (m *mockOrderRepo) ListItems(_ context.Context, orderID string) ([]order.Item, error) {
	if m.itemsErr != nil {
		return nil, m.itemsErr
	}
	return m.items[orderID], nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, _ string, _ order.Status) error {
	return errors.New("not implemented")
}

// --- Helpers ---

func testOrder(id string, total string) *order.Order {
	return &order.Order{
		ID:       id,
		Status:   order.StatusPending,
		Total:    decimal.RequireFromString(total),
		Currency: "USD",
		Shipping: order.ShippingInfo{
			Name:    "Ada Lovelace",
			Phone:   "+1 555 0100",
			Address: "12 Relay Street",
		},
		CreatedAt: time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC),
	}
}

func item(orderID, title, price string, qty int) order.Item {
	return order.Item{
		OrderID:   orderID,
		ProductID: "p-" + title,
		Quantity:  qty,
		UnitPrice: decimal.RequireFromString(price),
		Title:     title,
	}
}

func repoWith(o *order.Order, items ...order.Item) *mockOrderRepo {
	return &mockOrderRepo{
		orders: map[string]*order.Order{o.ID: o},
		items:  map[string][]order.Item{o.ID: items},
	}
}

// --- Tests ---

func TestRender_ProducesPDF(t *testing.T) {
	o := testOrder("ord-1", "34.75")
	r := NewRenderer(repoWith(o,
		item("ord-1", "Uno R3", "12.50", 2),
		item("ord-1", "DHT22", "3.25", 3),
	))

	out, err := r.Render(context.Background(), "ord-1")
	require.NoError(t, err)
	require.NotEmpty(t, out)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")), "output must be a PDF document")
}

func TestRender_Deterministic(t *testing.T) {
	o := testOrder("ord-1", "34.75")
	r := NewRenderer(repoWith(o,
		item("ord-1", "Uno R3", "12.50", 2),
		item("ord-1", "DHT22", "3.25", 3),
	))

	first, err := r.Render(context.Background(), "ord-1")
	require.NoError(t, err)
	second, err := r.Render(context.Background(), "ord-1")
	require.NoError(t, err)

	assert.True(t, bytes.Equal(first, second), "renders of an unchanged order must be byte-identical")
}

func TestRender_UnknownOrder(t *testing.T) {
	r := NewRenderer(&mockOrderRepo{orders: map[string]*order.Order{}})

	out, err := r.Render(context.Background(), "missing")
	require.ErrorIs(t, err, order.ErrNotFound)
	assert.Nil(t, out)
}

func TestRender_NoItems(t *testing.T) {
	o := testOrder("ord-1", "0.00")
	r := NewRenderer(repoWith(o))

	_, err := r.Render(context.Background(), "ord-1")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestRender_ItemsUnreadable(t *testing.T) {
	o := testOrder("ord-1", "34.75")
	repo := repoWith(o, item("ord-1", "Uno R3", "12.50", 2))
	repo.itemsErr = errors.New("connection reset")
	r := NewRenderer(repo)

	_, err := r.Render(context.Background(), "ord-1")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestRender_TotalMismatch(t *testing.T) {
	o := testOrder("ord-1", "99.99") // stored total disagrees with the items
	r := NewRenderer(repoWith(o, item("ord-1", "Uno R3", "12.50", 2)))

	_, err := r.Render(context.Background(), "ord-1")

	var mismatch *TotalMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "ord-1", mismatch.OrderID)
	assert.True(t, decimal.RequireFromString("25.00").Equal(mismatch.Computed))
}

func TestBuildDocument_Pagination(t *testing.T) {
	const n = 120

	items := make([]order.Item, n)
	total := decimal.Zero
	for i := range items {
		items[i] = item("ord-1", "Resistor 10k", "0.10", 1)
		total = total.Add(items[i].Subtotal())
	}
	o := testOrder("ord-1", total.StringFixed(2))

	doc, err := buildDocument(o, items)
	require.NoError(t, err)
	assert.Greater(t, doc.PageCount(), 1, "long carts must overflow to additional pages")
}

func TestBuildDocument_SinglePage(t *testing.T) {
	o := testOrder("ord-1", "25.00")
	doc, err := buildDocument(o, []order.Item{item("ord-1", "Uno R3", "12.50", 2)})
	require.NoError(t, err)
	assert.Equal(t, 1, doc.PageCount())
}

func TestFormatItemLine(t *testing.T) {
	assert.Equal(t, "Uno R3 x2 @ 12.50 = 25.00",
		formatItemLine(item("ord-1", "Uno R3", "12.50", 2)))
	assert.Equal(t, "DHT22 x3 @ 3.25 = 9.75",
		formatItemLine(item("ord-1", "DHT22", "3.25", 3)))
}
