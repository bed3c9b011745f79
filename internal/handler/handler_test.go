package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/circuitshop/api/internal/domain/auth"
	"github.com/circuitshop/api/internal/domain/order"
	"github.com/circuitshop/api/internal/domain/product"
)

// --- stubs ---

type stubOrderRepo struct {
	stored    *order.Order
	items     []order.Item
	createErr error
	updated   order.Status
}

func (s *stubOrderRepo) Create(_ context.Context, o *order.Order, items []order.Item) error {
	if s.createErr != nil {
		return s.createErr
	}
	o.ID = "11111111-1111-1111-1111-111111111111"
	o.CreatedAt = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	s.stored = o
	s.items = items
	return nil
}

func (s *stubOrderRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
	if s.stored == nil || s.stored.ID != id {
		return nil, order.ErrNotFound
	}
	cp := *s.stored
	return &cp, nil
}

func (s *stubOrderRepo) ListItems(_ context.Context, orderID string) ([]order.Item, error) {
	if s.stored == nil || s.stored.ID != orderID {
		return nil, order.ErrNotFound
	}
	return s.items, nil
}

func (s *stubOrderRepo) UpdateStatus(_ context.Context, id string, status order.Status) error {
	if s.stored == nil || s.stored.ID != id {
		return order.ErrNotFound
	}
	s.updated = status
	return nil
}

type stubRenderer struct {
	doc []byte
	err error
}

func (s *stubRenderer) Render(context.Context, string) ([]byte, error) {
	return s.doc, s.err
}

type stubProductRepo struct {
	products []product.Product
	err      error
}

func (s *stubProductRepo) ListActive(context.Context) ([]product.Product, error) {
	return s.products, s.err
}

func (s *stubProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	for _, p := range s.products {
		if p.ID == id {
			cp := p
			return &cp, nil
		}
	}
	return nil, product.ErrNotFound
}

func (s *stubProductRepo) Create(_ context.Context, p *product.Product) error {
	if s.err != nil {
		return s.err
	}
	p.ID = "22222222-2222-2222-2222-222222222222"
	p.CreatedAt = time.Now()
	s.products = append(s.products, *p)
	return nil
}

func (s *stubProductRepo) Update(_ context.Context, id string, upd product.Update) (*product.Product, error) {
	for i := range s.products {
		if s.products[i].ID == id {
			if upd.Title != nil {
				s.products[i].Title = *upd.Title
			}
			if upd.Price != nil {
				s.products[i].Price = *upd.Price
			}
			cp := s.products[i]
			return &cp, nil
		}
	}
	return nil, product.ErrNotFound
}

func (s *stubProductRepo) Delete(_ context.Context, id string) error {
	for i := range s.products {
		if s.products[i].ID == id {
			s.products = append(s.products[:i], s.products[i+1:]...)
			return nil
		}
	}
	return product.ErrNotFound
}

type stubKeyRepo struct {
	keys map[string]*auth.APIKeyInfo
}

func (s *stubKeyRepo) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	if info, ok := s.keys[hash]; ok {
		return info, nil
	}
	return nil, errors.New("api key not found")
}

// --- harness ---

type fixture struct {
	orders   *stubOrderRepo
	products *stubProductRepo
	renderer *stubRenderer
	mux      *http.ServeMux
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		orders:   &stubOrderRepo{},
		products: &stubProductRepo{},
		renderer: &stubRenderer{doc: []byte("%PDF-1.3 stub")},
	}

	h := NewHandler(order.NewService(f.orders), f.renderer, f.products)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("GET /api/products/{id}", h.GetProduct)
	mux.HandleFunc("POST /api/orders", h.CreateOrder)
	mux.HandleFunc("GET /api/orders/{id}/invoice", h.GetInvoice)
	mux.HandleFunc("POST /api/admin/products", h.CreateProduct)
	mux.HandleFunc("PATCH /api/admin/products/{id}", h.UpdateProduct)
	mux.HandleFunc("DELETE /api/admin/products/{id}", h.DeleteProduct)
	mux.HandleFunc("PATCH /api/admin/orders/{id}/status", h.UpdateOrderStatus)
	f.mux = mux
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

const validOrderBody = `{
	"items": [
		{"productId": "uno-r3", "title": "Arduino Uno R3", "unitPrice": "12.50", "quantity": 2},
		{"productId": "dht22", "title": "DHT22 Sensor", "unitPrice": "3.25", "quantity": 3}
	],
	"shipping": {"name": "Ada Lovelace", "phone": "+44 20 7946 0958", "address": "12 St James Sq, London"}
}`

// --- orders ---

func TestCreateOrder_Created(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/orders", validOrderBody)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"orderId":"11111111-1111-1111-1111-111111111111"}`, rec.Body.String())
	require.NotNil(t, f.orders.stored)
	assert.Equal(t, "34.75", f.orders.stored.Total.StringFixed(2))
	assert.Equal(t, order.StatusPending, f.orders.stored.Status)
	assert.Len(t, f.orders.items, 2)
}

func TestCreateOrder_EmptyCart(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/orders",
		`{"items": [], "shipping": {"name": "A", "phone": "1", "address": "B"}}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":400`)
}

func TestCreateOrder_UnknownField(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/orders", `{"cart": []}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateOrder_InvalidQuantity(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/orders", `{
		"items": [{"productId": "uno-r3", "title": "Uno", "unitPrice": "12.50", "quantity": 0}],
		"shipping": {"name": "A", "phone": "1", "address": "B"}
	}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "quantity")
}

func TestCreateOrder_StoreFailure(t *testing.T) {
	f := newFixture(t)
	f.orders.createErr = errors.New("connection refused")

	rec := f.do(t, http.MethodPost, "/api/orders", validOrderBody)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	// Persistence detail must not leak.
	assert.NotContains(t, rec.Body.String(), "connection refused")
	assert.Contains(t, rec.Body.String(), "internal error")
}

func TestUpdateOrderStatus_Legal(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/orders", validOrderBody)

	rec := f.do(t, http.MethodPatch,
		"/api/admin/orders/11111111-1111-1111-1111-111111111111/status",
		`{"status": "paid"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, order.StatusPaid, f.orders.updated)
}

func TestUpdateOrderStatus_Illegal(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/orders", validOrderBody)

	rec := f.do(t, http.MethodPatch,
		"/api/admin/orders/11111111-1111-1111-1111-111111111111/status",
		`{"status": "completed"}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdateOrderStatus_UnknownStatus(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPatch,
		"/api/admin/orders/11111111-1111-1111-1111-111111111111/status",
		`{"status": "teleported"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateOrderStatus_NotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPatch,
		"/api/admin/orders/99999999-9999-9999-9999-999999999999/status",
		`{"status": "paid"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- invoices ---

func TestGetInvoice_OK(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/orders/abc/invoice", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="invoice-abc.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.3 stub", rec.Body.String())
}

func TestGetInvoice_NotFound(t *testing.T) {
	f := newFixture(t)
	f.renderer.doc = nil
	f.renderer.err = errors.Wrap(order.ErrNotFound, "load order")

	rec := f.do(t, http.MethodGet, "/api/orders/abc/invoice", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "order not found")
}

func TestGetInvoice_RenderFailure(t *testing.T) {
	f := newFixture(t)
	f.renderer.doc = nil
	f.renderer.err = errors.New("stored total 1.00 does not match computed 2.00")

	rec := f.do(t, http.MethodGet, "/api/orders/abc/invoice", "")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal error")
}

// --- products ---

func TestListProducts(t *testing.T) {
	f := newFixture(t)
	f.products.products = []product.Product{
		{ID: "p1", Title: "ESP32 DevKit", Price: decimal.RequireFromString("8.90"), Stock: 4, IsActive: true},
	}

	rec := f.do(t, http.MethodGet, "/api/products", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ESP32 DevKit")
	assert.Contains(t, rec.Body.String(), `"price":"8.9"`)
}

func TestGetProduct_NotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/products/nope", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- admin products ---

func TestCreateProduct(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/admin/products",
		`{"sku": "pico-w", "title": "Raspberry Pi Pico W", "price": "6.50", "stock": 25}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "22222222-2222-2222-2222-222222222222")
	assert.Contains(t, rec.Body.String(), `"isActive":true`)
}

func TestCreateProduct_MissingTitle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/admin/products", `{"price": "6.50"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateProduct_NegativePrice(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/admin/products", `{"title": "X", "price": "-1"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateProduct_Partial(t *testing.T) {
	f := newFixture(t)
	f.products.products = []product.Product{
		{ID: "p1", Title: "Old", Price: decimal.RequireFromString("1.00"), IsActive: true},
	}

	rec := f.do(t, http.MethodPatch, "/api/admin/products/p1", `{"title": "New"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"New"`)
	assert.Equal(t, "New", f.products.products[0].Title)
	assert.Equal(t, "1.00", f.products.products[0].Price.StringFixed(2))
}

func TestDeleteProduct(t *testing.T) {
	f := newFixture(t)
	f.products.products = []product.Product{{ID: "p1", Title: "X"}}

	rec := f.do(t, http.MethodDelete, "/api/admin/products/p1", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.products.products)

	rec = f.do(t, http.MethodDelete, "/api/admin/products/p1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- api key auth ---

func TestAPIKeyAuth(t *testing.T) {
	pepper := []byte("test-pepper")
	key := "super-secret-key"

	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	hash := hex.EncodeToString(mac.Sum(nil))

	repo := &stubKeyRepo{keys: map[string]*auth.APIKeyInfo{
		hash: {ID: "k1", KeyHash: hash, Name: "test", Scopes: []string{"admin"}},
	}}

	protected := NewAPIKeyAuth(repo, pepper).Middleware()(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}),
	)

	t.Run("missing key", func(t *testing.T) {
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("api_key", "not-the-key")
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("api_key", key)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}
