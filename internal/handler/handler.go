// Package handler exposes the storefront API over net/http with JSON
// request/response bodies.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/circuitshop/api/internal/domain/order"
	"github.com/circuitshop/api/internal/domain/product"
)

// InvoiceRenderer produces the invoice document for a persisted order.
type InvoiceRenderer interface {
	Render(ctx context.Context, orderID string) ([]byte, error)
}

// Handler implements the HTTP API, delegating business logic to the order
// service, the invoice renderer and the product repository.
type Handler struct {
	orders   *order.Service
	invoices InvoiceRenderer
	products product.Repository
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(orders *order.Service, invoices InvoiceRenderer, products product.Repository) *Handler {
	return &Handler{
		orders:   orders,
		invoices: invoices,
		products: products,
	}
}

// errorResponse is the JSON error envelope shared by all endpoints.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Code: status, Message: msg})
}

// respondStoreFailure logs the detailed error and returns a generic 500 so
// persistence internals never leak to callers.
func respondStoreFailure(w http.ResponseWriter, r *http.Request, what string, err error) {
	zctx.From(r.Context()).Error(what, zap.Error(err))
	respondError(w, http.StatusInternalServerError, "internal error")
}

// decodeJSON parses a request body into dst, rejecting unknown fields so
// malformed shapes fail before reaching the domain layer.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
