package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/circuitshop/api/internal/domain/order"
)

type lineRequest struct {
	ProductID string          `json:"productId"`
	Title     string          `json:"title"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
}

type shippingRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type createOrderRequest struct {
	Items    []lineRequest   `json:"items"`
	Shipping shippingRequest `json:"shipping"`
	Currency string          `json:"currency,omitempty"`
	UserID   string          `json:"userId,omitempty"`
}

type createOrderResponse struct {
	OrderID string `json:"orderId"`
}

// CreateOrder handles POST /api/orders: it converts the submitted cart
// snapshot into a durable order and returns the store-assigned id.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}

	lines := make([]order.LineRequest, len(req.Items))
	for i, it := range req.Items {
		lines[i] = order.LineRequest{
			ProductID: it.ProductID,
			Title:     it.Title,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		}
	}

	o, err := h.orders.CreateOrder(r.Context(), order.CreateOrderRequest{
		Lines: lines,
		Shipping: order.ShippingInfo{
			Name:    req.Shipping.Name,
			Phone:   req.Shipping.Phone,
			Address: req.Shipping.Address,
		},
		Currency:    req.Currency,
		SubmitterID: req.UserID,
	})
	if err != nil {
		if order.IsValidation(err) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondStoreFailure(w, r, "create order", err)
		return
	}

	respondJSON(w, http.StatusCreated, createOrderResponse{OrderID: o.ID})
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

// UpdateOrderStatus handles PATCH /api/admin/orders/{id}/status. Transitions
// outside the order lifecycle table are rejected with 409.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}

	next, err := order.ParseStatus(req.Status)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = h.orders.UpdateStatus(r.Context(), r.PathValue("id"), next)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, okResponse{OK: true})
	case errors.Is(err, order.ErrNotFound):
		respondError(w, http.StatusNotFound, "order not found")
	default:
		var trErr *order.InvalidTransitionError
		if errors.As(err, &trErr) {
			respondError(w, http.StatusConflict, trErr.Error())
			return
		}
		respondStoreFailure(w, r, "update order status", err)
	}
}
