package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"

	"github.com/circuitshop/api/internal/domain/order"
)

// GetInvoice handles GET /api/orders/{id}/invoice. The renderer is pure and
// deterministic, so the response carries the document bytes directly with a
// download filename derived from the order id.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")

	doc, err := h.invoices.Render(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			respondError(w, http.StatusNotFound, "order not found")
			return
		}
		// Covers both store failures and total-mismatch integrity errors.
		respondStoreFailure(w, r, "render invoice", err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "invoice-"+orderID+".pdf"))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}
