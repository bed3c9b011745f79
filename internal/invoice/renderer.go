// Package invoice renders persisted orders as paginated PDF documents.
//
// Rendering is a pure read-then-format operation: the same order and line
// items always produce byte-identical output, which makes responses safe to
// cache and snapshot-test.
package invoice

import (
	"bytes"
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"

	"github.com/circuitshop/api/internal/domain/order"
)

// A4 portrait geometry in points, with the layout constants the invoice
// uses. The cursor is measured from the page bottom and decreases as lines
// are emitted; a line that would land below bottomMargin starts a new page.
const (
	pageWidth  = 595.28
	pageHeight = 841.89

	leftMargin   = 50.0
	topCursor    = 800.0
	bottomMargin = 80.0

	lineGap = 6.0
)

const (
	fontFamily = "Helvetica"

	sizeTitle   = 18.0
	sizeBody    = 12.0
	sizeSection = 13.0
	sizeItem    = 11.0
	sizeTotal   = 14.0
)

// TotalMismatchError indicates that the total recomputed from the stored
// line items disagrees with the order's frozen total. This is a
// data-integrity failure and is surfaced, never silently repaired.
type TotalMismatchError struct {
	OrderID  string
	Stored   decimal.Decimal
	Computed decimal.Decimal
}

func (e *TotalMismatchError) Error() string {
	return fmt.Sprintf("order %s total mismatch: stored %s, computed %s from items",
		e.OrderID, e.Stored.StringFixed(2), e.Computed.StringFixed(2))
}

// Renderer produces invoice PDFs from persisted orders.
type Renderer struct {
	orders order.Repository
}

// NewRenderer creates a Renderer reading from the given order repository.
func NewRenderer(orders order.Repository) *Renderer {
	return &Renderer{orders: orders}
}

// Render fetches the order and its line items and produces the invoice
// document. It returns order.ErrNotFound when the order does not resolve or
// its items cannot be retrieved; an order with zero items is not renderable.
func (r *Renderer) Render(ctx context.Context, orderID string) ([]byte, error) {
	o, err := r.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	items, err := r.orders.ListItems(ctx, orderID)
	if err != nil {
		return nil, errors.Wrapf(order.ErrNotFound, "order %s items unreadable: %s", orderID, err)
	}
	if len(items) == 0 {
		return nil, errors.Wrapf(order.ErrNotFound, "order %s has no line items", orderID)
	}

	doc, err := buildDocument(o, items)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, errors.Wrapf(err, "write invoice for order %s", orderID)
	}
	return buf.Bytes(), nil
}

// page tracks the descending vertical cursor over a fixed-size page.
type page struct {
	pdf *fpdf.Fpdf
	y   float64
}

// line emits one text line at the given font size, breaking to a fresh page
// first when the cursor has descended below the bottom margin. The check
// runs per line so arbitrarily long item lists paginate correctly.
func (p *page) line(size float64, text string) {
	if p.y < bottomMargin {
		p.pdf.AddPage()
		p.y = topCursor
	}
	p.pdf.SetFont(fontFamily, "", size)
	// fpdf measures y from the page top; the cursor is kept from the bottom.
	p.pdf.Text(leftMargin, pageHeight-p.y, text)
	p.y -= size + lineGap
}

// gap moves the cursor down without emitting text.
func (p *page) gap(pts float64) {
	p.y -= pts
}

// buildDocument lays out the invoice. The total printed at the bottom is
// accumulated from the items being rendered and checked against the stored
// order total; a mismatch aborts rendering with TotalMismatchError.
func buildDocument(o *order.Order, items []order.Item) (*fpdf.Fpdf, error) {
	pdf := fpdf.New("P", "pt", "A4", "")
	// Pin document metadata dates to the order so output bytes are stable
	// across renders.
	created := o.CreatedAt.UTC()
	pdf.SetCreationDate(created)
	pdf.SetModificationDate(created)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	p := &page{pdf: pdf, y: topCursor}

	p.line(sizeTitle, "Circuit Shop - Invoice")
	p.gap(lineGap)

	p.line(sizeBody, "Order ID: "+o.ID)
	p.line(sizeBody, "Status: "+string(o.Status))
	p.line(sizeBody, "Date: "+created.Format("2006-01-02 15:04:05 UTC"))
	p.gap(10)

	p.line(sizeSection, "Shipping Details:")
	p.line(sizeBody, "Name: "+orDash(o.Shipping.Name))
	p.line(sizeBody, "Phone: "+orDash(o.Shipping.Phone))
	p.line(sizeBody, "Address: "+orDash(o.Shipping.Address))
	p.gap(10)

	p.line(sizeSection, "Items:")
	p.gap(4)

	total := decimal.Zero
	for _, it := range items {
		p.line(sizeItem, formatItemLine(it))
		total = total.Add(it.Subtotal())
	}
	total = total.Round(2)

	if !total.Equal(o.Total) {
		return nil, &TotalMismatchError{OrderID: o.ID, Stored: o.Total, Computed: total}
	}

	p.gap(10)
	p.line(sizeTotal, fmt.Sprintf("Total: %s %s", total.StringFixed(2), o.Currency))
	p.gap(10)
	p.line(sizeItem, "Thank you for your purchase!")

	if err := pdf.Error(); err != nil {
		return nil, errors.Wrap(err, "build invoice")
	}
	return pdf, nil
}

// formatItemLine renders one order line as
// "{title} x{qty} @ {unit price} = {line total}" with two fractional digits
// on all money values.
func formatItemLine(it order.Item) string {
	return fmt.Sprintf("%s x%d @ %s = %s",
		it.Title, it.Quantity, it.UnitPrice.StringFixed(2), it.Subtotal().StringFixed(2))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
