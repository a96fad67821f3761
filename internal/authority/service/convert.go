package service

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	authoritydomain "github.com/DikshantJangra/hoperxpharma-sub011/internal/authority/domain"
	podomain "github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/domain"
	taxdomain "github.com/DikshantJangra/hoperxpharma-sub011/internal/tax/domain"
	taxservice "github.com/DikshantJangra/hoperxpharma-sub011/internal/tax/service"
)

// orderContent is a verified payload ready to be stored.
type orderContent struct {
	supplierID   string
	supplierName string
	items        datatypes.JSON
	totals       taxdomain.Totals
	breakdown    datatypes.JSON
	delivery     *time.Time
	paymentTerms string
	notes        string
}

// normalizePayload checks every line and that the submitted totals match
// the server-side computation.
func normalizePayload(payload podomain.OrderPayload) (orderContent, error) {
	lines, err := podomain.LinesFromPayload(payload.Lines)
	if err != nil {
		return orderContent{}, fmt.Errorf("%w: %v", authoritydomain.ErrInvalidRequest, err)
	}

	taxables := make([]taxdomain.Taxable, 0, len(lines))
	for _, line := range lines {
		taxables = append(taxables, line.Taxable())
	}
	totals, err := taxservice.ComputeTotals(taxables)
	if err != nil {
		return orderContent{}, fmt.Errorf("%w: %v", authoritydomain.ErrInvalidRequest, err)
	}
	if err := checkTotals(payload, totals); err != nil {
		return orderContent{}, err
	}

	items, err := json.Marshal(podomain.LinePayloads(lines))
	if err != nil {
		return orderContent{}, err
	}
	breakdown, err := json.Marshal(totals.Breakdown)
	if err != nil {
		return orderContent{}, err
	}

	content := orderContent{
		supplierID:   strings.TrimSpace(payload.SupplierID),
		supplierName: strings.TrimSpace(payload.SupplierName),
		items:        datatypes.JSON(items),
		totals:       totals,
		breakdown:    datatypes.JSON(breakdown),
		paymentTerms: strings.TrimSpace(payload.PaymentTerms),
		notes:        payload.Notes,
	}
	if payload.ExpectedDeliveryDate != nil {
		d := payload.ExpectedDeliveryDate.UTC()
		content.delivery = &d
	}
	return content, nil
}

func checkTotals(payload podomain.OrderPayload, computed taxdomain.Totals) error {
	mismatch := func(field string, got, want decimal.Decimal) error {
		return fmt.Errorf("%w: %s is %s, expected %s", authoritydomain.ErrTotalsMismatch, field, got, want)
	}
	if !payload.Subtotal.Equal(computed.Subtotal) {
		return mismatch("subtotal", payload.Subtotal, computed.Subtotal)
	}
	if !payload.TaxAmount.Equal(computed.TaxAmount()) {
		return mismatch("tax_amount", payload.TaxAmount, computed.TaxAmount())
	}
	if !payload.Total.Equal(computed.Total) {
		return mismatch("total", payload.Total, computed.Total)
	}
	if len(payload.TaxBreakdown) > 0 {
		submitted := taxdomain.Totals{Subtotal: payload.Subtotal, Total: payload.Total, Breakdown: payload.TaxBreakdown}
		if !submitted.Equal(computed) {
			return fmt.Errorf("%w: tax_breakdown", authoritydomain.ErrTotalsMismatch)
		}
	}
	return nil
}

func (c orderContent) applyTo(order *authoritydomain.Order) {
	order.SupplierID = c.supplierID
	order.SupplierName = c.supplierName
	order.Items = c.items
	order.Subtotal = c.totals.Subtotal
	order.TaxAmount = c.totals.TaxAmount()
	order.Total = c.totals.Total
	order.TaxBreakdown = c.breakdown
	order.ExpectedDeliveryDate = c.delivery
	order.PaymentTerms = c.paymentTerms
	order.Notes = c.notes
}

func toRemoteOrder(order *authoritydomain.Order) (podomain.RemoteOrder, error) {
	var items []podomain.OrderLinePayload
	if len(order.Items) > 0 {
		if err := json.Unmarshal(order.Items, &items); err != nil {
			return podomain.RemoteOrder{}, fmt.Errorf("decode items of order %s: %w", order.ID, err)
		}
	}
	if items == nil {
		items = []podomain.OrderLinePayload{}
	}
	return podomain.RemoteOrder{
		ID:           order.ID.String(),
		Number:       order.Number,
		Version:      order.Version,
		Status:       order.Status,
		StoreID:      order.StoreID,
		SupplierID:   order.SupplierID,
		SupplierName: order.SupplierName,
		Lines:        items,
		Meta: podomain.Meta{
			ExpectedDeliveryDate: order.ExpectedDeliveryDate,
			PaymentTerms:         order.PaymentTerms,
			Notes:                order.Notes,
		},
	}, nil
}
