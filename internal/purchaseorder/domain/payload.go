package domain

import (
	"time"

	taxdomain "github.com/DikshantJangra/hoperxpharma-sub011/internal/tax/domain"
	taxservice "github.com/DikshantJangra/hoperxpharma-sub011/internal/tax/service"
	"github.com/shopspring/decimal"
)

// OrderLinePayload is a line as sent to the authority.
type OrderLinePayload struct {
	LineID          string          `json:"line_id,omitempty"`
	CatalogRef      string          `json:"drug_id"`
	Description     string          `json:"description,omitempty"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxRate         taxdomain.Rate  `json:"tax_rate"`
	LineNet         decimal.Decimal `json:"line_net"`
}

// OrderPayload is the full-document body of create, update and autosave.
type OrderPayload struct {
	StoreID              string                     `json:"store_id"`
	SupplierID           string                     `json:"supplier_id,omitempty"`
	SupplierName         string                     `json:"supplier_name,omitempty"`
	Lines                []OrderLinePayload         `json:"items"`
	Subtotal             decimal.Decimal            `json:"subtotal"`
	TaxAmount            decimal.Decimal            `json:"tax_amount"`
	Total                decimal.Decimal            `json:"total"`
	TaxBreakdown         []taxdomain.BreakdownEntry `json:"tax_breakdown"`
	ExpectedDeliveryDate *time.Time                 `json:"expected_delivery_date,omitempty"`
	PaymentTerms         string                     `json:"payment_terms,omitempty"`
	Notes                string                     `json:"notes,omitempty"`
	Version              *int64                     `json:"version,omitempty"`
}

// WriteResult is the authority's answer to create and update.
type WriteResult struct {
	ID      string `json:"id"`
	Number  string `json:"po_number"`
	Version int64  `json:"version"`
	Status  Status `json:"status,omitempty"`
}

// AutosaveResult is the authority's answer to autosave.
type AutosaveResult struct {
	Version int64 `json:"version"`
}

// RemoteOrder is an order as stored by the authority.
type RemoteOrder struct {
	ID           string             `json:"id"`
	Number       string             `json:"po_number"`
	Version      int64              `json:"version"`
	Status       Status             `json:"status"`
	StoreID      string             `json:"store_id"`
	SupplierID   string             `json:"supplier_id,omitempty"`
	SupplierName string             `json:"supplier_name,omitempty"`
	Lines        []OrderLinePayload `json:"items"`
	Meta         Meta               `json:"meta"`
}

// SendRequest selects how the authority dispatches the order.
type SendRequest struct {
	Channel string `json:"channel"`
	Format  string `json:"format"`
}

// ApprovalRequest names who must approve the order.
type ApprovalRequest struct {
	Approvers []string `json:"approvers"`
	Note      string   `json:"note,omitempty"`
}

// TransitionResult is the authority's answer to send and request-approval.
type TransitionResult struct {
	Status  Status `json:"status"`
	Version int64  `json:"version"`
}

// SuggestionQuery scopes suggestion lookups.
type SuggestionQuery struct {
	StoreID    string
	SupplierID string
}

// Suggestion is an advisory line proposed by the authority.
type Suggestion struct {
	CatalogRef  string          `json:"drug_id"`
	Description string          `json:"name"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxRate     taxdomain.Rate  `json:"tax_rate"`
	Reason      string          `json:"reason,omitempty"`
}

// TemplateRequest persists the current document shape as a template.
type TemplateRequest struct {
	Name         string             `json:"name"`
	Description  string             `json:"description,omitempty"`
	StoreID      string             `json:"store_id"`
	SupplierID   string             `json:"supplier_id,omitempty"`
	SupplierName string             `json:"supplier_name,omitempty"`
	Lines        []OrderLinePayload `json:"items"`
}

// TemplateResult identifies a stored template.
type TemplateResult struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
}

// TemplateBody is a template materialized for a fresh document.
type TemplateBody struct {
	SupplierID   string             `json:"supplier_id,omitempty"`
	SupplierName string             `json:"supplier_name,omitempty"`
	Lines        []OrderLinePayload `json:"items"`
}

// BuildPayload renders doc for the authority.
func BuildPayload(doc Document) OrderPayload {
	totals := doc.Totals()
	payload := OrderPayload{
		StoreID:              doc.StoreID,
		Lines:                LinePayloads(doc.Lines),
		Subtotal:             totals.Subtotal,
		TaxAmount:            totals.TaxAmount(),
		Total:                totals.Total,
		TaxBreakdown:         append([]taxdomain.BreakdownEntry{}, totals.Breakdown...),
		ExpectedDeliveryDate: doc.Meta.ExpectedDeliveryDate,
		PaymentTerms:         doc.Meta.PaymentTerms,
		Notes:                doc.Meta.Notes,
	}
	if doc.Supplier != nil {
		payload.SupplierID = doc.Supplier.ID
		payload.SupplierName = doc.Supplier.Name
	}
	if doc.Version != nil {
		v := *doc.Version
		payload.Version = &v
	}
	return payload
}

// LinePayloads renders lines with their computed line net.
func LinePayloads(lines []Line) []OrderLinePayload {
	out := make([]OrderLinePayload, 0, len(lines))
	for _, line := range lines {
		out = append(out, OrderLinePayload{
			LineID:          line.ID,
			CatalogRef:      line.CatalogRef,
			Description:     line.Description,
			Quantity:        line.Quantity,
			UnitPrice:       line.UnitPrice,
			DiscountPercent: line.DiscountPercent,
			TaxRate:         line.TaxRate,
			LineNet:         taxservice.LineTaxable(line.Taxable()),
		})
	}
	return out
}

// LinesFromPayload rebuilds lines received from the authority. Lines without
// a line id get a fresh local identity.
func LinesFromPayload(items []OrderLinePayload) ([]Line, error) {
	lines := make([]Line, 0, len(items))
	for _, item := range items {
		line, err := NewLine(item.LineID, LineInput{
			CatalogRef:      item.CatalogRef,
			Description:     item.Description,
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice,
			DiscountPercent: item.DiscountPercent,
			TaxRate:         item.TaxRate,
		})
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// DocumentFromRemote builds the local document for an order loaded from the authority.
func DocumentFromRemote(order RemoteOrder) (Document, error) {
	lines, err := LinesFromPayload(order.Lines)
	if err != nil {
		return Document{}, err
	}
	status := order.Status
	if status == "" {
		status = StatusDraft
	}
	if !status.Valid() {
		return Document{}, ErrInvalidStatus
	}
	version := order.Version
	doc := Document{
		ID:      order.ID,
		Number:  order.Number,
		Version: &version,
		StoreID: order.StoreID,
		Lines:   lines,
		Status:  status,
		Meta:    order.Meta,
	}
	if order.SupplierID != "" {
		doc.Supplier = &SupplierRef{ID: order.SupplierID, Name: order.SupplierName}
	}
	if err := doc.Recompute(); err != nil {
		return Document{}, err
	}
	return doc, nil
}
