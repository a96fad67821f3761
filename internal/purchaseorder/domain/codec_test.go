package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	taxdomain "github.com/DikshantJangra/hoperxpharma-sub011/internal/tax/domain"
)

func sampleDocument(t *testing.T) Document {
	t.Helper()
	doc := NewDocument("store-1")
	doc.ID = "po-1"
	doc.Number = "PO-store-1-1"
	v := int64(4)
	doc.Version = &v
	doc.Supplier = &SupplierRef{ID: "sup-1", Name: "Acme Pharma"}
	due := time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)
	doc.Meta = Meta{ExpectedDeliveryDate: &due, PaymentTerms: "net 30", Notes: "back door"}

	first, err := NewLine("", validInput())
	require.NoError(t, err)
	in := validInput()
	in.CatalogRef = "drug-2"
	in.Quantity = decimal.NewFromInt(2)
	in.UnitPrice = decimal.RequireFromString("15.00")
	in.TaxRate = taxdomain.Rate18
	last := decimal.RequireFromString("14.50")
	in.LastPrice = &last
	second, err := NewLine("", in)
	require.NoError(t, err)

	doc.Lines = []Line{first, second}
	require.NoError(t, doc.Recompute())
	return doc
}

func TestCodec_RoundTrip(t *testing.T) {
	doc := sampleDocument(t)

	raw, err := EncodeDocument(doc)
	require.NoError(t, err)

	restored, err := DecodeDocument(raw)
	require.NoError(t, err)
	assert.True(t, doc.Equal(restored))
	assert.Equal(t, "91.40", restored.Totals().Total.StringFixed(2))
}

func TestCodec_CorruptInput(t *testing.T) {
	cases := map[string]string{
		"not json":     `{"lines": [`,
		"bad status":   `{"store_id":"s","status":"archived","lines":[]}`,
		"missing id":   `{"store_id":"s","status":"draft","lines":[{"catalog_ref":"x","quantity":"1","unit_price":"1","discount_percent":"0","tax_rate":5}]}`,
		"bad quantity": `{"store_id":"s","status":"draft","lines":[{"id":"a","catalog_ref":"x","quantity":"0","unit_price":"1","discount_percent":"0","tax_rate":5}]}`,
		"bad rate":     `{"store_id":"s","status":"draft","lines":[{"id":"a","catalog_ref":"x","quantity":"1","unit_price":"1","discount_percent":"0","tax_rate":7}]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeDocument([]byte(raw))
			assert.ErrorIs(t, err, ErrCorruptDraft)
		})
	}
}

func TestBuildPayload_CarriesTotalsAndLineNet(t *testing.T) {
	doc := sampleDocument(t)
	payload := BuildPayload(doc)

	assert.Equal(t, "sup-1", payload.SupplierID)
	require.Len(t, payload.Lines, 2)
	assert.Equal(t, "drug-1", payload.Lines[0].CatalogRef)
	assert.Equal(t, "50.00", payload.Lines[0].LineNet.StringFixed(2))
	assert.Equal(t, "80.00", payload.Subtotal.StringFixed(2))
	assert.Equal(t, "11.40", payload.TaxAmount.StringFixed(2))
	assert.Equal(t, "91.40", payload.Total.StringFixed(2))
	require.NotNil(t, payload.Version)
	assert.Equal(t, int64(4), *payload.Version)
}

func TestDocumentFromRemote(t *testing.T) {
	doc := sampleDocument(t)
	payload := BuildPayload(doc)

	restored, err := DocumentFromRemote(RemoteOrder{
		ID:           doc.ID,
		Number:       doc.Number,
		Version:      4,
		Status:       StatusDraft,
		StoreID:      doc.StoreID,
		SupplierID:   payload.SupplierID,
		SupplierName: payload.SupplierName,
		Lines:        payload.Lines,
		Meta:         doc.Meta,
	})
	require.NoError(t, err)
	assert.Equal(t, doc.Totals().Total.String(), restored.Totals().Total.String())
	assert.Equal(t, doc.Lines[1].ID, restored.Lines[1].ID)
}

func TestValidationError_Unwraps(t *testing.T) {
	err := &ValidationError{Result: ValidationResult{Errors: []Issue{{Code: IssueSupplierRequired}}}}
	assert.ErrorIs(t, err, ErrValidationFailed)
	assert.Contains(t, err.Error(), "supplier_required")
}
