// Package domain contains the purchase order document model and the ports
// the composer depends on.
package domain

import (
	"time"

	taxdomain "github.com/DikshantJangra/hoperxpharma-sub011/internal/tax/domain"
	taxservice "github.com/DikshantJangra/hoperxpharma-sub011/internal/tax/service"
)

// Status represents purchase order lifecycle states.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusSent            Status = "sent"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPendingApproval, StatusApproved, StatusSent:
		return true
	}
	return false
}

// Terminal reports whether no further transition is defined from s.
func (s Status) Terminal() bool {
	return s == StatusSent
}

// SaveStatus projects whether the in-memory document matches the last
// acknowledged remote write.
type SaveStatus string

const (
	SaveStatusSaved   SaveStatus = "saved"
	SaveStatusUnsaved SaveStatus = "unsaved"
	SaveStatusSyncing SaveStatus = "syncing"
)

// SupplierRef points at the counterparty of the order.
type SupplierRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Meta holds the delivery, payment and note header fields.
type Meta struct {
	ExpectedDeliveryDate *time.Time `json:"expected_delivery_date,omitempty"`
	PaymentTerms         string     `json:"payment_terms,omitempty"`
	Notes                string     `json:"notes,omitempty"`
}

// Document is the purchase order being composed. Totals are derived from
// Lines by Recompute and are never assigned by callers.
type Document struct {
	ID       string       `json:"id,omitempty"`
	Number   string       `json:"po_number,omitempty"`
	Version  *int64       `json:"version,omitempty"`
	StoreID  string       `json:"store_id"`
	Supplier *SupplierRef `json:"supplier,omitempty"`
	Lines    []Line       `json:"lines"`
	Status   Status       `json:"status"`
	Meta     Meta         `json:"meta"`

	totals taxdomain.Totals
}

// NewDocument returns an empty draft owned by storeID.
func NewDocument(storeID string) Document {
	doc := Document{
		StoreID: storeID,
		Lines:   []Line{},
		Status:  StatusDraft,
	}
	doc.totals, _ = taxservice.ComputeTotals(nil)
	return doc
}

// Totals returns the derived amounts for the current lines.
func (d Document) Totals() taxdomain.Totals {
	return d.totals
}

// Persisted reports whether the authority has assigned an identity.
func (d Document) Persisted() bool {
	return d.ID != ""
}

// Recompute refreshes the derived totals from the lines.
func (d *Document) Recompute() error {
	taxables := make([]taxdomain.Taxable, 0, len(d.Lines))
	for _, line := range d.Lines {
		taxables = append(taxables, line.Taxable())
	}
	totals, err := taxservice.ComputeTotals(taxables)
	if err != nil {
		return err
	}
	d.totals = totals
	return nil
}

// LineIndex returns the position of the line with id, or -1.
func (d Document) LineIndex(id string) int {
	for i, line := range d.Lines {
		if line.ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy.
func (d Document) Clone() Document {
	out := d
	if d.Version != nil {
		v := *d.Version
		out.Version = &v
	}
	if d.Supplier != nil {
		s := *d.Supplier
		out.Supplier = &s
	}
	if d.Meta.ExpectedDeliveryDate != nil {
		t := *d.Meta.ExpectedDeliveryDate
		out.Meta.ExpectedDeliveryDate = &t
	}
	out.Lines = make([]Line, len(d.Lines))
	for i, line := range d.Lines {
		out.Lines[i] = line.clone()
	}
	out.totals.Breakdown = append([]taxdomain.BreakdownEntry(nil), d.totals.Breakdown...)
	return out
}

// Equal compares documents by value, treating amounts numerically.
func (d Document) Equal(o Document) bool {
	if d.ID != o.ID || d.Number != o.Number || d.StoreID != o.StoreID || d.Status != o.Status {
		return false
	}
	if (d.Version == nil) != (o.Version == nil) || (d.Version != nil && *d.Version != *o.Version) {
		return false
	}
	if (d.Supplier == nil) != (o.Supplier == nil) || (d.Supplier != nil && *d.Supplier != *o.Supplier) {
		return false
	}
	if d.Meta.PaymentTerms != o.Meta.PaymentTerms || d.Meta.Notes != o.Meta.Notes {
		return false
	}
	a, b := d.Meta.ExpectedDeliveryDate, o.Meta.ExpectedDeliveryDate
	if (a == nil) != (b == nil) || (a != nil && !a.Equal(*b)) {
		return false
	}
	if len(d.Lines) != len(o.Lines) {
		return false
	}
	for i := range d.Lines {
		if !d.Lines[i].equal(o.Lines[i]) {
			return false
		}
	}
	return d.totals.Equal(o.totals)
}
