package domain

import (
	"fmt"
	"strings"
)

// IssueCode identifies a validation finding.
type IssueCode string

const (
	IssueSupplierRequired   IssueCode = "supplier_required"
	IssueLinesRequired      IssueCode = "lines_required"
	IssueCatalogRefRequired IssueCode = "catalog_ref_required"
	IssueQuantityInvalid    IssueCode = "quantity_invalid"
	IssueUnitPriceInvalid   IssueCode = "unit_price_invalid"
	IssueTaxRateInvalid     IssueCode = "tax_rate_invalid"
	IssuePriceDeviation     IssueCode = "price_deviation"
)

// Issue is one validation finding. LineID and Position (1-based) are set
// for findings that belong to a line.
type Issue struct {
	Code     IssueCode `json:"code"`
	Message  string    `json:"message"`
	LineID   string    `json:"line_id,omitempty"`
	Position int       `json:"position,omitempty"`
}

// ValidationResult separates blocking errors from advisory warnings.
type ValidationResult struct {
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// Valid is true iff there are no blocking errors.
func (r ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// ValidationError rejects a lifecycle transition and carries the findings.
type ValidationError struct {
	Result ValidationResult
}

func (e *ValidationError) Error() string {
	codes := make([]string, 0, len(e.Result.Errors))
	for _, issue := range e.Result.Errors {
		codes = append(codes, string(issue.Code))
	}
	return fmt.Sprintf("%s: %s", ErrValidationFailed, strings.Join(codes, ","))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}
