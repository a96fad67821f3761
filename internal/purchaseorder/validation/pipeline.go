// Package validation turns a purchase order document into blocking errors
// and advisory warnings. Every rule runs on every call.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/diegoholiveira/jsonlogic"
	"github.com/shopspring/decimal"

	"github.com/DikshantJangra/hoperxpharma-sub011/internal/config"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/domain"
)

// DefaultPriceDeviationPercent is used when Options leaves the threshold unset.
var DefaultPriceDeviationPercent = decimal.NewFromInt(20)

var ErrInvalidRule = errors.New("invalid_warning_rule")

// Rule is a configurable warning evaluated once per line. Logic is a
// jsonlogic expression over {"line": {...}, "position": n, "supplier_id": "..."}
// and the warning is emitted when it evaluates to true.
type Rule struct {
	Code    string
	Message string
	Logic   string
}

type Options struct {
	// PriceDeviationPercent flags lines whose unit price is further than this
	// from the last known price. Nil selects the default, zero flags any
	// change and a negative value disables the check.
	PriceDeviationPercent *decimal.Decimal
	WarningRules          []Rule
}

type compiledRule struct {
	code    domain.IssueCode
	message string
	logic   []byte
}

// Pipeline is immutable and safe for concurrent use.
type Pipeline struct {
	deviation decimal.Decimal
	rules     []compiledRule
}

// New compiles the warning rules. A rule that is not a valid jsonlogic
// expression fails construction.
func New(opts Options) (*Pipeline, error) {
	p := &Pipeline{deviation: DefaultPriceDeviationPercent}
	if opts.PriceDeviationPercent != nil {
		p.deviation = *opts.PriceDeviationPercent
	}
	for i, rule := range opts.WarningRules {
		code := strings.TrimSpace(rule.Code)
		if code == "" {
			return nil, fmt.Errorf("%w: rule %d has no code", ErrInvalidRule, i+1)
		}
		logic := []byte(strings.TrimSpace(rule.Logic))
		if !json.Valid(logic) || !jsonlogic.IsValid(bytes.NewReader(logic)) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidRule, code)
		}
		p.rules = append(p.rules, compiledRule{
			code:    domain.IssueCode(code),
			message: rule.Message,
			logic:   logic,
		})
	}
	return p, nil
}

var defaultPipeline = &Pipeline{deviation: DefaultPriceDeviationPercent}

// Validate runs the built-in rules with default options.
func Validate(doc domain.Document) domain.ValidationResult {
	return defaultPipeline.Validate(doc)
}

// Validate evaluates doc. Errors are ordered supplier, lines, then per line
// in display order.
func (p *Pipeline) Validate(doc domain.Document) domain.ValidationResult {
	result := domain.ValidationResult{
		Errors:   []domain.Issue{},
		Warnings: []domain.Issue{},
	}

	if doc.Supplier == nil || strings.TrimSpace(doc.Supplier.ID) == "" {
		result.Errors = append(result.Errors, domain.Issue{
			Code:    domain.IssueSupplierRequired,
			Message: "supplier is required",
		})
	}
	if len(doc.Lines) == 0 {
		result.Errors = append(result.Errors, domain.Issue{
			Code:    domain.IssueLinesRequired,
			Message: "at least one line is required",
		})
	}

	for i, line := range doc.Lines {
		position := i + 1
		result.Errors = append(result.Errors, lineErrors(line, position)...)
		if warning, ok := p.priceDeviation(line, position); ok {
			result.Warnings = append(result.Warnings, warning)
		}
		result.Warnings = append(result.Warnings, p.ruleWarnings(doc, line, position)...)
	}
	return result
}

func lineErrors(line domain.Line, position int) []domain.Issue {
	var issues []domain.Issue
	add := func(code domain.IssueCode, msg string) {
		issues = append(issues, domain.Issue{
			Code:     code,
			Message:  fmt.Sprintf("line %d: %s", position, msg),
			LineID:   line.ID,
			Position: position,
		})
	}
	if strings.TrimSpace(line.CatalogRef) == "" {
		add(domain.IssueCatalogRefRequired, "item is required")
	}
	if !line.Quantity.IsPositive() {
		add(domain.IssueQuantityInvalid, "quantity must be greater than zero")
	}
	if line.UnitPrice.IsNegative() {
		add(domain.IssueUnitPriceInvalid, "unit price must not be negative")
	}
	if !line.TaxRate.Valid() {
		add(domain.IssueTaxRateInvalid, fmt.Sprintf("tax rate %s is not allowed", line.TaxRate))
	}
	return issues
}

func (p *Pipeline) priceDeviation(line domain.Line, position int) (domain.Issue, bool) {
	if p.deviation.IsNegative() || line.LastPrice == nil || !line.LastPrice.IsPositive() {
		return domain.Issue{}, false
	}
	last := *line.LastPrice
	pct := line.UnitPrice.Sub(last).Abs().Div(last).Shift(2)
	if pct.LessThanOrEqual(p.deviation) {
		return domain.Issue{}, false
	}
	return domain.Issue{
		Code: domain.IssuePriceDeviation,
		Message: fmt.Sprintf("line %d: unit price %s deviates %s%% from last price %s",
			position, line.UnitPrice.StringFixed(2), pct.Round(0).String(), last.StringFixed(2)),
		LineID:   line.ID,
		Position: position,
	}, true
}

func (p *Pipeline) ruleWarnings(doc domain.Document, line domain.Line, position int) []domain.Issue {
	if len(p.rules) == 0 {
		return nil
	}
	data, err := json.Marshal(ruleData(doc, line, position))
	if err != nil {
		return nil
	}
	var issues []domain.Issue
	for _, rule := range p.rules {
		if !evaluate(rule.logic, data) {
			continue
		}
		msg := rule.message
		if msg == "" {
			msg = string(rule.code)
		}
		issues = append(issues, domain.Issue{
			Code:     rule.code,
			Message:  fmt.Sprintf("line %d: %s", position, msg),
			LineID:   line.ID,
			Position: position,
		})
	}
	return issues
}

func ruleData(doc domain.Document, line domain.Line, position int) map[string]interface{} {
	quantity, _ := line.Quantity.Float64()
	unitPrice, _ := line.UnitPrice.Float64()
	discount, _ := line.DiscountPercent.Float64()
	fields := map[string]interface{}{
		"id":               line.ID,
		"catalog_ref":      line.CatalogRef,
		"description":      line.Description,
		"quantity":         quantity,
		"unit_price":       unitPrice,
		"discount_percent": discount,
		"tax_rate":         int(line.TaxRate),
		"last_price":       nil,
	}
	if line.LastPrice != nil {
		last, _ := line.LastPrice.Float64()
		fields["last_price"] = last
	}
	supplierID := ""
	if doc.Supplier != nil {
		supplierID = doc.Supplier.ID
	}
	return map[string]interface{}{
		"line":        fields,
		"position":    position,
		"supplier_id": supplierID,
	}
}

func evaluate(logic, data []byte) bool {
	var out bytes.Buffer
	if err := jsonlogic.Apply(bytes.NewReader(logic), bytes.NewReader(data), &out); err != nil {
		return false
	}
	var value interface{}
	if err := json.Unmarshal(out.Bytes(), &value); err != nil {
		return false
	}
	b, ok := value.(bool)
	return ok && b
}

// FromConfig builds a pipeline from composer settings.
func FromConfig(cfg config.ComposerConfig) (*Pipeline, error) {
	deviation := decimal.NewFromFloat(cfg.PriceDeviationPercent)
	opts := Options{PriceDeviationPercent: &deviation}
	for _, rule := range cfg.WarningRules {
		opts.WarningRules = append(opts.WarningRules, Rule{
			Code:    rule.Code,
			Message: rule.Message,
			Logic:   rule.Logic,
		})
	}
	return New(opts)
}
