package domain

import (
	"errors"
	"reflect"
	"strings"

	taxdomain "github.com/DikshantJangra/hoperxpharma-sub011/internal/tax/domain"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Line is one ordered entry of a purchase order.
type Line struct {
	ID              string           `json:"id"`
	CatalogRef      string           `json:"catalog_ref"`
	Description     string           `json:"description,omitempty"`
	Quantity        decimal.Decimal  `json:"quantity"`
	UnitPrice       decimal.Decimal  `json:"unit_price"`
	DiscountPercent decimal.Decimal  `json:"discount_percent"`
	TaxRate         taxdomain.Rate   `json:"tax_rate"`
	LastPrice       *decimal.Decimal `json:"last_price,omitempty"`
}

// LineInput carries the caller-supplied fields of a new line.
// CatalogRef may be empty while the user is still picking an item; the
// validation pipeline reports it as a blocking error.
type LineInput struct {
	CatalogRef      string           `validate:"max=64"`
	Description     string           `validate:"max=256"`
	Quantity        decimal.Decimal  `validate:"gt=0"`
	UnitPrice       decimal.Decimal  `validate:"gte=0"`
	DiscountPercent decimal.Decimal  `validate:"gte=0,lte=100"`
	TaxRate         taxdomain.Rate   `validate:"taxrate"`
	LastPrice       *decimal.Decimal `validate:"-"`
}

// LinePatch updates the non-nil fields of a line.
type LinePatch struct {
	CatalogRef      *string
	Description     *string
	Quantity        *decimal.Decimal
	UnitPrice       *decimal.Decimal
	DiscountPercent *decimal.Decimal
	TaxRate         *taxdomain.Rate
	LastPrice       *decimal.Decimal
}

var lineValidator = newLineValidator()

func newLineValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
	_ = v.RegisterValidation("taxrate", func(fl validator.FieldLevel) bool {
		return taxdomain.Rate(fl.Field().Int()).Valid()
	})
	return v
}

func decimalValue(field reflect.Value) interface{} {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		f, _ := d.Float64()
		return f
	}
	return nil
}

// NewLine builds a line that satisfies the line invariants. An empty id gets
// a fresh local identity.
func NewLine(id string, in LineInput) (Line, error) {
	in.CatalogRef = strings.TrimSpace(in.CatalogRef)
	in.Description = strings.TrimSpace(in.Description)
	if err := validateLineInput(in); err != nil {
		return Line{}, err
	}
	if id == "" {
		id = uuid.NewString()
	}
	var lastPrice *decimal.Decimal
	if in.LastPrice != nil && !in.LastPrice.IsNegative() {
		lp := *in.LastPrice
		lastPrice = &lp
	}
	return Line{
		ID:              id,
		CatalogRef:      in.CatalogRef,
		Description:     in.Description,
		Quantity:        in.Quantity,
		UnitPrice:       in.UnitPrice,
		DiscountPercent: in.DiscountPercent,
		TaxRate:         in.TaxRate,
		LastPrice:       lastPrice,
	}, nil
}

// Input returns the fields of l as a LineInput.
func (l Line) Input() LineInput {
	return LineInput{
		CatalogRef:      l.CatalogRef,
		Description:     l.Description,
		Quantity:        l.Quantity,
		UnitPrice:       l.UnitPrice,
		DiscountPercent: l.DiscountPercent,
		TaxRate:         l.TaxRate,
		LastPrice:       l.LastPrice,
	}
}

// Apply returns a copy of l with p applied, keeping the line's identity.
func (l Line) Apply(p LinePatch) (Line, error) {
	in := l.Input()
	if p.CatalogRef != nil {
		in.CatalogRef = *p.CatalogRef
	}
	if p.Description != nil {
		in.Description = *p.Description
	}
	if p.Quantity != nil {
		in.Quantity = *p.Quantity
	}
	if p.UnitPrice != nil {
		in.UnitPrice = *p.UnitPrice
	}
	if p.DiscountPercent != nil {
		in.DiscountPercent = *p.DiscountPercent
	}
	if p.TaxRate != nil {
		in.TaxRate = *p.TaxRate
	}
	if p.LastPrice != nil {
		in.LastPrice = p.LastPrice
	}
	return NewLine(l.ID, in)
}

// Taxable projects the line for the calculation engine.
func (l Line) Taxable() taxdomain.Taxable {
	return taxdomain.Taxable{
		Quantity:        l.Quantity,
		UnitPrice:       l.UnitPrice,
		DiscountPercent: l.DiscountPercent,
		Rate:            l.TaxRate,
	}
}

func (l Line) clone() Line {
	out := l
	if l.LastPrice != nil {
		lp := *l.LastPrice
		out.LastPrice = &lp
	}
	return out
}

func (l Line) equal(o Line) bool {
	if l.ID != o.ID || l.CatalogRef != o.CatalogRef || l.Description != o.Description || l.TaxRate != o.TaxRate {
		return false
	}
	if !l.Quantity.Equal(o.Quantity) || !l.UnitPrice.Equal(o.UnitPrice) || !l.DiscountPercent.Equal(o.DiscountPercent) {
		return false
	}
	if (l.LastPrice == nil) != (o.LastPrice == nil) {
		return false
	}
	return l.LastPrice == nil || l.LastPrice.Equal(*o.LastPrice)
}

func validateLineInput(in LineInput) error {
	err := lineValidator.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	switch fieldErrs[0].Field() {
	case "Quantity":
		return ErrInvalidQuantity
	case "UnitPrice":
		return ErrInvalidUnitPrice
	case "DiscountPercent":
		return ErrInvalidDiscount
	case "TaxRate":
		return taxdomain.ErrInvalidTaxRate
	case "CatalogRef":
		return ErrInvalidCatalogRef
	case "Description":
		return ErrInvalidDescription
	default:
		return err
	}
}
