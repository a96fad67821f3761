package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/domain"
	taxdomain "github.com/DikshantJangra/hoperxpharma-sub011/internal/tax/domain"
)

// fixture is the YAML shape of a document given to totals and validate.
type fixture struct {
	StoreID  string        `yaml:"store_id"`
	Supplier *fixtureParty `yaml:"supplier"`
	Lines    []fixtureLine `yaml:"lines"`
	Meta     struct {
		ExpectedDeliveryDate *time.Time `yaml:"expected_delivery_date"`
		PaymentTerms         string     `yaml:"payment_terms"`
		Notes                string     `yaml:"notes"`
	} `yaml:"meta"`
}

type fixtureParty struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type fixtureLine struct {
	CatalogRef      string           `yaml:"catalog_ref"`
	Description     string           `yaml:"description"`
	Quantity        decimal.Decimal  `yaml:"quantity"`
	UnitPrice       decimal.Decimal  `yaml:"unit_price"`
	DiscountPercent decimal.Decimal  `yaml:"discount_percent"`
	TaxRate         taxdomain.Rate   `yaml:"tax_rate"`
	LastPrice       *decimal.Decimal `yaml:"last_price"`
}

// loadFixture parses path into a document. Lines that break a line
// invariant are reported with their 1-based position.
func loadFixture(path string) (domain.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("read fixture: %w", err)
	}
	var f fixture
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return domain.Document{}, fmt.Errorf("parse fixture: %w", err)
	}

	storeID := f.StoreID
	if storeID == "" {
		storeID = "local"
	}
	doc := domain.NewDocument(storeID)
	if f.Supplier != nil && f.Supplier.ID != "" {
		doc.Supplier = &domain.SupplierRef{ID: f.Supplier.ID, Name: f.Supplier.Name}
	}
	doc.Meta = domain.Meta{
		ExpectedDeliveryDate: f.Meta.ExpectedDeliveryDate,
		PaymentTerms:         f.Meta.PaymentTerms,
		Notes:                f.Meta.Notes,
	}
	for i, in := range f.Lines {
		line, err := domain.NewLine("", domain.LineInput{
			CatalogRef:      in.CatalogRef,
			Description:     in.Description,
			Quantity:        in.Quantity,
			UnitPrice:       in.UnitPrice,
			DiscountPercent: in.DiscountPercent,
			TaxRate:         in.TaxRate,
			LastPrice:       in.LastPrice,
		})
		if err != nil {
			return domain.Document{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		doc.Lines = append(doc.Lines, line)
	}
	if err := doc.Recompute(); err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}
