// Package domain holds the reference authority's records and contracts.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	podomain "github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/domain"
	taxdomain "github.com/DikshantJangra/hoperxpharma-sub011/internal/tax/domain"
)

// Order is the authoritative copy of a purchase order.
type Order struct {
	ID                   snowflake.ID    `gorm:"primaryKey;autoIncrement:false"`
	StoreID              string          `gorm:"size:64;not null;index"`
	Number               string          `gorm:"size:96;not null;uniqueIndex"`
	Version              int64           `gorm:"not null"`
	Status               podomain.Status `gorm:"size:32;not null"`
	SupplierID           string          `gorm:"size:64"`
	SupplierName         string          `gorm:"size:256"`
	Items                datatypes.JSON  `gorm:"not null"`
	Subtotal             decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	TaxAmount            decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	Total                decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	TaxBreakdown         datatypes.JSON  `gorm:"not null"`
	ExpectedDeliveryDate *time.Time
	PaymentTerms         string         `gorm:"size:128"`
	Notes                string         `gorm:"type:text"`
	Approvers            datatypes.JSON `gorm:"not null"`
	ApprovalNote         string         `gorm:"type:text"`
	SendChannel          string         `gorm:"size:32"`
	SendFormat           string         `gorm:"size:32"`
	SentAt               *time.Time
	CreatedAt            time.Time `gorm:"not null"`
	UpdatedAt            time.Time `gorm:"not null"`
}

func (Order) TableName() string { return "po_orders" }

// OrderSequence hands out human-readable order numbers per store.
type OrderSequence struct {
	StoreID   string `gorm:"primaryKey;size:64"`
	LastValue int64  `gorm:"not null"`
}

func (OrderSequence) TableName() string { return "po_order_sequences" }

// OrderTemplate is a reusable document shape.
type OrderTemplate struct {
	ID           snowflake.ID   `gorm:"primaryKey;autoIncrement:false"`
	StoreID      string         `gorm:"size:64;not null;uniqueIndex:ux_po_templates_store_slug"`
	Slug         string         `gorm:"size:160;not null;uniqueIndex:ux_po_templates_store_slug"`
	Name         string         `gorm:"size:128;not null"`
	Description  string         `gorm:"type:text"`
	SupplierID   string         `gorm:"size:64"`
	SupplierName string         `gorm:"size:256"`
	Items        datatypes.JSON `gorm:"not null"`
	CreatedAt    time.Time      `gorm:"not null"`
}

func (OrderTemplate) TableName() string { return "po_templates" }

// CatalogItem seeds advisory suggestions. An empty SupplierID applies to
// every supplier of the store.
type CatalogItem struct {
	ID         snowflake.ID    `gorm:"primaryKey;autoIncrement:false"`
	StoreID    string          `gorm:"size:64;not null;index"`
	SupplierID string          `gorm:"size:64"`
	DrugID     string          `gorm:"size:64;not null"`
	Name       string          `gorm:"size:256;not null"`
	Quantity   decimal.Decimal `gorm:"type:numeric(18,3);not null"`
	UnitPrice  decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	TaxRate    taxdomain.Rate  `gorm:"not null"`
	Reason     string          `gorm:"size:256"`
}

func (CatalogItem) TableName() string { return "po_catalog_items" }

// Repository persists authority records. Methods take the handle to run on
// so callers can compose them inside a transaction.
type Repository interface {
	InsertOrder(ctx context.Context, db *gorm.DB, order *Order) error
	UpdateOrder(ctx context.Context, db *gorm.DB, order *Order) error
	FindOrder(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	NextSequence(ctx context.Context, db *gorm.DB, storeID string) (int64, error)

	InsertTemplate(ctx context.Context, db *gorm.DB, tmpl *OrderTemplate) error
	FindTemplate(ctx context.Context, db *gorm.DB, storeID string, id snowflake.ID) (*OrderTemplate, error)
	FindTemplateBySlug(ctx context.Context, db *gorm.DB, storeID, slug string) (*OrderTemplate, error)
	SlugExists(ctx context.Context, db *gorm.DB, storeID, slug string) (bool, error)

	InsertCatalogItems(ctx context.Context, db *gorm.DB, items []CatalogItem) error
	ListCatalogItems(ctx context.Context, db *gorm.DB, storeID, supplierID string) ([]CatalogItem, error)
}

// ApprovalGate records who may approve an order and checks callers
// against it.
type ApprovalGate interface {
	Grant(orderID, requester string, approvers []string) error
	Authorize(orderID, subject string) error
	Revoke(orderID string) error
}

// Service implements the authority's REST contract. storeID is the store
// the caller is authenticated for; empty means unrestricted. subject is the
// authenticated caller, if any.
type Service interface {
	Create(ctx context.Context, storeID string, payload podomain.OrderPayload) (podomain.WriteResult, error)
	Update(ctx context.Context, storeID, id string, payload podomain.OrderPayload) (podomain.WriteResult, error)
	Autosave(ctx context.Context, storeID, id string, payload podomain.OrderPayload) (podomain.AutosaveResult, error)
	Get(ctx context.Context, storeID, id string) (podomain.RemoteOrder, error)
	Send(ctx context.Context, storeID, id string, req podomain.SendRequest) (podomain.TransitionResult, error)
	RequestApproval(ctx context.Context, storeID, subject, id string, req podomain.ApprovalRequest) (podomain.TransitionResult, error)
	Approve(ctx context.Context, storeID, subject, id string) (podomain.TransitionResult, error)
	Suggestions(ctx context.Context, storeID string, query podomain.SuggestionQuery) ([]podomain.Suggestion, error)
	CreateTemplate(ctx context.Context, storeID string, req podomain.TemplateRequest) (podomain.TemplateResult, error)
	LoadTemplate(ctx context.Context, storeID, id string) (podomain.TemplateBody, error)
	SeedCatalog(ctx context.Context, items []CatalogSeed) error
}

// CatalogSeed is one suggestion source row.
type CatalogSeed struct {
	StoreID    string          `yaml:"store_id" json:"store_id"`
	SupplierID string          `yaml:"supplier_id" json:"supplier_id"`
	DrugID     string          `yaml:"drug_id" json:"drug_id"`
	Name       string          `yaml:"name" json:"name"`
	Quantity   decimal.Decimal `yaml:"quantity" json:"quantity"`
	UnitPrice  decimal.Decimal `yaml:"unit_price" json:"unit_price"`
	TaxRate    taxdomain.Rate  `yaml:"tax_rate" json:"tax_rate"`
	Reason     string          `yaml:"reason" json:"reason"`
}
