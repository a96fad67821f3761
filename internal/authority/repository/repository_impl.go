package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	authoritydomain "github.com/DikshantJangra/hoperxpharma-sub011/internal/authority/domain"
	pkgdb "github.com/DikshantJangra/hoperxpharma-sub011/pkg/db"
)

type repo struct{}

func Provide() authoritydomain.Repository {
	return &repo{}
}

func (r *repo) InsertOrder(ctx context.Context, db *gorm.DB, order *authoritydomain.Order) error {
	return translateInsertErr(db.WithContext(ctx).Create(order).Error)
}

func (r *repo) UpdateOrder(ctx context.Context, db *gorm.DB, order *authoritydomain.Order) error {
	return db.WithContext(ctx).Exec(
		`UPDATE po_orders
		 SET version = ?, status = ?, supplier_id = ?, supplier_name = ?, items = ?,
		     subtotal = ?, tax_amount = ?, total = ?, tax_breakdown = ?,
		     expected_delivery_date = ?, payment_terms = ?, notes = ?,
		     approvers = ?, approval_note = ?, send_channel = ?, send_format = ?, sent_at = ?,
		     updated_at = ?
		 WHERE id = ?`,
		order.Version,
		order.Status,
		order.SupplierID,
		order.SupplierName,
		order.Items,
		order.Subtotal,
		order.TaxAmount,
		order.Total,
		order.TaxBreakdown,
		order.ExpectedDeliveryDate,
		order.PaymentTerms,
		order.Notes,
		order.Approvers,
		order.ApprovalNote,
		order.SendChannel,
		order.SendFormat,
		order.SentAt,
		order.UpdatedAt,
		order.ID,
	).Error
}

func (r *repo) FindOrder(ctx context.Context, db *gorm.DB, id snowflake.ID) (*authoritydomain.Order, error) {
	var order authoritydomain.Order
	err := db.WithContext(ctx).Where("id = ?", id).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (r *repo) NextSequence(ctx context.Context, db *gorm.DB, storeID string) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE po_order_sequences SET last_value = last_value + 1 WHERE store_id = ?`,
		storeID,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		seq := authoritydomain.OrderSequence{StoreID: storeID, LastValue: 1}
		if err := db.WithContext(ctx).Create(&seq).Error; err != nil {
			return 0, err
		}
		return 1, nil
	}

	var seq authoritydomain.OrderSequence
	if err := db.WithContext(ctx).Where("store_id = ?", storeID).First(&seq).Error; err != nil {
		return 0, err
	}
	return seq.LastValue, nil
}

func (r *repo) InsertTemplate(ctx context.Context, db *gorm.DB, tmpl *authoritydomain.OrderTemplate) error {
	return translateInsertErr(db.WithContext(ctx).Create(tmpl).Error)
}

func (r *repo) FindTemplate(ctx context.Context, db *gorm.DB, storeID string, id snowflake.ID) (*authoritydomain.OrderTemplate, error) {
	return r.findTemplate(ctx, db.Where("id = ?", id), storeID)
}

func (r *repo) FindTemplateBySlug(ctx context.Context, db *gorm.DB, storeID, slug string) (*authoritydomain.OrderTemplate, error) {
	return r.findTemplate(ctx, db.Where("slug = ?", slug), storeID)
}

func (r *repo) findTemplate(ctx context.Context, stmt *gorm.DB, storeID string) (*authoritydomain.OrderTemplate, error) {
	if storeID != "" {
		stmt = stmt.Where("store_id = ?", storeID)
	}
	var tmpl authoritydomain.OrderTemplate
	err := stmt.WithContext(ctx).First(&tmpl).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tmpl, nil
}

func (r *repo) SlugExists(ctx context.Context, db *gorm.DB, storeID, slug string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&authoritydomain.OrderTemplate{}).
		Where("store_id = ? AND slug = ?", storeID, slug).
		Count(&count).Error
	return count > 0, err
}

func (r *repo) InsertCatalogItems(ctx context.Context, db *gorm.DB, items []authoritydomain.CatalogItem) error {
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&items).Error
}

func (r *repo) ListCatalogItems(ctx context.Context, db *gorm.DB, storeID, supplierID string) ([]authoritydomain.CatalogItem, error) {
	var items []authoritydomain.CatalogItem
	stmt := db.WithContext(ctx).Where("store_id = ?", storeID)
	if supplierID != "" {
		stmt = stmt.Where("(supplier_id = ? OR supplier_id = '')", supplierID)
	}
	err := stmt.Order("name ASC").Find(&items).Error
	return items, err
}

func translateInsertErr(err error) error {
	if pkgdb.IsDuplicateKeyErr(err) {
		return fmt.Errorf("%w: %v", authoritydomain.ErrAlreadyExists, err)
	}
	return err
}
