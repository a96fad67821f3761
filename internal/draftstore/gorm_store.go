package draftstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/DikshantJangra/hoperxpharma-sub011/internal/clock"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/domain"
)

// DraftEntry is one persisted document.
type DraftEntry struct {
	DraftKey  string         `gorm:"primaryKey;column:draft_key;size:200"`
	OrderID   string         `gorm:"column:order_id;size:64;index"`
	Body      datatypes.JSON `gorm:"column:body;not null"`
	UpdatedAt time.Time      `gorm:"column:updated_at;not null"`
	ExpiresAt *time.Time     `gorm:"column:expires_at"`
}

func (DraftEntry) TableName() string { return "draft_entries" }

// GormStore persists drafts in a relational table, sqlite in practice.
type GormStore struct {
	db    *gorm.DB
	clock clock.Clock
	ttl   time.Duration
	log   *zap.Logger
}

// NewGormStore migrates the draft table. ttl <= 0 keeps entries forever.
func NewGormStore(db *gorm.DB, c clock.Clock, ttl time.Duration, log *zap.Logger) (*GormStore, error) {
	if c == nil {
		c = clock.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if err := db.AutoMigrate(&DraftEntry{}); err != nil {
		return nil, fmt.Errorf("migrate draft_entries: %w", err)
	}
	return &GormStore{db: db, clock: c, ttl: ttl, log: log.Named("draftstore.gorm")}, nil
}

func (s *GormStore) Load(ctx context.Context, key string) (*domain.Document, error) {
	var entry DraftEntry
	err := s.db.WithContext(ctx).Where("draft_key = ?", key).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if entry.ExpiresAt != nil && !s.clock.Now().Before(*entry.ExpiresAt) {
		if err := s.Delete(ctx, key); err != nil {
			return nil, err
		}
		return nil, nil
	}

	doc, err := domain.DecodeDocument(entry.Body)
	if err != nil {
		s.log.Warn("discarding corrupt draft", zap.String("draft_key", key), zap.Error(err))
		if delErr := s.Delete(ctx, key); delErr != nil {
			s.log.Warn("failed to delete corrupt draft", zap.String("draft_key", key), zap.Error(delErr))
		}
		return nil, err
	}
	return &doc, nil
}

func (s *GormStore) Save(ctx context.Context, key string, doc domain.Document) error {
	body, err := domain.EncodeDocument(doc)
	if err != nil {
		return err
	}
	now := s.clock.Now().UTC()
	entry := DraftEntry{
		DraftKey:  key,
		OrderID:   doc.ID,
		Body:      datatypes.JSON(body),
		UpdatedAt: now,
	}
	if s.ttl > 0 {
		expires := now.Add(s.ttl)
		entry.ExpiresAt = &expires
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "draft_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"order_id", "body", "updated_at", "expires_at"}),
	}).Create(&entry).Error
}

func (s *GormStore) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("draft_key = ?", key).Delete(&DraftEntry{}).Error
}

// Keys lists stored keys for a store, most recently updated first.
func (s *GormStore) Keys(ctx context.Context, storeID string) ([]string, error) {
	prefix := storePrefix(storeID)
	var rows []string
	err := s.db.WithContext(ctx).
		Model(&DraftEntry{}).
		Where("draft_key LIKE ? ESCAPE '!'", likePattern(prefix)).
		Order("updated_at DESC").
		Pluck("draft_key", &rows).Error
	if err != nil {
		return nil, err
	}
	// LIKE ignores case on some drivers
	keys := make([]string, 0, len(rows))
	for _, k := range rows {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// PurgeExpired deletes up to limit entries whose expiry has passed and
// reports how many were removed.
func (s *GormStore) PurgeExpired(ctx context.Context, limit int) (int64, error) {
	var keys []string
	err := s.db.WithContext(ctx).
		Model(&DraftEntry{}).
		Where("expires_at IS NOT NULL AND expires_at <= ?", s.clock.Now().UTC()).
		Order("expires_at").
		Limit(limit).
		Pluck("draft_key", &keys).Error
	if err != nil || len(keys) == 0 {
		return 0, err
	}
	res := s.db.WithContext(ctx).Where("draft_key IN ?", keys).Delete(&DraftEntry{})
	return res.RowsAffected, res.Error
}

var (
	_ domain.DraftStore = (*GormStore)(nil)
	_ Purger            = (*GormStore)(nil)
)
