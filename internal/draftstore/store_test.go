package draftstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/DikshantJangra/hoperxpharma-sub011/internal/clock"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/domain"
	taxdomain "github.com/DikshantJangra/hoperxpharma-sub011/internal/tax/domain"
)

func setupGormStore(t *testing.T, fc *clock.FakeClock, ttl time.Duration) (*GormStore, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store, err := NewGormStore(db, fc, ttl, zap.NewNop())
	require.NoError(t, err)
	return store, db
}

func sampleDraft(t *testing.T) domain.Document {
	t.Helper()
	doc := domain.NewDocument("store-1")
	doc.Supplier = &domain.SupplierRef{ID: "sup-1", Name: "Acme"}
	line, err := domain.NewLine("", domain.LineInput{
		CatalogRef: "drug-1",
		Quantity:   decimal.NewFromInt(10),
		UnitPrice:  decimal.RequireFromString("5.00"),
		TaxRate:    taxdomain.Rate12,
	})
	require.NoError(t, err)
	doc.Lines = []domain.Line{line}
	require.NoError(t, doc.Recompute())
	return doc
}

func TestKey(t *testing.T) {
	assert.Equal(t, "po_draft:store-1:_new", Key("store-1", ""))
	assert.Equal(t, "po_draft:store-1:po-9", Key(" store-1 ", "po-9"))

	assert.NotEqual(t, Key("a:b", "c"), Key("a", "b:c"))
	assert.NotEqual(t, Key("s1", ""), Key("s1", "new"))
	assert.NotEqual(t, Key("s1", ""), Key("s1", "_new"))
	assert.Equal(t, "po_draft:a%3Ab:c", Key("a:b", "c"))
	assert.Equal(t, "po_draft:s1:%5Fnew", Key("s1", "_new"))
}

func TestGormStore_KeysTreatsWildcardsLiterally(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	store, _ := setupGormStore(t, fc, 0)
	ctx := context.Background()
	doc := sampleDraft(t)

	for _, id := range []string{"st_1", "stx1", "st%", "st%9", "ST_1"} {
		require.NoError(t, store.Save(ctx, Key(id, ""), doc))
	}

	keys, err := store.Keys(ctx, "st_1")
	require.NoError(t, err)
	assert.Equal(t, []string{Key("st_1", "")}, keys)

	keys, err = store.Keys(ctx, "st%")
	require.NoError(t, err)
	assert.Equal(t, []string{Key("st%", "")}, keys)
}

func TestGormStore_RoundTripAndUpsert(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	store, _ := setupGormStore(t, fc, 0)
	ctx := context.Background()
	key := Key("store-1", "")

	missing, err := store.Load(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, missing)

	doc := sampleDraft(t)
	require.NoError(t, store.Save(ctx, key, doc))

	doc.Meta.Notes = "second write"
	require.NoError(t, store.Save(ctx, key, doc))

	loaded, err := store.Load(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, doc.Equal(*loaded))

	keys, err := store.Keys(ctx, "store-1")
	require.NoError(t, err)
	assert.Equal(t, []string{key}, keys)

	require.NoError(t, store.Delete(ctx, key))
	gone, err := store.Load(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestGormStore_CorruptEntryIsDeleted(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	store, db := setupGormStore(t, fc, 0)
	ctx := context.Background()
	key := Key("store-1", "")

	require.NoError(t, db.Create(&DraftEntry{
		DraftKey:  key,
		Body:      datatypes.JSON(`{"store_id":"store-1","status":"draft","lines":[{"id":"x","quantity":"-1","unit_price":"1","discount_percent":"0","tax_rate":5}]}`),
		UpdatedAt: fc.Now(),
	}).Error)

	doc, err := store.Load(ctx, key)
	assert.Nil(t, doc)
	assert.True(t, errors.Is(err, domain.ErrCorruptDraft))

	var count int64
	require.NoError(t, db.Model(&DraftEntry{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestGormStore_ExpiredEntryIsAbsent(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	store, _ := setupGormStore(t, fc, time.Hour)
	ctx := context.Background()
	key := Key("store-1", "po-1")

	require.NoError(t, store.Save(ctx, key, sampleDraft(t)))
	fc.Advance(time.Hour)

	doc, err := store.Load(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestGormStore_PurgeExpired(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	store, db := setupGormStore(t, fc, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, Key("store-1", "po-1"), sampleDraft(t)))
	require.NoError(t, store.Save(ctx, Key("store-1", "po-2"), sampleDraft(t)))
	fc.Advance(30 * time.Minute)
	require.NoError(t, store.Save(ctx, Key("store-1", ""), sampleDraft(t)))
	fc.Advance(30 * time.Minute)

	removed, err := store.PurgeExpired(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	removed, err = store.PurgeExpired(ctx, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	keys, err := store.Keys(ctx, "store-1")
	require.NoError(t, err)
	assert.Equal(t, []string{Key("store-1", "")}, keys)

	var count int64
	require.NoError(t, db.Model(&DraftEntry{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

type failingStore struct{ domain.DraftStore }

func (failingStore) Save(context.Context, string, domain.Document) error {
	return errors.New("quota exceeded")
}

func TestPersister_FailureIsReportedNotReturned(t *testing.T) {
	var reported error
	p := NewPersister(failingStore{}, "k", zap.NewNop(), nil, func(err error) { reported = err })

	assert.False(t, p.Persist(sampleDraft(t)))
	assert.EqualError(t, reported, "quota exceeded")
}

func TestRedisStore_RoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	store := NewRedisStore(client, time.Minute, zap.NewNop())
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	key := Key("store-test", "")
	t.Cleanup(func() { _ = store.Delete(ctx, key) })

	doc := sampleDraft(t)
	require.NoError(t, store.Save(ctx, key, doc))
	loaded, err := store.Load(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, doc.Equal(*loaded))

	require.NoError(t, client.Set(ctx, key, "{", 0).Err())
	_, err = store.Load(ctx, key)
	assert.ErrorIs(t, err, domain.ErrCorruptDraft)
	exists, err := client.Exists(ctx, key).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}
