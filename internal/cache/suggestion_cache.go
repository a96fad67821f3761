package cache

import (
	"strings"
	"time"

	"github.com/DikshantJangra/hoperxpharma-sub011/internal/clock"
	podomain "github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/domain"
)

const defaultSuggestionTTL = 2 * time.Minute

// SuggestionCache keeps authority suggestions per store and supplier.
type SuggestionCache interface {
	Get(storeID, supplierID string) ([]podomain.Suggestion, bool)
	Set(storeID, supplierID string, suggestions []podomain.Suggestion)
	Invalidate(storeID, supplierID string)
}

type suggestionCache struct {
	items Cache[string, []podomain.Suggestion]
	ttl   time.Duration
}

// NewSuggestionCache returns an in-memory cache. ttl <= 0 selects the default.
func NewSuggestionCache(c clock.Clock, ttl time.Duration) SuggestionCache {
	if ttl <= 0 {
		ttl = defaultSuggestionTTL
	}
	return &suggestionCache{
		items: NewTTLCache[string, []podomain.Suggestion](c),
		ttl:   ttl,
	}
}

func (c *suggestionCache) Get(storeID, supplierID string) ([]podomain.Suggestion, bool) {
	items, ok := c.items.Get(cacheKey(storeID, supplierID))
	if !ok {
		return nil, false
	}
	return append([]podomain.Suggestion(nil), items...), true
}

func (c *suggestionCache) Set(storeID, supplierID string, suggestions []podomain.Suggestion) {
	c.items.Set(cacheKey(storeID, supplierID), append([]podomain.Suggestion(nil), suggestions...), c.ttl)
}

func (c *suggestionCache) Invalidate(storeID, supplierID string) {
	c.items.Delete(cacheKey(storeID, supplierID))
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		values = append(values, strings.ToLower(strings.TrimSpace(part)))
	}
	return strings.Join(values, "|")
}
