package draftstore

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/DikshantJangra/hoperxpharma-sub011/internal/observability/metrics"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/domain"
)

const writeTimeout = 2 * time.Second

// Persister writes every accepted mutation to the store under a fixed key.
// Write failures never fail the mutation; they are logged and reported
// through onFailure.
type Persister struct {
	store     domain.DraftStore
	key       string
	log       *zap.Logger
	metrics   *metrics.Metrics
	onFailure func(error)
}

func NewPersister(store domain.DraftStore, key string, log *zap.Logger, m *metrics.Metrics, onFailure func(error)) *Persister {
	if log == nil {
		log = zap.NewNop()
	}
	return &Persister{
		store:     store,
		key:       key,
		log:       log.Named("draftstore.persister").With(zap.String("draft_key", key)),
		metrics:   m,
		onFailure: onFailure,
	}
}

func (p *Persister) Key() string { return p.key }

// Persist writes doc and reports whether it was stored.
func (p *Persister) Persist(doc domain.Document) bool {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := p.store.Save(ctx, p.key, doc); err != nil {
		p.log.Warn("draft write failed", zap.Error(err))
		p.metrics.RecordDraftStoreFailure(ctx, "write")
		if p.onFailure != nil {
			p.onFailure(err)
		}
		return false
	}
	return true
}

// Clear removes the entry.
func (p *Persister) Clear(ctx context.Context) error {
	if err := p.store.Delete(ctx, p.key); err != nil {
		p.log.Warn("draft delete failed", zap.Error(err))
		p.metrics.RecordDraftStoreFailure(ctx, "delete")
		return err
	}
	return nil
}
