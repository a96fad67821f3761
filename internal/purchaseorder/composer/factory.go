package composer

import (
	"context"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/DikshantJangra/hoperxpharma-sub011/internal/cache"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/clock"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/config"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/observability/metrics"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/domain"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/syncer"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/validation"
)

type Params struct {
	fx.In

	Lifecycle   fx.Lifecycle `optional:"true"`
	Config      *config.ComposerConfigHolder
	Authority   domain.Authority
	Drafts      domain.DraftStore
	Clock       clock.Scheduler
	Log         *zap.Logger
	Metrics     *metrics.Metrics      `optional:"true"`
	Suggestions cache.SuggestionCache `optional:"true"`
}

// Factory builds composers with the settings current at construction time.
type Factory struct {
	cfg         *config.ComposerConfigHolder
	authority   domain.Authority
	drafts      domain.DraftStore
	clock       clock.Scheduler
	log         *zap.Logger
	baseLog     *zap.Logger
	metrics     *metrics.Metrics
	suggestions cache.SuggestionCache

	mu   sync.Mutex
	open map[*Composer]struct{}
}

func NewFactory(p Params) *Factory {
	holder := p.Config
	if holder == nil {
		holder = config.NewStaticComposerConfigHolder(config.DefaultComposerConfig())
	}
	sched := p.Clock
	if sched == nil {
		sched = clock.New()
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	suggestions := p.Suggestions
	if suggestions == nil {
		suggestions = cache.NewSuggestionCache(sched, holder.Get().SuggestionTTL)
	}

	f := &Factory{
		cfg:         holder,
		authority:   p.Authority,
		drafts:      p.Drafts,
		clock:       sched,
		log:         log.Named("purchaseorder.composer"),
		baseLog:     log,
		metrics:     p.Metrics,
		suggestions: suggestions,
		open:        map[*Composer]struct{}{},
	}
	if err := f.metrics.ObserveOpenSessions(f.openCount); err != nil {
		f.log.Warn("open session gauge unavailable", zap.Error(err))
	}
	if p.Lifecycle != nil {
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(context.Context) error {
				f.CloseAll()
				return nil
			},
		})
	}
	return f
}

// New returns an unopened composer for storeID. listener may be nil.
func (f *Factory) New(storeID string, listener domain.Listener) (*Composer, error) {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return nil, domain.ErrInvalidStore
	}
	if listener == nil {
		listener = domain.NopListener{}
	}

	settings := f.cfg.Get()
	pipeline, err := validation.FromConfig(settings)
	if err != nil {
		return nil, err
	}

	c := &Composer{
		storeID:     storeID,
		doc:         domain.NewDocument(storeID),
		lastPrices:  map[string]decimal.Decimal{},
		authority:   f.authority,
		drafts:      f.drafts,
		pipeline:    pipeline,
		suggestions: f.suggestions,
		listener:    listener,
		log:         f.log.With(zap.String("store_id", storeID)),
		metrics:     f.metrics,
		onClose:     f.forget,
	}
	c.sync, err = syncer.New(syncer.Options{
		Authority:     f.authority,
		Source:        c,
		Scheduler:     f.clock,
		AutosaveDelay: settings.AutosaveDelay,
		Listener:      listener,
		Log:           f.baseLog.With(zap.String("store_id", storeID)),
		Metrics:       f.metrics,
	})
	if err != nil {
		return nil, err
	}
	c.validate = clock.NewDebouncer(f.clock, settings.ValidationDelay, c.runValidation)

	f.mu.Lock()
	f.open[c] = struct{}{}
	f.mu.Unlock()
	return c, nil
}

// CloseAll closes every composer that is still open.
func (f *Factory) CloseAll() {
	f.mu.Lock()
	open := make([]*Composer, 0, len(f.open))
	for c := range f.open {
		open = append(open, c)
	}
	f.mu.Unlock()

	for _, c := range open {
		c.Close()
	}
}

func (f *Factory) forget(c *Composer) {
	f.mu.Lock()
	delete(f.open, c)
	f.mu.Unlock()
}

func (f *Factory) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.open)
}
