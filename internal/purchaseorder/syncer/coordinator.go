// Package syncer reconciles an open purchase order with the authority.
package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DikshantJangra/hoperxpharma-sub011/internal/clock"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/observability/metrics"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/domain"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/lifecycle"
)

const (
	defaultAutosaveDelay  = 5 * time.Second
	defaultRequestTimeout = 30 * time.Second
)

// Ack is the authority's acknowledgement of a write.
type Ack struct {
	ID      string
	Number  string
	Version int64
}

// Source owns the document. Snapshot returns a deep copy and the revision
// it reflects; Adopt records an acknowledgement without counting as a
// mutation and reports whether the local draft copy was updated. Neither may
// call back into the Coordinator or the listener.
type Source interface {
	Snapshot() (domain.Document, uint64)
	Adopt(ack Ack) bool
}

type Options struct {
	Authority      domain.Authority
	Source         Source
	Scheduler      clock.Scheduler
	AutosaveDelay  time.Duration
	RequestTimeout time.Duration
	Listener       domain.Listener
	Log            *zap.Logger
	Metrics        *metrics.Metrics
}

// Coordinator maintains the save status of one document, runs the debounced
// autosave and performs manual saves and lifecycle requests.
//
// Lock order: writeMu, then the Source's lock, then mu. Listener callbacks
// are queued while locks are held and delivered once all of them are
// released, so a listener may call back into the Coordinator.
type Coordinator struct {
	mu      sync.Mutex
	writeMu sync.Mutex

	authority domain.Authority
	source    Source
	autosave  *clock.Debouncer
	timeout   time.Duration
	listener  domain.Listener
	log       *zap.Logger
	metrics   *metrics.Metrics

	status    domain.SaveStatus
	latestRev uint64
	persisted bool
	closed    bool

	outbox     []func(domain.Listener)
	delivering bool
}

func New(opts Options) (*Coordinator, error) {
	if opts.Authority == nil {
		return nil, errors.New("syncer: authority is required")
	}
	if opts.Source == nil {
		return nil, errors.New("syncer: source is required")
	}
	sched := opts.Scheduler
	if sched == nil {
		sched = clock.New()
	}
	delay := opts.AutosaveDelay
	if delay <= 0 {
		delay = defaultAutosaveDelay
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	listener := opts.Listener
	if listener == nil {
		listener = domain.NopListener{}
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	c := &Coordinator{
		authority: opts.Authority,
		source:    opts.Source,
		timeout:   timeout,
		listener:  listener,
		log:       log.Named("purchaseorder.sync"),
		metrics:   opts.Metrics,
		status:    domain.SaveStatusSaved,
	}
	c.autosave = clock.NewDebouncer(sched, delay, c.runAutosave)
	return c, nil
}

// Reset starts tracking a freshly opened document. A restored draft that
// already has a remote identity is scheduled for autosave.
func (c *Coordinator) Reset(doc domain.Document, rev uint64, status domain.SaveStatus) {
	c.autosave.Cancel()

	c.mu.Lock()
	c.latestRev = rev
	c.persisted = doc.Persisted()
	c.setStatusLocked(status)
	schedule := status == domain.SaveStatusUnsaved && c.persisted && lifecycle.Editable(doc.Status)
	c.mu.Unlock()

	if schedule {
		c.autosave.Trigger()
	}
	c.flush()
}

// DocumentChanged marks the document unsaved and re-arms the autosave timer.
func (c *Coordinator) DocumentChanged(doc domain.Document, rev uint64) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if rev > c.latestRev {
		c.latestRev = rev
	}
	c.persisted = doc.Persisted()
	c.setStatusLocked(domain.SaveStatusUnsaved)
	persisted := c.persisted
	c.mu.Unlock()

	if persisted {
		c.autosave.Trigger()
	}
	c.flush()
}

func (c *Coordinator) SaveStatus() domain.SaveStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// AutosavePending reports whether a debounced autosave is armed.
func (c *Coordinator) AutosavePending() bool {
	return c.autosave.Pending()
}

// SetAutosaveDelay applies to the next mutation.
func (c *Coordinator) SetAutosaveDelay(d time.Duration) {
	if d > 0 {
		c.autosave.SetDelay(d)
	}
}

// Close cancels the pending autosave. Calls after Close return ErrComposerClosed.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.autosave.Stop()
}

// Save performs an immediate create-or-update of the current document.
// Failures revert the status to unsaved and are returned to the caller.
func (c *Coordinator) Save(ctx context.Context) (domain.WriteResult, error) {
	if err := c.checkOpen(); err != nil {
		return domain.WriteResult{}, err
	}
	c.autosave.Cancel()

	defer c.flush()
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.saveLocked(ctx)
}

func (c *Coordinator) saveLocked(ctx context.Context) (domain.WriteResult, error) {
	doc, rev := c.source.Snapshot()
	if !lifecycle.Editable(doc.Status) {
		return domain.WriteResult{}, domain.ErrDocumentLocked
	}
	c.setStatus(domain.SaveStatusSyncing)

	payload := domain.BuildPayload(doc)
	var (
		res domain.WriteResult
		err error
		op  = "update"
	)
	if doc.Persisted() {
		res, err = c.authority.Update(ctx, doc.ID, payload)
	} else {
		op = "create"
		res, err = c.authority.Create(ctx, payload)
	}
	if err != nil {
		c.metrics.RecordSave(ctx, "failure")
		c.log.Warn("manual save failed", zap.String("operation", op), zap.String("order_id", doc.ID), zap.Error(err))
		c.setStatus(domain.SaveStatusUnsaved)
		c.notify(domain.Notice{Kind: domain.NoticeSaveFailed, Message: "Could not save the purchase order", Err: err})
		return domain.WriteResult{}, err
	}
	if res.ID == "" {
		res.ID = doc.ID
	}
	if res.Number == "" {
		res.Number = doc.Number
	}
	c.metrics.RecordSave(ctx, "success")
	c.log.Debug("purchase order saved", zap.String("operation", op), zap.String("order_id", res.ID), zap.Int64("version", res.Version))

	c.adopt(Ack{ID: res.ID, Number: res.Number, Version: res.Version})
	c.acknowledge(rev)
	return res, nil
}

// Send persists the document if needed and asks the authority to dispatch it.
func (c *Coordinator) Send(ctx context.Context, req domain.SendRequest) (domain.TransitionResult, error) {
	return c.transition(ctx, lifecycle.EventSend, func(ctx context.Context, id string) (domain.TransitionResult, error) {
		return c.authority.Send(ctx, id, req)
	})
}

// RequestApproval persists the document if needed and submits it for approval.
func (c *Coordinator) RequestApproval(ctx context.Context, req domain.ApprovalRequest) (domain.TransitionResult, error) {
	return c.transition(ctx, lifecycle.EventRequestApproval, func(ctx context.Context, id string) (domain.TransitionResult, error) {
		return c.authority.RequestApproval(ctx, id, req)
	})
}

func (c *Coordinator) transition(ctx context.Context, ev lifecycle.Event, call func(context.Context, string) (domain.TransitionResult, error)) (domain.TransitionResult, error) {
	if err := c.checkOpen(); err != nil {
		return domain.TransitionResult{}, err
	}
	c.autosave.Cancel()

	defer c.flush()
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	doc, _ := c.source.Snapshot()
	if lifecycle.Editable(doc.Status) && (!doc.Persisted() || c.SaveStatus() != domain.SaveStatusSaved) {
		if _, err := c.saveLocked(ctx); err != nil {
			c.metrics.RecordTransition(ctx, string(ev), "save_failed")
			return domain.TransitionResult{}, err
		}
		doc, _ = c.source.Snapshot()
	}
	if !doc.Persisted() {
		return domain.TransitionResult{}, domain.ErrNotPersisted
	}

	res, err := call(ctx, doc.ID)
	if err != nil {
		c.metrics.RecordTransition(ctx, string(ev), "failure")
		c.log.Warn("transition failed", zap.String("event", string(ev)), zap.String("order_id", doc.ID), zap.Error(err))
		c.notify(domain.Notice{Kind: domain.NoticeTransitionFailed, Message: "The authority rejected the request", Err: err})
		return domain.TransitionResult{}, err
	}
	c.metrics.RecordTransition(ctx, string(ev), "success")
	c.log.Info("transition accepted",
		zap.String("event", string(ev)),
		zap.String("order_id", doc.ID),
		zap.String("status", string(res.Status)),
		zap.Int64("version", res.Version),
	)
	return res, nil
}

// SaveTemplate stores the current document shape as a reusable template.
func (c *Coordinator) SaveTemplate(ctx context.Context, name, description string) (domain.TemplateResult, error) {
	if err := c.checkOpen(); err != nil {
		return domain.TemplateResult{}, err
	}
	doc, _ := c.source.Snapshot()
	req := domain.TemplateRequest{
		Name:        name,
		Description: description,
		StoreID:     doc.StoreID,
		Lines:       domain.LinePayloads(doc.Lines),
	}
	if doc.Supplier != nil {
		req.SupplierID = doc.Supplier.ID
		req.SupplierName = doc.Supplier.Name
	}
	for i := range req.Lines {
		req.Lines[i].LineID = ""
	}
	res, err := c.authority.CreateTemplate(ctx, req)
	if err != nil {
		c.log.Warn("template save failed", zap.String("name", name), zap.Error(err))
		return domain.TemplateResult{}, err
	}
	return res, nil
}

func (c *Coordinator) runAutosave() {
	c.mu.Lock()
	skip := c.closed || c.status != domain.SaveStatusUnsaved || !c.persisted
	c.mu.Unlock()
	if skip {
		return
	}

	defer c.flush()
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	doc, rev := c.source.Snapshot()
	if !doc.Persisted() || !lifecycle.Editable(doc.Status) {
		return
	}
	c.mu.Lock()
	if c.closed || c.status != domain.SaveStatusUnsaved {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.setStatus(domain.SaveStatusSyncing)

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	res, err := c.authority.Autosave(ctx, doc.ID, domain.BuildPayload(doc))
	if err != nil {
		c.metrics.RecordAutosave(ctx, "failure")
		c.log.Warn("autosave failed", zap.String("order_id", doc.ID), zap.Error(err))
		c.setStatus(domain.SaveStatusUnsaved)
		c.notify(domain.Notice{Kind: domain.NoticeAutosaveFailed, Message: "Autosave failed; changes are kept locally", Err: err})
		return
	}
	c.metrics.RecordAutosave(ctx, "success")

	c.adopt(Ack{ID: doc.ID, Number: doc.Number, Version: res.Version})
	c.acknowledge(rev)
}

// acknowledge settles the status after a successful write of revision rev.
// Mutations made while the write was in flight keep the document unsaved
// and re-arm the autosave.
func (c *Coordinator) acknowledge(rev uint64) {
	c.mu.Lock()
	c.persisted = true
	if c.closed {
		c.mu.Unlock()
		return
	}
	next := domain.SaveStatusSaved
	if c.latestRev != rev {
		next = domain.SaveStatusUnsaved
	}
	c.setStatusLocked(next)
	c.mu.Unlock()

	if next == domain.SaveStatusUnsaved {
		c.autosave.Trigger()
	}
}

func (c *Coordinator) adopt(ack Ack) {
	if !c.source.Adopt(ack) {
		c.notify(domain.Notice{Kind: domain.NoticeDraftStoreFailed, Message: "Changes could not be saved on this device"})
	}
}

func (c *Coordinator) setStatus(status domain.SaveStatus) {
	c.mu.Lock()
	c.setStatusLocked(status)
	c.mu.Unlock()
}

// setStatusLocked records the status and queues the change for listeners.
// c.mu must be held.
func (c *Coordinator) setStatusLocked(status domain.SaveStatus) {
	if c.status == status {
		return
	}
	c.status = status
	c.outbox = append(c.outbox, func(l domain.Listener) { l.SaveStatusChanged(status) })
}

func (c *Coordinator) notify(n domain.Notice) {
	c.mu.Lock()
	c.outbox = append(c.outbox, func(l domain.Listener) { l.Notice(n) })
	c.mu.Unlock()
}

// flush delivers queued callbacks in order. It must be called with no
// Coordinator lock held. Callbacks queued by a listener that re-enters the
// Coordinator are delivered by the loop already running.
func (c *Coordinator) flush() {
	c.mu.Lock()
	if c.delivering {
		c.mu.Unlock()
		return
	}
	c.delivering = true
	for len(c.outbox) > 0 {
		batch := c.outbox
		c.outbox = nil
		c.mu.Unlock()
		for _, fn := range batch {
			fn(c.listener)
		}
		c.mu.Lock()
	}
	c.delivering = false
	c.mu.Unlock()
}

func (c *Coordinator) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrComposerClosed
	}
	return nil
}
