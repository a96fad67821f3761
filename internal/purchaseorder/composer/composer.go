// Package composer is the single owner of an open purchase order. It applies
// edits, recomputes totals, persists every change locally and hands remote
// synchronization to the sync coordinator.
package composer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/DikshantJangra/hoperxpharma-sub011/internal/cache"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/clock"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/draftstore"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/observability/metrics"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/domain"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/lifecycle"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/syncer"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/validation"
	taxdomain "github.com/DikshantJangra/hoperxpharma-sub011/internal/tax/domain"
)

// OpenRequest selects the document a composer works on. An empty OrderID
// starts a new document, restoring the store's unsaved draft if one exists.
type OpenRequest struct {
	OrderID string
}

type OpenResult struct {
	Document domain.Document
	Restored bool
}

// Composer edits one purchase order. All methods are safe for concurrent
// use, but edits to one document are applied one at a time.
type Composer struct {
	mu sync.Mutex

	storeID  string
	doc      domain.Document
	rev      uint64
	opened   bool
	closed   bool
	inFlight bool

	lastPrices map[string]decimal.Decimal

	authority   domain.Authority
	drafts      domain.DraftStore
	pipeline    *validation.Pipeline
	sync        *syncer.Coordinator
	persister   *draftstore.Persister
	validate    *clock.Debouncer
	suggestions cache.SuggestionCache
	listener    domain.Listener
	log         *zap.Logger
	metrics     *metrics.Metrics
	onClose     func(*Composer)
}

// Open loads the requested document, or starts a new one. It may be called
// once per composer.
func (c *Composer) Open(ctx context.Context, req OpenRequest) (OpenResult, error) {
	c.mu.Lock()
	closed, opened := c.closed, c.opened
	c.mu.Unlock()
	if closed {
		return OpenResult{}, domain.ErrComposerClosed
	}
	if opened {
		return OpenResult{}, domain.ErrComposerAlreadyOpen
	}

	orderID := strings.TrimSpace(req.OrderID)
	var (
		doc      domain.Document
		restored bool
		status   = domain.SaveStatusSaved
		notices  []domain.Notice
	)
	if orderID != "" {
		order, err := c.authority.Get(ctx, orderID)
		if err != nil {
			return OpenResult{}, err
		}
		doc, err = domain.DocumentFromRemote(order)
		if err != nil {
			return OpenResult{}, fmt.Errorf("load order %s: %w", orderID, err)
		}
		if doc.StoreID == "" {
			doc.StoreID = c.storeID
		}
	} else {
		doc = domain.NewDocument(c.storeID)
		if draft := c.restore(ctx); draft != nil {
			doc = *draft
			restored = true
			status = domain.SaveStatusUnsaved
			notices = append(notices, domain.Notice{Kind: domain.NoticeDraftRestored, Message: "Unsaved purchase order restored"})
		}
	}

	key := draftstore.Key(c.storeID, orderID)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return OpenResult{}, domain.ErrComposerClosed
	}
	if c.opened {
		c.mu.Unlock()
		return OpenResult{}, domain.ErrComposerAlreadyOpen
	}
	c.doc = doc
	c.rev = 0
	c.opened = true
	c.persister = draftstore.NewPersister(c.drafts, key, c.log, c.metrics, nil)
	out := c.doc.Clone()
	c.mu.Unlock()

	c.sync.Reset(out, 0, status)
	c.validate.Trigger()

	c.log.Info("purchase order opened",
		zap.String("draft_key", key),
		zap.String("order_id", out.ID),
		zap.Bool("restored", restored),
	)
	for _, n := range notices {
		c.listener.Notice(n)
	}
	return OpenResult{Document: out, Restored: restored}, nil
}

func (c *Composer) restore(ctx context.Context) *domain.Document {
	draft, err := c.drafts.Load(ctx, draftstore.Key(c.storeID, ""))
	if err != nil {
		c.log.Warn("draft restore failed; starting empty", zap.Error(err))
		c.metrics.RecordDraftStoreFailure(ctx, "read")
		return nil
	}
	if draft == nil || !lifecycle.Editable(draft.Status) {
		return nil
	}
	if draft.StoreID != "" && draft.StoreID != c.storeID {
		return nil
	}
	draft.StoreID = c.storeID
	return draft
}

// DraftKey returns the local persistence key, fixed when the document was opened.
func (c *Composer) DraftKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.persister == nil {
		return ""
	}
	return c.persister.Key()
}

func (c *Composer) AddLine(in domain.LineInput) (domain.Line, error) {
	var added domain.Line
	err := c.mutate(func(doc *domain.Document) error {
		if in.LastPrice == nil {
			if last, ok := c.lastPrices[strings.TrimSpace(in.CatalogRef)]; ok {
				in.LastPrice = &last
			}
		}
		line, err := domain.NewLine("", in)
		if err != nil {
			return err
		}
		doc.Lines = append(doc.Lines, line)
		added = line
		return nil
	})
	return added, err
}

func (c *Composer) UpdateLine(id string, patch domain.LinePatch) (domain.Line, error) {
	var updated domain.Line
	err := c.mutate(func(doc *domain.Document) error {
		idx := doc.LineIndex(id)
		if idx < 0 {
			return domain.ErrLineNotFound
		}
		if patch.CatalogRef != nil && patch.LastPrice == nil {
			if last, ok := c.lastPrices[strings.TrimSpace(*patch.CatalogRef)]; ok {
				patch.LastPrice = &last
			}
		}
		line, err := doc.Lines[idx].Apply(patch)
		if err != nil {
			return err
		}
		doc.Lines[idx] = line
		updated = line
		return nil
	})
	return updated, err
}

func (c *Composer) RemoveLine(id string) error {
	return c.mutate(func(doc *domain.Document) error {
		idx := doc.LineIndex(id)
		if idx < 0 {
			return domain.ErrLineNotFound
		}
		doc.Lines = append(doc.Lines[:idx], doc.Lines[idx+1:]...)
		return nil
	})
}

// MoveLine places the line at newIndex (0-based) in display order.
func (c *Composer) MoveLine(id string, newIndex int) error {
	return c.mutate(func(doc *domain.Document) error {
		idx := doc.LineIndex(id)
		if idx < 0 {
			return domain.ErrLineNotFound
		}
		if newIndex < 0 || newIndex >= len(doc.Lines) {
			return domain.ErrInvalidPosition
		}
		line := doc.Lines[idx]
		rest := append(doc.Lines[:idx:idx], doc.Lines[idx+1:]...)
		lines := make([]domain.Line, 0, len(doc.Lines))
		lines = append(lines, rest[:newIndex]...)
		lines = append(lines, line)
		lines = append(lines, rest[newIndex:]...)
		doc.Lines = lines
		return nil
	})
}

// SetSupplier sets the counterparty. nil or an empty id clears it.
func (c *Composer) SetSupplier(supplier *domain.SupplierRef) error {
	return c.mutate(func(doc *domain.Document) error {
		if supplier == nil || strings.TrimSpace(supplier.ID) == "" {
			doc.Supplier = nil
			return nil
		}
		doc.Supplier = &domain.SupplierRef{
			ID:   strings.TrimSpace(supplier.ID),
			Name: strings.TrimSpace(supplier.Name),
		}
		return nil
	})
}

func (c *Composer) SetMeta(meta domain.Meta) error {
	return c.mutate(func(doc *domain.Document) error {
		doc.Meta = domain.Meta{
			PaymentTerms: strings.TrimSpace(meta.PaymentTerms),
			Notes:        meta.Notes,
		}
		if meta.ExpectedDeliveryDate != nil {
			t := meta.ExpectedDeliveryDate.UTC()
			doc.Meta.ExpectedDeliveryDate = &t
		}
		return nil
	})
}

// Document returns a deep copy of the current document.
func (c *Composer) Document() domain.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc.Clone()
}

func (c *Composer) Totals() taxdomain.Totals {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc.Clone().Totals()
}

// Validation evaluates the current document synchronously.
func (c *Composer) Validation() domain.ValidationResult {
	c.mu.Lock()
	doc := c.doc.Clone()
	c.mu.Unlock()
	return c.pipeline.Validate(doc)
}

func (c *Composer) SaveStatus() domain.SaveStatus {
	return c.sync.SaveStatus()
}

// SaveDraft creates or updates the document on the authority immediately.
func (c *Composer) SaveDraft(ctx context.Context) (domain.WriteResult, error) {
	c.mu.Lock()
	if err := c.checkMutableLocked(); err != nil {
		c.mu.Unlock()
		return domain.WriteResult{}, err
	}
	c.mu.Unlock()
	return c.sync.Save(ctx)
}

// Send dispatches the document to the supplier.
func (c *Composer) Send(ctx context.Context, req domain.SendRequest) (domain.Document, error) {
	return c.transition(ctx, lifecycle.EventSend, func(ctx context.Context) (domain.TransitionResult, error) {
		return c.sync.Send(ctx, req)
	})
}

// RequestApproval submits the document to the named approvers.
func (c *Composer) RequestApproval(ctx context.Context, req domain.ApprovalRequest) (domain.Document, error) {
	return c.transition(ctx, lifecycle.EventRequestApproval, func(ctx context.Context) (domain.TransitionResult, error) {
		return c.sync.RequestApproval(ctx, req)
	})
}

// transition checks the lifecycle gate and validation before any network
// call. The document is left unchanged when the request fails.
func (c *Composer) transition(ctx context.Context, ev lifecycle.Event, call func(context.Context) (domain.TransitionResult, error)) (domain.Document, error) {
	c.mu.Lock()
	if err := c.checkUsableLocked(); err != nil {
		c.mu.Unlock()
		return domain.Document{}, err
	}
	if c.inFlight {
		c.mu.Unlock()
		return domain.Document{}, domain.ErrTransitionInFlight
	}
	next, err := lifecycle.Next(c.doc.Status, ev)
	if err != nil {
		c.mu.Unlock()
		return domain.Document{}, err
	}
	if lifecycle.RequiresValidation(ev) {
		if result := c.pipeline.Validate(c.doc); !result.Valid() {
			c.mu.Unlock()
			c.metrics.RecordTransition(ctx, string(ev), "invalid")
			return domain.Document{}, &domain.ValidationError{Result: result}
		}
	}
	c.inFlight = true
	c.mu.Unlock()

	res, err := call(ctx)

	c.mu.Lock()
	c.inFlight = false
	if err != nil {
		c.mu.Unlock()
		return domain.Document{}, err
	}
	status := res.Status
	if !status.Valid() {
		status = next
	}
	c.doc.Status = status
	if res.Version > 0 {
		v := res.Version
		c.doc.Version = &v
	}
	out := c.doc.Clone()
	persister := c.persister
	c.mu.Unlock()

	c.validate.Cancel()
	if err := persister.Clear(ctx); err != nil {
		c.listener.Notice(domain.Notice{Kind: domain.NoticeDraftStoreFailed, Message: "Local draft could not be removed", Err: err})
	}

	kind := domain.NoticeSent
	msg := fmt.Sprintf("Purchase order %s sent", out.Number)
	if ev == lifecycle.EventRequestApproval {
		kind = domain.NoticeApprovalRequested
		msg = fmt.Sprintf("Purchase order %s submitted for approval", out.Number)
	}
	c.listener.Notice(domain.Notice{Kind: kind, Message: msg})
	return out, nil
}

// MarkApproved records an approval granted on the authority.
func (c *Composer) MarkApproved() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkUsableLocked(); err != nil {
		return err
	}
	if c.inFlight {
		return domain.ErrTransitionInFlight
	}
	next, err := lifecycle.Next(c.doc.Status, lifecycle.EventApprove)
	if err != nil {
		return err
	}
	c.doc.Status = next
	return nil
}

// Discard abandons the document: pending timers are cancelled and the local
// draft entry is removed.
func (c *Composer) Discard(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrComposerClosed
	}
	persister := c.persister
	c.mu.Unlock()

	c.Close()
	if persister == nil {
		return nil
	}
	return persister.Clear(ctx)
}

// Close cancels pending timers and rejects further calls. The local draft
// entry is kept so the next session can restore it.
func (c *Composer) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.validate.Stop()
	c.sync.Close()
	if c.onClose != nil {
		c.onClose(c)
	}
}

// LoadSuggestions returns advisory lines for the current supplier. Results
// are cached per store and supplier.
func (c *Composer) LoadSuggestions(ctx context.Context) ([]domain.Suggestion, error) {
	c.mu.Lock()
	if err := c.checkUsableLocked(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	supplierID := ""
	if c.doc.Supplier != nil {
		supplierID = c.doc.Supplier.ID
	}
	c.mu.Unlock()

	suggestions, ok := c.suggestions.Get(c.storeID, supplierID)
	if !ok {
		var err error
		suggestions, err = c.authority.Suggestions(ctx, domain.SuggestionQuery{StoreID: c.storeID, SupplierID: supplierID})
		if err != nil {
			c.log.Warn("suggestions unavailable", zap.String("supplier_id", supplierID), zap.Error(err))
			return nil, err
		}
		c.suggestions.Set(c.storeID, supplierID, suggestions)
	}

	c.mu.Lock()
	for _, s := range suggestions {
		if s.CatalogRef != "" && !s.UnitPrice.IsNegative() {
			c.lastPrices[s.CatalogRef] = s.UnitPrice
		}
	}
	c.mu.Unlock()
	return suggestions, nil
}

// ApplySuggestions adds the suggested lines in one edit. A suggestion for an
// item already on the order increases that line's quantity.
func (c *Composer) ApplySuggestions(suggestions []domain.Suggestion) ([]domain.Line, error) {
	var touched []domain.Line
	err := c.mutate(func(doc *domain.Document) error {
		touched = touched[:0]
		for _, s := range suggestions {
			ref := strings.TrimSpace(s.CatalogRef)
			if idx := indexByCatalogRef(doc.Lines, ref); ref != "" && idx >= 0 {
				qty := doc.Lines[idx].Quantity.Add(s.Quantity)
				line, err := doc.Lines[idx].Apply(domain.LinePatch{Quantity: &qty})
				if err != nil {
					return err
				}
				doc.Lines[idx] = line
				touched = append(touched, line)
				continue
			}
			price := s.UnitPrice
			line, err := domain.NewLine("", domain.LineInput{
				CatalogRef:  ref,
				Description: s.Description,
				Quantity:    s.Quantity,
				UnitPrice:   s.UnitPrice,
				TaxRate:     s.TaxRate,
				LastPrice:   &price,
			})
			if err != nil {
				return err
			}
			doc.Lines = append(doc.Lines, line)
			touched = append(touched, line)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return touched, nil
}

func indexByCatalogRef(lines []domain.Line, ref string) int {
	for i, line := range lines {
		if line.CatalogRef == ref {
			return i
		}
	}
	return -1
}

// SaveAsTemplate stores the current supplier and lines as a named template.
func (c *Composer) SaveAsTemplate(ctx context.Context, name, description string) (domain.TemplateResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.TemplateResult{}, domain.ErrInvalidTemplateName
	}
	c.mu.Lock()
	err := c.checkUsableLocked()
	c.mu.Unlock()
	if err != nil {
		return domain.TemplateResult{}, err
	}
	return c.sync.SaveTemplate(ctx, name, strings.TrimSpace(description))
}

// LoadTemplate replaces the supplier and lines of the draft with the
// template's. Header fields and remote identity are kept.
func (c *Composer) LoadTemplate(ctx context.Context, templateID string) (domain.Document, error) {
	c.mu.Lock()
	err := c.checkMutableLocked()
	c.mu.Unlock()
	if err != nil {
		return domain.Document{}, err
	}

	body, err := c.authority.LoadTemplate(ctx, strings.TrimSpace(templateID))
	if err != nil {
		return domain.Document{}, err
	}
	for i := range body.Lines {
		body.Lines[i].LineID = ""
	}
	lines, err := domain.LinesFromPayload(body.Lines)
	if err != nil {
		return domain.Document{}, fmt.Errorf("template %s: %w", templateID, err)
	}

	err = c.mutate(func(doc *domain.Document) error {
		doc.Lines = lines
		if body.SupplierID != "" {
			doc.Supplier = &domain.SupplierRef{ID: body.SupplierID, Name: body.SupplierName}
		}
		return nil
	})
	if err != nil {
		return domain.Document{}, err
	}
	return c.Document(), nil
}

// mutate applies fn to a copy of the document and, when it succeeds and the
// totals recompute, installs the copy. The local write happens before
// mutate returns; remote sync and validation observers run afterwards.
func (c *Composer) mutate(fn func(doc *domain.Document) error) error {
	c.mu.Lock()
	if err := c.checkMutableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	next := c.doc.Clone()
	if err := fn(&next); err != nil {
		c.mu.Unlock()
		return err
	}
	if err := next.Recompute(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.doc = next
	c.rev++
	snapshot, rev := c.doc.Clone(), c.rev
	stored := c.persister.Persist(snapshot)
	c.mu.Unlock()

	if !stored {
		c.listener.Notice(domain.Notice{Kind: domain.NoticeDraftStoreFailed, Message: "Changes could not be saved on this device"})
	}
	c.sync.DocumentChanged(snapshot, rev)
	c.validate.Trigger()
	return nil
}

// Snapshot implements syncer.Source.
func (c *Composer) Snapshot() (domain.Document, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc.Clone(), c.rev
}

// Adopt implements syncer.Source. The acknowledgement is written to the
// local draft so a restored session carries the remote identity.
func (c *Composer) Adopt(ack syncer.Ack) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.doc.ID = ack.ID
	c.doc.Number = ack.Number
	v := ack.Version
	c.doc.Version = &v
	if !c.closed && c.persister != nil && lifecycle.Editable(c.doc.Status) {
		return c.persister.Persist(c.doc.Clone())
	}
	return true
}

func (c *Composer) runValidation() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	doc := c.doc.Clone()
	c.mu.Unlock()

	c.listener.ValidationChanged(c.pipeline.Validate(doc))
}

func (c *Composer) checkUsableLocked() error {
	if c.closed {
		return domain.ErrComposerClosed
	}
	if !c.opened {
		return domain.ErrComposerNotOpen
	}
	return nil
}

func (c *Composer) checkMutableLocked() error {
	if err := c.checkUsableLocked(); err != nil {
		return err
	}
	if c.inFlight {
		return domain.ErrTransitionInFlight
	}
	if !lifecycle.Editable(c.doc.Status) {
		return domain.ErrDocumentLocked
	}
	return nil
}
