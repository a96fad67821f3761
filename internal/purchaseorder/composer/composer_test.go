package composer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/DikshantJangra/hoperxpharma-sub011/internal/clock"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/config"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/draftstore"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/domain"
	taxdomain "github.com/DikshantJangra/hoperxpharma-sub011/internal/tax/domain"
)

type mockAuthority struct {
	mock.Mock
}

func (m *mockAuthority) Create(ctx context.Context, payload domain.OrderPayload) (domain.WriteResult, error) {
	args := m.Called(ctx, payload)
	return args.Get(0).(domain.WriteResult), args.Error(1)
}

func (m *mockAuthority) Update(ctx context.Context, id string, payload domain.OrderPayload) (domain.WriteResult, error) {
	args := m.Called(ctx, id, payload)
	return args.Get(0).(domain.WriteResult), args.Error(1)
}

func (m *mockAuthority) Autosave(ctx context.Context, id string, payload domain.OrderPayload) (domain.AutosaveResult, error) {
	args := m.Called(ctx, id, payload)
	return args.Get(0).(domain.AutosaveResult), args.Error(1)
}

func (m *mockAuthority) Get(ctx context.Context, id string) (domain.RemoteOrder, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.RemoteOrder), args.Error(1)
}

func (m *mockAuthority) Send(ctx context.Context, id string, req domain.SendRequest) (domain.TransitionResult, error) {
	args := m.Called(ctx, id, req)
	return args.Get(0).(domain.TransitionResult), args.Error(1)
}

func (m *mockAuthority) RequestApproval(ctx context.Context, id string, req domain.ApprovalRequest) (domain.TransitionResult, error) {
	args := m.Called(ctx, id, req)
	return args.Get(0).(domain.TransitionResult), args.Error(1)
}

func (m *mockAuthority) Suggestions(ctx context.Context, query domain.SuggestionQuery) ([]domain.Suggestion, error) {
	args := m.Called(ctx, query)
	return args.Get(0).([]domain.Suggestion), args.Error(1)
}

func (m *mockAuthority) CreateTemplate(ctx context.Context, req domain.TemplateRequest) (domain.TemplateResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.TemplateResult), args.Error(1)
}

func (m *mockAuthority) LoadTemplate(ctx context.Context, id string) (domain.TemplateBody, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.TemplateBody), args.Error(1)
}

type recorder struct {
	mu          sync.Mutex
	statuses    []domain.SaveStatus
	validations []domain.ValidationResult
	notices     []domain.Notice
}

func (r *recorder) SaveStatusChanged(s domain.SaveStatus) {
	r.mu.Lock()
	r.statuses = append(r.statuses, s)
	r.mu.Unlock()
}

func (r *recorder) ValidationChanged(v domain.ValidationResult) {
	r.mu.Lock()
	r.validations = append(r.validations, v)
	r.mu.Unlock()
}

func (r *recorder) Notice(n domain.Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

func (r *recorder) noticeKinds() []domain.NoticeKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.NoticeKind, 0, len(r.notices))
	for _, n := range r.notices {
		out = append(out, n.Kind)
	}
	return out
}

type failingStore struct{}

func (failingStore) Load(context.Context, string) (*domain.Document, error) {
	return nil, errors.New("disk unavailable")
}

func (failingStore) Save(context.Context, string, domain.Document) error {
	return errors.New("quota exceeded")
}

func (failingStore) Delete(context.Context, string) error {
	return errors.New("disk unavailable")
}

type harness struct {
	clock     *clock.FakeClock
	authority *mockAuthority
	drafts    domain.DraftStore
	db        *gorm.DB
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fc := clock.NewFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store, err := draftstore.NewGormStore(db, fc, 0, zap.NewNop())
	require.NoError(t, err)
	return &harness{clock: fc, authority: &mockAuthority{}, drafts: store, db: db}
}

func (h *harness) factory() *Factory {
	return NewFactory(Params{
		Config:    config.NewStaticComposerConfigHolder(config.DefaultComposerConfig()),
		Authority: h.authority,
		Drafts:    h.drafts,
		Clock:     h.clock,
		Log:       zap.NewNop(),
	})
}

func (h *harness) open(t *testing.T, listener domain.Listener) *Composer {
	t.Helper()
	c, err := h.factory().New("store-1", listener)
	require.NoError(t, err)
	_, err = c.Open(context.Background(), OpenRequest{})
	require.NoError(t, err)
	return c
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func lineInput(ref string, qty int64, price string, rate taxdomain.Rate) domain.LineInput {
	return domain.LineInput{
		CatalogRef: ref,
		Quantity:   decimal.NewFromInt(qty),
		UnitPrice:  money(price),
		TaxRate:    rate,
	}
}

func TestFactory_RequiresStore(t *testing.T) {
	h := newHarness(t)
	_, err := h.factory().New("  ", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidStore)
}

func TestComposer_MutationsRequireOpen(t *testing.T) {
	h := newHarness(t)
	c, err := h.factory().New("store-1", nil)
	require.NoError(t, err)

	_, err = c.AddLine(lineInput("drug-1", 1, "1.00", taxdomain.Rate5))
	assert.ErrorIs(t, err, domain.ErrComposerNotOpen)

	_, err = c.Open(context.Background(), OpenRequest{})
	require.NoError(t, err)
	_, err = c.Open(context.Background(), OpenRequest{})
	assert.ErrorIs(t, err, domain.ErrComposerAlreadyOpen)
}

func TestComposer_TotalsScenario(t *testing.T) {
	h := newHarness(t)
	c := h.open(t, nil)

	_, err := c.AddLine(lineInput("drug-a", 10, "5.00", taxdomain.Rate12))
	require.NoError(t, err)
	_, err = c.AddLine(lineInput("drug-b", 1, "10.00", taxdomain.Rate18))
	require.NoError(t, err)

	totals := c.Totals()
	assert.True(t, totals.Subtotal.Equal(money("60.00")))
	require.Len(t, totals.Breakdown, 2)
	assert.Equal(t, taxdomain.Rate12, totals.Breakdown[0].Rate)
	assert.True(t, totals.Breakdown[0].TaxableAmount.Equal(money("50.00")))
	assert.True(t, totals.Breakdown[0].TaxAmount.Equal(money("6.00")))
	assert.Equal(t, taxdomain.Rate18, totals.Breakdown[1].Rate)
	assert.True(t, totals.Breakdown[1].TaxableAmount.Equal(money("10.00")))
	assert.True(t, totals.Breakdown[1].TaxAmount.Equal(money("1.80")))
	assert.True(t, totals.Total.Equal(money("67.80")))
}

func TestComposer_RemoveLineReducesTotals(t *testing.T) {
	h := newHarness(t)
	c := h.open(t, nil)

	_, err := c.AddLine(lineInput("drug-a", 10, "5.00", taxdomain.Rate12))
	require.NoError(t, err)
	b, err := c.AddLine(lineInput("drug-b", 1, "10.00", taxdomain.Rate18))
	require.NoError(t, err)
	before := c.Totals()

	require.NoError(t, c.RemoveLine(b.ID))
	after := c.Totals()
	assert.True(t, before.Subtotal.Sub(after.Subtotal).Equal(money("10.00")))
	assert.True(t, before.Total.Sub(after.Total).Equal(money("11.80")))

	assert.ErrorIs(t, c.RemoveLine(b.ID), domain.ErrLineNotFound)
}

func TestComposer_ValidationScenario(t *testing.T) {
	h := newHarness(t)
	c := h.open(t, nil)

	result := c.Validation()
	require.Len(t, result.Errors, 2)
	assert.Equal(t, domain.IssueSupplierRequired, result.Errors[0].Code)
	assert.Equal(t, domain.IssueLinesRequired, result.Errors[1].Code)

	require.NoError(t, c.SetSupplier(&domain.SupplierRef{ID: "sup-1", Name: "Acme"}))
	assert.Len(t, c.Validation().Errors, 1)

	_, err := c.AddLine(lineInput("drug-1", 2, "3.50", taxdomain.Rate5))
	require.NoError(t, err)
	assert.True(t, c.Validation().Valid())
}

func TestComposer_RejectsInvalidLineInput(t *testing.T) {
	h := newHarness(t)
	c := h.open(t, nil)

	_, err := c.AddLine(lineInput("drug-1", 0, "1.00", taxdomain.Rate5))
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
	_, err = c.AddLine(lineInput("drug-1", 1, "1.00", taxdomain.Rate(7)))
	assert.ErrorIs(t, err, taxdomain.ErrInvalidTaxRate)
	assert.Empty(t, c.Document().Lines)
}

func TestComposer_ValidationIsDebounced(t *testing.T) {
	h := newHarness(t)
	rec := &recorder{}
	c := h.open(t, rec)

	require.NoError(t, c.SetSupplier(&domain.SupplierRef{ID: "sup-1"}))
	_, err := c.AddLine(lineInput("drug-1", 1, "1.00", taxdomain.Rate5))
	require.NoError(t, err)
	h.clock.Advance(100 * time.Millisecond)
	assert.Empty(t, rec.validations)

	h.clock.Advance(300 * time.Millisecond)
	require.Len(t, rec.validations, 1)
	assert.True(t, rec.validations[0].Valid())
}

func TestComposer_MoveLine(t *testing.T) {
	h := newHarness(t)
	c := h.open(t, nil)

	a, _ := c.AddLine(lineInput("drug-a", 1, "1.00", taxdomain.Rate5))
	b, _ := c.AddLine(lineInput("drug-b", 1, "1.00", taxdomain.Rate5))
	d, _ := c.AddLine(lineInput("drug-c", 1, "1.00", taxdomain.Rate5))

	require.NoError(t, c.MoveLine(d.ID, 0))
	ids := func() []string {
		var out []string
		for _, line := range c.Document().Lines {
			out = append(out, line.ID)
		}
		return out
	}
	assert.Equal(t, []string{d.ID, a.ID, b.ID}, ids())

	require.NoError(t, c.MoveLine(d.ID, 2))
	assert.Equal(t, []string{a.ID, b.ID, d.ID}, ids())

	assert.ErrorIs(t, c.MoveLine(a.ID, 3), domain.ErrInvalidPosition)
	assert.ErrorIs(t, c.MoveLine("missing", 0), domain.ErrLineNotFound)
}

func TestComposer_UpdateLine(t *testing.T) {
	h := newHarness(t)
	c := h.open(t, nil)

	line, err := c.AddLine(lineInput("drug-a", 1, "10.00", taxdomain.Rate12))
	require.NoError(t, err)

	discount := money("10")
	updated, err := c.UpdateLine(line.ID, domain.LinePatch{DiscountPercent: &discount})
	require.NoError(t, err)
	assert.Equal(t, line.ID, updated.ID)
	assert.True(t, c.Totals().Subtotal.Equal(money("9.00")))

	negative := money("-1")
	_, err = c.UpdateLine(line.ID, domain.LinePatch{UnitPrice: &negative})
	assert.ErrorIs(t, err, domain.ErrInvalidUnitPrice)
	assert.True(t, c.Totals().Subtotal.Equal(money("9.00")))
}

func TestComposer_RestoresDraftAfterRestart(t *testing.T) {
	h := newHarness(t)
	c := h.open(t, nil)

	require.NoError(t, c.SetSupplier(&domain.SupplierRef{ID: "sup-1", Name: "Acme"}))
	_, err := c.AddLine(lineInput("drug-a", 10, "5.00", taxdomain.Rate12))
	require.NoError(t, err)
	delivery := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, c.SetMeta(domain.Meta{ExpectedDeliveryDate: &delivery, PaymentTerms: "net 30", Notes: "urgent"}))
	before := c.Document()
	c.Close()

	rec := &recorder{}
	restarted, err := h.factory().New("store-1", rec)
	require.NoError(t, err)
	res, err := restarted.Open(context.Background(), OpenRequest{})
	require.NoError(t, err)

	assert.True(t, res.Restored)
	assert.True(t, before.Equal(res.Document))
	assert.Equal(t, domain.SaveStatusUnsaved, restarted.SaveStatus())
	assert.Equal(t, []domain.NoticeKind{domain.NoticeDraftRestored}, rec.noticeKinds())
	assert.Equal(t, "po_draft:store-1:_new", restarted.DraftKey())
}

func TestComposer_OpenExistingOrderSkipsRestore(t *testing.T) {
	h := newHarness(t)
	c := h.open(t, nil)
	_, err := c.AddLine(lineInput("drug-a", 1, "1.00", taxdomain.Rate5))
	require.NoError(t, err)
	c.Close()

	h.authority.On("Get", mock.Anything, "po-7").Return(domain.RemoteOrder{
		ID:         "po-7",
		Number:     "PO-store-1-00007",
		Version:    3,
		Status:     domain.StatusDraft,
		StoreID:    "store-1",
		SupplierID: "sup-2",
		Lines: []domain.OrderLinePayload{
			{LineID: "l-1", CatalogRef: "drug-z", Quantity: money("2"), UnitPrice: money("4"), TaxRate: taxdomain.Rate18},
		},
	}, nil).Once()

	existing, err := h.factory().New("store-1", nil)
	require.NoError(t, err)
	res, err := existing.Open(context.Background(), OpenRequest{OrderID: "po-7"})
	require.NoError(t, err)

	assert.False(t, res.Restored)
	require.Len(t, res.Document.Lines, 1)
	assert.Equal(t, "drug-z", res.Document.Lines[0].CatalogRef)
	assert.Equal(t, int64(3), *res.Document.Version)
	assert.Equal(t, domain.SaveStatusSaved, existing.SaveStatus())
	assert.Equal(t, "po_draft:store-1:po-7", existing.DraftKey())

	// the unsaved new draft is untouched
	draft, err := h.drafts.Load(context.Background(), draftstore.Key("store-1", ""))
	require.NoError(t, err)
	require.NotNil(t, draft)
	assert.Len(t, draft.Lines, 1)
}

func TestComposer_CorruptDraftStartsEmpty(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.db.Create(&draftstore.DraftEntry{
		DraftKey:  draftstore.Key("store-1", ""),
		Body:      []byte(`{"lines":[{"id":"x","quantity":"-1"}]}`),
		UpdatedAt: h.clock.Now(),
	}).Error)

	rec := &recorder{}
	c, err := h.factory().New("store-1", rec)
	require.NoError(t, err)
	res, err := c.Open(context.Background(), OpenRequest{})
	require.NoError(t, err)

	assert.False(t, res.Restored)
	assert.Empty(t, res.Document.Lines)
	assert.Empty(t, rec.noticeKinds())
}

func TestComposer_DraftStoreFailureDoesNotBlockEdits(t *testing.T) {
	h := newHarness(t)
	h.drafts = failingStore{}
	rec := &recorder{}
	c := h.open(t, rec)

	line, err := c.AddLine(lineInput("drug-a", 1, "1.00", taxdomain.Rate5))
	require.NoError(t, err)
	assert.Equal(t, line.ID, c.Document().Lines[0].ID)
	assert.Equal(t, []domain.NoticeKind{domain.NoticeDraftStoreFailed}, rec.noticeKinds())
}

func TestComposer_SendRejectsInvalidBeforeNetwork(t *testing.T) {
	h := newHarness(t)
	c := h.open(t, nil)
	_, err := c.AddLine(lineInput("drug-a", 1, "1.00", taxdomain.Rate5))
	require.NoError(t, err)

	_, err = c.Send(context.Background(), domain.SendRequest{Channel: "email", Format: "pdf"})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
	assert.Equal(t, domain.IssueSupplierRequired, verr.Result.Errors[0].Code)

	assert.Empty(t, h.authority.Calls)
	assert.Equal(t, domain.StatusDraft, c.Document().Status)
}

func TestComposer_SendPersistsFirstAndLocks(t *testing.T) {
	h := newHarness(t)
	rec := &recorder{}
	c := h.open(t, rec)
	require.NoError(t, c.SetSupplier(&domain.SupplierRef{ID: "sup-1"}))
	_, err := c.AddLine(lineInput("drug-a", 10, "5.00", taxdomain.Rate12))
	require.NoError(t, err)

	h.authority.On("Create", mock.Anything, mock.MatchedBy(func(p domain.OrderPayload) bool {
		return p.Total.Equal(money("56.00")) && len(p.Lines) == 1
	})).Return(domain.WriteResult{ID: "po-1", Number: "PO-store-1-00001", Version: 1}, nil).Once()
	h.authority.On("Send", mock.Anything, "po-1", domain.SendRequest{Channel: "email", Format: "pdf"}).
		Return(domain.TransitionResult{Status: domain.StatusSent, Version: 2}, nil).Once()

	doc, err := c.Send(context.Background(), domain.SendRequest{Channel: "email", Format: "pdf"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, doc.Status)
	assert.Equal(t, "PO-store-1-00001", doc.Number)
	assert.Equal(t, int64(2), *doc.Version)
	h.authority.AssertExpectations(t)

	draft, err := h.drafts.Load(context.Background(), c.DraftKey())
	require.NoError(t, err)
	assert.Nil(t, draft)

	_, err = c.AddLine(lineInput("drug-b", 1, "1.00", taxdomain.Rate5))
	assert.ErrorIs(t, err, domain.ErrDocumentLocked)
	assert.ErrorIs(t, c.SetSupplier(nil), domain.ErrDocumentLocked)
	assert.Contains(t, rec.noticeKinds(), domain.NoticeSent)
}

func TestComposer_SendNetworkFailureKeepsDocument(t *testing.T) {
	h := newHarness(t)
	c := h.open(t, nil)
	require.NoError(t, c.SetSupplier(&domain.SupplierRef{ID: "sup-1"}))
	_, err := c.AddLine(lineInput("drug-a", 1, "1.00", taxdomain.Rate5))
	require.NoError(t, err)
	before := c.Document()

	h.authority.On("Create", mock.Anything, mock.Anything).
		Return(domain.WriteResult{}, domain.ErrRemoteUnavailable).Once()

	_, err = c.Send(context.Background(), domain.SendRequest{})
	require.ErrorIs(t, err, domain.ErrRemoteUnavailable)
	assert.True(t, before.Equal(c.Document()))
	assert.Equal(t, domain.SaveStatusUnsaved, c.SaveStatus())

	_, err = c.AddLine(lineInput("drug-b", 1, "1.00", taxdomain.Rate5))
	assert.NoError(t, err)
}

func TestComposer_ApprovalFlow(t *testing.T) {
	h := newHarness(t)
	rec := &recorder{}
	c := h.open(t, rec)
	require.NoError(t, c.SetSupplier(&domain.SupplierRef{ID: "sup-1"}))
	_, err := c.AddLine(lineInput("drug-a", 1, "1.00", taxdomain.Rate5))
	require.NoError(t, err)

	h.authority.On("Create", mock.Anything, mock.Anything).
		Return(domain.WriteResult{ID: "po-1", Number: "PO-store-1-00001", Version: 1}, nil).Once()
	h.authority.On("RequestApproval", mock.Anything, "po-1", domain.ApprovalRequest{Approvers: []string{"mgr"}, Note: "please"}).
		Return(domain.TransitionResult{Status: domain.StatusPendingApproval, Version: 2}, nil).Once()

	doc, err := c.RequestApproval(context.Background(), domain.ApprovalRequest{Approvers: []string{"mgr"}, Note: "please"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingApproval, doc.Status)
	assert.Contains(t, rec.noticeKinds(), domain.NoticeApprovalRequested)

	_, err = c.RequestApproval(context.Background(), domain.ApprovalRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = c.SaveDraft(context.Background())
	assert.ErrorIs(t, err, domain.ErrDocumentLocked)

	require.NoError(t, c.MarkApproved())
	assert.Equal(t, domain.StatusApproved, c.Document().Status)
	assert.ErrorIs(t, c.MarkApproved(), domain.ErrInvalidTransition)

	h.authority.On("Send", mock.Anything, "po-1", domain.SendRequest{}).
		Return(domain.TransitionResult{Status: domain.StatusSent, Version: 3}, nil).Once()
	doc, err = c.Send(context.Background(), domain.SendRequest{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, doc.Status)
	h.authority.AssertNumberOfCalls(t, "Create", 1)
}

func TestComposer_AutosaveFailureKeepsEdits(t *testing.T) {
	h := newHarness(t)
	rec := &recorder{}
	c := h.open(t, rec)
	require.NoError(t, c.SetSupplier(&domain.SupplierRef{ID: "sup-1"}))

	h.authority.On("Create", mock.Anything, mock.Anything).
		Return(domain.WriteResult{ID: "po-1", Number: "PO-store-1-00001", Version: 1}, nil).Once()
	_, err := c.SaveDraft(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.SaveStatusSaved, c.SaveStatus())

	h.authority.On("Autosave", mock.Anything, "po-1", mock.Anything).
		Return(domain.AutosaveResult{}, domain.ErrRemoteUnavailable).Once()
	_, err = c.AddLine(lineInput("drug-a", 4, "2.50", taxdomain.Rate5))
	require.NoError(t, err)
	before := c.Document()

	h.clock.Advance(5 * time.Second)

	assert.Equal(t, domain.SaveStatusUnsaved, c.SaveStatus())
	assert.True(t, before.Equal(c.Document()))
	assert.Contains(t, rec.noticeKinds(), domain.NoticeAutosaveFailed)
	h.authority.AssertExpectations(t)
}

func TestComposer_AutosaveAdoptsVersionIntoDraft(t *testing.T) {
	h := newHarness(t)
	c := h.open(t, nil)
	require.NoError(t, c.SetSupplier(&domain.SupplierRef{ID: "sup-1"}))

	h.authority.On("Create", mock.Anything, mock.Anything).
		Return(domain.WriteResult{ID: "po-1", Number: "PO-store-1-00001", Version: 1}, nil).Once()
	_, err := c.SaveDraft(context.Background())
	require.NoError(t, err)

	h.authority.On("Autosave", mock.Anything, "po-1", mock.Anything).
		Return(domain.AutosaveResult{Version: 2}, nil).Once()
	for i := 0; i < 3; i++ {
		require.NoError(t, c.SetMeta(domain.Meta{Notes: "edit"}))
		h.clock.Advance(time.Second)
	}
	h.clock.Advance(5 * time.Second)

	h.authority.AssertNumberOfCalls(t, "Autosave", 1)
	assert.Equal(t, domain.SaveStatusSaved, c.SaveStatus())

	draft, err := h.drafts.Load(context.Background(), c.DraftKey())
	require.NoError(t, err)
	require.NotNil(t, draft)
	assert.Equal(t, "po-1", draft.ID)
	assert.Equal(t, int64(2), *draft.Version)
}

func TestComposer_SuggestionsAreCachedAndMerged(t *testing.T) {
	h := newHarness(t)
	c := h.open(t, nil)
	require.NoError(t, c.SetSupplier(&domain.SupplierRef{ID: "sup-1"}))
	existing, err := c.AddLine(lineInput("drug-a", 2, "5.00", taxdomain.Rate12))
	require.NoError(t, err)

	suggestions := []domain.Suggestion{
		{CatalogRef: "drug-a", Quantity: money("3"), UnitPrice: money("5.00"), TaxRate: taxdomain.Rate12},
		{CatalogRef: "drug-b", Description: "Saline", Quantity: money("1"), UnitPrice: money("20.00"), TaxRate: taxdomain.Rate5},
	}
	h.authority.On("Suggestions", mock.Anything, domain.SuggestionQuery{StoreID: "store-1", SupplierID: "sup-1"}).
		Return(suggestions, nil).Once()

	got, err := c.LoadSuggestions(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	_, err = c.LoadSuggestions(context.Background())
	require.NoError(t, err)
	h.authority.AssertNumberOfCalls(t, "Suggestions", 1)

	touched, err := c.ApplySuggestions(got)
	require.NoError(t, err)
	require.Len(t, touched, 2)

	doc := c.Document()
	require.Len(t, doc.Lines, 2)
	assert.Equal(t, existing.ID, doc.Lines[0].ID)
	assert.True(t, doc.Lines[0].Quantity.Equal(money("5")))
	assert.Equal(t, "drug-b", doc.Lines[1].CatalogRef)

	// a later line for a suggested item carries its last price
	line, err := c.AddLine(lineInput("drug-b", 1, "30.00", taxdomain.Rate5))
	require.NoError(t, err)
	require.NotNil(t, line.LastPrice)
	warnings := c.Validation().Warnings
	require.Len(t, warnings, 1)
	assert.Equal(t, domain.IssuePriceDeviation, warnings[0].Code)
	assert.Equal(t, line.ID, warnings[0].LineID)
}

func TestComposer_Templates(t *testing.T) {
	h := newHarness(t)
	c := h.open(t, nil)
	require.NoError(t, c.SetSupplier(&domain.SupplierRef{ID: "sup-1"}))
	_, err := c.AddLine(lineInput("drug-a", 2, "5.00", taxdomain.Rate12))
	require.NoError(t, err)

	_, err = c.SaveAsTemplate(context.Background(), "  ", "")
	assert.ErrorIs(t, err, domain.ErrInvalidTemplateName)

	h.authority.On("CreateTemplate", mock.Anything, mock.MatchedBy(func(req domain.TemplateRequest) bool {
		return req.Name == "Weekly" && req.StoreID == "store-1" && len(req.Lines) == 1
	})).Return(domain.TemplateResult{ID: "tpl-1", Slug: "weekly"}, nil).Once()
	res, err := c.SaveAsTemplate(context.Background(), "Weekly", "")
	require.NoError(t, err)
	assert.Equal(t, "tpl-1", res.ID)

	h.authority.On("LoadTemplate", mock.Anything, "weekly").Return(domain.TemplateBody{
		SupplierID: "sup-9",
		Lines: []domain.OrderLinePayload{
			{LineID: "tpl-line", CatalogRef: "drug-x", Quantity: money("1"), UnitPrice: money("8"), TaxRate: taxdomain.Rate5},
			{CatalogRef: "drug-y", Quantity: money("2"), UnitPrice: money("1"), TaxRate: taxdomain.RateExempt},
		},
	}, nil).Once()
	doc, err := c.LoadTemplate(context.Background(), "weekly")
	require.NoError(t, err)
	require.Len(t, doc.Lines, 2)
	assert.NotEqual(t, "tpl-line", doc.Lines[0].ID)
	assert.Equal(t, "sup-9", doc.Supplier.ID)
	assert.True(t, doc.Totals().Subtotal.Equal(money("10")))
}

func TestComposer_DiscardCancelsTimersAndDraft(t *testing.T) {
	h := newHarness(t)
	c := h.open(t, nil)
	require.NoError(t, c.SetSupplier(&domain.SupplierRef{ID: "sup-1"}))

	require.NoError(t, c.Discard(context.Background()))
	assert.Equal(t, 0, h.clock.Pending())

	draft, err := h.drafts.Load(context.Background(), draftstore.Key("store-1", ""))
	require.NoError(t, err)
	assert.Nil(t, draft)

	_, err = c.AddLine(lineInput("drug-a", 1, "1.00", taxdomain.Rate5))
	assert.ErrorIs(t, err, domain.ErrComposerClosed)
	assert.ErrorIs(t, c.Discard(context.Background()), domain.ErrComposerClosed)
}

func TestFactory_CloseAll(t *testing.T) {
	h := newHarness(t)
	f := h.factory()
	c, err := f.New("store-1", nil)
	require.NoError(t, err)
	_, err = c.Open(context.Background(), OpenRequest{})
	require.NoError(t, err)

	f.CloseAll()
	assert.ErrorIs(t, c.SetMeta(domain.Meta{}), domain.ErrComposerClosed)
}

// callbackListener records every callback and then runs the matching hook.
type callbackListener struct {
	recorder
	onStatus     func(domain.SaveStatus)
	onValidation func(domain.ValidationResult)
	onNotice     func(domain.Notice)
}

func (l *callbackListener) SaveStatusChanged(s domain.SaveStatus) {
	l.recorder.SaveStatusChanged(s)
	if l.onStatus != nil {
		l.onStatus(s)
	}
}

func (l *callbackListener) ValidationChanged(v domain.ValidationResult) {
	l.recorder.ValidationChanged(v)
	if l.onValidation != nil {
		l.onValidation(v)
	}
}

func (l *callbackListener) Notice(n domain.Notice) {
	l.recorder.Notice(n)
	if l.onNotice != nil {
		l.onNotice(n)
	}
}

func returnsWithin(t *testing.T, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("call did not return; listener re-entry blocked")
	}
}

func TestComposer_ListenerSavesAfterAutosaveFailure(t *testing.T) {
	h := newHarness(t)
	l := &callbackListener{}
	c := h.open(t, l)
	require.NoError(t, c.SetSupplier(&domain.SupplierRef{ID: "sup-1"}))

	h.authority.On("Create", mock.Anything, mock.Anything).
		Return(domain.WriteResult{ID: "po-1", Number: "PO-store-1-00001", Version: 1}, nil).Once()
	_, err := c.SaveDraft(context.Background())
	require.NoError(t, err)

	var once sync.Once
	var retryErr error
	l.onNotice = func(n domain.Notice) {
		if n.Kind == domain.NoticeAutosaveFailed {
			once.Do(func() { _, retryErr = c.SaveDraft(context.Background()) })
		}
	}
	h.authority.On("Autosave", mock.Anything, "po-1", mock.Anything).
		Return(domain.AutosaveResult{}, domain.ErrRemoteUnavailable).Once()
	h.authority.On("Update", mock.Anything, "po-1", mock.Anything).
		Return(domain.WriteResult{ID: "po-1", Number: "PO-store-1-00001", Version: 2}, nil).Once()

	_, err = c.AddLine(lineInput("drug-a", 4, "2.50", taxdomain.Rate5))
	require.NoError(t, err)
	returnsWithin(t, 2*time.Second, func() { h.clock.Advance(5 * time.Second) })

	require.NoError(t, retryErr)
	assert.Equal(t, domain.SaveStatusSaved, c.SaveStatus())
	assert.Equal(t, int64(2), *c.Document().Version)
	h.authority.AssertExpectations(t)

	// the composer keeps serving writes afterwards
	h.authority.On("Update", mock.Anything, "po-1", mock.Anything).
		Return(domain.WriteResult{ID: "po-1", Number: "PO-store-1-00001", Version: 3}, nil).Once()
	returnsWithin(t, 2*time.Second, func() {
		assert.NoError(t, c.SetMeta(domain.Meta{Notes: "after"}))
		_, err := c.SaveDraft(context.Background())
		assert.NoError(t, err)
	})
}

func TestComposer_ListenerRetriesAfterSaveAndSendFailures(t *testing.T) {
	h := newHarness(t)
	l := &callbackListener{}
	c := h.open(t, l)
	require.NoError(t, c.SetSupplier(&domain.SupplierRef{ID: "sup-1"}))
	_, err := c.AddLine(lineInput("drug-a", 1, "1.00", taxdomain.Rate5))
	require.NoError(t, err)

	var retried []domain.NoticeKind
	l.onNotice = func(n domain.Notice) {
		switch n.Kind {
		case domain.NoticeSaveFailed, domain.NoticeTransitionFailed:
			retried = append(retried, n.Kind)
			_, _ = c.SaveDraft(context.Background())
		}
	}

	h.authority.On("Create", mock.Anything, mock.Anything).
		Return(domain.WriteResult{}, domain.ErrRemoteUnavailable).Once()
	h.authority.On("Create", mock.Anything, mock.Anything).
		Return(domain.WriteResult{ID: "po-1", Number: "PO-store-1-00001", Version: 1}, nil).Once()

	returnsWithin(t, 2*time.Second, func() {
		_, err = c.SaveDraft(context.Background())
	})
	require.ErrorIs(t, err, domain.ErrRemoteUnavailable)
	assert.Equal(t, domain.SaveStatusSaved, c.SaveStatus())
	assert.Equal(t, "po-1", c.Document().ID)

	h.authority.On("Send", mock.Anything, "po-1", mock.Anything).
		Return(domain.TransitionResult{}, domain.ErrRemoteUnavailable).Once()
	returnsWithin(t, 2*time.Second, func() {
		_, err = c.Send(context.Background(), domain.SendRequest{Channel: "email", Format: "pdf"})
	})
	require.ErrorIs(t, err, domain.ErrRemoteUnavailable)
	assert.Equal(t, domain.StatusDraft, c.Document().Status)
	assert.Equal(t, []domain.NoticeKind{domain.NoticeSaveFailed, domain.NoticeTransitionFailed}, retried)
	h.authority.AssertExpectations(t)
}

func TestComposer_ListenerReadsStateFromStatusCallback(t *testing.T) {
	h := newHarness(t)
	l := &callbackListener{}
	c := h.open(t, l)

	var seen []domain.SaveStatus
	var lines []int
	l.onStatus = func(domain.SaveStatus) {
		seen = append(seen, c.SaveStatus())
		lines = append(lines, len(c.Document().Lines))
		_ = c.Totals()
	}

	h.authority.On("Create", mock.Anything, mock.Anything).
		Return(domain.WriteResult{ID: "po-1", Number: "PO-store-1-00001", Version: 1}, nil).Once()
	returnsWithin(t, 2*time.Second, func() {
		assert.NoError(t, c.SetSupplier(&domain.SupplierRef{ID: "sup-1"}))
		_, err := c.AddLine(lineInput("drug-a", 1, "1.00", taxdomain.Rate5))
		assert.NoError(t, err)
		_, err = c.SaveDraft(context.Background())
		assert.NoError(t, err)
	})

	require.NotEmpty(t, seen)
	assert.Equal(t, domain.SaveStatusSaved, seen[len(seen)-1])
	assert.Equal(t, 1, lines[len(lines)-1])
}

func TestComposer_ListenerEditsFromValidationCallback(t *testing.T) {
	h := newHarness(t)
	l := &callbackListener{}
	c := h.open(t, l)

	var once sync.Once
	var addErr error
	l.onValidation = func(v domain.ValidationResult) {
		assert.Equal(t, v.Valid(), c.Validation().Valid())
		once.Do(func() {
			_, addErr = c.AddLine(lineInput("drug-a", 1, "1.00", taxdomain.Rate5))
		})
	}

	require.NoError(t, c.SetSupplier(&domain.SupplierRef{ID: "sup-1"}))
	returnsWithin(t, 2*time.Second, func() { h.clock.Advance(time.Second) })
	require.NoError(t, addErr)
	returnsWithin(t, 2*time.Second, func() { h.clock.Advance(time.Second) })

	assert.Len(t, c.Document().Lines, 1)
	l.mu.Lock()
	defer l.mu.Unlock()
	require.Len(t, l.validations, 2)
	assert.False(t, l.validations[0].Valid())
	assert.True(t, l.validations[1].Valid())
}

func TestComposer_ListenerSavesAfterDraftStoreFailure(t *testing.T) {
	h := newHarness(t)
	h.drafts = failingStore{}
	l := &callbackListener{}
	c := h.open(t, l)
	require.NoError(t, c.SetSupplier(&domain.SupplierRef{ID: "sup-1"}))

	h.authority.On("Create", mock.Anything, mock.Anything).
		Return(domain.WriteResult{ID: "po-1", Number: "PO-store-1-00001", Version: 1}, nil).Once()
	h.authority.On("Update", mock.Anything, "po-1", mock.Anything).
		Return(domain.WriteResult{ID: "po-1", Number: "PO-store-1-00001", Version: 2}, nil).Once()

	var saves int
	l.onNotice = func(n domain.Notice) {
		if n.Kind == domain.NoticeDraftStoreFailed && saves == 0 {
			saves++
			_, err := c.SaveDraft(context.Background())
			assert.NoError(t, err)
		}
	}

	returnsWithin(t, 2*time.Second, func() {
		_, err := c.SaveDraft(context.Background())
		assert.NoError(t, err)
	})
	assert.Equal(t, 1, saves)
	assert.Equal(t, int64(2), *c.Document().Version)
	h.authority.AssertExpectations(t)
}
