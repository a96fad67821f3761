package cli

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DikshantJangra/hoperxpharma-sub011/internal/draftstore"
	"github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/domain"
)

// authorityStub answers create, update and send for a single order.
type authorityStub struct {
	mu       sync.Mutex
	requests []string
	payloads []domain.OrderPayload
	fail     bool
}

func (a *authorityStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	a.requests = append(a.requests, r.Method+" "+r.URL.Path)
	if r.Body != nil {
		raw, _ := io.ReadAll(r.Body)
		var payload domain.OrderPayload
		if json.Unmarshal(raw, &payload) == nil && payload.StoreID != "" {
			a.payloads = append(a.payloads, payload)
		}
	}
	fail := a.fail
	a.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if fail {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"type":"unavailable","message":"try later"}}`))
		return
	}
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/orders":
		_, _ = w.Write([]byte(`{"data":{"id":"po-1","po_number":"PO-0001","version":1,"status":"draft"}}`))
	case r.Method == http.MethodPut && r.URL.Path == "/orders/po-1/send":
		_, _ = w.Write([]byte(`{"data":{"status":"sent","version":2}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"not_found","message":"no route"}}`))
	}
}

func (a *authorityStub) seen() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.requests...)
}

func composeEnv(t *testing.T, stub *authorityStub) *draftstore.GormStore {
	t.Helper()
	store := draftEnv(t)
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	t.Setenv("AUTHORITY_BASE_URL", srv.URL)
	t.Setenv("AUTHORITY_TOKEN", "token")
	return store
}

func TestCompose_KeepsLocalDraft(t *testing.T) {
	stub := &authorityStub{}
	store := composeEnv(t, stub)

	out, err := execute(t, "compose", "testdata/valid.yml")
	require.NoError(t, err)
	assert.Contains(t, out, "Draft po_draft:store-1:_new (draft, unsaved)")
	assert.Contains(t, out, "Supplier sup-1 Acme Pharma")
	assert.Contains(t, out, "2 line(s)")
	assert.Contains(t, out, "Document is valid")
	assert.Empty(t, stub.seen())

	doc, err := store.Load(context.Background(), draftstore.Key("store-1", ""))
	require.NoError(t, err)
	require.NotNil(t, doc)
	require.Len(t, doc.Lines, 2)
	assert.Equal(t, "drug-a", doc.Lines[0].CatalogRef)
	assert.Equal(t, "net 30", doc.Meta.PaymentTerms)
}

func TestCompose_ReplacesRestoredDraft(t *testing.T) {
	stub := &authorityStub{}
	store := composeEnv(t, stub)
	seedDraft(t, store, draftstore.Key("store-1", ""))

	_, err := execute(t, "compose", "testdata/valid.yml")
	require.NoError(t, err)

	doc, err := store.Load(context.Background(), draftstore.Key("store-1", ""))
	require.NoError(t, err)
	require.NotNil(t, doc)
	require.Len(t, doc.Lines, 2)
	assert.Equal(t, []string{"drug-a", "drug-b"}, []string{doc.Lines[0].CatalogRef, doc.Lines[1].CatalogRef})
}

func TestCompose_SaveCreatesRemoteOrder(t *testing.T) {
	stub := &authorityStub{}
	store := composeEnv(t, stub)

	out, err := execute(t, "compose", "testdata/valid.yml", "--save")
	require.NoError(t, err)
	assert.Contains(t, out, "Order po-1 PO-0001")
	assert.Contains(t, out, "(draft, saved)")
	assert.Equal(t, []string{"POST /orders"}, stub.seen())
	require.Len(t, stub.payloads, 1)
	assert.Equal(t, "store-1", stub.payloads[0].StoreID)
	assert.Len(t, stub.payloads[0].Lines, 2)

	doc, err := store.Load(context.Background(), draftstore.Key("store-1", ""))
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "po-1", doc.ID)
}

func TestCompose_SendClearsLocalDraft(t *testing.T) {
	stub := &authorityStub{}
	store := composeEnv(t, stub)

	out, err := execute(t, "--format", "json", "compose", "testdata/valid.yml", "--send")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Document domain.Document `json:"document"`
			Notices  []string        `json:"notices"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, domain.StatusSent, resp.Data.Document.Status)
	assert.Equal(t, "PO-0001", resp.Data.Document.Number)
	assert.Contains(t, resp.Data.Notices, "sent: Purchase order PO-0001 sent")
	assert.Equal(t, []string{"POST /orders", "PUT /orders/po-1/send"}, stub.seen())

	keys, err := store.Keys(context.Background(), "store-1")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestCompose_AuthorityFailureKeepsDraft(t *testing.T) {
	stub := &authorityStub{fail: true}
	store := composeEnv(t, stub)

	out, err := execute(t, "compose", "testdata/valid.yml", "--save")
	require.Error(t, err)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, ExitFailure, exitErr.Code)
	assert.Contains(t, out, "(draft, unsaved)")
	assert.Contains(t, out, "save_failed: Could not save the purchase order")

	doc, err := store.Load(context.Background(), draftstore.Key("store-1", ""))
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Len(t, doc.Lines, 2)
}

func TestCompose_SendAndApprovalAreExclusive(t *testing.T) {
	composeEnv(t, &authorityStub{})

	_, err := execute(t, "compose", "testdata/valid.yml", "--send", "--approver", "manager")
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, ExitCommandError, exitErr.Code)
}
