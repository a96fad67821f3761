package domain

import "context"

// Authority is the remote system of record for purchase orders.
type Authority interface {
	Create(ctx context.Context, payload OrderPayload) (WriteResult, error)
	Update(ctx context.Context, id string, payload OrderPayload) (WriteResult, error)
	Autosave(ctx context.Context, id string, payload OrderPayload) (AutosaveResult, error)
	Get(ctx context.Context, id string) (RemoteOrder, error)
	Send(ctx context.Context, id string, req SendRequest) (TransitionResult, error)
	RequestApproval(ctx context.Context, id string, req ApprovalRequest) (TransitionResult, error)
	Suggestions(ctx context.Context, query SuggestionQuery) ([]Suggestion, error)
	CreateTemplate(ctx context.Context, req TemplateRequest) (TemplateResult, error)
	LoadTemplate(ctx context.Context, id string) (TemplateBody, error)
}

// DraftStore is the durable client-side store for in-progress documents.
type DraftStore interface {
	// Load returns (nil, nil) when no entry exists under key.
	Load(ctx context.Context, key string) (*Document, error)
	Save(ctx context.Context, key string, doc Document) error
	Delete(ctx context.Context, key string) error
}

// ChangeObserver is notified after every accepted document mutation.
// rev increases by one per mutation.
type ChangeObserver interface {
	DocumentChanged(doc Document, rev uint64)
}

// NoticeKind classifies user-facing notifications.
type NoticeKind string

const (
	NoticeDraftRestored     NoticeKind = "draft_restored"
	NoticeAutosaveFailed    NoticeKind = "autosave_failed"
	NoticeSaveFailed        NoticeKind = "save_failed"
	NoticeSent              NoticeKind = "sent"
	NoticeApprovalRequested NoticeKind = "approval_requested"
	NoticeTransitionFailed  NoticeKind = "transition_failed"
	NoticeDraftStoreFailed  NoticeKind = "draft_store_failed"
)

// Notice is a user-actionable notification.
type Notice struct {
	Kind    NoticeKind
	Message string
	Err     error
}

// Listener receives composer state changes. Callbacks run without
// composer locks held and may call back into the composer.
type Listener interface {
	SaveStatusChanged(status SaveStatus)
	ValidationChanged(result ValidationResult)
	Notice(n Notice)
}

// NopListener ignores every callback.
type NopListener struct{}

func (NopListener) SaveStatusChanged(SaveStatus)       {}
func (NopListener) ValidationChanged(ValidationResult) {}
func (NopListener) Notice(Notice)                      {}
