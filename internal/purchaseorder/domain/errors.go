package domain

import "errors"

var (
	ErrInvalidQuantity     = errors.New("invalid_quantity")
	ErrInvalidUnitPrice    = errors.New("invalid_unit_price")
	ErrInvalidDiscount     = errors.New("invalid_discount")
	ErrInvalidCatalogRef   = errors.New("invalid_catalog_ref")
	ErrInvalidDescription  = errors.New("invalid_description")
	ErrInvalidStatus       = errors.New("invalid_status")
	ErrLineNotFound        = errors.New("line_not_found")
	ErrInvalidPosition     = errors.New("invalid_position")
	ErrInvalidStore        = errors.New("invalid_store")
	ErrDocumentLocked      = errors.New("document_locked")
	ErrInvalidTransition   = errors.New("invalid_transition")
	ErrValidationFailed    = errors.New("validation_failed")
	ErrTransitionInFlight  = errors.New("transition_in_flight")
	ErrComposerClosed      = errors.New("composer_closed")
	ErrComposerNotOpen     = errors.New("composer_not_open")
	ErrComposerAlreadyOpen = errors.New("composer_already_open")
	ErrNotPersisted        = errors.New("document_not_persisted")
	ErrCorruptDraft        = errors.New("corrupt_draft")
	ErrInvalidTemplateName = errors.New("invalid_template_name")

	ErrRemoteConflict     = errors.New("remote_conflict")
	ErrRemoteNotFound     = errors.New("remote_not_found")
	ErrRemoteUnauthorized = errors.New("remote_unauthorized")
	ErrRemoteRejected     = errors.New("remote_rejected")
	ErrRemoteUnavailable  = errors.New("remote_unavailable")
)
