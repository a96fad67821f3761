package domain

import "errors"

var (
	ErrNotFound        = errors.New("not_found")
	ErrVersionConflict = errors.New("version_conflict")
	ErrInvalidState    = errors.New("invalid_state")
	ErrInvalidRequest  = errors.New("invalid_request")
	ErrTotalsMismatch  = errors.New("totals_mismatch")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrTemplateName    = errors.New("invalid_template_name")
	ErrAlreadyExists   = errors.New("already_exists")
	ErrNotApprover     = errors.New("not_approver")
)
