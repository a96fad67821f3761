package remote

import (
	"fmt"
	"net/http"

	"github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/domain"
)

// APIError is a non-2xx answer from the authority.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("authority returned %d %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("authority returned %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Unwrap classifies the failure as a domain error.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusConflict:
		return domain.ErrRemoteConflict
	case e.StatusCode == http.StatusNotFound:
		return domain.ErrRemoteNotFound
	case e.StatusCode == http.StatusUnauthorized, e.StatusCode == http.StatusForbidden:
		return domain.ErrRemoteUnauthorized
	case e.StatusCode == http.StatusBadRequest, e.StatusCode == http.StatusUnprocessableEntity:
		return domain.ErrRemoteRejected
	default:
		return domain.ErrRemoteUnavailable
	}
}

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// transportError wraps network failures so callers can match ErrRemoteUnavailable.
type transportError struct {
	op  string
	err error
}

func (e *transportError) Error() string {
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *transportError) Unwrap() []error {
	return []error{domain.ErrRemoteUnavailable, e.err}
}
