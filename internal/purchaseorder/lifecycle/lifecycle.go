// Package lifecycle defines the purchase order state machine.
package lifecycle

import (
	"fmt"

	"github.com/DikshantJangra/hoperxpharma-sub011/internal/purchaseorder/domain"
)

// Event is a caller-invoked lifecycle action.
type Event string

const (
	EventRequestApproval Event = "request_approval"
	EventApprove         Event = "approve"
	EventSend            Event = "send"
)

var transitions = map[domain.Status]map[Event]domain.Status{
	domain.StatusDraft: {
		EventRequestApproval: domain.StatusPendingApproval,
		EventSend:            domain.StatusSent,
	},
	domain.StatusPendingApproval: {
		EventApprove: domain.StatusApproved,
		EventSend:    domain.StatusSent,
	},
	domain.StatusApproved: {
		EventSend: domain.StatusSent,
	},
}

// Next returns the state reached from current on ev.
func Next(current domain.Status, ev Event) (domain.Status, error) {
	next, ok := transitions[current][ev]
	if !ok {
		return "", fmt.Errorf("%w: %s from %s", domain.ErrInvalidTransition, ev, current)
	}
	return next, nil
}

func CanTransition(current domain.Status, ev Event) bool {
	_, ok := transitions[current][ev]
	return ok
}

// Editable reports whether lines and header fields may change in status s.
func Editable(s domain.Status) bool {
	return s == domain.StatusDraft
}

// RequiresValidation reports whether ev is gated on a valid document and a
// persisted remote identity.
func RequiresValidation(ev Event) bool {
	return ev == EventRequestApproval || ev == EventSend
}

// Events lists the events accepted in status s.
func Events(s domain.Status) []Event {
	var out []Event
	for _, ev := range []Event{EventRequestApproval, EventApprove, EventSend} {
		if CanTransition(s, ev) {
			out = append(out, ev)
		}
	}
	return out
}
