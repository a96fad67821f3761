package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// Timer is a pending deferred call.
type Timer interface {
	// Stop cancels the call. It reports false when the call already ran or was stopped.
	Stop() bool
}

// Scheduler runs deferred calls. Real time in production, virtual time in tests.
type Scheduler interface {
	Clock
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

// New returns a Scheduler backed by the runtime timers.
func New() Scheduler {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

var Module = fx.Module("clock",
	fx.Provide(New),
)
