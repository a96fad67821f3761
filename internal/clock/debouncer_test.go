package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeClock_FiresInDeadlineOrder(t *testing.T) {
	c := NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	var fired []string

	c.AfterFunc(3*time.Second, func() { fired = append(fired, "c") })
	c.AfterFunc(1*time.Second, func() { fired = append(fired, "a") })
	c.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })

	c.Advance(2 * time.Second)
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, 1, c.Pending())

	c.Advance(time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, fired)
	assert.Equal(t, 0, c.Pending())
}

func TestFakeClock_CallbackSchedulesWithinSameAdvance(t *testing.T) {
	c := NewFakeClock(time.Unix(0, 0))
	count := 0
	c.AfterFunc(time.Second, func() {
		count++
		c.AfterFunc(time.Second, func() { count++ })
	})

	c.Advance(5 * time.Second)
	assert.Equal(t, 2, count)
	assert.Equal(t, time.Unix(5, 0).UTC(), c.Now())
}

func TestFakeClock_StopPreventsFire(t *testing.T) {
	c := NewFakeClock(time.Unix(0, 0))
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	require.True(t, timer.Stop())
	require.False(t, timer.Stop())
	c.Advance(time.Minute)
	assert.False(t, fired)
}

func TestDebouncer_CoalescesTriggers(t *testing.T) {
	c := NewFakeClock(time.Unix(0, 0))
	calls := 0
	d := NewDebouncer(c, 5*time.Second, func() { calls++ })

	for i := 0; i < 10; i++ {
		d.Trigger()
		c.Advance(time.Second)
	}
	assert.Equal(t, 0, calls)
	assert.True(t, d.Pending())

	c.Advance(5 * time.Second)
	assert.Equal(t, 1, calls)
	assert.False(t, d.Pending())
}

func TestDebouncer_CancelAndStop(t *testing.T) {
	c := NewFakeClock(time.Unix(0, 0))
	calls := 0
	d := NewDebouncer(c, time.Second, func() { calls++ })

	d.Trigger()
	assert.True(t, d.Cancel())
	assert.False(t, d.Cancel())
	c.Advance(time.Minute)
	assert.Equal(t, 0, calls)

	d.Stop()
	d.Trigger()
	c.Advance(time.Minute)
	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, c.Pending())
}
