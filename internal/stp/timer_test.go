package stp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTimerStartStop(t *testing.T) {
	var tm Timer

	assert.False(t, tm.Active())
	assert.False(t, tm.Expired(10), "inactive timer must not expire")

	tm.Start(3)
	assert.True(t, tm.Active())
	v, active := tm.Value()
	assert.True(t, active)
	assert.Equal(t, uint32(3), v)

	tm.Stop()
	assert.False(t, tm.Active())
	v, active = tm.Value()
	assert.False(t, active)
	assert.Equal(t, uint32(0), v)
}

func TestTimerExpiry(t *testing.T) {
	var tm Timer
	tm.Start(0)

	// Limit 3: increments to 1, 2, then 3 >= 3 expires.
	assert.False(t, tm.Expired(3))
	assert.False(t, tm.Expired(3))
	assert.True(t, tm.Expired(3))

	// Expiry deactivates.
	assert.False(t, tm.Active())
	assert.False(t, tm.Expired(3))
}

func TestTimerDynamicLimit(t *testing.T) {
	var tm Timer
	tm.Start(0)

	assert.False(t, tm.Expired(10))
	// Limit dropped below the current value: next check expires.
	assert.True(t, tm.Expired(1))
}

func TestTimerSecondsConversion(t *testing.T) {
	assert.Equal(t, uint32(30), SecondsToTicks(15))
	assert.Equal(t, uint32(15), TicksToSeconds(30))

	var tm Timer
	tm.startSeconds(2)
	v, _ := tm.Value()
	assert.Equal(t, uint32(4), v)

	// One-second limit is two half-second ticks.
	tm = Timer{}
	tm.Start(0)
	assert.False(t, tm.expiredSeconds(1))
	assert.True(t, tm.expiredSeconds(1))
}
