package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusFSMDebouncesOffline(t *testing.T) {
	now := time.Date(2024, 8, 25, 12, 0, 0, 0, time.UTC)
	f := newStatusFSM()
	f.now = func() time.Time { return now }

	// First successful poll brings the game online.
	assert.Equal(t, StatusOnline, f.Observe(true))
	assert.True(t, f.Online())

	// One or two failed polls are transients.
	assert.Equal(t, StatusNone, f.Observe(false))
	assert.Equal(t, StatusNone, f.Observe(false))
	assert.True(t, f.Online())

	// The third flips to offline.
	now = now.Add(time.Minute)
	assert.Equal(t, StatusRestarting, f.Observe(false))
	assert.False(t, f.Online())

	// A success in between resets the failure counter.
	now = now.Add(time.Minute)
	assert.Equal(t, StatusOnline, f.Observe(true))
	assert.Equal(t, StatusNone, f.Observe(false))
	assert.Equal(t, StatusNone, f.Observe(false))
	assert.Equal(t, StatusNone, f.Observe(true))
	assert.True(t, f.Online())
}

func TestStatusFSMCooldownSuppressesFlapping(t *testing.T) {
	now := time.Date(2024, 8, 25, 12, 0, 0, 0, time.UTC)
	f := newStatusFSM()
	f.now = func() time.Time { return now }

	assert.Equal(t, StatusOnline, f.Observe(true))

	// Flap: offline right away.
	assert.Equal(t, StatusNone, f.Observe(false))
	assert.Equal(t, StatusNone, f.Observe(false))
	assert.Equal(t, StatusRestarting, f.Observe(false))

	// Back online within the cooldown: state changes, but quietly.
	now = now.Add(5 * time.Second)
	assert.Equal(t, StatusNone, f.Observe(true))
	assert.True(t, f.Online())

	// Offline again within the cooldown: also quiet.
	f.Observe(false)
	f.Observe(false)
	assert.Equal(t, StatusNone, f.Observe(false))
	assert.False(t, f.Online())

	// After the cooldown elapses, notifications resume.
	now = now.Add(statusCooldown)
	assert.Equal(t, StatusOnline, f.Observe(true))
}

func TestStatusFSMNeverRestartingBeforeFirstOnline(t *testing.T) {
	f := newStatusFSM()
	for range 10 {
		assert.Equal(t, StatusNone, f.Observe(false))
	}
	assert.False(t, f.Online())
}
