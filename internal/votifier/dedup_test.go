package votifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupWindow(t *testing.T) {
	now := time.Date(2024, 8, 25, 12, 0, 0, 0, time.UTC)
	d := NewDedup()
	d.now = func() time.Time { return now }

	assert.False(t, d.IsDuplicate("Steve", "TopG"))

	d.MarkProcessed("Steve", "TopG")
	assert.True(t, d.IsDuplicate("Steve", "TopG"))

	// Different service or user is a different ballot.
	assert.False(t, d.IsDuplicate("Steve", "PlanetMinecraft"))
	assert.False(t, d.IsDuplicate("Alex", "TopG"))

	// Just inside the window.
	now = now.Add(DedupWindow - time.Second)
	assert.True(t, d.IsDuplicate("Steve", "TopG"))

	// Window elapsed; the entry expires and is pruned.
	now = now.Add(2 * time.Second)
	assert.False(t, d.IsDuplicate("Steve", "TopG"))
	assert.Empty(t, d.seen)
}

func TestDedupCaseInsensitive(t *testing.T) {
	d := NewDedup()
	d.MarkProcessed("Steve", "TopG")

	assert.True(t, d.IsDuplicate("steve", "topg"))
	assert.True(t, d.IsDuplicate("STEVE", "TOPG"))
}
