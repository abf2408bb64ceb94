package bridge

import "time"

const (
	// offlineThreshold is how many consecutive failed stats polls flip
	// the state to offline. One alone is a transient.
	offlineThreshold = 3
	// statusCooldown is the minimum gap between two notifications in
	// the same direction, so a flapping game does not spam the channel.
	statusCooldown = 30 * time.Second
)

// StatusChange is the notification a status tick may produce.
type StatusChange int

const (
	StatusNone StatusChange = iota
	StatusOnline
	StatusRestarting
)

// statusFSM is the debounced online/offline state machine. It is
// mutated only from the stats-poller goroutine.
type statusFSM struct {
	online          bool
	consecutiveFail int

	lastOnlineNotify  time.Time
	lastOfflineNotify time.Time

	now func() time.Time
}

func newStatusFSM() *statusFSM {
	return &statusFSM{now: time.Now}
}

// Observe feeds one poll result into the machine and returns the
// notification to emit, if any. Transitions always happen; the
// notification is additionally gated by the per-direction cooldown.
func (f *statusFSM) Observe(ok bool) StatusChange {
	if ok {
		f.consecutiveFail = 0
		if f.online {
			return StatusNone
		}
		f.online = true
		if f.now().Sub(f.lastOnlineNotify) >= statusCooldown {
			f.lastOnlineNotify = f.now()
			return StatusOnline
		}
		return StatusNone
	}

	f.consecutiveFail++
	if !f.online || f.consecutiveFail < offlineThreshold {
		return StatusNone
	}
	f.online = false
	if f.now().Sub(f.lastOfflineNotify) >= statusCooldown {
		f.lastOfflineNotify = f.now()
		return StatusRestarting
	}
	return StatusNone
}

// Online reports the current debounced state.
func (f *statusFSM) Online() bool {
	return f.online
}
