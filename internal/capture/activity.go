package capture

import (
	"sync"
	"time"
)

const activityLogSize = 64

// ActivityEntry is one line of a recording's recent activity.
type ActivityEntry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

type activityLog struct {
	mu      sync.Mutex
	entries [activityLogSize]ActivityEntry
	next    int
	full    bool
}

func (a *activityLog) add(at time.Time, msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries[a.next] = ActivityEntry{At: at, Message: msg}
	a.next = (a.next + 1) % activityLogSize
	if a.next == 0 {
		a.full = true
	}
}

// snapshot returns entries oldest first.
func (a *activityLog) snapshot() []ActivityEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.full {
		return append([]ActivityEntry(nil), a.entries[:a.next]...)
	}
	out := make([]ActivityEntry, 0, activityLogSize)
	out = append(out, a.entries[a.next:]...)
	return append(out, a.entries[:a.next]...)
}
