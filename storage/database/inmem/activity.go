package inmemdb

import (
	"context"
	"sync"

	"github.com/Joeboy77/dms-backend-sub000/core/defense"
)

// ActivityLog keeps audit entries in memory.
type ActivityLog struct {
	mu      sync.RWMutex
	entries []defense.Activity
	err     error
}

var _ defense.ActivityLog = (*ActivityLog)(nil) // interface compliance check

func NewActivityLog() *ActivityLog {
	return &ActivityLog{}
}

func (al *ActivityLog) Record(_ context.Context, activity defense.Activity) error {
	al.mu.Lock()
	defer al.mu.Unlock()
	if al.err != nil {
		return al.err
	}
	al.entries = append(al.entries, activity)
	return nil
}

// Entries returns a copy of the recorded activities, oldest first.
func (al *ActivityLog) Entries() []defense.Activity {
	al.mu.RLock()
	defer al.mu.RUnlock()
	return append([]defense.Activity(nil), al.entries...)
}

// FailWith makes subsequent Record calls fail with err (nil to recover).
func (al *ActivityLog) FailWith(err error) {
	al.mu.Lock()
	defer al.mu.Unlock()
	al.err = err
}
