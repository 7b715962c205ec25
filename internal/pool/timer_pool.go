// Package pool provides pooled time.Timer instances for hot send/backoff paths.
package pool

import (
	"sync"
	"time"
)

var timerPool sync.Pool

// GetTimer returns a timer set to fire after d, reusing a pooled timer when available.
//
// Return the timer to the pool with PutTimer once it is no longer needed.
func GetTimer(d time.Duration) *time.Timer {
	v := timerPool.Get()
	if v == nil {
		return time.NewTimer(d)
	}

	t, _ := v.(*time.Timer) // only *time.Timer values are ever pooled
	if t.Reset(d) {
		// The timer was still active; drain its channel to avoid a stale fire.
		select {
		case <-t.C:
		default:
		}
	}

	return t
}

// PutTimer stops t and returns it to the pool.
//
// t must not be accessed after the call.
func PutTimer(t *time.Timer) {
	if !t.Stop() {
		// Drain t.C if the tick was not consumed by the caller.
		select {
		case <-t.C:
		default:
		}
	}
	timerPool.Put(t)
}
