// Package pool keeps reusable timers for the short, frequent waits of the bus
// layer, such as waiting for a transfer to finish within one poll slice.
package pool

import (
	"sync"
	"time"
)

var timerPool sync.Pool

// GetTimer returns a timer for the given duration d from the pool.
//
// Return back the timer to the pool with PutTimer.
func GetTimer(d time.Duration) *time.Timer {
	if v := timerPool.Get(); v != nil {
		t, _ := v.(*time.Timer)
		t.Reset(d)

		return t
	}

	return time.NewTimer(d)
}

// PutTimer returns timer to the pool.
//
// t cannot be accessed after returning to the pool.
func PutTimer(t *time.Timer) {
	if !t.Stop() {
		// drain t.C if it wasn't obtained by the caller yet
		select {
		case <-t.C:
		default:
		}
	}
	timerPool.Put(t)
}

// WaitSignal waits up to d for a value on ch. It reports whether ch fired
// (or was closed) before the timer expired. A negative d waits without limit.
func WaitSignal(ch <-chan struct{}, d time.Duration) bool {
	if d < 0 {
		<-ch
		return true
	}

	t := GetTimer(d)
	defer PutTimer(t)

	select {
	case <-ch:
		return true
	case <-t.C:
		return false
	}
}
