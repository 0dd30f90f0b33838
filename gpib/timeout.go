package gpib

import (
	"fmt"
	"time"
)

// TimeoutSetting is one of the discrete bus timeout settings (ibtmo).
type TimeoutSetting int

const (
	TNONE TimeoutSetting = iota
	T10us
	T30us
	T100us
	T300us
	T1ms
	T3ms
	T10ms
	T30ms
	T100ms
	T300ms
	T1s
	T3s
	T10s
	T30s
	T100s
	T300s
	T1000s
)

var timeoutDurations = [...]time.Duration{
	TNONE:  0,
	T10us:  10 * time.Microsecond,
	T30us:  30 * time.Microsecond,
	T100us: 100 * time.Microsecond,
	T300us: 300 * time.Microsecond,
	T1ms:   time.Millisecond,
	T3ms:   3 * time.Millisecond,
	T10ms:  10 * time.Millisecond,
	T30ms:  30 * time.Millisecond,
	T100ms: 100 * time.Millisecond,
	T300ms: 300 * time.Millisecond,
	T1s:    time.Second,
	T3s:    3 * time.Second,
	T10s:   10 * time.Second,
	T30s:   30 * time.Second,
	T100s:  100 * time.Second,
	T300s:  300 * time.Second,
	T1000s: 1000 * time.Second,
}

// Duration returns the length of the timeout. TNONE (no timeout) returns 0.
func (t TimeoutSetting) Duration() time.Duration {
	if !t.Valid() {
		return 0
	}

	return timeoutDurations[t]
}

// Valid reports whether t is a defined setting.
func (t TimeoutSetting) Valid() bool {
	return t >= TNONE && t <= T1000s
}

// Infinite reports whether t disables the timeout.
func (t TimeoutSetting) Infinite() bool {
	return t == TNONE
}

func (t TimeoutSetting) String() string {
	if t == TNONE {
		return "TNONE"
	}
	if !t.Valid() {
		return fmt.Sprintf("TimeoutSetting(%d)", int(t))
	}

	return "T" + t.Duration().String()
}

// TimeoutFor returns the shortest setting that is at least d.
// Durations beyond T1000s return T1000s; d <= 0 returns TNONE.
func TimeoutFor(d time.Duration) TimeoutSetting {
	if d <= 0 {
		return TNONE
	}
	for t := T10us; t <= T1000s; t++ {
		if timeoutDurations[t] >= d {
			return t
		}
	}

	return T1000s
}
