package ks0066

import "time"

// Controller timing, blind: busy flag is never polled.
const (
	PulseDelay  = 1 * time.Microsecond    // around enable pulse edges
	SettleDelay = 45 * time.Microsecond   // after instruction or data write
	ClearDelay  = 1600 * time.Microsecond // after clear and return-home
)

// Sleeper blocks calling goroutine for at least d. No cancellation.
type Sleeper interface {
	Delay(d time.Duration)
}

type SleepFunc func(time.Duration)

func (f SleepFunc) Delay(d time.Duration) { f(d) }

// DefaultSleeper is used when Config.Sleep is nil.
var DefaultSleeper Sleeper = NanoSleeper{}
