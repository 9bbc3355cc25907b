//go:build linux
// +build linux

package ks0066

import (
	"time"

	"golang.org/x/sys/unix"
)

// NanoSleeper calls nanosleep(2) directly, skipping runtime timers
// which add tens of microseconds on small boards.
type NanoSleeper struct{}

func (NanoSleeper) Delay(d time.Duration) {
	ts := unix.NsecToTimespec(d.Nanoseconds())
	for {
		if err := unix.Nanosleep(&ts, &ts); err != unix.EINTR {
			return
		}
	}
}
