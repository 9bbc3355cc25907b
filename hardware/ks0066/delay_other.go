//go:build !linux
// +build !linux

package ks0066

import "time"

type NanoSleeper struct{}

func (NanoSleeper) Delay(d time.Duration) { time.Sleep(d) }
