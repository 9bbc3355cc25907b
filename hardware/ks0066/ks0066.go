// Package ks0066 drives KS0066/HD44780 compatible character LCD
// over 8-bit parallel bus bit-banged on individual GPIO lines.
// Geometry is fixed at 2 lines of 20 characters.
// Busy flag is never polled, all waits are fixed delays.
package ks0066

import (
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/ks0066/hardware/gpio"
	"github.com/temoto/ks0066/log2"
	"github.com/temoto/ks0066/state/persist"
)

const (
	Lines    = 2
	Chars    = 20 // per line
	MaxChars = Lines * Chars
)

type Config struct {
	Pins  PinMap
	Lines gpio.Lines
	// nil means DefaultSleeper
	Sleep Sleeper
	// nil means persist.FileMarker at DefaultMarkerPath
	Marker persist.Marker
	// Count and log GPIO errors instead of aborting transfer.
	BestEffort bool
	// Run bootstrap sequence even if marker says Initialized.
	ForceInit bool
	Log       *log2.Log
}

// Device is not safe for concurrent use, callers serialize access.
type Device struct {
	pins       PinMap
	lines      gpio.Lines
	sleep      Sleeper
	log        *log2.Log
	bestEffort bool

	transfers uint32
	errCount  uint32
	lastNano  int64 // wall clock UnixNano, atomic

	buf [MaxChars]byte
}

type Stat struct {
	Transfers    uint32
	Errors       uint32
	LastTransfer time.Time
}

// New configures control lines as outputs and runs one-time bootstrap
// unless marker reports it was done already.
func New(c Config) (*Device, error) {
	if c.Lines == nil {
		return nil, errors.NotValidf("ks0066 lines=nil")
	}
	if err := c.Pins.Validate(); err != nil {
		return nil, errors.Annotate(err, "ks0066")
	}
	if c.Sleep == nil {
		c.Sleep = DefaultSleeper
	}
	if c.Marker == nil {
		c.Marker = persist.NewFileMarker("")
	}
	self := &Device{
		pins:       c.Pins,
		lines:      c.Lines,
		sleep:      c.Sleep,
		log:        c.Log,
		bestEffort: c.BestEffort,
	}
	for _, line := range self.pins.control() {
		if err := self.setDirection(line, gpio.Out); err != nil {
			return nil, errors.Annotate(err, "ks0066 control lines")
		}
	}
	if err := self.bootstrap(c.Marker, c.ForceInit); err != nil {
		return nil, err
	}
	return self, nil
}

func (self *Device) Pins() PinMap { return self.pins }

func (self *Device) Stat() Stat {
	s := Stat{
		Transfers: atomic.LoadUint32(&self.transfers),
		Errors:    atomic.LoadUint32(&self.errCount),
	}
	if last := atomic.LoadInt64(&self.lastNano); last != 0 {
		s.LastTransfer = time.Unix(0, last)
	}
	return s
}

func (self *Device) bootstrap(marker persist.Marker, force bool) error {
	state, err := marker.Load()
	if err != nil {
		err = errors.Annotate(err, "ks0066 bootstrap marker load")
		if !self.bestEffort {
			return err
		}
		self.log.Error(err)
		state = persist.Uninitialized
	}
	if state == persist.Initialized && !force {
		self.log.Debugf("ks0066 bootstrap skip, marker=%s", state)
		return nil
	}

	if err = self.prepareWrite(); err != nil {
		return errors.Annotate(err, "ks0066 bootstrap")
	}
	for _, b := range []byte{InstrFunctionSet, InstrDisplayOn, InstrClear, InstrEntryIncrement} {
		if err = self.fastInstruction(b); err != nil {
			return errors.Annotatef(err, "ks0066 bootstrap instruction=%02x", b)
		}
	}
	self.log.Debugf("ks0066 bootstrap done")

	if err = marker.Store(persist.Initialized); err != nil {
		err = errors.Annotate(err, "ks0066 bootstrap marker store")
		if !self.bestEffort {
			return err
		}
		self.log.Error(err)
	}
	return nil
}
