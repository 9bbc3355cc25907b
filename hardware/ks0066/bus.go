package ks0066

import (
	"sync/atomic"
	"time"

	"github.com/temoto/ks0066/hardware/gpio"
)

// check applies error policy to one GPIO call.
func (self *Device) check(err error, op string, line gpio.Line) error {
	if err == nil {
		return nil
	}
	atomic.AddUint32(&self.errCount, 1)
	if self.bestEffort {
		self.log.Debugf("ks0066 ignore op=%s line=%d err=%v", op, line, err)
		return nil
	}
	return &IoFailure{Op: op, Line: line, Err: err}
}

func (self *Device) setDirection(line gpio.Line, dir gpio.Direction) error {
	return self.check(self.lines.SetDirection(line, dir), "set direction="+dir.String(), line)
}

func (self *Device) setValue(line gpio.Line, value bool) error {
	return self.check(self.lines.SetValue(line, value), "set value", line)
}

// prepareWrite turns data lines to outputs so following fast writes
// may skip direction changes.
func (self *Device) prepareWrite() error {
	for _, line := range self.pins.Data {
		if err := self.setDirection(line, gpio.Out); err != nil {
			return err
		}
	}
	return nil
}

// write puts byte on the bus and latches it with enable pulse.
// With configure, each data line is turned to output right before its value.
func (self *Device) write(rs bool, b byte, configure bool) error {
	for i, line := range self.pins.Data {
		if configure {
			if err := self.setDirection(line, gpio.Out); err != nil {
				return err
			}
		}
		if err := self.setValue(line, b&(1<<uint(i)) != 0); err != nil {
			return err
		}
	}
	if err := self.setValue(self.pins.RS, rs); err != nil {
		return err
	}
	if err := self.setValue(self.pins.RW, false); err != nil {
		return err
	}
	if err := self.setValue(self.pins.EN, true); err != nil {
		return err
	}
	self.sleep.Delay(PulseDelay)
	if err := self.setValue(self.pins.EN, false); err != nil {
		return err
	}
	self.sleep.Delay(SettleDelay)
	self.transferDone()
	return nil
}

// read samples data lines during enable pulse.
// Accumulation shifts after every bit, including the last one, so result is
// D0 is shifted out, D1 lands in bit 7, D7 in bit 1, bit 0 is always zero.
func (self *Device) read(rs bool) (byte, error) {
	for _, line := range self.pins.Data {
		if err := self.setDirection(line, gpio.In); err != nil {
			return 0, err
		}
	}
	if err := self.setValue(self.pins.RS, rs); err != nil {
		return 0, err
	}
	if err := self.setValue(self.pins.RW, true); err != nil {
		return 0, err
	}
	if err := self.setValue(self.pins.EN, true); err != nil {
		return 0, err
	}
	self.sleep.Delay(PulseDelay)

	var acc byte
	// failed sample in best effort mode repeats previous one
	value := false
	for _, line := range self.pins.Data {
		v, err := self.lines.Value(line)
		if err == nil {
			value = v
		} else if err = self.check(err, "get value", line); err != nil {
			_ = self.lines.SetValue(self.pins.EN, false)
			return 0, err
		}
		bit := byte(0)
		if value {
			bit = 1
		}
		acc = (bit | acc) << 1
	}

	if err := self.setValue(self.pins.EN, false); err != nil {
		return 0, err
	}
	self.sleep.Delay(PulseDelay)
	self.transferDone()
	return acc, nil
}

func (self *Device) transferDone() {
	atomic.AddUint32(&self.transfers, 1)
	atomic.StoreInt64(&self.lastNano, time.Now().UnixNano())
}
