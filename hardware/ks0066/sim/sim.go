// Package sim emulates KS0066 controller behind gpio.Lines,
// decoding bus transfers the same way the chip latches them.
package sim

import (
	"strings"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/ks0066/hardware/gpio"
	"github.com/temoto/ks0066/hardware/ks0066"
)

const (
	ddramSize  = 0x68
	line2Start = 0x40
	lineLen    = 0x28 // DDRAM per line, only first ks0066.Chars are visible
)

type Transfer struct {
	RS   bool
	Read bool
	Byte byte
}

// Controller implements gpio.Lines. Safe for concurrent use.
type Controller struct {
	mu    sync.Mutex
	pins  ks0066.PinMap
	dir   map[gpio.Line]gpio.Direction
	level map[gpio.Line]bool

	ddram   [ddramSize]byte
	cgram   [64]byte
	addr    byte
	cgMode  bool // address counter points to CGRAM
	inc     bool
	display bool
	cursor  bool
	blink   bool
	twoLine bool
	bus8    bool
	output  byte // driven by controller during read
	driving bool

	history  []Transfer
	onChange func()
}

func New(pins ks0066.PinMap) (*Controller, error) {
	if err := pins.Validate(); err != nil {
		return nil, err
	}
	self := &Controller{
		pins:  pins,
		dir:   make(map[gpio.Line]gpio.Direction, 11),
		level: make(map[gpio.Line]bool, 11),
		inc:   true,
	}
	self.clear()
	return self, nil
}

// SetChangedFunc registers f to run after every latched transfer.
// f is called without internal lock held.
func (self *Controller) SetChangedFunc(f func()) {
	self.mu.Lock()
	self.onChange = f
	self.mu.Unlock()
}

func (self *Controller) SetDirection(line gpio.Line, dir gpio.Direction) error {
	if dir != gpio.In && dir != gpio.Out {
		return errors.NotValidf("sim line=%d direction=%v", line, dir)
	}
	self.mu.Lock()
	self.dir[line] = dir
	self.mu.Unlock()
	return nil
}

func (self *Controller) SetValue(line gpio.Line, value bool) error {
	self.mu.Lock()
	if self.dir[line] != gpio.Out {
		self.mu.Unlock()
		return errors.Errorf("sim line=%d set value on direction=%s", line, self.dir[line])
	}
	prev := self.level[line]
	self.level[line] = value
	changed := false
	if line == self.pins.EN && prev != value {
		changed = self.edge(value)
	}
	f := self.onChange
	self.mu.Unlock()
	if changed && f != nil {
		f()
	}
	return nil
}

func (self *Controller) Value(line gpio.Line) (bool, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.driving && self.dir[line] == gpio.In {
		for i, l := range self.pins.Data {
			if l == line {
				return self.output&(1<<uint(i)) != 0, nil
			}
		}
	}
	return self.level[line], nil
}

// edge handles enable transitions, returns true when state changed.
func (self *Controller) edge(high bool) bool {
	rs := self.level[self.pins.RS]
	if self.level[self.pins.RW] {
		if high {
			self.output = self.readRegister(rs)
			self.driving = true
			return false
		}
		self.driving = false
		self.history = append(self.history, Transfer{RS: rs, Read: true, Byte: self.output})
		if rs {
			self.advance()
		}
		return true
	}
	if high {
		return false
	}
	var b byte
	for i, line := range self.pins.Data {
		if self.level[line] {
			b |= 1 << uint(i)
		}
	}
	self.history = append(self.history, Transfer{RS: rs, Byte: b})
	if rs {
		self.writeData(b)
	} else {
		self.instruction(b)
	}
	return true
}

func (self *Controller) readRegister(rs bool) byte {
	if !rs {
		// busy flag is always clear, timing is not emulated
		return self.addr & 0x7f
	}
	if self.cgMode {
		return self.cgram[self.addr&0x3f]
	}
	return self.ddram[self.addr]
}

func (self *Controller) instruction(b byte) {
	switch {
	case b&0x80 != 0:
		self.cgMode = false
		self.addr = self.normalize(b & 0x7f)
	case b&0x40 != 0:
		self.cgMode = true
		self.addr = b & 0x3f
	case b&0x20 != 0:
		self.bus8 = b&0x10 != 0
		self.twoLine = b&0x08 != 0
	case b&0x10 != 0:
		// cursor or display shift, only cursor move is emulated
		if b&0x08 == 0 {
			self.step(b&0x04 != 0)
		}
	case b&0x08 != 0:
		self.display = b&0x04 != 0
		self.cursor = b&0x02 != 0
		self.blink = b&0x01 != 0
	case b&0x04 != 0:
		self.inc = b&0x02 != 0
	case b&0x02 != 0:
		self.cgMode = false
		self.addr = 0
	case b == ks0066.InstrClear:
		self.clear()
	}
}

func (self *Controller) clear() {
	for i := range self.ddram {
		self.ddram[i] = ' '
	}
	self.cgMode = false
	self.addr = 0
	self.inc = true
}

func (self *Controller) writeData(b byte) {
	if self.cgMode {
		self.cgram[self.addr&0x3f] = b
	} else {
		self.ddram[self.addr] = b
	}
	self.advance()
}

func (self *Controller) advance() { self.step(self.inc) }

func (self *Controller) step(forward bool) {
	if self.cgMode {
		if forward {
			self.addr = (self.addr + 1) & 0x3f
		} else {
			self.addr = (self.addr - 1) & 0x3f
		}
		return
	}
	switch {
	case forward && self.addr == lineLen-1:
		self.addr = line2Start
	case forward && self.addr == line2Start+lineLen-1:
		self.addr = 0
	case forward:
		self.addr++
	case !forward && self.addr == 0:
		self.addr = line2Start + lineLen - 1
	case !forward && self.addr == line2Start:
		self.addr = lineLen - 1
	default:
		self.addr--
	}
}

// normalize maps DDRAM address from gap between lines to line 2 start.
func (self *Controller) normalize(a byte) byte {
	switch {
	case a >= line2Start+lineLen:
		return 0
	case a >= lineLen && a < line2Start:
		return line2Start
	}
	return a
}

// Lines returns visible text, one string per display line.
// Blank display gives empty lines.
func (self *Controller) Lines() [ks0066.Lines]string {
	self.mu.Lock()
	defer self.mu.Unlock()
	result := [ks0066.Lines]string{}
	if !self.display {
		return result
	}
	for i := range result {
		start := i * line2Start
		result[i] = string(self.ddram[start : start+ks0066.Chars])
	}
	return result
}

func (self *Controller) String() string {
	lines := self.Lines()
	return strings.Join(lines[:], "\n")
}

func (self *Controller) Address() byte {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.addr
}

type Flags struct {
	Display, Cursor, Blink bool
	TwoLine, Bus8          bool
	Increment              bool
}

func (self *Controller) Flags() Flags {
	self.mu.Lock()
	defer self.mu.Unlock()
	return Flags{
		Display:   self.display,
		Cursor:    self.cursor,
		Blink:     self.blink,
		TwoLine:   self.twoLine,
		Bus8:      self.bus8,
		Increment: self.inc,
	}
}

// History returns copy of latched transfers.
func (self *Controller) History() []Transfer {
	self.mu.Lock()
	defer self.mu.Unlock()
	return append([]Transfer(nil), self.history...)
}

func (self *Controller) ResetHistory() {
	self.mu.Lock()
	self.history = self.history[:0]
	self.mu.Unlock()
}
