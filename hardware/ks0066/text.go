package ks0066

import (
	"github.com/juju/errors"
)

// Sanitize replaces bytes outside printable ASCII with space.
func Sanitize(b byte) byte {
	if b < 0x20 || b >= 0x7f {
		return ' '
	}
	return b
}

// WriteText renders up to MaxChars bytes from home position.
// First Chars go to line 1, rest continue on line 2. Excess is ignored.
// Previous content beyond text is not cleared.
func (self *Device) WriteText(text []byte) error {
	if len(text) == 0 {
		return errors.NotValidf("ks0066 text length=0")
	}
	n := len(text)
	if n > MaxChars {
		n = MaxChars
	}
	for i, b := range text[:n] {
		self.buf[i] = Sanitize(b)
	}

	if err := self.prepareWrite(); err != nil {
		return err
	}
	if err := self.fastInstruction(InstrEntryIncrement); err != nil {
		return err
	}
	if err := self.fastReturnHome(); err != nil {
		return err
	}
	for i, b := range self.buf[:n] {
		if i == Chars {
			if err := self.fastInstruction(InstrLine2); err != nil {
				return err
			}
		}
		if err := self.fastData(b); err != nil {
			return err
		}
	}
	return nil
}

func (self *Device) WriteString(s string) error { return self.WriteText([]byte(s)) }

// CursorYX moves address counter to line y column x, both 1-based.
func (self *Device) CursorYX(y, x uint8) error {
	if y < 1 || y > Lines || x < 1 || x > Chars {
		return errors.NotValidf("ks0066 cursor y=%d x=%d", y, x)
	}
	addr := (y-1)*ddramLine2 + (x - 1)
	return self.WriteInstruction(InstrSetDDRAM | addr)
}

// Write sends bytes to data register at current address as is,
// so codepage translated text reaches character generator unchanged.
func (self *Device) Write(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if err := self.prepareWrite(); err != nil {
		return err
	}
	for _, c := range b {
		if err := self.fastData(c); err != nil {
			return err
		}
	}
	return nil
}
