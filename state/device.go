package state

import (
	"bytes"
	"sync"

	"github.com/temoto/ks0066/hardware/ks0066"
	"github.com/temoto/ks0066/hardware/text_display"
	"github.com/temoto/ks0066/helpers"
)

// Device serializes access to ks0066.Device shared by text display,
// tele worker and interactive commands.
type Device struct {
	mu  sync.Mutex
	dev *ks0066.Device
}

func NewDevice(dev *ks0066.Device) *Device { return &Device{dev: dev} }

func (self *Device) Unwrap() *ks0066.Device { return self.dev }

func (self *Device) Stat() ks0066.Stat { return self.dev.Stat() }

func (self *Device) Clear() error      { return helpers.WithLockError(&self.mu, self.dev.Clear) }
func (self *Device) ReturnHome() error { return helpers.WithLockError(&self.mu, self.dev.ReturnHome) }

func (self *Device) CursorYX(y, x uint8) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.dev.CursorYX(y, x)
}

func (self *Device) Write(b []byte) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.dev.Write(b)
}

func (self *Device) WriteText(text []byte) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.dev.WriteText(text)
}

func (self *Device) WriteInstruction(b byte) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.dev.WriteInstruction(b)
}

func (self *Device) WriteData(b byte) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.dev.WriteData(b)
}

func (self *Device) ReadData() (byte, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.dev.ReadData()
}

func (self *Device) ReadInstruction() (byte, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.dev.ReadInstruction()
}

// displayDevice routes text and clear through TextDisplay so scrolling state
// stays consistent with what is on screen.
type displayDevice struct {
	*Device
	display *text_display.TextDisplay
}

func (self displayDevice) WriteText(text []byte) error {
	l1, l2 := SplitLines(text, int(self.display.Width()))
	return self.display.SetLines(l1, l2)
}

func (self displayDevice) Clear() error { return self.display.Clear() }

// SplitLines breaks text at first newline, otherwise at width.
func SplitLines(text []byte, width int) (string, string) {
	if i := bytes.IndexByte(text, '\n'); i >= 0 {
		return string(text[:i]), string(bytes.TrimRight(text[i+1:], "\n"))
	}
	if len(text) > width {
		return string(text[:width]), string(text[width:])
	}
	return string(text), ""
}
