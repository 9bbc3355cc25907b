package text_display

import (
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/ks0066/log2"
)

func NewMockTextDisplay(opt *TextDisplayConfig, log *log2.Log) (*TextDisplay, *MockDevicer) {
	dev := NewMockDevicer()
	display, err := NewTextDisplay(opt, log)
	if err != nil {
		panic(err)
	}
	display.dev = dev
	return display, dev
}

// MockDevicer keeps 2 lines of MaxWidth bytes, cursor moves like on real device.
type MockDevicer struct {
	mu     sync.Mutex
	lines  [2][MaxWidth]byte
	y, x   uint8
	clears int
	Err    error
}

func NewMockDevicer() *MockDevicer {
	d := &MockDevicer{}
	d.clear()
	return d
}

func (self *MockDevicer) clear() {
	for i := range self.lines {
		copy(self.lines[i][:], spaceBytes)
	}
	self.y, self.x = 0, 0
}

func (self *MockDevicer) Clear() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.clears++
	self.clear()
	return self.Err
}

func (self *MockDevicer) CursorYX(y, x uint8) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if y < 1 || y > 2 || x < 1 || x > MaxWidth {
		return errors.NotValidf("cursor y=%d x=%d", y, x)
	}
	self.y, self.x = y-1, x-1
	return self.Err
}

func (self *MockDevicer) Write(b []byte) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	for _, c := range b {
		if int(self.x) >= MaxWidth {
			break
		}
		self.lines[self.y][self.x] = c
		self.x++
	}
	return self.Err
}

// Line returns first n bytes of line y (1-based).
func (self *MockDevicer) Line(y int, n uint32) []byte {
	self.mu.Lock()
	defer self.mu.Unlock()
	return append([]byte(nil), self.lines[y-1][:n]...)
}

func (self *MockDevicer) Clears() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.clears
}
