// Package text_display keeps two lines of text on a character device,
// scrolling lines longer than display width.
package text_display

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/paulrosania/go-charset/charset"
	_ "github.com/paulrosania/go-charset/data"
	"github.com/temoto/alive/v2"
	"github.com/temoto/ks0066/log2"
)

const MaxWidth = 40

var spaceBytes = bytes.Repeat([]byte{' '}, MaxWidth)

type TextDisplay struct { //nolint:maligned
	alive *alive.Alive
	mu    sync.Mutex
	dev   Devicer
	log   *log2.Log
	tr    atomic.Value
	width uint32
	state State

	tickd time.Duration
	tick  uint32
	upd   chan<- State
}

type TextDisplayConfig struct {
	Codepage    string
	ScrollDelay time.Duration
	Width       uint32
}

// Devicer is satisfied by ks0066.Device.
type Devicer interface {
	Clear() error
	CursorYX(y, x uint8) error
	Write(b []byte) error
}

func NewTextDisplay(opt *TextDisplayConfig, log *log2.Log) (*TextDisplay, error) {
	if opt == nil {
		opt = &TextDisplayConfig{}
	}
	if opt.Width == 0 {
		opt.Width = 20
	}
	if opt.Width > MaxWidth {
		return nil, errors.NotValidf("text display width=%d max=%d", opt.Width, MaxWidth)
	}
	self := &TextDisplay{
		alive: alive.NewAlive(),
		log:   log,
		tickd: opt.ScrollDelay,
		width: opt.Width,
	}

	if opt.Codepage != "" {
		if err := self.SetCodepage(opt.Codepage); err != nil {
			return nil, errors.Annotatef(err, "codepage=%s", opt.Codepage)
		}
	}

	return self, nil
}

func (self *TextDisplay) SetCodepage(cp string) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	tr, err := charset.TranslatorTo(cp)
	if err != nil {
		return err
	}
	self.tr.Store(tr)
	return nil
}
func (self *TextDisplay) SetDevice(dev Devicer) {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.dev = dev
}
func (self *TextDisplay) SetScrollDelay(d time.Duration) {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.tickd = d
}

func (self *TextDisplay) Width() uint32 { return atomic.LoadUint32(&self.width) }

// Clear resets state and device.
func (self *TextDisplay) Clear() error {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.state.Clear()
	var err error
	if self.dev != nil {
		if err = self.dev.Clear(); err != nil {
			err = errors.Annotate(err, "text_display clear")
		}
	}
	self.notify()
	return err
}

// Message shows s1,s2 until wait returns, then restores previous lines.
func (self *TextDisplay) Message(s1, s2 string, wait func()) {
	next := State{
		L1: self.Translate(s1),
		L2: self.Translate(s2),
	}

	self.mu.Lock()
	prev := self.state
	self.state = next
	self.logFlush()
	self.mu.Unlock()

	wait()

	self.mu.Lock()
	self.state = prev
	self.logFlush()
	self.mu.Unlock()
}

// nil: don't change
// len=0: set empty
// State is updated even if device write fails.
func (self *TextDisplay) SetLinesBytes(b1, b2 []byte) error {
	self.mu.Lock()
	defer self.mu.Unlock()

	if b1 != nil {
		self.state.L1 = b1
	}
	if b2 != nil {
		self.state.L2 = b2
	}
	atomic.StoreUint32(&self.tick, 0)
	return self.flush()
}

func (self *TextDisplay) SetLines(line1, line2 string) error {
	self.log.Debugf("text_display l1=%q l2=%q", line1, line2)
	return self.SetLinesBytes(
		self.Translate(line1),
		self.Translate(line2))
}

func (self *TextDisplay) Tick() {
	self.mu.Lock()
	defer self.mu.Unlock()

	atomic.AddUint32(&self.tick, 1)
	self.logFlush()
}

// Run scrolls long lines until Stop. Returns immediately with zero scroll delay.
func (self *TextDisplay) Run() {
	self.mu.Lock()
	delay := self.tickd
	self.mu.Unlock()
	if delay == 0 {
		return
	}
	if !self.alive.Add(1) {
		return
	}
	defer self.alive.Done()
	tmr := time.NewTicker(delay)
	defer tmr.Stop()
	stopch := self.alive.StopChan()

	for self.alive.IsRunning() {
		select {
		case <-tmr.C:
			self.Tick()
		case <-stopch:
			return
		}
	}
}

func (self *TextDisplay) Stop() {
	self.alive.Stop()
	self.alive.Wait()
}

// sometimes returns slice into shared spaceBytes
// sometimes returns `b` (len>=width-1)
// sometimes allocates new buffer
func (self *TextDisplay) JustCenter(b []byte) []byte {
	l := len(b)
	w := int(atomic.LoadUint32(&self.width))

	// optimize short paths
	if l == 0 {
		return spaceBytes[:w]
	}
	if l >= w-1 {
		return b
	}
	padtotal := w - l
	n := padtotal / 2
	padleft := spaceBytes[:n]
	padright := spaceBytes[:n+padtotal%2] // account for odd length
	buf := make([]byte, 0, w)
	buf = append(append(append(buf, padleft...), b...), padright...)
	return buf
}

// returns `b` when len>=width
// otherwise pads with spaces
func (self *TextDisplay) PadRight(b []byte) []byte {
	return PadSpace(b, self.width)
}

// Translate converts UTF-8 to device codepage and pads to width.
// Trailing \x00 disables padding, leaving cursor right after text.
// Untranslatable input is kept as is.
func (self *TextDisplay) Translate(s string) []byte {
	if len(s) == 0 {
		return spaceBytes[:0]
	}

	pad := true
	if s[len(s)-1] == '\x00' {
		pad = false
		s = s[:len(s)-1]
	}

	result := []byte(s)
	tr, ok := self.tr.Load().(charset.Translator)
	if ok && tr != nil {
		self.mu.Lock()
		_, tb, err := tr.Translate(result, true)
		if err != nil {
			self.log.Errorf("text_display translate s=%q err=%v", s, err)
		} else {
			// translator reuses single internal buffer, make a copy
			result = append([]byte(nil), tb...)
		}
		self.mu.Unlock()
	}

	if pad {
		result = self.PadRight(result)
	}
	return result
}

func (self *TextDisplay) SetUpdateChan(ch chan<- State) {
	self.upd = ch
}

func (self *TextDisplay) State() State {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.state.Copy()
}

func (self *TextDisplay) logFlush() {
	if err := self.flush(); err != nil {
		self.log.Error(err)
	}
}

// flush returns first device error.
func (self *TextDisplay) flush() error {
	if self.dev == nil {
		self.notify()
		return nil
	}
	var buf1 [MaxWidth]byte
	var buf2 [MaxWidth]byte
	b1 := buf1[:self.width]
	b2 := buf2[:self.width]
	tick := atomic.LoadUint32(&self.tick)
	n1 := scrollWrap(b1, self.state.L1, tick)
	n2 := scrollWrap(b2, self.state.L2, tick)

	// rewrite without clear, looks smoother
	// no padding: "erase" modified area, for now - whole line
	errs := make([]error, 0, 8)
	put := func(y uint8, b []byte) {
		errs = append(errs, self.dev.CursorYX(y, 1), self.dev.Write(b))
	}
	if n1 < self.width {
		put(1, spaceBytes[:self.width])
	}
	if len(self.state.L1) > 0 {
		put(1, b1[:n1])
	}
	if n2 < self.width {
		put(2, spaceBytes[:self.width])
	}
	if len(self.state.L2) > 0 {
		put(2, b2[:n2])
	}
	self.notify()
	for _, err := range errs {
		if err != nil {
			return errors.Annotate(err, "text_display flush")
		}
	}
	return nil
}

func (self *TextDisplay) notify() {
	if self.upd != nil {
		self.upd <- self.state.Copy()
	}
}

type State struct {
	L1, L2 []byte
}

func (s *State) Clear() {
	s.L1 = nil
	s.L2 = nil
}

func (s State) Copy() State {
	return State{
		L1: append([]byte(nil), s.L1...),
		L2: append([]byte(nil), s.L2...),
	}
}

func (s State) Format(width uint32) string {
	return fmt.Sprintf("%s\n%s",
		PadSpace(s.L1, width),
		PadSpace(s.L2, width),
	)
}

func (s State) String() string {
	return fmt.Sprintf("%s\n%s", s.L1, s.L2)
}

func PadSpace(b []byte, width uint32) []byte {
	l := uint32(len(b))

	if l == 0 {
		return spaceBytes[:width]
	}
	if l >= width {
		return b
	}
	buf := make([]byte, 0, width)
	buf = append(append(buf, b...), spaceBytes[:width-l]...)
	return buf
}

// relies that len(buf) == display width
func scrollWrap(buf []byte, content []byte, tick uint32) uint32 {
	length := uint32(len(content))
	width := uint32(len(buf))
	gap := uint32(width / 2)
	n := 0
	if length <= width {
		n = copy(buf, content)
		copy(buf[n:], spaceBytes)
		return uint32(n)
	}

	offset := tick % (length + gap)
	if offset < length {
		n = copy(buf, content[offset:])
	} else {
		gap = gap - (offset - length)
	}
	n += copy(buf[n:], spaceBytes[:gap])
	n += copy(buf[n:], content[0:])
	return uint32(n)
}
