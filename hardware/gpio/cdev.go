package gpio

import (
	"sync"

	"github.com/juju/errors"
	cdev "github.com/temoto/gpio-cdev-go"
	"github.com/temoto/ks0066/helpers"
)

const DefaultConsumer = "ks0066"

// Cdev drives lines via GPIO character device (/dev/gpiochipN).
// Unlike sysfs, direction is a property of line request, so each line keeps
// one request open until direction changes or Close() is called.
type Cdev struct {
	mu       sync.Mutex
	chip     cdev.Chiper
	consumer string
	handles  map[Line]*cdevHandle
}

type cdevHandle struct {
	dir   Direction
	lines cdev.Lineser
	set   cdev.LineSetFunc
}

func OpenCdev(chipPath, consumer string) (*Cdev, error) {
	if consumer == "" {
		consumer = DefaultConsumer
	}
	chip, err := cdev.Open(chipPath, consumer)
	if err != nil {
		return nil, errors.Annotatef(err, "gpio chip=%s", chipPath)
	}
	return NewCdev(chip, consumer), nil
}

// NewCdev takes ownership of chip.
func NewCdev(chip cdev.Chiper, consumer string) *Cdev {
	if consumer == "" {
		consumer = DefaultConsumer
	}
	return &Cdev{
		chip:     chip,
		consumer: consumer,
		handles:  make(map[Line]*cdevHandle, 11),
	}
}

func (self *Cdev) request(line Line, dir Direction) (*cdevHandle, error) {
	if h, ok := self.handles[line]; ok {
		if h.dir == dir {
			return h, nil
		}
		delete(self.handles, line)
		if err := h.lines.Close(); err != nil {
			return nil, errors.Annotatef(err, "line=%d release dir=%s", line, h.dir)
		}
	}
	var flag cdev.RequestFlag
	switch dir {
	case In:
		flag = cdev.GPIOHANDLE_REQUEST_INPUT
	case Out:
		flag = cdev.GPIOHANDLE_REQUEST_OUTPUT
	default:
		return nil, errors.NotValidf("line=%d direction=%v", line, dir)
	}
	lines, err := self.chip.OpenLines(flag, self.consumer, uint32(line))
	if err != nil {
		return nil, errors.Annotatef(err, "line=%d request dir=%s", line, dir)
	}
	h := &cdevHandle{dir: dir, lines: lines}
	if dir == Out {
		h.set = lines.SetFunc(uint32(line))
	}
	self.handles[line] = h
	return h, nil
}

func (self *Cdev) SetDirection(line Line, dir Direction) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	_, err := self.request(line, dir)
	return err
}

func (self *Cdev) SetValue(line Line, value bool) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	h, ok := self.handles[line]
	if ok && h.dir != Out {
		return errors.NotValidf("line=%d set value on input", line)
	}
	if !ok {
		var err error
		if h, err = self.request(line, Out); err != nil {
			return err
		}
	}
	h.set(levelByte(value))
	return errors.Annotatef(h.lines.Flush(), "line=%d set value=%t", line, value)
}

func (self *Cdev) Value(line Line) (bool, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	h, ok := self.handles[line]
	if !ok {
		var err error
		if h, err = self.request(line, In); err != nil {
			return false, err
		}
	}
	data, err := h.lines.Read()
	if err != nil {
		return false, errors.Annotatef(err, "line=%d get value", line)
	}
	return data.Values[0] != 0, nil
}

// Close releases all line requests and the chip.
func (self *Cdev) Close() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	errs := make([]error, 0, len(self.handles)+1)
	for line, h := range self.handles {
		errs = append(errs, h.lines.Close())
		delete(self.handles, line)
	}
	errs = append(errs, self.chip.Close())
	return helpers.FoldErrors(errs)
}
