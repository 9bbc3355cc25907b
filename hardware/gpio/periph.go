package gpio

import (
	"strconv"
	"sync"

	"github.com/juju/errors"
	pgpio "periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

var periphInit struct {
	once sync.Once
	err  error
}

// Periph drives lines through periph.io host drivers, which pick the fastest
// available access method (memory mapped registers or sysfs).
type Periph struct {
	// optional line -> pin name, default is decimal line number
	Names map[Line]string

	pins  map[Line]pgpio.PinIO
	level map[Line]pgpio.Level
	// tests replace lookup to avoid touching host registry
	lookup func(name string) pgpio.PinIO
}

func OpenPeriph(names map[Line]string) (*Periph, error) {
	periphInit.once.Do(func() {
		_, periphInit.err = host.Init()
	})
	if periphInit.err != nil {
		return nil, errors.Annotate(periphInit.err, "periph/init")
	}
	return newPeriph(names, gpioreg.ByName), nil
}

func newPeriph(names map[Line]string, lookup func(string) pgpio.PinIO) *Periph {
	return &Periph{
		Names:  names,
		pins:   make(map[Line]pgpio.PinIO, 11),
		level:  make(map[Line]pgpio.Level, 11),
		lookup: lookup,
	}
}

func (self *Periph) pin(line Line) (pgpio.PinIO, error) {
	if p, ok := self.pins[line]; ok {
		return p, nil
	}
	name, ok := self.Names[line]
	if !ok {
		name = strconv.FormatUint(uint64(line), 10)
	}
	p := self.lookup(name)
	if p == nil {
		return nil, errors.NotFoundf("periph pin=%s line=%d", name, line)
	}
	self.pins[line] = p
	return p, nil
}

func (self *Periph) SetDirection(line Line, dir Direction) error {
	p, err := self.pin(line)
	if err != nil {
		return err
	}
	switch dir {
	case In:
		err = p.In(pgpio.Float, pgpio.NoEdge)
	case Out:
		// keep last driven level, periph has no direction-only call
		err = p.Out(self.level[line])
	default:
		return errors.NotValidf("line=%d direction=%v", line, dir)
	}
	return errors.Annotatef(err, "periph pin=%s set direction=%s", p, dir)
}

func (self *Periph) SetValue(line Line, value bool) error {
	p, err := self.pin(line)
	if err != nil {
		return err
	}
	level := pgpio.Level(value)
	if err = p.Out(level); err != nil {
		return errors.Annotatef(err, "periph pin=%s set value=%t", p, value)
	}
	self.level[line] = level
	return nil
}

func (self *Periph) Value(line Line) (bool, error) {
	p, err := self.pin(line)
	if err != nil {
		return false, err
	}
	return bool(p.Read()), nil
}
