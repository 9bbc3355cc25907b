package ks0066

import (
	"math"

	"github.com/juju/errors"
	"github.com/temoto/ks0066/hardware/gpio"
)

// PinMap assigns GPIO lines to controller pins.
// Data[i] carries bit i of the bus byte, Data[0] is least significant.
type PinMap struct {
	EN   gpio.Line // enable, latches transfer on falling edge
	RW   gpio.Line // read=1 write=0
	RS   gpio.Line // register select: instruction=0 data=1
	Data [8]gpio.Line
}

// DefaultPinMap is the reference board wiring.
func DefaultPinMap() PinMap {
	return PinMap{
		EN:   66,
		RW:   65,
		RS:   64,
		Data: [8]gpio.Line{67, 68, 69, 72, 73, 74, 75, 80},
	}
}

func (self PinMap) Validate() error {
	seen := make(map[gpio.Line]string, 11)
	check := func(name string, line gpio.Line) error {
		if other, ok := seen[line]; ok {
			return errors.NotValidf("pinmap line=%d used by both %s and %s", line, other, name)
		}
		seen[line] = name
		return nil
	}
	if err := check("en", self.EN); err != nil {
		return err
	}
	if err := check("rw", self.RW); err != nil {
		return err
	}
	if err := check("rs", self.RS); err != nil {
		return err
	}
	for i, line := range self.Data {
		if err := check("d"+string(rune('0'+i)), line); err != nil {
			return err
		}
	}
	return nil
}

func (self PinMap) control() [3]gpio.Line {
	return [3]gpio.Line{self.EN, self.RW, self.RS}
}

// PinConfig is PinMap as written in config file.
// Zero value means DefaultPinMap.
type PinConfig struct {
	EN   int   `hcl:"en"`
	RW   int   `hcl:"rw"`
	RS   int   `hcl:"rs"`
	Data []int `hcl:"data"`
}

func (self PinConfig) PinMap() (PinMap, error) {
	if self.EN == 0 && self.RW == 0 && self.RS == 0 && len(self.Data) == 0 {
		return DefaultPinMap(), nil
	}
	pm := PinMap{}
	if len(self.Data) != len(pm.Data) {
		return pm, errors.NotValidf("pinmap data length=%d expected=%d", len(self.Data), len(pm.Data))
	}
	line := func(name string, x int) (gpio.Line, error) {
		if x < 0 || uint64(x) > math.MaxUint32 {
			return 0, errors.NotValidf("pinmap %s=%d", name, x)
		}
		return gpio.Line(x), nil
	}
	var err error
	if pm.EN, err = line("en", self.EN); err != nil {
		return pm, err
	}
	if pm.RW, err = line("rw", self.RW); err != nil {
		return pm, err
	}
	if pm.RS, err = line("rs", self.RS); err != nil {
		return pm, err
	}
	for i, x := range self.Data {
		if pm.Data[i], err = line("data", x); err != nil {
			return pm, err
		}
	}
	return pm, pm.Validate()
}
