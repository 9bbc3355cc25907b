package gpio

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"

	"github.com/juju/errors"
)

const DefaultSysfsRoot = "/sys/class/gpio"

// Sysfs drives exported lines through /sys/class/gpio/gpioN/{direction,value}.
// Every call opens, writes or reads, and closes the file, so lines re-exported
// by other processes are picked up without restarting.
type Sysfs struct {
	Root string
}

func NewSysfs(root string) *Sysfs {
	if root == "" {
		root = DefaultSysfsRoot
	}
	return &Sysfs{Root: root}
}

func (self *Sysfs) path(line Line, entry string) string {
	return filepath.Join(self.Root, "gpio"+strconv.FormatUint(uint64(line), 10), entry)
}

func (self *Sysfs) SetDirection(line Line, dir Direction) error {
	if dir != In && dir != Out {
		return errors.NotValidf("gpio%d direction=%v", line, dir)
	}
	err := writeEntry(self.path(line, "direction"), dir.String())
	return errors.Annotatef(err, "gpio%d set direction=%s", line, dir)
}

func (self *Sysfs) SetValue(line Line, value bool) error {
	s := "0"
	if value {
		s = "1"
	}
	err := writeEntry(self.path(line, "value"), s)
	return errors.Annotatef(err, "gpio%d set value=%s", line, s)
}

func (self *Sysfs) Value(line Line) (bool, error) {
	path := self.path(line, "value")
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return false, errors.Annotatef(err, "gpio%d get value", line)
	}
	switch string(bytes.TrimRight(b, "\n")) {
	case "0":
		return false, nil
	case "1":
		return true, nil
	}
	return false, errors.NotValidf("gpio%d value=%q", line, b)
}

// Direction reads back current direction, mostly for diagnostics.
func (self *Sysfs) Direction(line Line) (Direction, error) {
	b, err := ioutil.ReadFile(self.path(line, "direction"))
	if err != nil {
		return 0, errors.Annotatef(err, "gpio%d get direction", line)
	}
	switch string(bytes.TrimRight(b, "\n")) {
	case "in":
		return In, nil
	case "out", "high", "low":
		return Out, nil
	}
	return 0, errors.NotValidf("gpio%d direction=%q", line, b)
}

func writeEntry(path, s string) error {
	// no O_CREATE: sysfs entries exist only for exported lines
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	_, err = f.WriteString(s)
	if errClose := f.Close(); err == nil {
		err = errClose
	}
	return err
}
