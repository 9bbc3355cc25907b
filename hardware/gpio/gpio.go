// Package gpio is the per-line digital I/O surface consumed by display drivers.
// Backends: Linux sysfs files, GPIO character device, periph.io host drivers
// and an in-memory Mock for tests.
package gpio

import (
	"fmt"
)

// Line is kernel GPIO number (sysfs) or line offset on a chip (cdev).
type Line uint32

type Direction uint8

const (
	In Direction = iota + 1
	Out
)

func (d Direction) String() string {
	switch d {
	case In:
		return "in"
	case Out:
		return "out"
	}
	return fmt.Sprintf("Direction(%d)", uint8(d))
}

// Lines implementations open and release underlying resources as they see fit,
// callers must not assume a line keeps its configuration after external changes.
// Not safe for concurrent use on the same lines.
type Lines interface {
	SetDirection(line Line, dir Direction) error
	SetValue(line Line, value bool) error
	Value(line Line) (bool, error)
}

func levelByte(value bool) byte {
	if value {
		return 1
	}
	return 0
}
