package ks0066

import (
	"fmt"

	"github.com/juju/errors"
	"github.com/temoto/ks0066/hardware/gpio"
)

// IoFailure is returned when GPIO line operation failed during transfer.
type IoFailure struct {
	Op   string
	Line gpio.Line
	Err  error
}

func (e *IoFailure) Error() string {
	return fmt.Sprintf("ks0066 io op=%s line=%d: %v", e.Op, e.Line, e.Err)
}

func IsIoFailure(err error) bool {
	_, ok := errors.Cause(err).(*IoFailure)
	return ok
}

// IsInvalidArgument reports argument rejected before any hardware traffic.
func IsInvalidArgument(err error) bool { return errors.IsNotValid(err) }

// CheckByte converts value from outer surfaces (CLI, console, MQTT) to bus byte.
func CheckByte(x int) (byte, error) {
	if x < 0 || x > 0xff {
		return 0, errors.NotValidf("ks0066 byte=%d expected 0..255", x)
	}
	return byte(x), nil
}
