package ks0066

// Instruction register values used by this driver.
const (
	InstrClear          byte = 0x01
	InstrReturnHome     byte = 0x02
	InstrEntryIncrement byte = 0x06 // entry mode: increment, no shift
	InstrDisplayOn      byte = 0x0C // display on, cursor off, blink off
	InstrFunctionSet    byte = 0x3C // 8-bit bus, 2 lines, 5x11 font
	InstrSetDDRAM       byte = 0x80
	InstrLine2          byte = InstrSetDDRAM | ddramLine2
)

const ddramLine2 = 0x40

// WriteInstruction sends byte to instruction register (RS=0),
// configuring data lines as outputs first.
func (self *Device) WriteInstruction(b byte) error {
	return self.write(false, b, true)
}

// WriteData sends byte to data register (RS=1),
// configuring data lines as outputs first.
func (self *Device) WriteData(b byte) error {
	return self.write(true, b, true)
}

// ReadInstruction reads busy flag and address counter (RS=0).
func (self *Device) ReadInstruction() (byte, error) {
	return self.read(false)
}

// ReadData reads RAM at address counter (RS=1).
func (self *Device) ReadData() (byte, error) {
	return self.read(true)
}

func (self *Device) Clear() error {
	if err := self.WriteInstruction(InstrClear); err != nil {
		return err
	}
	self.sleep.Delay(ClearDelay)
	return nil
}

func (self *Device) ReturnHome() error {
	if err := self.WriteInstruction(InstrReturnHome); err != nil {
		return err
	}
	self.sleep.Delay(ClearDelay)
	return nil
}

// fast variants assume data lines are outputs already
func (self *Device) fastInstruction(b byte) error { return self.write(false, b, false) }
func (self *Device) fastData(b byte) error        { return self.write(true, b, false) }

func (self *Device) fastReturnHome() error {
	if err := self.fastInstruction(InstrReturnHome); err != nil {
		return err
	}
	self.sleep.Delay(ClearDelay)
	return nil
}
