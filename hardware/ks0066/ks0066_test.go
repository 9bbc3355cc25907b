package ks0066

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/ks0066/hardware/gpio"
	"github.com/temoto/ks0066/log2"
	"github.com/temoto/ks0066/state/persist"
)

type recordSleep struct{ ds []time.Duration }

func (self *recordSleep) Delay(d time.Duration) { self.ds = append(self.ds, d) }

type transfer struct {
	rs bool
	b  byte
}

func (t transfer) String() string {
	if t.rs {
		return fmt.Sprintf("D%02x", t.b)
	}
	return fmt.Sprintf("I%02x", t.b)
}

// decodeWrites replays mock ops and reports bus byte latched on every
// falling edge of EN while RW is low.
func decodeWrites(pins PinMap, ops []gpio.Op) []transfer {
	level := make(map[gpio.Line]bool)
	result := []transfer{}
	for _, op := range ops {
		if op.Kind != gpio.OpSet {
			continue
		}
		if op.Line == pins.EN && !op.Value && level[pins.EN] && !level[pins.RW] {
			var b byte
			for i, line := range pins.Data {
				if level[line] {
					b |= 1 << uint(i)
				}
			}
			result = append(result, transfer{rs: level[pins.RS], b: b})
		}
		level[op.Line] = op.Value
	}
	return result
}

func transfersString(ts []transfer) string {
	ss := make([]string, len(ts))
	for i, t := range ts {
		ss[i] = t.String()
	}
	return strings.Join(ss, " ")
}

type env struct {
	dev    *Device
	mock   *gpio.Mock
	sleep  *recordSleep
	marker *persist.MemoryMarker
}

func newEnv(t testing.TB, bestEffort bool) *env {
	e := &env{
		mock:   gpio.NewMock(),
		sleep:  &recordSleep{},
		marker: &persist.MemoryMarker{},
	}
	require.NoError(t, e.marker.Store(persist.Initialized))
	var err error
	e.dev, err = New(Config{
		Pins:       DefaultPinMap(),
		Lines:      e.mock,
		Sleep:      e.sleep,
		Marker:     e.marker,
		BestEffort: bestEffort,
		Log:        log2.NewTest(t, log2.LDebug),
	})
	require.NoError(t, err)
	e.mock.Reset()
	e.sleep.ds = nil
	return e
}

func TestWriteBitMapping(t *testing.T) {
	t.Parallel()
	e := newEnv(t, false)
	pins := e.dev.Pins()
	for x := 0; x <= 0xff; x++ {
		e.mock.Reset()
		require.NoError(t, e.dev.WriteData(byte(x)))
		ops := e.mock.Ops()
		require.Len(t, ops, 8*2+4, "byte=%02x", x)
		for i, line := range pins.Data {
			assert.Equal(t, gpio.Op{Kind: gpio.OpDirection, Line: line, Dir: gpio.Out}, ops[i*2], "byte=%02x bit=%d", x, i)
			assert.Equal(t, gpio.Op{Kind: gpio.OpSet, Line: line, Value: x&(1<<uint(i)) != 0}, ops[i*2+1], "byte=%02x bit=%d", x, i)
		}
		assert.Equal(t, []gpio.Op{
			{Kind: gpio.OpSet, Line: pins.RS, Value: true},
			{Kind: gpio.OpSet, Line: pins.RW, Value: false},
			{Kind: gpio.OpSet, Line: pins.EN, Value: true},
			{Kind: gpio.OpSet, Line: pins.EN, Value: false},
		}, ops[16:])
	}
	assert.Equal(t, uint32(256), e.dev.Stat().Transfers)
	last := e.dev.Stat().LastTransfer
	assert.WithinDuration(t, time.Now(), last, time.Minute, "last transfer must be wall clock time")
}

func TestFastWriteSkipsDirection(t *testing.T) {
	t.Parallel()
	e := newEnv(t, false)
	require.NoError(t, e.dev.WriteText([]byte{0x5a}))
	ops := e.mock.Ops()
	// prepare: 8 direction changes, then none
	for i, op := range ops {
		if i < 8 {
			assert.Equal(t, gpio.OpDirection, op.Kind)
			assert.Equal(t, gpio.Out, op.Dir)
		} else {
			assert.NotEqual(t, gpio.OpDirection, op.Kind, "op=%s", op)
		}
	}
	assert.Equal(t, "I06 I02 D5a", transfersString(decodeWrites(e.dev.Pins(), ops)))
}

func TestInstructionDelays(t *testing.T) {
	t.Parallel()
	e := newEnv(t, false)

	require.NoError(t, e.dev.WriteInstruction(0x0C))
	assert.Equal(t, []time.Duration{PulseDelay, SettleDelay}, e.sleep.ds)

	e.sleep.ds = nil
	require.NoError(t, e.dev.Clear())
	assert.Equal(t, []time.Duration{PulseDelay, SettleDelay, ClearDelay}, e.sleep.ds)

	e.sleep.ds = nil
	require.NoError(t, e.dev.ReturnHome())
	assert.Equal(t, []time.Duration{PulseDelay, SettleDelay, ClearDelay}, e.sleep.ds)

	assert.Equal(t, "I0c I01 I02", transfersString(decodeWrites(e.dev.Pins(), e.mock.Ops())))
}

func TestWriteText(t *testing.T) {
	t.Parallel()
	line1 := "0123456789abcdefghij"
	cases := []struct {
		name   string
		input  string
		expect string
	}{
		{"short", "Hi", "I06 I02 D48 D69"},
		{"sanitize", "\x01a\x7f\xff~", "I06 I02 D20 D61 D20 D20 D7e"},
		{"exact-line", line1, "I06 I02 " + dataString(line1)},
		{"wrap", line1 + "XY", "I06 I02 " + dataString(line1) + " Ic0 D58 D59"},
		{"clamp", line1 + line1 + "overflow", "I06 I02 " + dataString(line1) + " Ic0 " + dataString(line1)},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			e := newEnv(t, false)
			require.NoError(t, e.dev.WriteString(c.input))
			assert.Equal(t, c.expect, transfersString(decodeWrites(e.dev.Pins(), e.mock.Ops())))
		})
	}
}

func dataString(s string) string {
	ts := make([]transfer, len(s))
	for i := range s {
		ts[i] = transfer{rs: true, b: s[i]}
	}
	return transfersString(ts)
}

func TestWriteTextDelays(t *testing.T) {
	t.Parallel()
	e := newEnv(t, false)
	require.NoError(t, e.dev.WriteString("A"))
	assert.Equal(t, []time.Duration{
		PulseDelay, SettleDelay, // entry mode
		PulseDelay, SettleDelay, ClearDelay, // return home
		PulseDelay, SettleDelay, // data
	}, e.sleep.ds)
}

func TestWriteTextEmpty(t *testing.T) {
	t.Parallel()
	e := newEnv(t, false)
	err := e.dev.WriteText(nil)
	require.Error(t, err)
	assert.True(t, IsInvalidArgument(err))
	assert.Empty(t, e.mock.Ops())
	assert.Empty(t, e.sleep.ds)
}

func TestSanitize(t *testing.T) {
	t.Parallel()
	for x := 0; x <= 0xff; x++ {
		got := Sanitize(byte(x))
		if x >= 0x20 && x < 0x7f {
			assert.Equal(t, byte(x), got)
		} else {
			assert.Equal(t, byte(' '), got, "byte=%02x", x)
		}
	}
}

func TestRead(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		input  byte // bit i is level of data line i
		expect byte
	}{
		{"zero", 0x00, 0x00},
		{"all", 0xff, 0xfe},
		{"d0", 0x01, 0x00},
		{"d1", 0x02, 0x80},
		{"d7", 0x80, 0x02},
		{"busy-addr", 0x8a, 0xa2},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			e := newEnv(t, false)
			pins := e.dev.Pins()
			for i, line := range pins.Data {
				e.mock.Input[line] = c.input&(1<<uint(i)) != 0
			}
			b, err := e.dev.ReadData()
			require.NoError(t, err)
			assert.Equal(t, c.expect, b, "got=%08b", b)
			for _, line := range pins.Data {
				assert.Equal(t, gpio.In, e.mock.Direction(line))
			}
			assert.True(t, e.mock.Level(pins.RW))
			assert.True(t, e.mock.Level(pins.RS))
			assert.False(t, e.mock.Level(pins.EN))
			assert.Equal(t, []time.Duration{PulseDelay, PulseDelay}, e.sleep.ds)
		})
	}
}

func TestReadInstructionSelectsRegister(t *testing.T) {
	t.Parallel()
	e := newEnv(t, false)
	_, err := e.dev.ReadInstruction()
	require.NoError(t, err)
	assert.False(t, e.mock.Level(e.dev.Pins().RS))
}

func TestReadThenWriteRestoresOutputs(t *testing.T) {
	t.Parallel()
	e := newEnv(t, false)
	_, err := e.dev.ReadData()
	require.NoError(t, err)
	require.NoError(t, e.dev.WriteString("x"))
	for _, line := range e.dev.Pins().Data {
		assert.Equal(t, gpio.Out, e.mock.Direction(line))
	}
	assert.False(t, e.mock.Level(e.dev.Pins().RW))
}

func TestBootstrap(t *testing.T) {
	t.Parallel()
	marker := &persist.MemoryMarker{}
	mock := gpio.NewMock()
	log := log2.NewTest(t, log2.LDebug)
	sleep := &recordSleep{}
	open := func(force bool) {
		_, err := New(Config{
			Pins:      DefaultPinMap(),
			Lines:     mock,
			Sleep:     sleep,
			Marker:    marker,
			ForceInit: force,
			Log:       log,
		})
		require.NoError(t, err)
	}
	pins := DefaultPinMap()

	open(false)
	assert.Equal(t, "I3c I0c I01 I06", transfersString(decodeWrites(pins, mock.Ops())))
	// bootstrap clear gets no ClearDelay
	assert.Equal(t, []time.Duration{
		PulseDelay, SettleDelay,
		PulseDelay, SettleDelay,
		PulseDelay, SettleDelay,
		PulseDelay, SettleDelay,
	}, sleep.ds)
	assert.NotContains(t, sleep.ds, ClearDelay)
	state, _ := marker.Load()
	assert.Equal(t, persist.Initialized, state)
	for _, line := range []gpio.Line{pins.EN, pins.RW, pins.RS} {
		assert.Equal(t, gpio.Out, mock.Direction(line))
	}

	mock.Reset()
	sleep.ds = nil
	open(false)
	assert.Empty(t, decodeWrites(pins, mock.Ops()))
	assert.Empty(t, sleep.ds)

	mock.Reset()
	open(true)
	assert.Equal(t, "I3c I0c I01 I06", transfersString(decodeWrites(pins, mock.Ops())))
}

func TestBootstrapFileMarker(t *testing.T) {
	t.Parallel()
	path := t.TempDir() + "/ks0066_init"
	mock := gpio.NewMock()
	open := func() {
		_, err := New(Config{
			Pins:   DefaultPinMap(),
			Lines:  mock,
			Sleep:  SleepFunc(func(time.Duration) {}),
			Marker: persist.NewFileMarker(path),
		})
		require.NoError(t, err)
	}
	open()
	assert.Len(t, decodeWrites(DefaultPinMap(), mock.Ops()), 4)
	mock.Reset()
	open()
	assert.Len(t, decodeWrites(DefaultPinMap(), mock.Ops()), 0)
}

func TestIoFailure(t *testing.T) {
	t.Parallel()
	e := newEnv(t, false)
	pins := e.dev.Pins()
	e.mock.Fail = func(op gpio.Op) error {
		if op.Kind == gpio.OpSet && op.Line == pins.EN && op.Value {
			return errors.New("fake EIO")
		}
		return nil
	}
	err := e.dev.WriteData('A')
	require.Error(t, err)
	assert.True(t, IsIoFailure(err))
	assert.Contains(t, err.Error(), "fake EIO")
	assert.Equal(t, uint32(1), e.dev.Stat().Errors)
	assert.Equal(t, uint32(0), e.dev.Stat().Transfers)
}

func TestBestEffort(t *testing.T) {
	t.Parallel()
	e := newEnv(t, true)
	pins := e.dev.Pins()
	e.mock.Fail = func(op gpio.Op) error {
		if op.Line == pins.Data[3] {
			return errors.New("fake EBUSY")
		}
		return nil
	}
	require.NoError(t, e.dev.WriteString("AB"))
	st := e.dev.Stat()
	assert.Equal(t, uint32(4), st.Transfers)
	// prepare + 4 transfers on failed line
	assert.Equal(t, uint32(5), st.Errors)
}

func TestBestEffortReadRepeatsSample(t *testing.T) {
	t.Parallel()
	e := newEnv(t, true)
	pins := e.dev.Pins()
	e.mock.Input[pins.Data[0]] = true
	e.mock.Fail = func(op gpio.Op) error {
		if op.Kind == gpio.OpGet && op.Line != pins.Data[0] {
			return errors.New("fake")
		}
		return nil
	}
	b, err := e.dev.ReadData()
	require.NoError(t, err)
	assert.Equal(t, byte(0xfe), b)
}

func TestCursorYX(t *testing.T) {
	t.Parallel()
	e := newEnv(t, false)
	require.NoError(t, e.dev.CursorYX(1, 1))
	require.NoError(t, e.dev.CursorYX(1, 20))
	require.NoError(t, e.dev.CursorYX(2, 1))
	require.NoError(t, e.dev.CursorYX(2, 5))
	assert.Equal(t, "I80 I93 Ic0 Ic4", transfersString(decodeWrites(e.dev.Pins(), e.mock.Ops())))

	e.mock.Reset()
	for _, yx := range [][2]uint8{{0, 1}, {3, 1}, {1, 0}, {1, 21}} {
		err := e.dev.CursorYX(yx[0], yx[1])
		assert.True(t, IsInvalidArgument(err), "yx=%v", yx)
	}
	assert.Empty(t, e.mock.Ops())
}

func TestWriteRaw(t *testing.T) {
	t.Parallel()
	e := newEnv(t, false)
	require.NoError(t, e.dev.Write([]byte{0x41, 0xa0, 0x05}))
	assert.Equal(t, "D41 Da0 D05", transfersString(decodeWrites(e.dev.Pins(), e.mock.Ops())))
	e.mock.Reset()
	require.NoError(t, e.dev.Write(nil))
	assert.Empty(t, e.mock.Ops())
}

func TestNewInvalid(t *testing.T) {
	t.Parallel()
	_, err := New(Config{Pins: DefaultPinMap()})
	assert.True(t, errors.IsNotValid(err))

	pins := DefaultPinMap()
	pins.Data[5] = pins.EN
	_, err = New(Config{Pins: pins, Lines: gpio.NewMock()})
	assert.True(t, IsInvalidArgument(err), errors.ErrorStack(err))
}

func TestCheckByte(t *testing.T) {
	t.Parallel()
	for _, x := range []int{0, 1, 0x7f, 0xff} {
		b, err := CheckByte(x)
		assert.NoError(t, err)
		assert.Equal(t, byte(x), b)
	}
	for _, x := range []int{-1, 256, 1000} {
		_, err := CheckByte(x)
		assert.True(t, IsInvalidArgument(err), "x=%d", x)
	}
}

func TestPinConfig(t *testing.T) {
	t.Parallel()
	pm, err := PinConfig{}.PinMap()
	require.NoError(t, err)
	assert.Equal(t, DefaultPinMap(), pm)

	pm, err = PinConfig{EN: 1, RW: 2, RS: 3, Data: []int{10, 11, 12, 13, 14, 15, 16, 17}}.PinMap()
	require.NoError(t, err)
	assert.Equal(t, gpio.Line(1), pm.EN)
	assert.Equal(t, gpio.Line(17), pm.Data[7])

	_, err = PinConfig{EN: 1, Data: []int{1, 2}}.PinMap()
	assert.True(t, errors.IsNotValid(err))
	_, err = PinConfig{EN: -1, RW: 2, RS: 3, Data: []int{10, 11, 12, 13, 14, 15, 16, 17}}.PinMap()
	assert.True(t, errors.IsNotValid(err))
	_, err = PinConfig{EN: 1, RW: 2, RS: 3, Data: []int{10, 11, 12, 13, 14, 15, 16, 1}}.PinMap()
	assert.True(t, errors.IsNotValid(err))

	if strconv.IntSize == 64 {
		var max uint32 = math.MaxUint32
		_, err = PinConfig{EN: int(max), RW: 2, RS: 3, Data: []int{10, 11, 12, 13, 14, 15, 16, 17}}.PinMap()
		assert.NoError(t, err)
		// would truncate to line 0
		_, err = PinConfig{EN: int(max) + 1, RW: 2, RS: 3, Data: []int{10, 11, 12, 13, 14, 15, 16, 17}}.PinMap()
		assert.True(t, errors.IsNotValid(err), "err=%v", err)
	}
}
