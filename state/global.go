package state

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/ks0066/hardware/gpio"
	"github.com/temoto/ks0066/hardware/ks0066"
	"github.com/temoto/ks0066/hardware/ks0066/sim"
	"github.com/temoto/ks0066/hardware/text_display"
	"github.com/temoto/ks0066/helpers"
	"github.com/temoto/ks0066/internal/command"
	"github.com/temoto/ks0066/internal/tele"
	"github.com/temoto/ks0066/log2"
	"github.com/temoto/ks0066/state/persist"
)

type Global struct {
	Alive    *alive.Alive
	Config   *Config
	Hardware struct {
		KS0066 struct {
			Lines   gpio.Lines
			Sim     *sim.Controller
			Device  *Device
			Display *text_display.TextDisplay
		}
	}
	Log  *log2.Log
	Tele *tele.Tele

	lk sync.Mutex

	initLinesOnce   sync.Once
	initDeviceOnce  sync.Once
	initDisplayOnce sync.Once
	linesErr        error
	deviceErr       error
	displayErr      error
}

const ContextKey = "run/state-global"

const DefaultScrollDelay = 300 * time.Millisecond

func NewContext(log *log2.Log) (context.Context, *Global) {
	g := &Global{
		Alive: alive.NewAlive(),
		Log:   log,
	}
	g.Tele = tele.New(g.Exec)
	ctx := context.Background()
	ctx = context.WithValue(ctx, log2.ContextKey, log)
	ctx = context.WithValue(ctx, ContextKey, g)
	return ctx, g
}

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// Init does not touch hardware, devices are opened on first use.
// If `Init` fails, consider `Global` is in broken state.
func (g *Global) Init(ctx context.Context, cfg *Config) error {
	g.Config = cfg
	if err := cfg.Validate(); err != nil {
		return err
	}
	g.Log.Debugf("config: persist.root=%s marker=%s", cfg.Persist.Root, cfg.Persist.Marker)

	// tele is remote error reporting mechanism, init before anything else
	if err := g.Tele.Init(ctx, g.Log, cfg.Tele); err != nil {
		return errors.Annotate(err, "tele init")
	}
	if cfg.Tele.Enable {
		g.Log.SetErrorFunc(g.Tele.Error)
	}
	return nil
}

func (g *Global) MustInit(ctx context.Context, cfg *Config) {
	err := g.Init(ctx, cfg)
	if err != nil {
		g.Log.Fatal(errors.ErrorStack(err))
	}
}

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		g.Log.Errorf(errors.ErrorStack(err))
	}
}

// Lines opens GPIO backend selected by hardware.ks0066.driver.
func (g *Global) Lines() (gpio.Lines, error) {
	g.initLinesOnce.Do(func() {
		defer recoverFatal(g.Log) // fix sync.Once silent panic

		hw := &g.Hardware.KS0066
		// may be already set by tests
		if hw.Lines != nil {
			return
		}
		cfg := &g.Config.Hardware.KS0066
		switch cfg.Driver {
		case DriverSysfs:
			hw.Lines = gpio.NewSysfs(cfg.SysfsRoot)
		case DriverCdev:
			hw.Lines, g.linesErr = gpio.OpenCdev(cfg.PinChip, "")
		case DriverPeriph:
			hw.Lines, g.linesErr = gpio.OpenPeriph(nil)
		case DriverSim:
			var pins ks0066.PinMap
			if pins, g.linesErr = cfg.Pinmap.PinMap(); g.linesErr == nil {
				hw.Sim, g.linesErr = sim.New(pins)
				hw.Lines = hw.Sim
			}
		default:
			g.linesErr = errors.NotValidf("config: hardware.ks0066.driver=%s", cfg.Driver)
		}
		if g.linesErr != nil {
			hw.Lines = nil
			g.linesErr = errors.Annotatef(g.linesErr, "gpio driver=%s", cfg.Driver)
		}
	})
	return g.Hardware.KS0066.Lines, g.linesErr
}

// Marker selects bootstrap marker storage by persist.marker.
func (g *Global) Marker() (persist.Marker, error) {
	cfg := &g.Config.Persist
	switch cfg.Marker {
	case MarkerFile:
		return persist.NewFileMarker(cfg.MarkerPath), nil
	case MarkerExtremo:
		m, err := persist.NewExtremoMarker(cfg.Root, g.Log)
		return m, errors.Annotate(err, "config: persist.marker=extremofile")
	case MarkerMemory:
		return &persist.MemoryMarker{}, nil
	}
	return nil, errors.NotValidf("config: persist.marker=%s", cfg.Marker)
}

// Device opens lines, runs bootstrap once per process and marker.
func (g *Global) Device() (*Device, error) {
	g.initDeviceOnce.Do(func() {
		defer recoverFatal(g.Log)

		hw := &g.Hardware.KS0066
		if hw.Device != nil {
			return
		}
		cfg := &g.Config.Hardware.KS0066
		var err error
		defer func() { g.deviceErr = err }()
		var lines gpio.Lines
		if lines, err = g.Lines(); err != nil {
			return
		}
		var marker persist.Marker
		if marker, err = g.Marker(); err != nil {
			return
		}
		var pins ks0066.PinMap
		if pins, err = cfg.Pinmap.PinMap(); err != nil {
			return
		}
		devLog := g.Log.Clone(log2.LInfo)
		if cfg.LogDebug {
			devLog.SetLevel(log2.LDebug)
		}
		var dev *ks0066.Device
		dev, err = ks0066.New(ks0066.Config{
			Pins:       pins,
			Lines:      lines,
			Marker:     marker,
			BestEffort: cfg.BestEffort,
			ForceInit:  cfg.ForceInit,
			Log:        devLog,
		})
		if err != nil {
			err = errors.Annotatef(err, "config: hardware.ks0066 driver=%s", cfg.Driver)
			return
		}
		hw.Device = NewDevice(dev)
	})
	return g.Hardware.KS0066.Device, g.deviceErr
}

// Display wraps Device with scrolling two line text display.
func (g *Global) Display() (*text_display.TextDisplay, error) {
	g.initDisplayOnce.Do(func() {
		defer recoverFatal(g.Log)

		hw := &g.Hardware.KS0066
		if hw.Display != nil {
			return
		}
		var dev *Device
		if dev, g.displayErr = g.Device(); g.displayErr != nil {
			return
		}
		cfg := &g.Config.Hardware.KS0066
		opt := &text_display.TextDisplayConfig{
			Codepage:    cfg.Codepage,
			ScrollDelay: helpers.IntMillisecondDefault(cfg.ScrollDelay, DefaultScrollDelay),
			Width:       uint32(cfg.Width),
		}
		var d *text_display.TextDisplay
		if d, g.displayErr = text_display.NewTextDisplay(opt, g.Log); g.displayErr != nil {
			g.displayErr = errors.Annotate(g.displayErr, "config: hardware.ks0066")
			return
		}
		d.SetDevice(dev)
		g.lk.Lock()
		hw.Display = d
		g.lk.Unlock()
	})
	return g.Hardware.KS0066.Display, g.displayErr
}

// Exec runs one command line against Device. Text goes through Display once it exists.
func (g *Global) Exec(ctx context.Context, line string) (string, error) {
	dev, err := g.Device()
	if err != nil {
		return "", err
	}
	var display *text_display.TextDisplay
	helpers.WithLock(&g.lk, func() { display = g.Hardware.KS0066.Display })
	var target command.Device = dev
	if display != nil {
		target = displayDevice{Device: dev, display: display}
	}
	return command.Run(ctx, target, line)
}

// Close stops background workers and releases GPIO resources.
func (g *Global) Close() error {
	g.Alive.Stop()
	hw := &g.Hardware.KS0066
	var display *text_display.TextDisplay
	helpers.WithLock(&g.lk, func() { display = hw.Display })
	if display != nil {
		display.Stop()
	}
	g.Tele.Close()
	var err error
	if c, ok := hw.Lines.(io.Closer); ok {
		err = helpers.CloseAll(c)
	}
	g.Alive.Wait()
	return err
}

func recoverFatal(f helpers.Fataler) {
	if x := recover(); x != nil {
		f.Fatal(x)
	}
}
