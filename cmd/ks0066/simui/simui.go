// Package simui drives simulated controller and shows it in terminal.
package simui

import (
	"context"
	"fmt"

	"github.com/juju/errors"
	"github.com/temoto/ks0066/cmd/ks0066/subcmd"
	"github.com/temoto/ks0066/hardware/ks0066/sim"
	"github.com/temoto/ks0066/internal/command"
	"github.com/temoto/ks0066/log2"
	"github.com/temoto/ks0066/state"
)

var Mod = subcmd.Mod{Name: "sim", Usage: "simulated display in terminal, Escape to quit", Main: Main}

func Main(ctx context.Context, config *state.Config, args []string) error {
	g := state.GetGlobal(ctx)
	view, err := Setup(ctx, g, config)
	if err != nil {
		return err
	}
	defer g.Close()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-g.Alive.StopChan()
		cancel()
	}()
	return errors.Annotate(view.Run(ctx), "sim view")
}

// Setup forces sim driver, routes log into view and wires command input.
func Setup(ctx context.Context, g *state.Global, config *state.Config) (*sim.View, error) {
	config.Hardware.KS0066.Driver = state.DriverSim
	config.Persist.Marker = state.MarkerMemory
	config.Tele.Enable = false
	pins, err := config.Hardware.KS0066.Pinmap.PinMap()
	if err != nil {
		return nil, errors.Annotate(err, "sim")
	}
	c, err := sim.New(pins)
	if err != nil {
		return nil, errors.Annotate(err, "sim")
	}
	view := sim.NewView(c)
	var level log2.Level = log2.LInfo
	if config.Hardware.KS0066.LogDebug {
		level = log2.LDebug
	}
	g.Log = log2.NewWriter(view.LogWriter(), level)
	g.Hardware.KS0066.Lines = c
	g.Hardware.KS0066.Sim = c

	if err = g.Init(ctx, config); err != nil {
		return nil, err
	}
	if _, err = g.Device(); err != nil {
		return nil, errors.Annotate(err, "sim")
	}
	c.SetChangedFunc(view.Changed)
	view.SetExecFunc(func(line string) {
		result, err := g.Exec(ctx, line)
		fmt.Fprintln(view.LogWriter(), command.Reply(result, err))
	})
	return view, nil
}
