// Package daemon keeps text display running and serves MQTT commands.
package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/ks0066/cmd/ks0066/subcmd"
	"github.com/temoto/ks0066/state"
)

var Mod = subcmd.Mod{Name: "daemon", Usage: "run display service with remote control", Main: Main}

func Main(ctx context.Context, config *state.Config, args []string) error {
	g := state.GetGlobal(ctx)
	if err := g.Init(ctx, config); err != nil {
		return err
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			g.Log.Infof("daemon signal=%v stopping", sig)
			g.Alive.Stop()
		case <-g.Alive.StopChan():
		}
	}()
	return Run(ctx, g)
}

// Run blocks until g.Alive is stopped.
func Run(ctx context.Context, g *state.Global) error {
	display, err := g.Display()
	if err != nil {
		err = errors.Annotate(err, "daemon")
		g.Error(err)
		g.Close()
		return err
	}
	if err = display.SetLines("ks0066", "ready"); err != nil {
		g.Error(errors.Annotate(err, "daemon"))
	}
	go display.Run()

	subcmd.SdNotify(daemon.SdNotifyReady)
	g.Log.Infof("daemon init complete, running")
	<-g.Alive.StopChan()

	subcmd.SdNotify("STOPPING=1")
	return g.Close()
}
