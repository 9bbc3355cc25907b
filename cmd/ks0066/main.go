package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/juju/errors"
	"github.com/mattn/go-isatty"
	"github.com/temoto/ks0066/cmd/ks0066/console"
	"github.com/temoto/ks0066/cmd/ks0066/daemon"
	"github.com/temoto/ks0066/cmd/ks0066/oneshot"
	"github.com/temoto/ks0066/cmd/ks0066/simui"
	"github.com/temoto/ks0066/cmd/ks0066/subcmd"
	"github.com/temoto/ks0066/cmd/ks0066/watch"
	"github.com/temoto/ks0066/log2"
	"github.com/temoto/ks0066/state"
)

var log = log2.NewStderr(log2.LDebug)

var modules = append(append([]subcmd.Mod(nil), oneshot.Mods...),
	console.Mod,
	daemon.Mod,
	watch.Mod,
	simui.Mod,
)

func main() {
	cmdline := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	flagConfig := cmdline.String("config", "ks0066.hcl", "")
	flagDebug := cmdline.Bool("debug", false, "verbose logging")
	cmdline.Usage = func() {
		fmt.Fprintf(cmdline.Output(), "usage: %s [flags] command [args]\n\ncommands:\n%s\nflags:\n",
			cmdline.Name(), subcmd.Usage(modules))
		cmdline.PrintDefaults()
	}
	_ = cmdline.Parse(os.Args[1:])

	log.SetFlags(log2.LInteractiveFlags)
	if !isatty.IsTerminal(os.Stderr.Fd()) && subcmd.SdNotify("start") {
		// under systemd, journal adds timestamps
		log.SetFlags(log2.LServiceFlags)
	}
	if !*flagDebug {
		log.SetLevel(log2.LInfo)
	}

	mod, err := subcmd.Parse(cmdline.Arg(0), modules)
	if err != nil {
		cmdline.Usage()
		log.Fatal(err)
	}

	config := state.MustReadConfig(log, state.NewOsFullReader(), *flagConfig)
	ctx, _ := state.NewContext(log)
	if err := mod.Main(ctx, config, cmdline.Args()[1:]); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
}
