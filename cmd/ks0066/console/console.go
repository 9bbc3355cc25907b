// Package console is interactive shell for command language.
package console

import (
	"context"

	"github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/temoto/ks0066/cmd/ks0066/subcmd"
	"github.com/temoto/ks0066/helpers/cli"
	"github.com/temoto/ks0066/internal/command"
	"github.com/temoto/ks0066/state"
)

const modName = "console"

var Mod = subcmd.Mod{Name: modName, Usage: "interactive command shell, see `help`", Main: Main}

func Main(ctx context.Context, config *state.Config, args []string) error {
	g := state.GetGlobal(ctx)
	config.Tele.Enable = false
	if err := g.Init(ctx, config); err != nil {
		return err
	}
	defer g.Close()
	if _, err := g.Device(); err != nil {
		return errors.Annotate(err, modName)
	}
	g.Log.Debugf("console init complete, type help")
	return cli.MainLoop("ks0066", NewExecutor(ctx), NewCompleter())
}

func NewCompleter() prompt.Completer {
	names := command.Names()
	suggests := make([]prompt.Suggest, len(names))
	for i, name := range names {
		suggests[i] = prompt.Suggest{Text: name}
	}
	return cli.FuzzyCompleter(suggests)
}

// NewExecutor logs results and errors, never stops the loop.
func NewExecutor(ctx context.Context) func(string) {
	g := state.GetGlobal(ctx)
	return func(line string) {
		result, err := g.Exec(ctx, line)
		if err != nil {
			g.Log.Errorf(errors.ErrorStack(err))
			return
		}
		if result != "" {
			g.Log.Infof("%s", result)
		}
	}
}
