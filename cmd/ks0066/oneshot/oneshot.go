// Package oneshot runs single display operation and exits.
package oneshot

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/juju/errors"
	"github.com/temoto/ks0066/cmd/ks0066/subcmd"
	"github.com/temoto/ks0066/state"
)

var (
	Write       = newMod("write", "TEXT...  show text, first 20 bytes on line 1, rest on line 2", "text", -1)
	Clear       = newMod("clear", "clear display", "clear", 0)
	Home        = newMod("home", "return cursor home", "home", 0)
	Instruction = newMod("instruction", "N  send instruction byte 0..255", "instruction", 1)
	Data        = newMod("data", "N  send data byte 0..255", "data", 1)
	Read        = newMod("read", "read data byte at address counter", "read", 0)
)

var Mods = []subcmd.Mod{Write, Clear, Home, Instruction, Data, Read}

var stdout io.Writer = os.Stdout

// nargs<0 means one or more arguments joined with space.
func newMod(name, usage, word string, nargs int) subcmd.Mod {
	return subcmd.Mod{
		Name:  name,
		Usage: usage,
		Main: func(ctx context.Context, config *state.Config, args []string) error {
			line, err := Line(word, nargs, args)
			if err != nil {
				return errors.Annotate(err, name)
			}
			return run(ctx, config, line)
		},
	}
}

// Line builds command language line from CLI arguments.
func Line(word string, nargs int, args []string) (string, error) {
	switch {
	case nargs < 0 && len(args) == 0:
		return "", errors.NotValidf("arguments expected")
	case nargs >= 0 && len(args) != nargs:
		return "", errors.NotValidf("arguments=%d expected=%d", len(args), nargs)
	}
	if len(args) == 0 {
		return word, nil
	}
	return word + " " + strings.Join(args, " "), nil
}

func run(ctx context.Context, config *state.Config, line string) error {
	g := state.GetGlobal(ctx)
	// one shot must not leave queue items or remote sessions behind
	config.Tele.Enable = false
	if err := g.Init(ctx, config); err != nil {
		return err
	}
	defer g.Close()

	result, err := g.Exec(ctx, line)
	if err != nil {
		return err
	}
	if result != "" {
		fmt.Fprintln(stdout, result)
	}
	return nil
}
