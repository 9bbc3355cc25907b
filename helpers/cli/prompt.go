// Package cli runs line oriented interactive loops.
package cli

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/mattn/go-isatty"
)

// MainLoop reads lines with go-prompt when stdin is a terminal, plain lines otherwise.
// Returns when input ends, Ctrl-D in terminal.
func MainLoop(tag string, exec func(line string), complete prompt.Completer) error {
	if isatty.IsTerminal(os.Stdin.Fd()) {
		p := prompt.New(exec, complete,
			prompt.OptionPrefix(tag+"> "),
			prompt.OptionTitle(tag),
		)
		p.Run()
		return nil
	}
	return ReadLines(os.Stdin, exec)
}

// ReadLines calls exec for every trimmed line until EOF.
func ReadLines(r io.Reader, exec func(line string)) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		exec(strings.TrimSpace(scanner.Text()))
	}
	return scanner.Err()
}

// FuzzyCompleter suggests from fixed list matching the word before cursor.
func FuzzyCompleter(suggests []prompt.Suggest) prompt.Completer {
	return func(d prompt.Document) []prompt.Suggest {
		w := d.GetWordBeforeCursor()
		if w == "" || strings.Contains(d.TextBeforeCursor(), " ") {
			return nil
		}
		return prompt.FilterFuzzy(suggests, w, true)
	}
}
