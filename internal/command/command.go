// Package command is the line oriented language shared by console, sim view and MQTT.
package command

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/ks0066/hardware/ks0066"
)

const Usage = `syntax: one command per line
- text ANY...       render text from home, up to 40 bytes, wraps at 20
- clear             clear display
- home              return cursor home
- instruction N     write instruction byte, N is decimal, 0xHEX or 0bBIN
- data N            write data byte
- read              read data register
- read-instruction  read busy flag and address counter
- sleep DURATION    pause, e.g. 500ms or /s500
- status            transfer and error counters
- help
`

type Kind uint8

const (
	KindInvalid Kind = iota
	KindText
	KindClear
	KindHome
	KindInstruction
	KindData
	KindRead
	KindReadInstruction
	KindSleep
	KindStatus
	KindHelp
)

var names = map[string]Kind{
	"text":             KindText,
	"clear":            KindClear,
	"home":             KindHome,
	"instruction":      KindInstruction,
	"data":             KindData,
	"read":             KindRead,
	"read-instruction": KindReadInstruction,
	"sleep":            KindSleep,
	"status":           KindStatus,
	"help":             KindHelp,
}

var aliases = map[string]Kind{
	"t":  KindText,
	"c":  KindClear,
	"i":  KindInstruction,
	"d":  KindData,
	"r":  KindRead,
	"ri": KindReadInstruction,
	"?":  KindHelp,
}

func (k Kind) String() string {
	for name, x := range names {
		if x == k {
			return name
		}
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Names is sorted list of full command names, for completion.
func Names() []string {
	ss := make([]string, 0, len(names))
	for name := range names {
		ss = append(ss, name)
	}
	sort.Strings(ss)
	return ss
}

type Command struct {
	Kind     Kind
	Text     []byte
	Byte     byte
	Duration time.Duration
}

func (c Command) String() string {
	switch c.Kind {
	case KindText:
		return fmt.Sprintf("text %q", c.Text)
	case KindInstruction, KindData:
		return fmt.Sprintf("%s 0x%02x", c.Kind, c.Byte)
	case KindSleep:
		return fmt.Sprintf("sleep %v", c.Duration)
	}
	return c.Kind.String()
}

// Parse one line. Empty or comment (#) line returns KindInvalid and nil error.
func Parse(line string) (Command, error) {
	line = strings.TrimLeft(line, " \t")
	line = strings.TrimRight(line, "\r\n")
	if line == "" || line[0] == '#' {
		return Command{}, nil
	}
	// /sN pauses N milliseconds
	if strings.HasPrefix(line, "/s") {
		ms, err := strconv.ParseUint(strings.TrimSpace(line[2:]), 10, 32)
		if err != nil {
			return Command{}, errors.NotValidf("pause %q", line)
		}
		return Command{Kind: KindSleep, Duration: time.Duration(ms) * time.Millisecond}, nil
	}

	word, rest := line, ""
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		word, rest = line[:i], line[i+1:]
	}
	word = strings.ToLower(word)
	kind, ok := names[word]
	if !ok {
		if kind, ok = aliases[word]; !ok {
			return Command{}, errors.NotValidf("command %q", word)
		}
	}
	c := Command{Kind: kind}
	arg := strings.TrimSpace(rest)
	switch kind {
	case KindText:
		// text keeps inner and trailing spaces, only single separator is removed
		if rest == "" {
			return c, errors.NotValidf("text empty")
		}
		c.Text = []byte(rest)
	case KindInstruction, KindData:
		b, err := ParseByte(arg)
		if err != nil {
			return c, errors.Annotate(err, word)
		}
		c.Byte = b
	case KindSleep:
		d, err := time.ParseDuration(arg)
		if err != nil || d < 0 {
			return c, errors.NotValidf("sleep duration %q", arg)
		}
		c.Duration = d
	default:
		if arg != "" {
			return c, errors.NotValidf("%s takes no arguments, got %q", word, arg)
		}
	}
	return c, nil
}

// ParseByte accepts decimal, 0x hex, 0o/0 octal and 0b binary in range 0..255.
func ParseByte(s string) (byte, error) {
	if s == "" {
		return 0, errors.NotValidf("byte empty")
	}
	x, err := strconv.ParseInt(s, 0, 32)
	if err != nil {
		return 0, errors.NotValidf("byte %q", s)
	}
	return ks0066.CheckByte(int(x))
}

// Device is subset of ks0066.Device used by commands.
type Device interface {
	WriteText(text []byte) error
	Clear() error
	ReturnHome() error
	WriteInstruction(b byte) error
	WriteData(b byte) error
	ReadData() (byte, error)
	ReadInstruction() (byte, error)
	Stat() ks0066.Stat
}

// Exec runs command and returns short human readable result.
func Exec(ctx context.Context, dev Device, c Command) (string, error) {
	switch c.Kind {
	case KindInvalid:
		return "", nil
	case KindText:
		return "", dev.WriteText(c.Text)
	case KindClear:
		return "", dev.Clear()
	case KindHome:
		return "", dev.ReturnHome()
	case KindInstruction:
		return "", dev.WriteInstruction(c.Byte)
	case KindData:
		return "", dev.WriteData(c.Byte)
	case KindRead, KindReadInstruction:
		read := dev.ReadData
		if c.Kind == KindReadInstruction {
			read = dev.ReadInstruction
		}
		b, err := read()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("0x%02x", b), nil
	case KindSleep:
		tmr := time.NewTimer(c.Duration)
		defer tmr.Stop()
		select {
		case <-tmr.C:
			return "", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	case KindStatus:
		return FormatStat(dev.Stat()), nil
	case KindHelp:
		return Usage, nil
	}
	return "", errors.NotImplementedf("command kind=%s", c.Kind)
}

func FormatStat(s ks0066.Stat) string {
	last := "never"
	if !s.LastTransfer.IsZero() {
		last = s.LastTransfer.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("transfers=%d errors=%d last=%s", s.Transfers, s.Errors, last)
}

// Run parses and executes line.
func Run(ctx context.Context, dev Device, line string) (string, error) {
	c, err := Parse(line)
	if err != nil {
		return "", err
	}
	return Exec(ctx, dev, c)
}

// Reply formats Run result for remote peers: "ok", "ok VALUE" or "error: MESSAGE".
func Reply(result string, err error) string {
	if err != nil {
		return "error: " + err.Error()
	}
	if result == "" {
		return "ok"
	}
	return "ok " + result
}
