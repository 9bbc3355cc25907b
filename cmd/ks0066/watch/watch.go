// Package watch mirrors beginning of a file on display.
package watch

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/howeyc/fsnotify"
	"github.com/juju/errors"
	"github.com/temoto/ks0066/cmd/ks0066/subcmd"
	"github.com/temoto/ks0066/hardware/ks0066"
	"github.com/temoto/ks0066/log2"
	"github.com/temoto/ks0066/state"
)

const DefaultDebounce = 100 * time.Millisecond

var Mod = subcmd.Mod{Name: "watch", Usage: "FILE  show first 40 bytes of FILE, update on change", Main: Main}

// Renderer is satisfied by state.Device.
type Renderer interface {
	Clear() error
	WriteText(text []byte) error
}

func Main(ctx context.Context, config *state.Config, args []string) error {
	if len(args) != 1 {
		return errors.NotValidf("watch arguments=%d expected FILE", len(args))
	}
	g := state.GetGlobal(ctx)
	config.Tele.Enable = false
	if err := g.Init(ctx, config); err != nil {
		return err
	}
	defer g.Close()
	dev, err := g.Device()
	if err != nil {
		return errors.Annotate(err, "watch")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-g.Alive.StopChan()
		cancel()
	}()
	return Watch(ctx, g.Log, args[0], dev, DefaultDebounce)
}

// Watch renders path once, then after each change burst settles for debounce.
// Returns nil when ctx is done.
func Watch(ctx context.Context, log *log2.Log, path string, r Renderer, debounce time.Duration) error {
	path = filepath.Clean(path)
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Annotate(err, "watch")
	}
	defer w.Close()
	// directory, not file: editors replace files by rename
	if err = w.Watch(filepath.Dir(path)); err != nil {
		return errors.Annotatef(err, "watch dir=%s", filepath.Dir(path))
	}
	if err = Render(path, r); err != nil {
		log.Errorf("watch render path=%s err=%v", path, err)
	}

	tmr := time.NewTimer(debounce)
	tmr.Stop()
	for {
		select {
		case ev := <-w.Event:
			if filepath.Clean(ev.Name) != path {
				continue
			}
			log.Debugf("watch event=%s", ev.String())
			if ev.IsCreate() || ev.IsModify() || ev.IsRename() {
				tmr.Reset(debounce)
			}
		case err := <-w.Error:
			log.Errorf("watch path=%s err=%v", path, err)
		case <-tmr.C:
			if err := Render(path, r); err != nil {
				log.Errorf("watch render path=%s err=%v", path, err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Render shows first ks0066.MaxChars bytes of file, missing or empty file clears display.
func Render(path string, r Renderer) error {
	var buf [ks0066.MaxChars]byte
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return r.Clear()
	}
	if err != nil {
		return errors.Annotate(err, "watch open")
	}
	n, err := io.ReadFull(f, buf[:])
	f.Close()
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return errors.Annotate(err, "watch read")
	}
	b := trimNewline(buf[:n])
	if len(b) == 0 {
		return r.Clear()
	}
	return r.WriteText(b)
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
