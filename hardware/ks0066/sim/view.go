package sim

import (
	"context"
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// View renders controller state in terminal.
type View struct {
	c      *Controller
	app    *tview.Application
	lcd    *tview.TextView
	status *tview.TextView
	log    *tview.TextView
	input  *tview.InputField
	rows   *tview.Flex
	exec   func(line string)
	// redraw requests, drained only while Run is active
	dirty chan struct{}
}

func NewView(c *Controller) *View {
	v := &View{
		c:   c,
		app: tview.NewApplication(),
		lcd: tview.NewTextView().
			SetWrap(false),
		status: tview.NewTextView().
			SetWrap(false),
		log: tview.NewTextView().
			SetMaxLines(1000),
		input: tview.NewInputField().
			SetLabel("> "),
		rows: tview.NewFlex().
			SetDirection(tview.FlexRow),
		dirty: make(chan struct{}, 1),
	}
	v.lcd.SetBorder(true).SetTitle(" ks0066 ")
	v.lcd.SetBackgroundColor(tcell.ColorDarkGreen)
	v.lcd.SetTextColor(tcell.ColorBlack)
	v.status.SetBackgroundColor(tcell.ColorDarkGrey)
	v.log.SetChangedFunc(v.Changed)
	v.input.SetDoneFunc(v.submit)
	v.rows.
		AddItem(v.lcd, 4, 0, false).
		AddItem(v.status, 1, 0, false).
		AddItem(v.log, 0, 1, false).
		AddItem(v.input, 1, 0, true)
	v.app.SetRoot(v.rows, true).SetFocus(v.input)
	v.refresh()
	return v
}

// LogWriter is the scrolling pane below display, safe to use from any goroutine.
func (v *View) LogWriter() *tview.TextView { return v.log }

// Changed schedules redraw, suitable for Controller.SetChangedFunc.
// Never blocks, bursts of changes collapse into one redraw.
func (v *View) Changed() {
	select {
	case v.dirty <- struct{}{}:
	default:
	}
}

func (v *View) redrawLoop(done <-chan struct{}) {
	for {
		select {
		case <-v.dirty:
			v.app.QueueUpdateDraw(v.refresh)
		case <-done:
			return
		}
	}
}

// SetExecFunc enables command input line. f runs outside of UI goroutine.
func (v *View) SetExecFunc(f func(line string)) { v.exec = f }

func (v *View) submit(key tcell.Key) {
	if key != tcell.KeyEnter {
		return
	}
	line := v.input.GetText()
	v.input.SetText("")
	if v.exec == nil || line == "" {
		return
	}
	fmt.Fprintf(v.log, "> %s\n", line)
	go v.exec(line)
}

func (v *View) refresh() {
	lines := v.c.Lines()
	v.lcd.SetText(lines[0] + "\n" + lines[1])
	f := v.c.Flags()
	v.status.SetText(fmt.Sprintf("addr=%02x display=%t cursor=%t blink=%t 2line=%t 8bit=%t",
		v.c.Address(), f.Display, f.Cursor, f.Blink, f.TwoLine, f.Bus8))
}

func (v *View) SetScreen(s tcell.Screen) { v.app.SetScreen(s) }

// Run blocks until ctx is done or user presses Escape.
func (v *View) Run(ctx context.Context) error {
	v.app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC {
			v.app.Stop()
			return nil
		}
		return ev
	})
	v.refresh()
	done := make(chan struct{})
	defer close(done)
	go v.redrawLoop(done)
	go func() {
		select {
		case <-ctx.Done():
			v.app.Stop()
		case <-done:
		}
	}()
	return v.app.Run()
}
