package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/vilmosmisota/sportapp/core"
	"github.com/vilmosmisota/sportapp/core/attendance"
	"github.com/vilmosmisota/sportapp/core/kiosk"
)

const (
	keyCtrlC     = 0x03
	keyBackspace = 0x08
	keyEnter     = '\r'
	keyNewline   = '\n'
	keyEscape    = 0x1b
	keyDelete    = 0x7f
)

var errQuit = errors.New("quit")

// checkInClient is the part of the API the terminal uses.
type checkInClient interface {
	Lookup(ctx context.Context, sessionID, pin string) (attendance.Match, error)
	CheckIn(ctx context.Context, sessionID, pin string) (attendance.Result, error)
}

// terminal drives a kiosk.Kiosk from raw key presses and renders every state.
type terminal struct {
	client    checkInClient
	sessionID string
	out       io.Writer
	logger    core.Logger

	k   kiosk.Kiosk
	pin string // PIN being confirmed, the kiosk forgets the digits once matched
}

func newTerminal(client checkInClient, sessionID string, out io.Writer, logger core.Logger) *terminal {
	return &terminal{client: client, sessionID: sessionID, out: out, logger: logger, k: kiosk.New()}
}

// run handles keys from in until it is exhausted or the user quits.
func (t *terminal) run(ctx context.Context, in io.Reader) error {
	t.render()
	rdr := bufio.NewReader(in)
	for {
		b, err := rdr.ReadByte()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "reading key")
		}
		if err = t.handle(ctx, b); err != nil {
			if err == errQuit {
				return nil
			}
			// keys which make no sense in the current state are ignored
			if errors.Cause(err) != kiosk.ErrInvalidTransition && err != kiosk.ErrNotADigit {
				return err
			}
			continue
		}
		t.render()
	}
}

func (t *terminal) handle(ctx context.Context, key byte) error {
	var (
		next kiosk.Kiosk
		err  error
	)
	switch {
	case key == keyCtrlC || key == 'q':
		return errQuit
	case key >= '0' && key <= '9':
		if next, err = t.k.Press(rune(key)); err != nil {
			return err
		}
		t.k = next
		if t.k.Complete() {
			return t.lookup(ctx)
		}
		return nil
	case key == keyBackspace || key == keyDelete:
		next, err = t.k.Backspace()
	case key == keyEscape || key == 'c':
		if t.k.State() == kiosk.StateConfirming {
			next, err = t.k.Cancel()
		} else {
			next, err = t.k.Clear()
		}
	case key == keyEnter || key == keyNewline:
		switch t.k.State() {
		case kiosk.StateConfirming:
			return t.submit(ctx)
		case kiosk.StateResult:
			next, err = t.k.Dismiss()
		default:
			return kiosk.ErrInvalidTransition
		}
	default:
		return kiosk.ErrNotADigit
	}
	if err != nil {
		return err
	}
	t.k = next
	return nil
}

func (t *terminal) lookup(ctx context.Context) error {
	pin := t.k.PIN()
	match, err := t.client.Lookup(ctx, t.sessionID, pin)
	var next kiosk.Kiosk
	if err != nil {
		t.logFailure("looking up PIN", err)
		next, err = t.k.LookupFailed(err)
	} else {
		t.pin = pin
		next, err = t.k.Matched(match)
	}
	if err != nil {
		return err
	}
	t.k = next
	return nil
}

func (t *terminal) submit(ctx context.Context) error {
	next, err := t.k.Confirm()
	if err != nil {
		return err
	}
	t.k = next
	t.render()

	res, err := t.client.CheckIn(ctx, t.sessionID, t.pin)
	t.pin = ""
	if err != nil {
		t.logFailure("checking in", err)
		next, err = t.k.SubmitFailed(err)
	} else {
		next, err = t.k.Submitted(res)
	}
	if err != nil {
		return err
	}
	t.k = next
	return nil
}

// logFailure reports errors which are not plain check-in rejections.
func (t *terminal) logFailure(msg string, err error) {
	if _, ok := attendance.AsRejection(err); ok {
		return
	}
	if _, ok := err.(*apiError); ok {
		return
	}
	t.logger.Error(fmt.Sprintf("%s: %v", msg, err), err)
}

// render writes the screen of the current state. Raw mode needs explicit carriage returns.
func (t *terminal) render() {
	var lines []string
	switch t.k.State() {
	case kiosk.StateIdle:
		lines = []string{"Enter your PIN", "", "[q] quit"}
	case kiosk.StatePinEntering:
		mask := strings.Repeat("*", len(t.k.PIN())) + strings.Repeat("_", kiosk.PINLength-len(t.k.PIN()))
		lines = []string{"PIN: " + mask, "", "[backspace] erase  [c] clear"}
	case kiosk.StateConfirming:
		m, _ := t.k.Match()
		lines = []string{"Are you " + m.Member.FullName() + "?", "", "[enter] confirm  [c] cancel"}
	case kiosk.StateSubmitting:
		lines = []string{"Checking in..."}
	case kiosk.StateResult:
		lines = append(t.resultLines(), "", "[enter] done")
	}
	fmt.Fprint(t.out, "\033[2J\033[H"+strings.Join(lines, "\r\n")+"\r\n")
}

func (t *terminal) resultLines() []string {
	if res, ok := t.k.Result(); ok {
		return []string{res.Message}
	}

	err := t.k.Err()
	if rej, ok := attendance.AsRejection(err); ok {
		switch rej.Reason {
		case attendance.ReasonNotFound:
			return []string{"Unknown PIN, please try again."}
		case attendance.ReasonNotEligible:
			return []string{"You are not part of this session's team."}
		}
		return []string{rej.Error()}
	}
	if err != nil {
		return []string{"Sorry, something went wrong:", err.Error()}
	}
	return nil
}
