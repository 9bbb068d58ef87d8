// Package kiosk models the check-in flow of a shared kiosk device:
// a member types their PIN, confirms the matched name, and sees the outcome.
package kiosk

import (
	"github.com/pkg/errors"

	"github.com/vilmosmisota/sportapp/core/attendance"
)

const PINLength = 4

type State int

const (
	StateIdle State = iota
	StatePinEntering
	StateConfirming
	StateSubmitting
	StateResult
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePinEntering:
		return "pin_entering"
	case StateConfirming:
		return "confirming"
	case StateSubmitting:
		return "submitting"
	case StateResult:
		return "result"
	}
	return "unknown"
}

var (
	ErrInvalidTransition = errors.New("invalid kiosk transition")
	ErrNotADigit         = errors.New("only digits can be entered")
)

// Kiosk is an immutable snapshot of the flow. Every transition returns a new value;
// a failed transition returns the receiver unchanged along with the error.
type Kiosk struct {
	state  State
	digits string
	match  *attendance.Match
	result *attendance.Result
	err    error
}

func New() Kiosk {
	return Kiosk{}
}

func (k Kiosk) State() State { return k.state }

// PIN returns the digits entered so far.
func (k Kiosk) PIN() string { return k.digits }

// Complete reports whether a whole PIN has been entered and can be looked up.
func (k Kiosk) Complete() bool {
	return k.state == StatePinEntering && len(k.digits) == PINLength
}

// Match returns the member awaiting confirmation.
func (k Kiosk) Match() (attendance.Match, bool) {
	if k.match == nil {
		return attendance.Match{}, false
	}
	return *k.match, true
}

// Result returns the check-in outcome shown in StateResult, if any.
func (k Kiosk) Result() (attendance.Result, bool) {
	if k.state != StateResult || k.result == nil {
		return attendance.Result{}, false
	}
	return *k.result, true
}

// Err returns the failure shown in StateResult, if any.
func (k Kiosk) Err() error {
	if k.state != StateResult {
		return nil
	}
	return k.err
}

func (k Kiosk) invalid(event string) (Kiosk, error) {
	return k, errors.Wrapf(ErrInvalidTransition, "%s in state %s", event, k.state)
}

// Press appends a digit. From Idle or Result it starts a new PIN.
func (k Kiosk) Press(digit rune) (Kiosk, error) {
	if digit < '0' || digit > '9' {
		return k, ErrNotADigit
	}
	switch k.state {
	case StateIdle, StateResult:
		return Kiosk{state: StatePinEntering, digits: string(digit)}, nil
	case StatePinEntering:
		if len(k.digits) >= PINLength {
			return k.invalid("press")
		}
		k.digits += string(digit)
		return k, nil
	}
	return k.invalid("press")
}

// Backspace removes the last digit, going back to Idle when none is left.
func (k Kiosk) Backspace() (Kiosk, error) {
	if k.state != StatePinEntering {
		return k.invalid("backspace")
	}
	k.digits = k.digits[:len(k.digits)-1]
	if k.digits == "" {
		return New(), nil
	}
	return k, nil
}

// Clear discards the entered digits.
func (k Kiosk) Clear() (Kiosk, error) {
	switch k.state {
	case StateIdle, StatePinEntering:
		return New(), nil
	}
	return k.invalid("clear")
}

// Matched moves a complete PIN to confirmation. A member already checked in goes straight to the result.
func (k Kiosk) Matched(m attendance.Match) (Kiosk, error) {
	if !k.Complete() {
		return k.invalid("matched")
	}
	if m.AlreadyCheckedIn {
		return Kiosk{
			state: StateResult,
			result: &attendance.Result{
				Outcome: attendance.OutcomeAlreadyCheckedIn,
				Message: m.Member.FirstName + " is already checked in.",
				Member:  m.Member,
			},
		}, nil
	}
	return Kiosk{state: StateConfirming, match: &m}, nil
}

// LookupFailed shows the lookup error, eg: an unknown PIN.
func (k Kiosk) LookupFailed(err error) (Kiosk, error) {
	if !k.Complete() {
		return k.invalid("lookup failed")
	}
	return Kiosk{state: StateResult, err: err}, nil
}

func (k Kiosk) Confirm() (Kiosk, error) {
	if k.state != StateConfirming {
		return k.invalid("confirm")
	}
	k.state = StateSubmitting
	return k, nil
}

// Cancel goes back to Idle from the confirmation step.
func (k Kiosk) Cancel() (Kiosk, error) {
	if k.state != StateConfirming {
		return k.invalid("cancel")
	}
	return New(), nil
}

func (k Kiosk) Submitted(res attendance.Result) (Kiosk, error) {
	if k.state != StateSubmitting {
		return k.invalid("submitted")
	}
	return Kiosk{state: StateResult, match: k.match, result: &res}, nil
}

func (k Kiosk) SubmitFailed(err error) (Kiosk, error) {
	if k.state != StateSubmitting {
		return k.invalid("submit failed")
	}
	return Kiosk{state: StateResult, match: k.match, err: err}, nil
}

func (k Kiosk) Dismiss() (Kiosk, error) {
	if k.state != StateResult {
		return k.invalid("dismiss")
	}
	return New(), nil
}
