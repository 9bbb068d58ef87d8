package attendance

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var errInvalidClock = errors.New("invalid clock time")

// DeriveStatus returns StatusPresent if the check-in happened at most thresholdMinutes after the session start,
// StatusLate otherwise. start is "HH:MM" and checkIn "HH:MM:SS" (or "HH:MM"), both wall-clock times of the
// same day; seconds are ignored. A check-in before the start, including one that wrapped past midnight,
// has a negative elapsed time and is PRESENT.
func DeriveStatus(start, checkIn string, thresholdMinutes int) (Status, error) {
	startMin, err := clockMinutes(start)
	if err != nil {
		return "", errors.Wrap(err, "parsing start time")
	}
	checkInMin, err := clockMinutes(checkIn)
	if err != nil {
		return "", errors.Wrap(err, "parsing check-in time")
	}

	if elapsed := checkInMin - startMin; elapsed <= thresholdMinutes {
		return StatusPresent, nil
	}
	return StatusLate, nil
}

// clockMinutes converts "HH:MM[:SS]" to minutes since midnight.
func clockMinutes(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, errors.Wrap(errInvalidClock, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, errors.Wrap(errInvalidClock, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, errors.Wrap(errInvalidClock, s)
	}
	if len(parts) == 3 {
		if sec, err := strconv.Atoi(parts[2]); err != nil || sec < 0 || sec > 59 {
			return 0, errors.Wrap(errInvalidClock, s)
		}
	}
	return h*60 + m, nil
}
