package core

import "time"

const DateLayout = "2006-01-02"

func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// DateRange is an inclusive range of "YYYY-MM-DD" dates.
type DateRange struct {
	From string `json:"from" validate:"required,isodate"`
	To   string `json:"to" validate:"required,isodate"`
}

// Contains reports whether the "YYYY-MM-DD" date falls inside the range.
// ISO dates compare lexically.
func (r DateRange) Contains(date string) bool {
	return r.From <= date && date <= r.To
}
