package attendance

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/vilmosmisota/sportapp/core"
	"github.com/vilmosmisota/sportapp/core/member"
)

type Status string

const (
	StatusPresent Status = "PRESENT"
	StatusLate    Status = "LATE"
	StatusAbsent  Status = "ABSENT"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPresent, StatusLate, StatusAbsent:
		return true
	}
	return false
}

type Season struct {
	ID        string           `json:"id" db:"id"`
	TenantID  string           `json:"-" db:"tenant_id"`
	Name      string           `json:"name" db:"name"`
	StartsOn  string           `json:"starts_on" db:"starts_on"` // YYYY-MM-DD
	EndsOn    string           `json:"ends_on" db:"ends_on"`     // YYYY-MM-DD
	Breaks    []core.DateRange `json:"breaks" db:"-"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"` // UTC
}

// IsTrainingDay reports whether date is inside the season and outside its breaks.
func (s Season) IsTrainingDay(date string) bool {
	if !(core.DateRange{From: s.StartsOn, To: s.EndsOn}).Contains(date) {
		return false
	}
	for _, b := range s.Breaks {
		if b.Contains(date) {
			return false
		}
	}
	return true
}

// Session is one training session of a team. Check-ins are only accepted while it is active.
type Session struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"-" db:"tenant_id"`
	TeamID    string    `json:"team_id" db:"team_id"`
	SeasonID  string    `json:"season_id" db:"season_id"`
	Date      string    `json:"date" db:"date"`             // YYYY-MM-DD
	StartTime string    `json:"start_time" db:"start_time"` // HH:MM, tenant wall-clock
	EndTime   string    `json:"end_time" db:"end_time"`     // HH:MM, tenant wall-clock
	IsActive  bool      `json:"is_active" db:"is_active"`
	ClosedAt  null.Time `json:"closed_at" db:"closed_at"`   // UTC
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
}

// EndsAt returns the instant the session ends in loc.
func (s Session) EndsAt(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(core.DateLayout+" 15:04", s.Date+" "+s.EndTime, loc)
}

// Record is the attendance of one member to one session. There is at most one per (session, member).
type Record struct {
	ID          string    `json:"id" db:"id"`
	TenantID    string    `json:"-" db:"tenant_id"`
	SessionID   string    `json:"session_id" db:"session_id"`
	MemberID    string    `json:"member_id" db:"member_id"`
	Status      Status    `json:"status" db:"status"`
	CheckedInAt null.Time `json:"checked_in_at" db:"checked_in_at"` // UTC
	CreatedAt   time.Time `json:"created_at" db:"created_at"`       // UTC
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`       // UTC
}

type NewSeason struct {
	Name     string           `json:"name" validate:"required,notblank,max=100"`
	StartsOn string           `json:"starts_on" validate:"required,isodate"`
	EndsOn   string           `json:"ends_on" validate:"required,isodate"`
	Breaks   []core.DateRange `json:"breaks" validate:"omitempty,dive"`
}

func (ns *NewSeason) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	if err := validate.Struct(ns); err != nil {
		return err
	}
	if ns.EndsOn < ns.StartsOn {
		return core.NewValidationError(nil, core.FieldError{Field: "ends_on", Error: "season cannot end before it starts"})
	}
	season := core.DateRange{From: ns.StartsOn, To: ns.EndsOn}
	for _, b := range ns.Breaks {
		if b.From > b.To || !season.Contains(b.From) || !season.Contains(b.To) {
			return core.NewValidationError(nil, core.FieldError{Field: "breaks", Error: "breaks must be ordered ranges inside the season"})
		}
	}
	return nil
}

type NewSession struct {
	TeamID    string `json:"team_id" validate:"required,uuid"`
	SeasonID  string `json:"season_id" validate:"required,uuid"`
	Date      string `json:"date" validate:"required,isodate"`
	StartTime string `json:"start_time" validate:"required,hhmm"`
	EndTime   string `json:"end_time" validate:"required,hhmm"`
}

func (ns *NewSession) Validate(validate *validator.Validate) error {
	ns.Date = core.CleanString(ns.Date)
	ns.StartTime = core.CleanString(ns.StartTime)
	ns.EndTime = core.CleanString(ns.EndTime)
	if err := validate.Struct(ns); err != nil {
		return err
	}
	// zero-padded clock times compare lexically
	if ns.EndTime <= ns.StartTime {
		return core.NewValidationError(nil, core.FieldError{Field: "end_time", Error: "session must end after it starts"})
	}
	return nil
}

type SessionFilter struct {
	IsActive *bool  `query:"active"`
	TeamID   string `query:"team_id"`
	Date     string `query:"date"`
}

type UpdateRecord struct {
	Status Status `json:"status" validate:"required,oneof=PRESENT LATE ABSENT"`
}

// Match is the outcome of a successful PIN lookup, shown for confirmation before checking in.
type Match struct {
	Member           member.Member `json:"member"`
	AlreadyCheckedIn bool          `json:"already_checked_in"`
}

type Outcome string

const (
	OutcomeCheckedIn        Outcome = "checked_in"
	OutcomeAlreadyCheckedIn Outcome = "already_checked_in"
)

// Result is the outcome of a check-in. Both outcomes are successes for the kiosk.
type Result struct {
	Outcome Outcome       `json:"outcome"`
	Message string        `json:"message"`
	Member  member.Member `json:"member"`
	Record  Record        `json:"record"`
}

// CloseSummary is the outcome of closing a session.
type CloseSummary struct {
	Session      Session `json:"session"`
	Present      int     `json:"present"`
	Late         int     `json:"late"`
	MarkedAbsent int     `json:"marked_absent"`
}

// ReportRow is one line of a session attendance report. Record is nil until the member checks in.
type ReportRow struct {
	Member member.Member `json:"member"`
	Record *Record       `json:"record"`
}

type Report struct {
	Session Session     `json:"session"`
	Team    member.Team `json:"team"`
	Rows    []ReportRow `json:"rows"`
}
