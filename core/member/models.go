package member

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/vilmosmisota/sportapp/core"
)

const (
	GenderMale   = "male"
	GenderFemale = "female"
	GenderOther  = "other"
)

// Member is a sports club member (athlete) of a tenant.
type Member struct {
	ID          string      `json:"id" db:"id"`
	TenantID    string      `json:"-" db:"tenant_id"`
	FirstName   string      `json:"first_name" db:"first_name"`
	LastName    string      `json:"last_name" db:"last_name"`
	DateOfBirth null.String `json:"date_of_birth" db:"date_of_birth"` // YYYY-MM-DD
	Gender      null.String `json:"gender" db:"gender"`
	PIN         null.String `json:"pin" db:"pin"`
	TeamIDs     []string    `json:"team_ids" db:"-"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"` // UTC
}

func (m Member) FullName() string {
	return m.FirstName + " " + m.LastName
}

// OnTeam reports whether the member belongs to the team.
func (m Member) OnTeam(teamID string) bool {
	for _, id := range m.TeamIDs {
		if id == teamID {
			return true
		}
	}
	return false
}

type Team struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"-" db:"tenant_id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
}

// NewMember contains information needed to create a new Member.
type NewMember struct {
	FirstName   string   `json:"first_name" validate:"required,notblank,max=100"`
	LastName    string   `json:"last_name" validate:"required,notblank,max=100"`
	DateOfBirth string   `json:"date_of_birth" validate:"omitempty,isodate"`
	Gender      string   `json:"gender" validate:"omitempty,oneof=male female other"`
	PIN         string   `json:"pin" validate:"omitempty,pin"`
	TeamIDs     []string `json:"team_ids" validate:"omitempty,dive,uuid"`
}

func (nm *NewMember) Clean() {
	nm.FirstName = core.CleanString(nm.FirstName)
	nm.LastName = core.CleanString(nm.LastName)
	nm.DateOfBirth = core.CleanString(nm.DateOfBirth)
	nm.Gender = core.CleanString(nm.Gender, true /* lower */)
	nm.PIN = core.CleanString(nm.PIN)
}

func (nm *NewMember) Validate(validate *validator.Validate) error {
	nm.Clean()
	return validate.Struct(nm)
}

// UpdateMember defines what information may be provided to modify an existing Member.
// An empty string clears the optional fields.
type UpdateMember struct {
	FirstName   *string  `json:"first_name" validate:"omitnil,notblank,max=100"`
	LastName    *string  `json:"last_name" validate:"omitnil,notblank,max=100"`
	DateOfBirth *string  `json:"date_of_birth" validate:"omitempty,isodate"`
	Gender      *string  `json:"gender" validate:"omitempty,oneof=male female other"`
	PIN         *string  `json:"pin" validate:"omitempty,pin"`
	TeamIDs     []string `json:"team_ids" validate:"omitempty,dive,uuid"`
}

func (um *UpdateMember) Clean() {
	clean := func(s *string, lower ...bool) *string {
		if s == nil {
			return nil
		}
		c := core.CleanString(*s, lower...)
		return &c
	}
	um.FirstName = clean(um.FirstName)
	um.LastName = clean(um.LastName)
	um.DateOfBirth = clean(um.DateOfBirth)
	um.Gender = clean(um.Gender, true /* lower */)
	um.PIN = clean(um.PIN)
}

func (um *UpdateMember) Validate(validate *validator.Validate) error {
	um.Clean()
	return validate.Struct(um)
}

func (um UpdateMember) IsEmpty() bool {
	return um.FirstName == nil && um.LastName == nil && um.DateOfBirth == nil && um.Gender == nil &&
		um.PIN == nil && um.TeamIDs == nil
}

type NewTeam struct {
	Name string `json:"name" validate:"required,notblank,max=100"`
}

func (nt *NewTeam) Validate(validate *validator.Validate) error {
	nt.Name = core.CleanString(nt.Name)
	return validate.Struct(nt)
}

func nullString(s string) null.String {
	if s == "" {
		return null.String{}
	}
	return null.StringFrom(s)
}
