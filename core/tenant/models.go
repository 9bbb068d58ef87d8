package tenant

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vilmosmisota/sportapp/core"
)

const (
	DefaultLateThresholdMinutes = 5
	DefaultTimezone             = "UTC"
)

type Tenant struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Slug      string    `json:"slug" db:"slug"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"` // UTC
}

// Settings holds the tenant wide attendance settings.
type Settings struct {
	TenantID             string    `json:"-" db:"tenant_id"`
	LateThresholdMinutes int       `json:"late_threshold_minutes" db:"late_threshold_minutes"`
	Timezone             string    `json:"timezone" db:"timezone"`
	UpdatedAt            time.Time `json:"updated_at" db:"updated_at"` // UTC
}

func DefaultSettings(tenantID string) Settings {
	return Settings{
		TenantID:             tenantID,
		LateThresholdMinutes: DefaultLateThresholdMinutes,
		Timezone:             DefaultTimezone,
	}
}

// Location returns the tenant's wall-clock location, falling back to UTC.
func (s Settings) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NewTenant contains information needed to create a new Tenant.
type NewTenant struct {
	Name string `json:"name" validate:"required,notblank,max=255"`
	Slug string `json:"slug" validate:"required,max=100,slug"`
}

func (nt *NewTenant) Validate(validate *validator.Validate) error {
	nt.Name = core.CleanString(nt.Name)
	nt.Slug = core.CleanString(nt.Slug, true /* lower */)
	return validate.Struct(nt)
}

// UpdateSettings defines what information may be provided to modify the tenant Settings.
type UpdateSettings struct {
	LateThresholdMinutes *int    `json:"late_threshold_minutes" validate:"omitempty,min=0,max=240"`
	Timezone             *string `json:"timezone" validate:"omitempty,timezone"`
}

func (us *UpdateSettings) Validate(validate *validator.Validate) error {
	if us.Timezone != nil {
		tz := core.CleanString(*us.Timezone)
		us.Timezone = &tz
	}
	return validate.Struct(us)
}
