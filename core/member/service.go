package member

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/vilmosmisota/sportapp/core"
)

var (
	// errors
	ErrNotFound     = errors.New("member not found")
	ErrTeamNotFound = errors.New("team not found")
	ErrPINExists    = errors.New("this PIN is already used by another member")
	ErrTeamExists   = errors.New("a team with this name already exists")
)

type (
	Repository interface {
		// CheckPINUniqueness returns ErrPINExists if another member of the tenant uses the PIN.
		CheckPINUniqueness(ctx context.Context, tenantID, pin string, excludedIDs ...string) error
		// CreateMember returns ErrPINExists on a (tenant, PIN) unique violation.
		CreateMember(ctx context.Context, m Member) (Member, error)
		UpdateMember(ctx context.Context, m Member) (Member, error)
		DeleteMember(ctx context.Context, tenantID, id string) error
		GetMember(ctx context.Context, tenantID, id string) (Member, error)
		// FindMembersByPIN returns every member of the tenant whose PIN equals pin.
		FindMembersByPIN(ctx context.Context, tenantID, pin string) ([]Member, error)
		QueryTeamMembers(ctx context.Context, tenantID, teamID string) ([]Member, error)
		SetMemberTeams(ctx context.Context, tenantID, memberID string, teamIDs []string) error

		CreateTeam(ctx context.Context, t Team) (Team, error)
		GetTeam(ctx context.Context, tenantID, id string) (Team, error)
		QueryTeams(ctx context.Context, tenantID string) ([]Team, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) checkPINUniqueness(ctx context.Context, tenantID, pin string, excludedIDs ...string) error {
	if pin == "" {
		return nil
	}
	if err := svc.repo.CheckPINUniqueness(ctx, tenantID, pin, excludedIDs...); err != nil {
		if errors.Cause(err) == ErrPINExists {
			return core.NewValidationError(err, core.FieldError{Field: "pin", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *Service) checkTeams(ctx context.Context, tenantID string, teamIDs []string) error {
	for _, id := range teamIDs {
		if _, err := svc.repo.GetTeam(ctx, tenantID, id); err != nil {
			if errors.Cause(err) == ErrTeamNotFound {
				return core.NewValidationError(err, core.FieldError{Field: "team_ids", Error: err.Error()})
			}
			return errors.Wrap(err, "getting team")
		}
	}
	return nil
}

// Create creates a Member of the tenant. nm must have been validated.
func (svc *Service) Create(ctx context.Context, tenantID string, nm NewMember) (Member, error) {
	if err := svc.checkPINUniqueness(ctx, tenantID, nm.PIN); err != nil {
		return Member{}, err
	}
	if err := svc.checkTeams(ctx, tenantID, nm.TeamIDs); err != nil {
		return Member{}, err
	}

	now := time.Now().UTC()
	m, err := svc.repo.CreateMember(ctx, Member{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		FirstName:   nm.FirstName,
		LastName:    nm.LastName,
		DateOfBirth: nullString(nm.DateOfBirth),
		Gender:      nullString(nm.Gender),
		PIN:         nullString(nm.PIN),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		if errors.Cause(err) == ErrPINExists { // lost a race against another insert
			return Member{}, core.NewValidationError(ErrPINExists, core.FieldError{Field: "pin", Error: ErrPINExists.Error()})
		}
		return Member{}, errors.Wrap(err, "creating member")
	}

	if len(nm.TeamIDs) > 0 {
		if err = svc.repo.SetMemberTeams(ctx, tenantID, m.ID, nm.TeamIDs); err != nil {
			return Member{}, errors.Wrap(err, "setting member teams")
		}
		m.TeamIDs = nm.TeamIDs
	}
	return m, nil
}

// Update applies um to the member. um must have been validated.
func (svc *Service) Update(ctx context.Context, tenantID, id string, um UpdateMember) (Member, error) {
	m, err := svc.repo.GetMember(ctx, tenantID, id)
	if err != nil {
		return Member{}, err
	}
	if um.PIN != nil {
		if err = svc.checkPINUniqueness(ctx, tenantID, *um.PIN, m.ID); err != nil {
			return Member{}, err
		}
	}
	if err = svc.checkTeams(ctx, tenantID, um.TeamIDs); err != nil {
		return Member{}, err
	}

	if um.FirstName != nil {
		m.FirstName = *um.FirstName
	}
	if um.LastName != nil {
		m.LastName = *um.LastName
	}
	if um.DateOfBirth != nil {
		m.DateOfBirth = nullString(*um.DateOfBirth)
	}
	if um.Gender != nil {
		m.Gender = nullString(*um.Gender)
	}
	if um.PIN != nil {
		m.PIN = nullString(*um.PIN)
	}
	m.UpdatedAt = time.Now().UTC()

	teamIDs := m.TeamIDs
	if m, err = svc.repo.UpdateMember(ctx, m); err != nil {
		if errors.Cause(err) == ErrPINExists {
			return Member{}, core.NewValidationError(ErrPINExists, core.FieldError{Field: "pin", Error: ErrPINExists.Error()})
		}
		return Member{}, errors.Wrap(err, "updating member")
	}
	m.TeamIDs = teamIDs

	if um.TeamIDs != nil {
		if err = svc.repo.SetMemberTeams(ctx, tenantID, m.ID, um.TeamIDs); err != nil {
			return Member{}, errors.Wrap(err, "setting member teams")
		}
		m.TeamIDs = um.TeamIDs
	}
	return m, nil
}

// SetPIN assigns pin to the member; an empty pin removes it.
func (svc *Service) SetPIN(ctx context.Context, tenantID, id, pin string) (Member, error) {
	pin = core.CleanString(pin)
	if pin != "" && !core.IsValidPIN(pin) {
		return Member{}, core.NewValidationError(nil, core.FieldError{Field: "pin", Error: "PIN must be exactly 4 digits"})
	}
	return svc.Update(ctx, tenantID, id, UpdateMember{PIN: &pin})
}

func (svc *Service) Delete(ctx context.Context, tenantID, id string) error {
	return svc.repo.DeleteMember(ctx, tenantID, id)
}

func (svc *Service) Get(ctx context.Context, tenantID, id string) (Member, error) {
	return svc.repo.GetMember(ctx, tenantID, id)
}

// FindByPIN returns the members of the tenant using pin. More than one match means the data is corrupt.
func (svc *Service) FindByPIN(ctx context.Context, tenantID, pin string) ([]Member, error) {
	return svc.repo.FindMembersByPIN(ctx, tenantID, pin)
}

func (svc *Service) ListTeamMembers(ctx context.Context, tenantID, teamID string) ([]Member, error) {
	return svc.repo.QueryTeamMembers(ctx, tenantID, teamID)
}

func (svc *Service) CreateTeam(ctx context.Context, tenantID string, nt NewTeam) (Team, error) {
	t, err := svc.repo.CreateTeam(ctx, Team{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      nt.Name,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		if errors.Cause(err) == ErrTeamExists {
			return Team{}, core.NewValidationError(err, core.FieldError{Field: "name", Error: err.Error()})
		}
		return Team{}, errors.Wrap(err, "creating team")
	}
	return t, nil
}

func (svc *Service) GetTeam(ctx context.Context, tenantID, id string) (Team, error) {
	return svc.repo.GetTeam(ctx, tenantID, id)
}

func (svc *Service) ListTeams(ctx context.Context, tenantID string) ([]Team, error) {
	return svc.repo.QueryTeams(ctx, tenantID)
}
