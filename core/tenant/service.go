package tenant

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/vilmosmisota/sportapp/core"
)

var (
	// errors
	ErrNotFound         = errors.New("tenant not found")
	ErrSlugExists       = errors.New("a tenant with this slug already exists")
	ErrSettingsNotFound = errors.New("tenant settings not found")
)

type (
	Repository interface {
		CreateTenant(ctx context.Context, tnt Tenant) (Tenant, error)
		GetTenant(ctx context.Context, id string) (Tenant, error)
		GetTenantBySlug(ctx context.Context, slug string) (Tenant, error)
		QueryTenants(ctx context.Context) ([]Tenant, error)
		GetSettings(ctx context.Context, tenantID string) (Settings, error)
		SaveSettings(ctx context.Context, s Settings) (Settings, error)
	}

	// SettingsCache is a read-through cache for tenant Settings.
	SettingsCache interface {
		Get(ctx context.Context, tenantID string) (Settings, bool, error)
		Set(ctx context.Context, s Settings) error
		Delete(ctx context.Context, tenantID string) error
	}

	Service struct {
		repo   Repository
		cache  SettingsCache
		logger core.Logger
	}
)

// NewService creates a tenant Service. cache may be nil.
func NewService(repo Repository, cache SettingsCache, logger core.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

func (svc *Service) Create(ctx context.Context, nt NewTenant) (Tenant, error) {
	if _, err := svc.repo.GetTenantBySlug(ctx, nt.Slug); err == nil {
		return Tenant{}, core.NewValidationError(ErrSlugExists, core.FieldError{Field: "slug", Error: ErrSlugExists.Error()})
	} else if errors.Cause(err) != ErrNotFound {
		return Tenant{}, errors.Wrap(err, "checking slug uniqueness")
	}

	now := time.Now().UTC()
	tnt, err := svc.repo.CreateTenant(ctx, Tenant{
		ID:        uuid.NewString(),
		Name:      nt.Name,
		Slug:      nt.Slug,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Tenant{}, errors.Wrap(err, "creating tenant")
	}

	settings := DefaultSettings(tnt.ID)
	settings.UpdatedAt = now
	if _, err = svc.repo.SaveSettings(ctx, settings); err != nil {
		return Tenant{}, errors.Wrap(err, "saving default settings")
	}
	return tnt, nil
}

func (svc *Service) Get(ctx context.Context, id string) (Tenant, error) {
	return svc.repo.GetTenant(ctx, id)
}

func (svc *Service) GetBySlug(ctx context.Context, slug string) (Tenant, error) {
	return svc.repo.GetTenantBySlug(ctx, core.CleanString(slug, true /* lower */))
}

func (svc *Service) Query(ctx context.Context) ([]Tenant, error) {
	return svc.repo.QueryTenants(ctx)
}

// GetSettings returns the tenant Settings, or the defaults if none were saved yet.
func (svc *Service) GetSettings(ctx context.Context, tenantID string) (Settings, error) {
	if svc.cache != nil {
		if s, ok, err := svc.cache.Get(ctx, tenantID); err != nil {
			svc.logger.Warn(fmt.Sprintf("reading settings cache: %v", err), err)
		} else if ok {
			return s, nil
		}
	}

	s, err := svc.repo.GetSettings(ctx, tenantID)
	switch errors.Cause(err) {
	case nil:
	case ErrSettingsNotFound:
		s = DefaultSettings(tenantID)
	default:
		return Settings{}, errors.Wrap(err, "getting settings")
	}

	if svc.cache != nil {
		if err = svc.cache.Set(ctx, s); err != nil {
			svc.logger.Warn(fmt.Sprintf("writing settings cache: %v", err), err)
		}
	}
	return s, nil
}

func (svc *Service) UpdateSettings(ctx context.Context, tenantID string, us UpdateSettings) (Settings, error) {
	s, err := svc.GetSettings(ctx, tenantID)
	if err != nil {
		return Settings{}, err
	}
	if us.LateThresholdMinutes != nil {
		s.LateThresholdMinutes = *us.LateThresholdMinutes
	}
	if us.Timezone != nil {
		s.Timezone = *us.Timezone
	}
	s.TenantID = tenantID
	s.UpdatedAt = time.Now().UTC()

	if s, err = svc.repo.SaveSettings(ctx, s); err != nil {
		return Settings{}, errors.Wrap(err, "saving settings")
	}
	if svc.cache != nil {
		if err = svc.cache.Delete(ctx, tenantID); err != nil {
			svc.logger.Warn(fmt.Sprintf("invalidating settings cache: %v", err), err)
		}
	}
	return s, nil
}
