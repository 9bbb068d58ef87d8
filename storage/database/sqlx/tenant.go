package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/vilmosmisota/sportapp/core/tenant"
)

type tenantRepository struct {
	db *sqlx.DB
}

var _ tenant.Repository = (*tenantRepository)(nil) // interface compliance check

func NewTenantRepository(db *sqlx.DB) tenant.Repository {
	return &tenantRepository{db: db}
}

func (repo *tenantRepository) CreateTenant(ctx context.Context, tnt tenant.Tenant) (tenant.Tenant, error) {
	_, err := sqlx.NamedExecContext(ctx, executor(ctx, repo.db), `
		INSERT INTO tenant (id, name, slug, created_at, updated_at)
		VALUES (:id, :name, :slug, :created_at, :updated_at)`, tnt)
	if _, ok := constraintError(err, uniqueViolation); ok {
		return tenant.Tenant{}, tenant.ErrSlugExists
	}
	if err != nil {
		return tenant.Tenant{}, errors.Wrap(err, "inserting tenant")
	}
	return tnt, nil
}

func (repo *tenantRepository) GetTenant(ctx context.Context, id string) (tenant.Tenant, error) {
	var tnt tenant.Tenant
	err := sqlx.GetContext(ctx, executor(ctx, repo.db), &tnt, `SELECT * FROM tenant WHERE id = $1`, id)
	return tnt, notFound(err, tenant.ErrNotFound)
}

func (repo *tenantRepository) GetTenantBySlug(ctx context.Context, slug string) (tenant.Tenant, error) {
	var tnt tenant.Tenant
	err := sqlx.GetContext(ctx, executor(ctx, repo.db), &tnt, `SELECT * FROM tenant WHERE slug = $1`, slug)
	return tnt, notFound(err, tenant.ErrNotFound)
}

func (repo *tenantRepository) QueryTenants(ctx context.Context) ([]tenant.Tenant, error) {
	tenants := make([]tenant.Tenant, 0)
	err := sqlx.SelectContext(ctx, executor(ctx, repo.db), &tenants, `SELECT * FROM tenant ORDER BY name`)
	return tenants, errors.Wrap(err, "querying tenants")
}

func (repo *tenantRepository) GetSettings(ctx context.Context, tenantID string) (tenant.Settings, error) {
	var s tenant.Settings
	err := sqlx.GetContext(ctx, executor(ctx, repo.db), &s,
		`SELECT * FROM tenant_settings WHERE tenant_id = $1`, tenantID)
	return s, notFound(err, tenant.ErrSettingsNotFound)
}

func (repo *tenantRepository) SaveSettings(ctx context.Context, s tenant.Settings) (tenant.Settings, error) {
	_, err := sqlx.NamedExecContext(ctx, executor(ctx, repo.db), `
		INSERT INTO tenant_settings (tenant_id, late_threshold_minutes, timezone, updated_at)
		VALUES (:tenant_id, :late_threshold_minutes, :timezone, :updated_at)
		ON CONFLICT (tenant_id) DO UPDATE
		SET late_threshold_minutes = EXCLUDED.late_threshold_minutes,
		    timezone = EXCLUDED.timezone,
		    updated_at = EXCLUDED.updated_at`, s)
	if _, ok := constraintError(err, foreignKeyViolation); ok {
		return tenant.Settings{}, tenant.ErrNotFound
	}
	if err != nil {
		return tenant.Settings{}, errors.Wrap(err, "saving tenant settings")
	}
	return s, nil
}
