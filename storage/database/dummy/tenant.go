package dummydb

import (
	"context"
	"sort"

	"github.com/vilmosmisota/sportapp/core/tenant"
)

type tenantRepository struct {
	db *DB
}

var _ tenant.Repository = (*tenantRepository)(nil) // interface compliance check

func NewTenantRepository(db *DB) tenant.Repository {
	return &tenantRepository{db: db}
}

func (repo *tenantRepository) CreateTenant(_ context.Context, tnt tenant.Tenant) (tenant.Tenant, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, t := range repo.db.tenant {
		if t.Slug == tnt.Slug {
			return tenant.Tenant{}, tenant.ErrSlugExists
		}
	}
	repo.db.tenant[tnt.ID] = tnt
	return tnt, nil
}

func (repo *tenantRepository) GetTenant(_ context.Context, id string) (tenant.Tenant, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if tnt, ok := repo.db.tenant[id]; ok {
		return tnt, nil
	}
	return tenant.Tenant{}, tenant.ErrNotFound
}

func (repo *tenantRepository) GetTenantBySlug(_ context.Context, slug string) (tenant.Tenant, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, tnt := range repo.db.tenant {
		if tnt.Slug == slug {
			return tnt, nil
		}
	}
	return tenant.Tenant{}, tenant.ErrNotFound
}

func (repo *tenantRepository) QueryTenants(_ context.Context) ([]tenant.Tenant, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	tenants := make([]tenant.Tenant, 0, len(repo.db.tenant))
	for _, tnt := range repo.db.tenant {
		tenants = append(tenants, tnt)
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].Name < tenants[j].Name })
	return tenants, nil
}

func (repo *tenantRepository) GetSettings(_ context.Context, tenantID string) (tenant.Settings, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.settings[tenantID]; ok {
		return s, nil
	}
	return tenant.Settings{}, tenant.ErrSettingsNotFound
}

func (repo *tenantRepository) SaveSettings(_ context.Context, s tenant.Settings) (tenant.Settings, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.tenant[s.TenantID]; !ok {
		return tenant.Settings{}, tenant.ErrNotFound
	}
	repo.db.settings[s.TenantID] = s
	return s, nil
}
