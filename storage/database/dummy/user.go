package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/vilmosmisota/sportapp/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, u := range repo.db.user {
		if u.Email == usr.Email {
			return user.User{}, user.ErrEmailExists
		}
	}
	repo.db.user[usr.ID] = usr
	return usr, nil
}

func (repo *userRepository) GetUser(_ context.Context, id string) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if usr, ok := repo.db.user[id]; ok {
		return usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, usr := range repo.db.user {
		if usr.Email == email {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.user[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	// only save set fields
	if usr.PasswordHash != nil {
		orig.PasswordHash = usr.PasswordHash
	}
	orig.Name = usr.Name
	orig.UpdatedAt = usr.UpdatedAt
	repo.db.user[usr.ID] = orig
	return orig, nil
}

func (repo *userRepository) DeleteUser(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	delete(repo.db.user, id)
	for k := range repo.db.membership {
		if k.userID == id {
			delete(repo.db.membership, k)
		}
	}
	return nil
}

func (repo *userRepository) SetLastLogin(_ context.Context, id string, at time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	usr, ok := repo.db.user[id]
	if !ok {
		return user.ErrNotFound
	}
	usr.LastLogin = null.TimeFrom(at)
	repo.db.user[id] = usr
	return nil
}

func (repo *userRepository) AddMembership(_ context.Context, ms user.Membership) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := membershipKey{tenantID: ms.TenantID, userID: ms.UserID}
	if _, ok := repo.db.membership[key]; ok {
		return user.ErrMembershipExists
	}
	if _, ok := repo.db.user[ms.UserID]; !ok {
		return user.ErrNotFound
	}
	repo.db.membership[key] = ms
	return nil
}

func (repo *userRepository) GetMembership(_ context.Context, tenantID, userID string) (user.Membership, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if ms, ok := repo.db.membership[membershipKey{tenantID: tenantID, userID: userID}]; ok {
		return ms, nil
	}
	return user.Membership{}, user.ErrMembershipNotFound
}

func (repo *userRepository) UpdateMembership(_ context.Context, ms user.Membership) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := membershipKey{tenantID: ms.TenantID, userID: ms.UserID}
	if _, ok := repo.db.membership[key]; !ok {
		return user.ErrMembershipNotFound
	}
	repo.db.membership[key] = ms
	return nil
}

func (repo *userRepository) DeleteMembership(_ context.Context, tenantID, userID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := membershipKey{tenantID: tenantID, userID: userID}
	if _, ok := repo.db.membership[key]; !ok {
		return user.ErrMembershipNotFound
	}
	delete(repo.db.membership, key)
	return nil
}

func (repo *userRepository) CountMemberships(_ context.Context, userID string) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var n int
	for k := range repo.db.membership {
		if k.userID == userID {
			n++
		}
	}
	return n, nil
}

func (repo *userRepository) QueryTenantUsers(_ context.Context, tenantID string, filter user.QueryFilter) ([]user.TenantUser, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	search := strings.ToLower(filter.Search)
	users := make([]user.TenantUser, 0)
	for k, ms := range repo.db.membership {
		if k.tenantID != tenantID {
			continue
		}
		usr, ok := repo.db.user[k.userID]
		if !ok {
			continue
		}
		// users with search keyword matching any Name or Email ?
		if search != "" && !strings.Contains(strings.ToLower(usr.Name), search) &&
			!strings.Contains(strings.ToLower(usr.Email), search) {
			continue
		}
		if len(filter.Roles) > 0 && !user.HasAnyRole(ms.Role, filter.Roles) {
			continue
		}
		if filter.IsActive != nil && ms.IsActive != *filter.IsActive {
			continue
		}
		users = append(users, user.TenantUser{User: usr, Role: ms.Role, MemberID: ms.MemberID, IsActive: ms.IsActive})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users, nil
}
