package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/vilmosmisota/sportapp/core/user"
)

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	_, err := sqlx.NamedExecContext(ctx, executor(ctx, repo.db), `
		INSERT INTO "user" (id, name, email, password_hash, created_at, updated_at, last_login)
		VALUES (:id, :name, :email, :password_hash, :created_at, :updated_at, :last_login)`, usr)
	if _, ok := constraintError(err, uniqueViolation); ok {
		return user.User{}, user.ErrEmailExists
	}
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, id string) (user.User, error) {
	var usr user.User
	err := sqlx.GetContext(ctx, executor(ctx, repo.db), &usr, `SELECT * FROM "user" WHERE id = $1`, id)
	return usr, notFound(err, user.ErrNotFound)
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	var usr user.User
	err := sqlx.GetContext(ctx, executor(ctx, repo.db), &usr, `SELECT * FROM "user" WHERE email = $1`, email)
	return usr, notFound(err, user.ErrNotFound)
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	// only save set fields
	query := `UPDATE "user" SET name = :name, updated_at = :updated_at`
	if usr.PasswordHash != nil {
		query += `, password_hash = :password_hash`
	}
	res, err := sqlx.NamedExecContext(ctx, executor(ctx, repo.db), query+` WHERE id = :id`, usr)
	if err = affected(res, errors.Wrap(err, "updating user"), user.ErrNotFound); err != nil {
		return user.User{}, err
	}
	return repo.GetUser(ctx, usr.ID)
}

func (repo *userRepository) DeleteUser(ctx context.Context, id string) error {
	_, err := executor(ctx, repo.db).ExecContext(ctx, `DELETE FROM "user" WHERE id = $1`, id)
	return errors.Wrap(err, "deleting user")
}

func (repo *userRepository) SetLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := executor(ctx, repo.db).ExecContext(ctx, `UPDATE "user" SET last_login = $1 WHERE id = $2`, at, id)
	return affected(res, errors.Wrap(err, "setting last login"), user.ErrNotFound)
}

func (repo *userRepository) AddMembership(ctx context.Context, ms user.Membership) error {
	_, err := sqlx.NamedExecContext(ctx, executor(ctx, repo.db), `
		INSERT INTO membership (tenant_id, user_id, role, member_id, is_active)
		VALUES (:tenant_id, :user_id, :role, :member_id, :is_active)`, ms)
	if _, ok := constraintError(err, uniqueViolation); ok {
		return user.ErrMembershipExists
	}
	if constraint, ok := constraintError(err, foreignKeyViolation); ok && constraint == "membership_user_id_fkey" {
		return user.ErrNotFound
	}
	return errors.Wrap(err, "inserting membership")
}

func (repo *userRepository) GetMembership(ctx context.Context, tenantID, userID string) (user.Membership, error) {
	var ms user.Membership
	err := sqlx.GetContext(ctx, executor(ctx, repo.db), &ms,
		`SELECT * FROM membership WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID)
	return ms, notFound(err, user.ErrMembershipNotFound)
}

func (repo *userRepository) UpdateMembership(ctx context.Context, ms user.Membership) error {
	res, err := sqlx.NamedExecContext(ctx, executor(ctx, repo.db), `
		UPDATE membership SET role = :role, member_id = :member_id, is_active = :is_active
		WHERE tenant_id = :tenant_id AND user_id = :user_id`, ms)
	return affected(res, errors.Wrap(err, "updating membership"), user.ErrMembershipNotFound)
}

func (repo *userRepository) DeleteMembership(ctx context.Context, tenantID, userID string) error {
	res, err := executor(ctx, repo.db).ExecContext(ctx,
		`DELETE FROM membership WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID)
	return affected(res, errors.Wrap(err, "deleting membership"), user.ErrMembershipNotFound)
}

func (repo *userRepository) CountMemberships(ctx context.Context, userID string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, executor(ctx, repo.db), &n, `SELECT COUNT(*) FROM membership WHERE user_id = $1`, userID)
	return n, errors.Wrap(err, "counting memberships")
}

type tenantUserRow struct {
	user.User
	Role     string      `db:"role"`
	MemberID null.String `db:"member_id"`
	IsActive bool        `db:"is_active"`
}

func (repo *userRepository) QueryTenantUsers(ctx context.Context, tenantID string, filter user.QueryFilter) ([]user.TenantUser, error) {
	var (
		where = []string{"ms.tenant_id = ?"}
		args  = []interface{}{tenantID}
	)
	// users with search keyword matching any Name or Email ?
	if filter.Search != "" {
		where = append(where, "(u.name ILIKE ? OR u.email ILIKE ?)")
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		args = append(args, pattern, pattern)
	}
	if len(filter.Roles) > 0 {
		where = append(where, "ms.role = ANY(?)")
		args = append(args, pq.StringArray(filter.Roles))
	}
	if filter.IsActive != nil {
		where = append(where, "ms.is_active = ?")
		args = append(args, *filter.IsActive)
	}

	query := `
		SELECT u.*, ms.role, ms.member_id, ms.is_active
		FROM "user" u
		JOIN membership ms ON ms.user_id = u.id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY u.name`

	var rows []tenantUserRow
	if err := sqlx.SelectContext(ctx, executor(ctx, repo.db), &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying tenant users")
	}
	users := make([]user.TenantUser, 0, len(rows))
	for _, r := range rows {
		users = append(users, user.TenantUser{User: r.User, Role: r.Role, MemberID: r.MemberID, IsActive: r.IsActive})
	}
	return users, nil
}
