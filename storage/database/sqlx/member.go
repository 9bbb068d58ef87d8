package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/vilmosmisota/sportapp/core/member"
)

const selectMembers = `
	SELECT m.id, m.tenant_id, m.first_name, m.last_name,
	       to_char(m.date_of_birth, 'YYYY-MM-DD') AS date_of_birth,
	       m.gender, m.pin, m.created_at, m.updated_at,
	       COALESCE(array_agg(tm.team_id::text ORDER BY tm.team_id) FILTER (WHERE tm.team_id IS NOT NULL), '{}') AS team_ids
	FROM member m
	LEFT JOIN team_member tm ON tm.member_id = m.id`

type memberRow struct {
	member.Member
	TeamIDs pq.StringArray `db:"team_ids"`
}

func (r memberRow) toMember() member.Member {
	m := r.Member
	m.TeamIDs = []string(r.TeamIDs)
	return m
}

func toMembers(rows []memberRow) []member.Member {
	members := make([]member.Member, 0, len(rows))
	for _, r := range rows {
		members = append(members, r.toMember())
	}
	return members
}

type memberRepository struct {
	db *sqlx.DB
}

var _ member.Repository = (*memberRepository)(nil) // interface compliance check

func NewMemberRepository(db *sqlx.DB) member.Repository {
	return &memberRepository{db: db}
}

func (repo *memberRepository) CheckPINUniqueness(ctx context.Context, tenantID, pin string, excludedIDs ...string) error {
	var count int
	err := sqlx.GetContext(ctx, executor(ctx, repo.db), &count, `
		SELECT COUNT(*) FROM member
		WHERE tenant_id = $1 AND pin = $2 AND NOT (id::text = ANY($3))`,
		tenantID, pin, pq.StringArray(excludedIDs))
	if err != nil {
		return errors.Wrap(err, "checking PIN uniqueness")
	}
	if count > 0 {
		return member.ErrPINExists
	}
	return nil
}

// memberWriteError maps constraint violations on member writes.
func memberWriteError(err error, msg string) error {
	if constraint, ok := constraintError(err, uniqueViolation); ok && constraint == "member_tenant_pin_uniq" {
		return member.ErrPINExists
	}
	return errors.Wrap(err, msg)
}

func (repo *memberRepository) CreateMember(ctx context.Context, m member.Member) (member.Member, error) {
	_, err := sqlx.NamedExecContext(ctx, executor(ctx, repo.db), `
		INSERT INTO member (id, tenant_id, first_name, last_name, date_of_birth, gender, pin, created_at, updated_at)
		VALUES (:id, :tenant_id, :first_name, :last_name, :date_of_birth, :gender, :pin, :created_at, :updated_at)`, m)
	if err != nil {
		return member.Member{}, memberWriteError(err, "inserting member")
	}
	m.TeamIDs = nil
	return m, nil
}

func (repo *memberRepository) UpdateMember(ctx context.Context, m member.Member) (member.Member, error) {
	res, err := sqlx.NamedExecContext(ctx, executor(ctx, repo.db), `
		UPDATE member
		SET first_name = :first_name, last_name = :last_name, date_of_birth = :date_of_birth,
		    gender = :gender, pin = :pin, updated_at = :updated_at
		WHERE id = :id AND tenant_id = :tenant_id`, m)
	if err != nil {
		return member.Member{}, memberWriteError(err, "updating member")
	}
	if err = affected(res, nil, member.ErrNotFound); err != nil {
		return member.Member{}, err
	}
	return repo.GetMember(ctx, m.TenantID, m.ID)
}

func (repo *memberRepository) DeleteMember(ctx context.Context, tenantID, id string) error {
	res, err := executor(ctx, repo.db).ExecContext(ctx,
		`DELETE FROM member WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	return affected(res, errors.Wrap(err, "deleting member"), member.ErrNotFound)
}

func (repo *memberRepository) GetMember(ctx context.Context, tenantID, id string) (member.Member, error) {
	var row memberRow
	err := sqlx.GetContext(ctx, executor(ctx, repo.db), &row,
		selectMembers+` WHERE m.id = $1 AND m.tenant_id = $2 GROUP BY m.id`, id, tenantID)
	if err != nil {
		return member.Member{}, notFound(err, member.ErrNotFound)
	}
	return row.toMember(), nil
}

func (repo *memberRepository) FindMembersByPIN(ctx context.Context, tenantID, pin string) ([]member.Member, error) {
	var rows []memberRow
	err := sqlx.SelectContext(ctx, executor(ctx, repo.db), &rows,
		selectMembers+` WHERE m.tenant_id = $1 AND m.pin = $2 GROUP BY m.id`, tenantID, pin)
	if err != nil {
		return nil, errors.Wrap(err, "querying members by PIN")
	}
	return toMembers(rows), nil
}

func (repo *memberRepository) QueryTeamMembers(ctx context.Context, tenantID, teamID string) ([]member.Member, error) {
	var rows []memberRow
	err := sqlx.SelectContext(ctx, executor(ctx, repo.db), &rows, selectMembers+`
		WHERE m.tenant_id = $1 AND EXISTS (SELECT 1 FROM team_member x WHERE x.member_id = m.id AND x.team_id = $2)
		GROUP BY m.id
		ORDER BY m.last_name, m.first_name`, tenantID, teamID)
	if err != nil {
		return nil, errors.Wrap(err, "querying team members")
	}
	return toMembers(rows), nil
}

func (repo *memberRepository) SetMemberTeams(ctx context.Context, tenantID, memberID string, teamIDs []string) error {
	ex := executor(ctx, repo.db)

	var found bool
	err := sqlx.GetContext(ctx, ex, &found, `SELECT true FROM member WHERE id = $1 AND tenant_id = $2`, memberID, tenantID)
	if err != nil {
		return notFound(err, member.ErrNotFound)
	}

	var count int
	err = sqlx.GetContext(ctx, ex, &count,
		`SELECT COUNT(*) FROM team WHERE tenant_id = $1 AND id::text = ANY($2)`, tenantID, pq.StringArray(teamIDs))
	if err != nil {
		return errors.Wrap(err, "checking teams")
	}
	if count != len(uniqueStrings(teamIDs)) {
		return member.ErrTeamNotFound
	}

	if _, err = ex.ExecContext(ctx, `DELETE FROM team_member WHERE member_id = $1`, memberID); err != nil {
		return errors.Wrap(err, "clearing member teams")
	}
	if len(teamIDs) == 0 {
		return nil
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO team_member (team_id, member_id)
		SELECT DISTINCT unnest($1::uuid[]), $2::uuid`, pq.StringArray(teamIDs), memberID)
	return errors.Wrap(err, "setting member teams")
}

func (repo *memberRepository) CreateTeam(ctx context.Context, t member.Team) (member.Team, error) {
	_, err := sqlx.NamedExecContext(ctx, executor(ctx, repo.db), `
		INSERT INTO team (id, tenant_id, name, created_at)
		VALUES (:id, :tenant_id, :name, :created_at)`, t)
	if _, ok := constraintError(err, uniqueViolation); ok {
		return member.Team{}, member.ErrTeamExists
	}
	if err != nil {
		return member.Team{}, errors.Wrap(err, "inserting team")
	}
	return t, nil
}

func (repo *memberRepository) GetTeam(ctx context.Context, tenantID, id string) (member.Team, error) {
	var t member.Team
	err := sqlx.GetContext(ctx, executor(ctx, repo.db), &t,
		`SELECT * FROM team WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	return t, notFound(err, member.ErrTeamNotFound)
}

func (repo *memberRepository) QueryTeams(ctx context.Context, tenantID string) ([]member.Team, error) {
	teams := make([]member.Team, 0)
	err := sqlx.SelectContext(ctx, executor(ctx, repo.db), &teams,
		`SELECT * FROM team WHERE tenant_id = $1 ORDER BY name`, tenantID)
	return teams, errors.Wrap(err, "querying teams")
}

func uniqueStrings(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
