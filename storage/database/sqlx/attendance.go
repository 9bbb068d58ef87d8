package sqlxrepos

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/vilmosmisota/sportapp/core"
	"github.com/vilmosmisota/sportapp/core/attendance"
)

const (
	selectSeasons = `
		SELECT id, tenant_id, name,
		       to_char(starts_on, 'YYYY-MM-DD') AS starts_on,
		       to_char(ends_on, 'YYYY-MM-DD') AS ends_on,
		       breaks, created_at
		FROM season`

	selectSessions = `
		SELECT id, tenant_id, team_id, season_id,
		       to_char(date, 'YYYY-MM-DD') AS date,
		       start_time, end_time, is_active, closed_at, created_at
		FROM training_session`

	recordColumns = `id, tenant_id, session_id, member_id, status, checked_in_at, created_at, updated_at`
)

type seasonRow struct {
	attendance.Season
	Breaks string `db:"breaks"`
}

func (r seasonRow) toSeason() (attendance.Season, error) {
	s := r.Season
	if err := json.Unmarshal([]byte(r.Breaks), &s.Breaks); err != nil {
		return attendance.Season{}, errors.Wrap(err, "decoding season breaks")
	}
	return s, nil
}

type attendanceRepository struct {
	db *sqlx.DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *sqlx.DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

func (repo *attendanceRepository) CreateSeason(ctx context.Context, s attendance.Season) (attendance.Season, error) {
	breaks := s.Breaks
	if breaks == nil {
		breaks = []core.DateRange{}
	}
	data, err := json.Marshal(breaks)
	if err != nil {
		return attendance.Season{}, errors.Wrap(err, "encoding season breaks")
	}
	_, err = sqlx.NamedExecContext(ctx, executor(ctx, repo.db), `
		INSERT INTO season (id, tenant_id, name, starts_on, ends_on, breaks, created_at)
		VALUES (:id, :tenant_id, :name, :starts_on, :ends_on, :breaks, :created_at)`,
		seasonRow{Season: s, Breaks: string(data)})
	if err != nil {
		return attendance.Season{}, errors.Wrap(err, "inserting season")
	}
	return s, nil
}

func (repo *attendanceRepository) GetSeason(ctx context.Context, tenantID, id string) (attendance.Season, error) {
	var row seasonRow
	err := sqlx.GetContext(ctx, executor(ctx, repo.db), &row, selectSeasons+` WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return attendance.Season{}, notFound(err, attendance.ErrSeasonNotFound)
	}
	return row.toSeason()
}

func (repo *attendanceRepository) QuerySeasons(ctx context.Context, tenantID string) ([]attendance.Season, error) {
	var rows []seasonRow
	err := sqlx.SelectContext(ctx, executor(ctx, repo.db), &rows,
		selectSeasons+` WHERE tenant_id = $1 ORDER BY starts_on DESC`, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "querying seasons")
	}
	seasons := make([]attendance.Season, 0, len(rows))
	for _, r := range rows {
		s, err := r.toSeason()
		if err != nil {
			return nil, err
		}
		seasons = append(seasons, s)
	}
	return seasons, nil
}

func (repo *attendanceRepository) CreateSession(ctx context.Context, s attendance.Session) (attendance.Session, error) {
	_, err := sqlx.NamedExecContext(ctx, executor(ctx, repo.db), `
		INSERT INTO training_session (id, tenant_id, team_id, season_id, date, start_time, end_time, is_active, closed_at, created_at)
		VALUES (:id, :tenant_id, :team_id, :season_id, :date, :start_time, :end_time, :is_active, :closed_at, :created_at)`, s)
	if err != nil {
		return attendance.Session{}, errors.Wrap(err, "inserting session")
	}
	return s, nil
}

func (repo *attendanceRepository) GetSession(ctx context.Context, tenantID, id string) (attendance.Session, error) {
	var s attendance.Session
	err := sqlx.GetContext(ctx, executor(ctx, repo.db), &s, selectSessions+` WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	return s, notFound(err, attendance.ErrSessionNotFound)
}

func (repo *attendanceRepository) QuerySessions(
	ctx context.Context,
	tenantID string,
	filter attendance.SessionFilter,
) ([]attendance.Session, error) {
	var (
		where = []string{"tenant_id = ?"}
		args  = []interface{}{tenantID}
	)
	if filter.IsActive != nil {
		where = append(where, "is_active = ?")
		args = append(args, *filter.IsActive)
	}
	if filter.TeamID != "" {
		where = append(where, "team_id = ?")
		args = append(args, filter.TeamID)
	}
	if filter.Date != "" {
		where = append(where, "date = ?")
		args = append(args, filter.Date)
	}
	query := selectSessions + ` WHERE ` + strings.Join(where, " AND ") + ` ORDER BY date DESC, start_time DESC`

	sessions := make([]attendance.Session, 0)
	err := sqlx.SelectContext(ctx, executor(ctx, repo.db), &sessions, repo.db.Rebind(query), args...)
	return sessions, errors.Wrap(err, "querying sessions")
}

func (repo *attendanceRepository) QueryActiveSessions(ctx context.Context) ([]attendance.Session, error) {
	sessions := make([]attendance.Session, 0)
	err := sqlx.SelectContext(ctx, executor(ctx, repo.db), &sessions,
		selectSessions+` WHERE is_active ORDER BY date DESC, start_time DESC`)
	return sessions, errors.Wrap(err, "querying active sessions")
}

// CloseSession only closes an active session, so concurrent closes cannot both succeed.
func (repo *attendanceRepository) CloseSession(
	ctx context.Context,
	tenantID, id string,
	closedAt time.Time,
) (attendance.Session, error) {
	res, err := executor(ctx, repo.db).ExecContext(ctx, `
		UPDATE training_session SET is_active = false, closed_at = $1
		WHERE id = $2 AND tenant_id = $3 AND is_active`, closedAt, id, tenantID)
	if err = affected(res, errors.Wrap(err, "closing session"), attendance.ErrSessionClosed); err != nil {
		if err != attendance.ErrSessionClosed {
			return attendance.Session{}, err
		}
		// tell a missing session from a closed one
		if _, gerr := repo.GetSession(ctx, tenantID, id); gerr != nil {
			return attendance.Session{}, gerr
		}
		return attendance.Session{}, err
	}
	return repo.GetSession(ctx, tenantID, id)
}

// CreateRecord returns attendance.ErrDuplicateRecord if the member already has a record for the session.
// ON CONFLICT keeps a surrounding transaction usable.
func (repo *attendanceRepository) CreateRecord(ctx context.Context, r attendance.Record) (attendance.Record, error) {
	res, err := sqlx.NamedExecContext(ctx, executor(ctx, repo.db), `
		INSERT INTO attendance_record (`+recordColumns+`)
		VALUES (:id, :tenant_id, :session_id, :member_id, :status, :checked_in_at, :created_at, :updated_at)
		ON CONFLICT ON CONSTRAINT attendance_record_session_member_uniq DO NOTHING`, r)
	if err = affected(res, errors.Wrap(err, "inserting attendance record"), attendance.ErrDuplicateRecord); err != nil {
		return attendance.Record{}, err
	}
	return r, nil
}

func (repo *attendanceRepository) GetRecord(ctx context.Context, tenantID, id string) (attendance.Record, error) {
	var r attendance.Record
	err := sqlx.GetContext(ctx, executor(ctx, repo.db), &r,
		`SELECT `+recordColumns+` FROM attendance_record WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	return r, notFound(err, attendance.ErrRecordNotFound)
}

func (repo *attendanceRepository) GetSessionRecord(ctx context.Context, sessionID, memberID string) (attendance.Record, error) {
	var r attendance.Record
	err := sqlx.GetContext(ctx, executor(ctx, repo.db), &r,
		`SELECT `+recordColumns+` FROM attendance_record WHERE session_id = $1 AND member_id = $2`, sessionID, memberID)
	return r, notFound(err, attendance.ErrRecordNotFound)
}

func (repo *attendanceRepository) QuerySessionRecords(ctx context.Context, tenantID, sessionID string) ([]attendance.Record, error) {
	records := make([]attendance.Record, 0)
	err := sqlx.SelectContext(ctx, executor(ctx, repo.db), &records, `
		SELECT `+recordColumns+` FROM attendance_record
		WHERE tenant_id = $1 AND session_id = $2
		ORDER BY created_at`, tenantID, sessionID)
	return records, errors.Wrap(err, "querying session records")
}

func (repo *attendanceRepository) UpdateRecordStatus(
	ctx context.Context,
	tenantID, id string,
	status attendance.Status,
	updatedAt time.Time,
) (attendance.Record, error) {
	res, err := executor(ctx, repo.db).ExecContext(ctx, `
		UPDATE attendance_record SET status = $1, updated_at = $2
		WHERE id = $3 AND tenant_id = $4`, status, updatedAt, id, tenantID)
	if err = affected(res, errors.Wrap(err, "updating attendance record"), attendance.ErrRecordNotFound); err != nil {
		return attendance.Record{}, err
	}
	return repo.GetRecord(ctx, tenantID, id)
}
