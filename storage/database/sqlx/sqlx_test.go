package sqlxrepos

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/vilmosmisota/sportapp/core"
	"github.com/vilmosmisota/sportapp/core/attendance"
	"github.com/vilmosmisota/sportapp/core/member"
	"github.com/vilmosmisota/sportapp/core/tenant"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	return sqlx.NewDb(mockDB, "postgres"), mock
}

func TestAttendanceRepository_CreateRecord(t *testing.T) {
	rec := attendance.Record{
		ID:          "r1",
		TenantID:    "t1",
		SessionID:   "s1",
		MemberID:    "m1",
		Status:      attendance.StatusPresent,
		CheckedInAt: null.TimeFrom(time.Date(2024, 5, 1, 18, 4, 0, 0, time.UTC)),
	}
	insert := regexp.QuoteMeta("INSERT INTO attendance_record")

	tests := []struct {
		name     string
		affected int64
		wantErr  error
	}{
		{name: "created", affected: 1},
		{name: "duplicate", affected: 0, wantErr: attendance.ErrDuplicateRecord},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			mock.ExpectExec(insert).WillReturnResult(sqlmock.NewResult(0, tt.affected))

			got, err := NewAttendanceRepository(db).CreateRecord(context.Background(), rec)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
			} else {
				require.NoError(t, err)
				assert.Equal(t, rec, got)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAttendanceRepository_CloseSession(t *testing.T) {
	update := regexp.QuoteMeta("UPDATE training_session SET is_active = false")
	get := regexp.QuoteMeta("FROM training_session WHERE id = $1 AND tenant_id = $2")
	cols := []string{"id", "tenant_id", "team_id", "season_id", "date", "start_time", "end_time", "is_active", "closed_at", "created_at"}
	closedAt := time.Date(2024, 5, 1, 19, 30, 0, 0, time.UTC)

	t.Run("closes an active session", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(update).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(get).WithArgs("s1", "t1").WillReturnRows(sqlmock.NewRows(cols).
			AddRow("s1", "t1", "team1", "season1", "2024-05-01", "18:00", "19:30", false, closedAt, closedAt))

		s, err := NewAttendanceRepository(db).CloseSession(context.Background(), "t1", "s1", closedAt)
		require.NoError(t, err)
		assert.False(t, s.IsActive)
		assert.Equal(t, closedAt, s.ClosedAt.Time)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already closed", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(update).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(get).WillReturnRows(sqlmock.NewRows(cols).
			AddRow("s1", "t1", "team1", "season1", "2024-05-01", "18:00", "19:30", false, closedAt, closedAt))

		_, err := NewAttendanceRepository(db).CloseSession(context.Background(), "t1", "s1", closedAt)
		assert.Equal(t, attendance.ErrSessionClosed, errors.Cause(err))
	})

	t.Run("missing", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(update).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(get).WillReturnRows(sqlmock.NewRows(cols))

		_, err := NewAttendanceRepository(db).CloseSession(context.Background(), "t1", "s1", closedAt)
		assert.Equal(t, attendance.ErrSessionNotFound, errors.Cause(err))
	})
}

func TestMemberRepository_CreateMember(t *testing.T) {
	m := member.Member{ID: "m1", TenantID: "t1", FirstName: "Anna", LastName: "Kovacs", PIN: null.StringFrom("1234")}

	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{name: "pin taken", err: &pq.Error{Code: uniqueViolation, Constraint: "member_tenant_pin_uniq"}, wantErr: member.ErrPINExists},
		{name: "other violation", err: &pq.Error{Code: foreignKeyViolation, Constraint: "member_tenant_id_fkey"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			mock.ExpectExec(regexp.QuoteMeta("INSERT INTO member")).WillReturnError(tt.err)

			_, err := NewMemberRepository(db).CreateMember(context.Background(), m)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
			} else {
				assert.Equal(t, tt.err, errors.Cause(err))
			}
		})
	}
}

func TestMemberRepository_GetMember(t *testing.T) {
	db, mock := newMockDB(t)
	cols := []string{"id", "tenant_id", "first_name", "last_name", "date_of_birth", "gender", "pin", "created_at", "updated_at", "team_ids"}
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM member m")).WithArgs("m1", "t1").WillReturnRows(sqlmock.NewRows(cols).
		AddRow("m1", "t1", "Bela", "Nagy", "2012-03-04", nil, "5678", now, now, "{team1,team2}"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM member m")).WillReturnRows(sqlmock.NewRows(cols))

	repo := NewMemberRepository(db)
	m, err := repo.GetMember(context.Background(), "t1", "m1")
	require.NoError(t, err)
	assert.Equal(t, []string{"team1", "team2"}, m.TeamIDs)
	assert.Equal(t, null.StringFrom("2012-03-04"), m.DateOfBirth)
	assert.False(t, m.Gender.Valid)

	_, err = repo.GetMember(context.Background(), "t1", "missing")
	assert.Equal(t, member.ErrNotFound, errors.Cause(err))
}

func TestTenantRepository_CreateTenant(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tenant")).
		WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: "tenant_slug_key"})

	_, err := NewTenantRepository(db).CreateTenant(context.Background(), tenant.Tenant{ID: "t1", Name: "Lions", Slug: "lions"})
	assert.Equal(t, tenant.ErrSlugExists, errors.Cause(err))
}

func TestTransactor_WithinTx(t *testing.T) {
	errBoom := errors.New("boom")

	t.Run("commits", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "user"`)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		repo := NewUserRepository(db)
		err := NewTransactor(db).WithinTx(context.Background(), func(ctx context.Context) error {
			return repo.DeleteUser(ctx, "u1")
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := NewTransactor(db).WithinTx(context.Background(), func(ctx context.Context) error {
			return errBoom
		})
		assert.Equal(t, errBoom, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("connection lost", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin().WillReturnError(sql.ErrConnDone)

		called := false
		err := NewTransactor(db).WithinTx(context.Background(), func(ctx context.Context) error {
			called = true
			return nil
		})
		assert.True(t, core.IsShutdown(err))
		assert.False(t, called)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin fails", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin().WillReturnError(errBoom)

		err := NewTransactor(db).WithinTx(context.Background(), func(ctx context.Context) error { return nil })
		assert.Equal(t, errBoom, errors.Cause(err))
		assert.False(t, core.IsShutdown(err))
	})

	t.Run("joins the outer transaction", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectCommit()

		tx := NewTransactor(db)
		err := tx.WithinTx(context.Background(), func(ctx context.Context) error {
			return tx.WithinTx(ctx, func(context.Context) error { return nil })
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
