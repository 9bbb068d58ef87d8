package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/vilmosmisota/sportapp/core/attendance"
)

type attendanceRepository struct {
	db *DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

func (repo *attendanceRepository) CreateSeason(_ context.Context, s attendance.Season) (attendance.Season, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.season[s.ID] = s
	return s, nil
}

func (repo *attendanceRepository) GetSeason(_ context.Context, tenantID, id string) (attendance.Season, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.season[id]; ok && s.TenantID == tenantID {
		return s, nil
	}
	return attendance.Season{}, attendance.ErrSeasonNotFound
}

func (repo *attendanceRepository) QuerySeasons(_ context.Context, tenantID string) ([]attendance.Season, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	seasons := make([]attendance.Season, 0)
	for _, s := range repo.db.season {
		if s.TenantID == tenantID {
			seasons = append(seasons, s)
		}
	}
	sort.Slice(seasons, func(i, j int) bool { return seasons[i].StartsOn > seasons[j].StartsOn })
	return seasons, nil
}

func (repo *attendanceRepository) CreateSession(_ context.Context, s attendance.Session) (attendance.Session, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.session[s.ID] = s
	return s, nil
}

func (repo *attendanceRepository) GetSession(_ context.Context, tenantID, id string) (attendance.Session, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.session[id]; ok && s.TenantID == tenantID {
		return s, nil
	}
	return attendance.Session{}, attendance.ErrSessionNotFound
}

func (repo *attendanceRepository) QuerySessions(_ context.Context, tenantID string, filter attendance.SessionFilter) ([]attendance.Session, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	sessions := make([]attendance.Session, 0)
	for _, s := range repo.db.session {
		if s.TenantID != tenantID {
			continue
		}
		if filter.IsActive != nil && s.IsActive != *filter.IsActive {
			continue
		}
		if filter.TeamID != "" && s.TeamID != filter.TeamID {
			continue
		}
		if filter.Date != "" && s.Date != filter.Date {
			continue
		}
		sessions = append(sessions, s)
	}
	sortSessions(sessions)
	return sessions, nil
}

func (repo *attendanceRepository) QueryActiveSessions(_ context.Context) ([]attendance.Session, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	sessions := make([]attendance.Session, 0)
	for _, s := range repo.db.session {
		if s.IsActive {
			sessions = append(sessions, s)
		}
	}
	sortSessions(sessions)
	return sessions, nil
}

func (repo *attendanceRepository) CloseSession(_ context.Context, tenantID, id string, closedAt time.Time) (attendance.Session, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	s, ok := repo.db.session[id]
	if !ok || s.TenantID != tenantID {
		return attendance.Session{}, attendance.ErrSessionNotFound
	}
	if !s.IsActive {
		return attendance.Session{}, attendance.ErrSessionClosed
	}
	s.IsActive = false
	s.ClosedAt = null.TimeFrom(closedAt)
	repo.db.session[id] = s
	return s, nil
}

func (repo *attendanceRepository) CreateRecord(_ context.Context, r attendance.Record) (attendance.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	// attendance_record_session_member_uniq
	for _, other := range repo.db.attendance {
		if other.SessionID == r.SessionID && other.MemberID == r.MemberID {
			return attendance.Record{}, attendance.ErrDuplicateRecord
		}
	}
	repo.db.attendance[r.ID] = r
	return r, nil
}

func (repo *attendanceRepository) GetRecord(_ context.Context, tenantID, id string) (attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if r, ok := repo.db.attendance[id]; ok && r.TenantID == tenantID {
		return r, nil
	}
	return attendance.Record{}, attendance.ErrRecordNotFound
}

func (repo *attendanceRepository) GetSessionRecord(_ context.Context, sessionID, memberID string) (attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, r := range repo.db.attendance {
		if r.SessionID == sessionID && r.MemberID == memberID {
			return r, nil
		}
	}
	return attendance.Record{}, attendance.ErrRecordNotFound
}

func (repo *attendanceRepository) QuerySessionRecords(_ context.Context, tenantID, sessionID string) ([]attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	records := make([]attendance.Record, 0)
	for _, r := range repo.db.attendance {
		if r.TenantID == tenantID && r.SessionID == sessionID {
			records = append(records, r)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].CreatedAt.Before(records[j].CreatedAt) })
	return records, nil
}

func (repo *attendanceRepository) UpdateRecordStatus(
	_ context.Context,
	tenantID, id string,
	status attendance.Status,
	updatedAt time.Time,
) (attendance.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	r, ok := repo.db.attendance[id]
	if !ok || r.TenantID != tenantID {
		return attendance.Record{}, attendance.ErrRecordNotFound
	}
	r.Status = status
	r.UpdatedAt = updatedAt
	repo.db.attendance[id] = r
	return r, nil
}

func sortSessions(sessions []attendance.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].Date != sessions[j].Date {
			return sessions[i].Date > sessions[j].Date
		}
		return sessions[i].StartTime > sessions[j].StartTime
	})
}
