package attendance_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vilmosmisota/sportapp/core"
	"github.com/vilmosmisota/sportapp/core/attendance"
	"github.com/vilmosmisota/sportapp/core/member"
	"github.com/vilmosmisota/sportapp/core/tenant"
	"github.com/vilmosmisota/sportapp/core/user"
	emailsvc "github.com/vilmosmisota/sportapp/services/email"
	"github.com/vilmosmisota/sportapp/tests"
)

type fixture struct {
	env     *testutil.Env
	tenant  tenant.Tenant
	team    member.Team
	other   member.Team
	season  attendance.Season
	session attendance.Session
	anna    member.Member // on team
	bela    member.Member // on team
	cili    member.Member // other team
}

func setup(t *testing.T) fixture {
	env := testutil.NewEnv(t)
	f := fixture{env: env}
	f.tenant = testutil.CreateTenant(t, env.TenantRepo, "Budapest SC", "budapest-sc", 5)
	f.team = testutil.CreateTeam(t, env.MemberRepo, f.tenant.ID, "U12")
	f.other = testutil.CreateTeam(t, env.MemberRepo, f.tenant.ID, "U14")
	f.season = testutil.CreateSeason(t, env.AttendanceRepo, f.tenant.ID, "2024-01-01", "2024-12-31")
	f.session = testutil.CreateSession(t, env.AttendanceRepo, f.tenant.ID, f.team.ID, f.season.ID, "2024-05-01", "18:00", "19:30")
	f.anna = testutil.CreateMember(t, env.MemberRepo, f.tenant.ID, "Anna", "Kovacs", "1234", f.team.ID)
	f.bela = testutil.CreateMember(t, env.MemberRepo, f.tenant.ID, "Bela", "Nagy", "5678", f.team.ID, f.other.ID)
	f.cili = testutil.CreateMember(t, env.MemberRepo, f.tenant.ID, "Cili", "Szabo", "9999", f.other.ID)
	return f
}

func at(clock string) time.Time {
	tm, err := time.Parse("2006-01-02 15:04:05", "2024-05-01 "+clock)
	if err != nil {
		panic(err)
	}
	return tm
}

func TestService_Lookup(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	svc := f.env.AttendanceSvc

	match, err := svc.Lookup(ctx, f.tenant.ID, f.session.ID, "1234")
	require.NoError(t, err)
	assert.Equal(t, f.anna.ID, match.Member.ID)
	assert.False(t, match.AlreadyCheckedIn)

	_, err = svc.Lookup(ctx, f.tenant.ID, f.session.ID, "0000")
	assert.True(t, attendance.IsRejected(err, attendance.ReasonNotFound))

	_, err = svc.Lookup(ctx, f.tenant.ID, f.session.ID, "12a4")
	assert.True(t, attendance.IsRejected(err, attendance.ReasonNotFound))

	_, err = svc.Lookup(ctx, f.tenant.ID, f.session.ID, "9999")
	assert.True(t, attendance.IsRejected(err, attendance.ReasonNotEligible))

	// another tenant's member is not found
	other := testutil.CreateTenant(t, f.env.TenantRepo, "Other", "other")
	testutil.CreateMember(t, f.env.MemberRepo, other.ID, "Zoe", "X", "4321")
	_, err = svc.Lookup(ctx, f.tenant.ID, f.session.ID, "4321")
	assert.True(t, attendance.IsRejected(err, attendance.ReasonNotFound))

	_, err = svc.CheckIn(ctx, f.tenant.ID, f.session.ID, "1234", at("18:01:00"))
	require.NoError(t, err)
	match, err = svc.Lookup(ctx, f.tenant.ID, f.session.ID, "1234")
	require.NoError(t, err)
	assert.True(t, match.AlreadyCheckedIn)
}

func TestService_CheckIn_status(t *testing.T) {
	tests := []struct {
		name  string
		clock string
		want  attendance.Status
	}{
		{name: "4 minutes after start", clock: "18:04:00", want: attendance.StatusPresent},
		{name: "5 minutes after start", clock: "18:05:00", want: attendance.StatusPresent},
		{name: "6 minutes after start", clock: "18:06:00", want: attendance.StatusLate},
		{name: "before start", clock: "17:45:10", want: attendance.StatusPresent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			res, err := f.env.AttendanceSvc.CheckIn(context.Background(), f.tenant.ID, f.session.ID, "1234", at(tt.clock))
			require.NoError(t, err)
			assert.Equal(t, attendance.OutcomeCheckedIn, res.Outcome)
			assert.Equal(t, tt.want, res.Record.Status)
			assert.Equal(t, f.anna.ID, res.Record.MemberID)
			assert.True(t, res.Record.CheckedInAt.Time.Equal(at(tt.clock)))
		})
	}
}

func TestService_CheckIn_tenantTimezone(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	tz := "Europe/Budapest"
	_, err := f.env.TenantSvc.UpdateSettings(ctx, f.tenant.ID, tenant.UpdateSettings{Timezone: &tz})
	require.NoError(t, err)

	// 16:04 UTC is 18:04 in Budapest (CEST)
	res, err := f.env.AttendanceSvc.CheckIn(ctx, f.tenant.ID, f.session.ID, "1234", at("16:04:00"))
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusPresent, res.Record.Status)

	res, err = f.env.AttendanceSvc.CheckIn(ctx, f.tenant.ID, f.session.ID, "5678", at("16:10:00"))
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusLate, res.Record.Status)
}

func TestService_CheckIn_rejections(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	svc := f.env.AttendanceSvc

	_, err := svc.CheckIn(ctx, f.tenant.ID, f.session.ID, "9999", at("18:00:00"))
	assert.True(t, attendance.IsRejected(err, attendance.ReasonNotEligible))

	_, err = svc.CheckIn(ctx, f.tenant.ID, f.session.ID, "0000", at("18:00:00"))
	assert.True(t, attendance.IsRejected(err, attendance.ReasonNotFound))

	_, err = svc.CheckIn(ctx, f.tenant.ID, "6f0c2a4e-9f4e-4d5e-a3b4-8c1d2e3f4a5b", "1234", at("18:00:00"))
	assert.Equal(t, attendance.ErrSessionNotFound, errors.Cause(err))

	records, err := svc.SessionRecords(ctx, f.tenant.ID, f.session.ID)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, f.env.Events.Types())
}

func TestService_CheckIn_resubmission(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	svc := f.env.AttendanceSvc

	first, err := svc.CheckIn(ctx, f.tenant.ID, f.session.ID, "1234", at("18:02:00"))
	require.NoError(t, err)
	assert.Equal(t, attendance.OutcomeCheckedIn, first.Outcome)

	second, err := svc.CheckIn(ctx, f.tenant.ID, f.session.ID, "1234", at("18:09:00"))
	require.NoError(t, err)
	assert.Equal(t, attendance.OutcomeAlreadyCheckedIn, second.Outcome)
	assert.Equal(t, first.Record, second.Record)

	records, err := svc.SessionRecords(ctx, f.tenant.ID, f.session.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, []string{attendance.EventCheckedIn}, f.env.Events.Types())
}

func TestService_CheckIn_concurrent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	svc := f.env.AttendanceSvc

	const n = 2
	var wg sync.WaitGroup
	results := make([]attendance.Result, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.CheckIn(ctx, f.tenant.ID, f.session.ID, "1234", at("18:03:00"))
		}(i)
	}
	wg.Wait()

	outcomes := make(map[attendance.Outcome]int)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		outcomes[results[i].Outcome]++
	}
	assert.Equal(t, 1, outcomes[attendance.OutcomeCheckedIn])
	assert.Equal(t, 1, outcomes[attendance.OutcomeAlreadyCheckedIn])
	assert.Equal(t, results[0].Record.ID, results[1].Record.ID)

	records, err := svc.SessionRecords(ctx, f.tenant.ID, f.session.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

// racingRepo makes every pre-check miss, as if a concurrent check-in committed right after it.
type racingRepo struct {
	attendance.Repository
	misses int
}

func (r *racingRepo) GetSessionRecord(ctx context.Context, sessionID, memberID string) (attendance.Record, error) {
	if r.misses > 0 {
		r.misses--
		return attendance.Record{}, attendance.ErrRecordNotFound
	}
	return r.Repository.GetSessionRecord(ctx, sessionID, memberID)
}

func TestService_CheckIn_duplicateGuard(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, err := f.env.AttendanceSvc.CheckIn(ctx, f.tenant.ID, f.session.ID, "1234", at("18:00:00"))
	require.NoError(t, err)

	svc := attendance.NewService(attendance.Deps{
		Repo:     &racingRepo{Repository: f.env.AttendanceRepo, misses: 1},
		Members:  f.env.MemberSvc,
		Settings: f.env.TenantSvc,
		Logger:   f.env.Logger,
	})
	res, err := svc.CheckIn(ctx, f.tenant.ID, f.session.ID, "1234", at("18:07:00"))
	require.NoError(t, err)
	assert.Equal(t, attendance.OutcomeAlreadyCheckedIn, res.Outcome)
	assert.Equal(t, first.Record.ID, res.Record.ID)
	assert.Equal(t, attendance.StatusPresent, res.Record.Status)
}

func TestService_CloseSession(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	svc := f.env.AttendanceSvc
	testutil.CreateUser(t, f.env.UserRepo, f.tenant.ID, "Coach", "coach@test.hu", "", user.RoleCoach, true)
	testutil.CreateUser(t, f.env.UserRepo, f.tenant.ID, "Parent", "parent@test.hu", "", user.RoleMember, true)

	_, err := svc.CheckIn(ctx, f.tenant.ID, f.session.ID, "1234", at("18:10:00"))
	require.NoError(t, err)

	summary, err := svc.CloseSession(ctx, f.tenant.ID, f.session.ID, at("19:30:00"))
	require.NoError(t, err)
	assert.False(t, summary.Session.IsActive)
	assert.True(t, summary.Session.ClosedAt.Valid)
	assert.Equal(t, 0, summary.Present)
	assert.Equal(t, 1, summary.Late)
	assert.Equal(t, 1, summary.MarkedAbsent)

	rep, err := svc.Report(ctx, f.tenant.ID, f.session.ID)
	require.NoError(t, err)
	require.Len(t, rep.Rows, 2)
	for _, row := range rep.Rows {
		require.NotNil(t, row.Record)
		if row.Member.ID == f.bela.ID {
			assert.Equal(t, attendance.StatusAbsent, row.Record.Status)
			assert.False(t, row.Record.CheckedInAt.Valid)
		}
	}

	// closed sessions reject check-ins and cannot be closed twice
	_, err = svc.CheckIn(ctx, f.tenant.ID, f.session.ID, "5678", at("19:31:00"))
	assert.Equal(t, attendance.ErrSessionClosed, errors.Cause(err))
	_, err = svc.CloseSession(ctx, f.tenant.ID, f.session.ID, at("19:32:00"))
	assert.Equal(t, attendance.ErrSessionClosed, errors.Cause(err))

	assert.Equal(t, []string{attendance.EventCheckedIn, attendance.EventSessionClosed}, f.env.Events.Types())

	require.Len(t, emailsvc.SentMessages, 1)
	msg := emailsvc.SentMessages[0]
	require.Len(t, msg.To, 1)
	assert.Equal(t, "coach@test.hu", msg.To[0].Address)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "attendance-u12-2024-05-01-1800.xlsx", msg.Attachments[0].Filename)
	assert.Contains(t, msg.TextContent, "Absent: 1")
}

func TestService_CloseOverdueSessions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	svc := f.env.AttendanceSvc
	later := testutil.CreateSession(t, f.env.AttendanceRepo, f.tenant.ID, f.team.ID, f.season.ID, "2024-05-01", "20:00", "21:00")

	n, err := svc.CloseOverdueSessions(ctx, at("19:29:00"))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = svc.CloseOverdueSessions(ctx, at("19:30:00"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	active := true
	sessions, err := svc.ListSessions(ctx, f.tenant.ID, attendance.SessionFilter{IsActive: &active})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, later.ID, sessions[0].ID)
}

// flakyMembers fails ListTeamMembers the given number of times.
type flakyMembers struct {
	attendance.MemberDirectory
	failures int
}

var errDBUnavailable = errors.New("db unavailable")

func (m *flakyMembers) ListTeamMembers(ctx context.Context, tenantID, teamID string) ([]member.Member, error) {
	if m.failures > 0 {
		m.failures--
		return nil, errDBUnavailable
	}
	return m.MemberDirectory.ListTeamMembers(ctx, tenantID, teamID)
}

func flakyService(f fixture, failures int) *attendance.Service {
	return attendance.NewService(attendance.Deps{
		Tx:       f.env.Tx,
		Repo:     f.env.AttendanceRepo,
		Members:  &flakyMembers{MemberDirectory: f.env.MemberSvc, failures: failures},
		Settings: f.env.TenantSvc,
		Events:   f.env.Events,
		Logger:   f.env.Logger,
	})
}

func TestService_CloseSession_failure(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	svc := flakyService(f, 1)

	_, err := svc.CheckIn(ctx, f.tenant.ID, f.session.ID, "1234", at("18:00:00"))
	require.NoError(t, err)

	_, err = svc.CloseSession(ctx, f.tenant.ID, f.session.ID, at("19:30:00"))
	assert.Equal(t, errDBUnavailable, errors.Cause(err))

	sess, err := svc.GetSession(ctx, f.tenant.ID, f.session.ID)
	require.NoError(t, err)
	assert.True(t, sess.IsActive)
	assert.False(t, sess.ClosedAt.Valid)
	records, err := svc.SessionRecords(ctx, f.tenant.ID, f.session.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, []string{attendance.EventCheckedIn}, f.env.Events.Types())

	summary, err := svc.CloseSession(ctx, f.tenant.ID, f.session.ID, at("19:31:00"))
	require.NoError(t, err)
	assert.False(t, summary.Session.IsActive)
	assert.Equal(t, 1, summary.Present)
	assert.Equal(t, 1, summary.MarkedAbsent)

	records, err = svc.SessionRecords(ctx, f.tenant.ID, f.session.ID)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, []string{attendance.EventCheckedIn, attendance.EventSessionClosed}, f.env.Events.Types())
}

func TestService_CloseOverdueSessions_retry(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	svc := flakyService(f, 1)

	n, err := svc.CloseOverdueSessions(ctx, at("19:30:00"))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = svc.CloseOverdueSessions(ctx, at("19:35:00"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rep, err := svc.Report(ctx, f.tenant.ID, f.session.ID)
	require.NoError(t, err)
	require.Len(t, rep.Rows, 2)
	for _, row := range rep.Rows {
		require.NotNil(t, row.Record, row.Member.FirstName)
		assert.Equal(t, attendance.StatusAbsent, row.Record.Status)
	}
}

func TestService_OpenSession(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	svc := f.env.AttendanceSvc
	season := testutil.CreateSeason(t, f.env.AttendanceRepo, f.tenant.ID, "2025-01-01", "2025-06-30",
		core.DateRange{From: "2025-04-01", To: "2025-04-10"})

	tests := []struct {
		name      string
		data      attendance.NewSession
		wantField string
	}{
		{
			name: "valid",
			data: attendance.NewSession{TeamID: f.team.ID, SeasonID: season.ID, Date: "2025-03-03", StartTime: "17:00", EndTime: "18:00"},
		},
		{
			name:      "unknown team",
			data:      attendance.NewSession{TeamID: "6f0c2a4e-9f4e-4d5e-a3b4-8c1d2e3f4a5b", SeasonID: season.ID, Date: "2025-03-03", StartTime: "17:00", EndTime: "18:00"},
			wantField: "team_id",
		},
		{
			name:      "outside season",
			data:      attendance.NewSession{TeamID: f.team.ID, SeasonID: season.ID, Date: "2025-07-01", StartTime: "17:00", EndTime: "18:00"},
			wantField: "date",
		},
		{
			name:      "during break",
			data:      attendance.NewSession{TeamID: f.team.ID, SeasonID: season.ID, Date: "2025-04-05", StartTime: "17:00", EndTime: "18:00"},
			wantField: "date",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, err := svc.OpenSession(ctx, f.tenant.ID, tt.data)
			if tt.wantField == "" {
				require.NoError(t, err)
				assert.True(t, sess.IsActive)
				assert.Equal(t, tt.data.Date, sess.Date)
				return
			}
			vErr, ok := errors.Cause(err).(*core.ValidationError)
			require.True(t, ok, "err = %v", err)
			require.NotEmpty(t, vErr.Fields)
			assert.Equal(t, tt.wantField, vErr.Fields[0].Field)
		})
	}
}

func TestService_UpdateRecordStatus(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	svc := f.env.AttendanceSvc

	res, err := svc.CheckIn(ctx, f.tenant.ID, f.session.ID, "1234", at("18:20:00"))
	require.NoError(t, err)
	require.Equal(t, attendance.StatusLate, res.Record.Status)

	rec, err := svc.UpdateRecordStatus(ctx, f.tenant.ID, res.Record.ID, attendance.StatusPresent)
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusPresent, rec.Status)

	_, err = svc.UpdateRecordStatus(ctx, f.tenant.ID, res.Record.ID, "EXCUSED")
	assert.IsType(t, &core.ValidationError{}, errors.Cause(err))

	other := testutil.CreateTenant(t, f.env.TenantRepo, "Other", "other")
	_, err = svc.UpdateRecordStatus(ctx, other.ID, res.Record.ID, attendance.StatusAbsent)
	assert.Equal(t, attendance.ErrRecordNotFound, errors.Cause(err))
}
