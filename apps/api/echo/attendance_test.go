package echoapi_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vilmosmisota/sportapp/core"
	"github.com/vilmosmisota/sportapp/core/attendance"
	"github.com/vilmosmisota/sportapp/core/member"
	"github.com/vilmosmisota/sportapp/core/tenant"
	"github.com/vilmosmisota/sportapp/core/user"
	reportsvc "github.com/vilmosmisota/sportapp/services/report"
	"github.com/vilmosmisota/sportapp/tests"
)

func Test_tenantApi_settings(t *testing.T) {
	app, env := setup(t)

	club := testutil.CreateTenant(t, env.TenantRepo, "Falcons", "falcons", 10)
	admin := testutil.CreateUser(t, env.UserRepo, club.ID, "Admin", "admin@test.cd", testPwd, user.RoleAdmin, true)
	coach := testutil.CreateUser(t, env.UserRepo, club.ID, "Coach", "coach@test.cd", testPwd, user.RoleCoach, true)

	iPtr := func(i int) *int { return &i }
	sPtr := func(s string) *string { return &s }
	adminToken := getToken(t, env, club.ID, admin)

	tests := []httpTest{
		{name: "coach reads", path: "/api/tenant/settings", token: getToken(t, env, club.ID, coach), wantCode: http.StatusOK},
		{
			name: "coach cannot update", method: http.MethodPut, path: "/api/tenant/settings", token: getToken(t, env, club.ID, coach),
			body: marchallObj(t, tenant.UpdateSettings{LateThresholdMinutes: iPtr(1)}), wantCode: http.StatusForbidden,
		},
		{
			name: "negative threshold", method: http.MethodPut, path: "/api/tenant/settings", token: adminToken,
			body: marchallObj(t, tenant.UpdateSettings{LateThresholdMinutes: iPtr(-1)}), wantCode: http.StatusBadRequest,
		},
		{
			name: "unknown timezone", method: http.MethodPut, path: "/api/tenant/settings", token: adminToken,
			body: marchallObj(t, tenant.UpdateSettings{Timezone: sPtr("Mars/Olympus")}), wantCode: http.StatusBadRequest,
		},
	}
	runTests(t, app, tests)

	body := marchallObj(t, tenant.UpdateSettings{LateThresholdMinutes: iPtr(15), Timezone: sPtr("Europe/Budapest")})
	req, rec := newAuthRequest(http.MethodPut, "/api/tenant/settings", adminToken, body)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var s tenant.Settings
	unmarshal(t, rec, &s)
	assert.Equal(t, 15, s.LateThresholdMinutes)
	assert.Equal(t, "Europe/Budapest", s.Timezone)
}

func Test_attendanceApi_teamsAndSeasons(t *testing.T) {
	app, env := setup(t)

	club := testutil.CreateTenant(t, env.TenantRepo, "Falcons", "falcons")
	admin := testutil.CreateUser(t, env.UserRepo, club.ID, "Admin", "admin@test.cd", testPwd, user.RoleAdmin, true)
	coach := testutil.CreateUser(t, env.UserRepo, club.ID, "Coach", "coach@test.cd", testPwd, user.RoleCoach, true)
	u12 := testutil.CreateTeam(t, env.MemberRepo, club.ID, "U12")

	adminToken := getToken(t, env, club.ID, admin)
	coachToken := getToken(t, env, club.ID, coach)

	tests := []httpTest{
		{name: "list teams", path: "/api/teams", token: coachToken, wantCode: http.StatusOK, wantData: marchallList(t, u12)},
		{
			name: "coach cannot create team", method: http.MethodPost, path: "/api/teams", token: coachToken,
			body: marchallObj(t, member.NewTeam{Name: "U14"}), wantCode: http.StatusForbidden,
		},
		{
			name: "duplicate team", method: http.MethodPost, path: "/api/teams", token: adminToken,
			body: marchallObj(t, member.NewTeam{Name: "U12"}), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"name": member.ErrTeamExists.Error()}),
		},
		{name: "create team", method: http.MethodPost, path: "/api/teams", token: adminToken, body: marchallObj(t, member.NewTeam{Name: "U14"}), wantCode: http.StatusCreated},
		{
			name: "season ends before it starts", method: http.MethodPost, path: "/api/seasons", token: adminToken, wantCode: http.StatusBadRequest,
			body:     marchallObj(t, attendance.NewSeason{Name: "2024", StartsOn: "2024-09-01", EndsOn: "2024-01-01"}),
			wantData: marchallObj(t, map[string]string{"ends_on": "season cannot end before it starts"}),
		},
		{
			name: "break outside the season", method: http.MethodPost, path: "/api/seasons", token: adminToken, wantCode: http.StatusBadRequest,
			body: marchallObj(t, attendance.NewSeason{
				Name: "2024", StartsOn: "2024-09-01", EndsOn: "2025-06-30",
				Breaks: []core.DateRange{{From: "2025-07-01", To: "2025-07-10"}},
			}),
		},
		{
			name: "create season", method: http.MethodPost, path: "/api/seasons", token: adminToken, wantCode: http.StatusCreated,
			body: marchallObj(t, attendance.NewSeason{
				Name: "2024/25", StartsOn: "2024-09-01", EndsOn: "2025-06-30",
				Breaks: []core.DateRange{{From: "2024-12-21", To: "2025-01-05"}},
			}),
		},
	}
	runTests(t, app, tests)

	req, rec := newAuthRequest(http.MethodGet, "/api/seasons", coachToken)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var seasons []attendance.Season
	unmarshal(t, rec, &seasons)
	require.Len(t, seasons, 1)
	assert.Equal(t, "2024/25", seasons[0].Name)
	assert.Equal(t, []core.DateRange{{From: "2024-12-21", To: "2025-01-05"}}, seasons[0].Breaks)
}

func Test_attendanceApi_sessions(t *testing.T) {
	app, env := setup(t)

	club := testutil.CreateTenant(t, env.TenantRepo, "Falcons", "falcons")
	other := testutil.CreateTenant(t, env.TenantRepo, "Eagles", "eagles")
	coach := testutil.CreateUser(t, env.UserRepo, club.ID, "Coach", "coach@test.cd", testPwd, user.RoleCoach, true)
	player := testutil.CreateUser(t, env.UserRepo, club.ID, "Player", "player@test.cd", testPwd, user.RoleMember, true)
	stranger := testutil.CreateUser(t, env.UserRepo, other.ID, "Stranger", "stranger@test.cd", testPwd, user.RoleAdmin, true)
	u12 := testutil.CreateTeam(t, env.MemberRepo, club.ID, "U12")
	season := testutil.CreateSeason(t, env.AttendanceRepo, club.ID, "2024-09-01", "2025-06-30",
		core.DateRange{From: "2024-12-21", To: "2025-01-05"})
	ann := testutil.CreateMember(t, env.MemberRepo, club.ID, "Ann", "Lee", "1111", u12.ID)
	bob := testutil.CreateMember(t, env.MemberRepo, club.ID, "Bob", "Ray", "2222", u12.ID)

	coachToken := getToken(t, env, club.ID, coach)
	newSession := func(date, start, end string) []byte {
		return marchallObj(t, attendance.NewSession{TeamID: u12.ID, SeasonID: season.ID, Date: date, StartTime: start, EndTime: end})
	}

	tests := []httpTest{
		{name: "members cannot open", method: http.MethodPost, path: "/api/sessions", token: getToken(t, env, club.ID, player), body: newSession("2024-10-01", "18:00", "19:30"), wantCode: http.StatusForbidden},
		{name: "bad clock", method: http.MethodPost, path: "/api/sessions", token: coachToken, body: newSession("2024-10-01", "6pm", "19:30"), wantCode: http.StatusBadRequest},
		{
			name: "ends before it starts", method: http.MethodPost, path: "/api/sessions", token: coachToken, wantCode: http.StatusBadRequest,
			body: newSession("2024-10-01", "18:00", "17:00"), wantData: marchallObj(t, map[string]string{"end_time": "session must end after it starts"}),
		},
		{
			name: "inside a break", method: http.MethodPost, path: "/api/sessions", token: coachToken, wantCode: http.StatusBadRequest,
			body:     newSession("2024-12-24", "18:00", "19:30"),
			wantData: marchallObj(t, map[string]string{"date": "date is outside the season or inside one of its breaks"}),
		},
		{name: "unknown session", path: "/api/sessions/0e4a1d55-8a4e-4a39-8d5b-8a4f6b5a2f11", token: coachToken, wantCode: http.StatusNotFound},
	}
	runTests(t, app, tests)

	// open
	req, rec := newAuthRequest(http.MethodPost, "/api/sessions", coachToken, newSession("2024-10-01", "18:00", "19:30"))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sess attendance.Session
	unmarshal(t, rec, &sess)
	assert.True(t, sess.IsActive)
	assert.Equal(t, "2024-10-01", sess.Date)

	ctx := context.Background()
	at := time.Date(2024, 10, 1, 18, 3, 0, 0, time.UTC)
	_, err := env.AttendanceSvc.CheckIn(ctx, club.ID, sess.ID, ann.PIN.String, at)
	require.NoError(t, err)

	tests = []httpTest{
		{name: "other tenants cannot see it", path: "/api/sessions/" + sess.ID, token: getToken(t, env, other.ID, stranger), wantCode: http.StatusNotFound},
		{name: "active sessions", path: "/api/sessions?active=true", token: coachToken, wantCode: http.StatusOK, wantData: marchallList(t, sess)},
		{name: "by team", path: "/api/sessions?team_id=" + u12.ID, token: coachToken, wantCode: http.StatusOK, wantData: marchallList(t, sess)},
		{name: "by other date", path: "/api/sessions?date=2024-10-02", token: coachToken, wantCode: http.StatusOK, wantData: marchallList(t)},
	}
	runTests(t, app, tests)

	t.Run("attendance", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/sessions/"+sess.ID+"/attendance", coachToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var rep attendance.Report
		unmarshal(t, rec, &rep)
		assert.Equal(t, "U12", rep.Team.Name)
		require.Len(t, rep.Rows, 2)
		statuses := make(map[string]attendance.Status)
		for _, row := range rep.Rows {
			if row.Record != nil {
				statuses[row.Member.ID] = row.Record.Status
			}
		}
		assert.Equal(t, map[string]attendance.Status{ann.ID: attendance.StatusPresent}, statuses)
	})

	t.Run("export", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/sessions/"+sess.ID+"/export", coachToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, reportsvc.NewXLSXWriter().ContentType(), rec.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="attendance-u12-2024-10-01-1800.xlsx"`, rec.Header().Get("Content-Disposition"))
		assert.NotZero(t, rec.Body.Len())
	})

	t.Run("close", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/sessions/"+sess.ID+"/close", coachToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var summary attendance.CloseSummary
		unmarshal(t, rec, &summary)
		assert.Equal(t, 1, summary.Present)
		assert.Equal(t, 1, summary.MarkedAbsent)
		assert.False(t, summary.Session.IsActive)

		// twice
		req, rec = newAuthRequest(http.MethodPost, "/api/sessions/"+sess.ID+"/close", coachToken)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("update record", func(t *testing.T) {
		rec, err := env.AttendanceRepo.GetSessionRecord(ctx, sess.ID, bob.ID)
		require.NoError(t, err)
		require.Equal(t, attendance.StatusAbsent, rec.Status)

		tests := []httpTest{
			{
				name: "invalid status", method: http.MethodPatch, path: "/api/attendance/" + rec.ID, token: coachToken,
				body: marchallObj(t, attendance.UpdateRecord{Status: "EXCUSED"}), wantCode: http.StatusBadRequest,
			},
			{
				name: "unknown record", method: http.MethodPatch, path: "/api/attendance/0e4a1d55-8a4e-4a39-8d5b-8a4f6b5a2f11", token: coachToken,
				body: marchallObj(t, attendance.UpdateRecord{Status: attendance.StatusLate}), wantCode: http.StatusNotFound,
			},
			{
				name: "other tenant", method: http.MethodPatch, path: "/api/attendance/" + rec.ID, token: getToken(t, env, other.ID, stranger),
				body: marchallObj(t, attendance.UpdateRecord{Status: attendance.StatusLate}), wantCode: http.StatusNotFound,
			},
			{
				name: "late", method: http.MethodPatch, path: "/api/attendance/" + rec.ID, token: coachToken,
				body: marchallObj(t, attendance.UpdateRecord{Status: attendance.StatusLate}), wantCode: http.StatusOK,
			},
		}
		runTests(t, app, tests)

		updated, err := env.AttendanceRepo.GetSessionRecord(ctx, sess.ID, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, attendance.StatusLate, updated.Status)
	})
}
