package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sendgrid/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/vilmosmisota/sportapp/apps/api/echo"
	"github.com/vilmosmisota/sportapp/core/attendance"
	"github.com/vilmosmisota/sportapp/core/member"
	"github.com/vilmosmisota/sportapp/core/user"
	"github.com/vilmosmisota/sportapp/tests"
)

const testPwd = "Kp9#rWq2!xZ"

type fixture struct {
	url       string
	sessionID string
	ann       member.Member
}

// startAPI serves the API over the in-memory database with a falcons tenant, a coach and a session of today.
func startAPI(t *testing.T) fixture {
	env := testutil.NewEnv(t)
	app := echoapi.NewServer(echoapi.ServerDeps{
		Conf:           env.Conf,
		Logger:         env.Logger,
		Validate:       env.Validate,
		Translator:     env.Translator,
		TenantSvc:      env.TenantSvc,
		UserSvc:        env.UserSvc,
		MemberSvc:      env.MemberSvc,
		AttendanceSvc:  env.AttendanceSvc,
		DisableReqLogs: true,
	})
	srv := httptest.NewServer(app)
	t.Cleanup(func() {
		srv.Close()
		_ = app.Close()
	})

	club := testutil.CreateTenant(t, env.TenantRepo, "Falcons", "falcons")
	testutil.CreateUser(t, env.UserRepo, club.ID, "Coach", "coach@test.cd", testPwd, user.RoleCoach, true)
	u12 := testutil.CreateTeam(t, env.MemberRepo, club.ID, "U12")
	u14 := testutil.CreateTeam(t, env.MemberRepo, club.ID, "U14")
	season := testutil.CreateSeason(t, env.AttendanceRepo, club.ID, "2024-09-01", "2025-06-30")
	today := time.Now().UTC().Format("2006-01-02")
	sess := testutil.CreateSession(t, env.AttendanceRepo, club.ID, u12.ID, season.ID, today, "23:59", "23:59")
	ann := testutil.CreateMember(t, env.MemberRepo, club.ID, "Ann", "Lee", "1111", u12.ID)
	testutil.CreateMember(t, env.MemberRepo, club.ID, "Carl", "Fox", "3333", u14.ID)

	return fixture{url: srv.URL, sessionID: sess.ID, ann: ann}
}

func Test_apiClient(t *testing.T) {
	fx := startAPI(t)
	ctx := context.Background()
	client := newAPIClient(fx.url+"/", nil)

	// not logged in
	_, err := client.Lookup(ctx, fx.sessionID, "1111")
	if assert.IsType(t, &apiError{}, err) {
		assert.Equal(t, http.StatusUnauthorized, err.(*apiError).Code)
	}

	err = client.Login(ctx, "falcons", "coach@test.cd", "wrong")
	assert.IsType(t, &apiError{}, err)
	assert.Empty(t, client.token)

	require.NoError(t, client.Login(ctx, "falcons", "coach@test.cd", testPwd))
	assert.NotEmpty(t, client.token)

	match, err := client.Lookup(ctx, fx.sessionID, "1111")
	require.NoError(t, err)
	assert.Equal(t, fx.ann.ID, match.Member.ID)
	assert.False(t, match.AlreadyCheckedIn)

	_, err = client.Lookup(ctx, fx.sessionID, "0000")
	assert.True(t, attendance.IsRejected(err, attendance.ReasonNotFound))

	_, err = client.Lookup(ctx, fx.sessionID, "3333")
	assert.True(t, attendance.IsRejected(err, attendance.ReasonNotEligible))

	res, err := client.CheckIn(ctx, fx.sessionID, "1111")
	require.NoError(t, err)
	assert.Equal(t, attendance.OutcomeCheckedIn, res.Outcome)
	assert.Equal(t, attendance.StatusPresent, res.Record.Status)

	res, err = client.CheckIn(ctx, fx.sessionID, "1111")
	require.NoError(t, err)
	assert.Equal(t, attendance.OutcomeAlreadyCheckedIn, res.Outcome)

	match, err = client.Lookup(ctx, fx.sessionID, "1111")
	require.NoError(t, err)
	assert.True(t, match.AlreadyCheckedIn)
}

func Test_decodeError(t *testing.T) {
	tests := []struct {
		name string
		res  rest.Response
		want error
	}{
		{
			name: "rejection",
			res:  rest.Response{StatusCode: 404, Body: `{"error":"no member found with this PIN","reason":"not_found"}`},
			want: &attendance.Rejection{Reason: attendance.ReasonNotFound},
		},
		{
			name: "message",
			res:  rest.Response{StatusCode: 409, Body: `{"error":"session is closed"}`},
			want: &apiError{Code: 409, Message: "session is closed"},
		},
		{
			name: "validation",
			res:  rest.Response{StatusCode: 400, Body: `{"error":{"pin":"PIN must be exactly 4 digits"}}`},
			want: &apiError{Code: 400, Message: "pin: PIN must be exactly 4 digits"},
		},
		{
			name: "too many attempts",
			res: rest.Response{
				StatusCode: 429,
				Body:       `{"error":"too many attempts, try again later"}`,
				Headers:    map[string][]string{"Retry-After": {"42"}},
			},
			want: &apiError{Code: 429, Message: "too many attempts, try again later", RetryAfter: 42 * time.Second},
		},
		{
			name: "no body",
			res:  rest.Response{StatusCode: 502},
			want: &apiError{Code: 502, Message: "Bad Gateway"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tt.res
			assert.Equal(t, tt.want, decodeError(&res))
		})
	}
}
