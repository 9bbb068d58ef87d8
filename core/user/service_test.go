package user_test

import (
	"context"
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vilmosmisota/sportapp/core"
	"github.com/vilmosmisota/sportapp/core/member"
	"github.com/vilmosmisota/sportapp/core/user"
	"github.com/vilmosmisota/sportapp/tests"
)

const testPwd = "Kp9#rWq2!xZ"

func boolPtr(b bool) *bool { return &b }

func TestNewUser_Validate_passwordPolicy(t *testing.T) {
	env := testutil.NewEnv(t) // loads the common passwords

	tests := []struct {
		name    string
		pwd     string
		wantTag string
	}{
		{name: "too short", pwd: "Ab1#", wantTag: "pwdminlen"},
		{name: "whitespace", pwd: "Ab1# cdefg", wantTag: "pwdnospace"},
		{name: "all numeric", pwd: "1234567890", wantTag: "pwdnotallnum"},
		{name: "no special", pwd: "Abcdefg12", wantTag: "pwdcplx"},
		{name: "no upper", pwd: "abcdefg1#", wantTag: "pwdcplx"},
		{name: "similar to name", pwd: "Annabel1#", wantTag: "pwdtoosim"},
		{name: "similar to email", pwd: "Lee.anna1!", wantTag: "pwdtoosim"},
		{name: "common", pwd: "P@ssw0rd", wantTag: "pwdnocommon"},
		{name: "strong", pwd: testPwd},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nu := user.NewUser{
				Name:            "Annabel",
				Email:           "anna.lee@test.cd",
				Password:        tt.pwd,
				PasswordConfirm: tt.pwd,
				Role:            user.RoleCoach,
			}
			err := nu.Validate(env.Validate)
			if tt.wantTag == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), "'"+tt.wantTag+"' tag")
			}
		})
	}
}

func TestNewUser_Validate(t *testing.T) {
	validate, _ := testutil.NewValidator()

	tests := []struct {
		name    string
		nu      user.NewUser
		wantErr bool
	}{
		{name: "empty", nu: user.NewUser{}, wantErr: true},
		{
			name:    "bad email",
			nu:      user.NewUser{Name: "Ann", Email: "ann", Password: testPwd, PasswordConfirm: testPwd, Role: user.RoleCoach},
			wantErr: true,
		},
		{
			name:    "passwords mismatch",
			nu:      user.NewUser{Name: "Ann", Email: "ann@test.cd", Password: testPwd, PasswordConfirm: testPwd + "!", Role: user.RoleCoach},
			wantErr: true,
		},
		{
			name:    "unknown role",
			nu:      user.NewUser{Name: "Ann", Email: "ann@test.cd", Password: testPwd, PasswordConfirm: testPwd, Role: "king"},
			wantErr: true,
		},
		{
			name: "valid",
			nu:   user.NewUser{Name: " Ann ", Email: " ANN@test.cd", Password: testPwd, PasswordConfirm: testPwd, Role: user.RoleMember},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.nu.Validate(validate)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "Ann", tt.nu.Name)
			assert.Equal(t, "ann@test.cd", tt.nu.Email)
		})
	}
}

func TestService_Authenticate(t *testing.T) {
	env := testutil.NewEnv(t)
	club := testutil.CreateTenant(t, env.TenantRepo, "Falcons", "falcons")
	other := testutil.CreateTenant(t, env.TenantRepo, "Eagles", "eagles")
	coach := testutil.CreateUser(t, env.UserRepo, club.ID, "Coach", "coach@test.cd", testPwd, user.RoleCoach, true)
	testutil.CreateUser(t, env.UserRepo, club.ID, "Gone", "gone@test.cd", testPwd, user.RoleCoach, false)

	tests := []struct {
		name     string
		tenantID string
		email    string
		pwd      string
		wantErr  error
	}{
		{name: "unknown email", tenantID: club.ID, email: "lol@test.cd", pwd: testPwd, wantErr: user.ErrInvalidCredentials},
		{name: "wrong password", tenantID: club.ID, email: "coach@test.cd", pwd: "nope", wantErr: user.ErrInvalidCredentials},
		{name: "other tenant", tenantID: other.ID, email: "coach@test.cd", pwd: testPwd, wantErr: user.ErrInvalidCredentials},
		{name: "deactivated", tenantID: club.ID, email: "gone@test.cd", pwd: testPwd, wantErr: user.ErrAccountDeactivated},
		{name: "ok", tenantID: club.ID, email: " Coach@Test.cd ", pwd: testPwd},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tu, err := env.UserSvc.Authenticate(context.Background(), tt.tenantID, tt.email, tt.pwd)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, coach.ID, tu.ID)
			assert.Equal(t, user.RoleCoach, tu.Role)
			assert.True(t, tu.LastLogin.Valid)
		})
	}
}

func TestService_StaffEmails(t *testing.T) {
	env := testutil.NewEnv(t)
	club := testutil.CreateTenant(t, env.TenantRepo, "Falcons", "falcons")
	testutil.CreateUser(t, env.UserRepo, club.ID, "Owner", "owner@test.cd", testPwd, user.RoleOwner, true)
	testutil.CreateUser(t, env.UserRepo, club.ID, "Coach", "coach@test.cd", testPwd, user.RoleCoach, true)
	testutil.CreateUser(t, env.UserRepo, club.ID, "Former", "former@test.cd", testPwd, user.RoleCoach, false)
	testutil.CreateUser(t, env.UserRepo, club.ID, "Player", "player@test.cd", testPwd, user.RoleMember, true)

	addrs, err := env.UserSvc.StaffEmails(context.Background(), club.ID)
	require.NoError(t, err)
	assert.Equal(t, []mail.Address{
		{Name: "Coach", Address: "coach@test.cd"},
		{Name: "Owner", Address: "owner@test.cd"},
	}, addrs)
}

func TestService_Update_permissions(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	club := testutil.CreateTenant(t, env.TenantRepo, "Falcons", "falcons")
	owner := testutil.CreateUser(t, env.UserRepo, club.ID, "Owner", "owner@test.cd", testPwd, user.RoleOwner, true)
	admin := testutil.CreateUser(t, env.UserRepo, club.ID, "Admin", "admin@test.cd", testPwd, user.RoleAdmin, true)
	coach := testutil.CreateUser(t, env.UserRepo, club.ID, "Coach", "coach@test.cd", testPwd, user.RoleCoach, true)

	asAdmin := user.Actor{UserID: admin.ID, Role: user.RoleAdmin}

	tests := []struct {
		name      string
		actor     user.Actor
		orig      user.TenantUser
		uu        user.UpdateUser
		wantField string // empty when the error has no field
		wantErr   bool
	}{
		{name: "modify higher", actor: asAdmin, orig: owner, uu: user.UpdateUser{Name: "Boss"}, wantErr: true},
		{name: "promote above self", actor: asAdmin, orig: coach, uu: user.UpdateUser{Name: "Coach", Role: user.RoleOwner}, wantField: "role", wantErr: true},
		{name: "deactivate self", actor: asAdmin, orig: admin, uu: user.UpdateUser{Name: "Admin", IsActive: boolPtr(false)}, wantField: "is_active", wantErr: true},
		{name: "other's password", actor: asAdmin, orig: coach, uu: user.UpdateUser{Name: "Coach", Password: testPwd}, wantField: "password", wantErr: true},
		{name: "no member profile", actor: asAdmin, orig: coach, uu: user.UpdateUser{Name: "Coach", Member: &member.UpdateMember{}}, wantField: "member", wantErr: true},
		{name: "promote coach", actor: asAdmin, orig: coach, uu: user.UpdateUser{Name: "Head Coach", Role: user.RoleAdmin}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tu, err := env.UserSvc.Update(ctx, club.ID, tt.actor, tt.orig, tt.uu)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, tt.uu.Name, tu.Name)
				assert.Equal(t, tt.uu.Role, tu.Role)
				return
			}
			var vErr *core.ValidationError
			require.ErrorAs(t, err, &vErr)
			if tt.wantField != "" {
				require.NotEmpty(t, vErr.Fields)
				assert.Equal(t, tt.wantField, vErr.Fields[0].Field)
			}
		})
	}
}

func TestService_Update_sharedAccount(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	club := testutil.CreateTenant(t, env.TenantRepo, "Falcons", "falcons")
	other := testutil.CreateTenant(t, env.TenantRepo, "Eagles", "eagles")
	admin := testutil.CreateUser(t, env.UserRepo, club.ID, "Admin", "admin@test.cd", testPwd, user.RoleAdmin, true)
	coach := testutil.CreateUser(t, env.UserRepo, club.ID, "Coach", "coach@test.cd", testPwd, user.RoleCoach, true)
	testutil.CreateUser(t, env.UserRepo, other.ID, "Coach", "coach@test.cd", testPwd, user.RoleOwner, true)

	asAdmin := user.Actor{UserID: admin.ID, Role: user.RoleAdmin}

	_, err := env.UserSvc.Update(ctx, club.ID, asAdmin, coach, user.UpdateUser{ID: coach.ID, Name: "Renamed"})
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	require.NotEmpty(t, vErr.Fields)
	assert.Equal(t, "name", vErr.Fields[0].Field)

	tu, err := env.UserSvc.Update(ctx, club.ID, asAdmin, coach, user.UpdateUser{ID: coach.ID, Name: "Coach", IsActive: boolPtr(false)})
	require.NoError(t, err)
	assert.False(t, tu.IsActive)

	// deactivated in falcons only
	_, err = env.UserSvc.Authenticate(ctx, club.ID, "coach@test.cd", testPwd)
	assert.Equal(t, user.ErrAccountDeactivated, err)
	tu, err = env.UserSvc.Authenticate(ctx, other.ID, "coach@test.cd", testPwd)
	require.NoError(t, err)
	assert.True(t, tu.IsActive)
	assert.Equal(t, "Coach", tu.Name)
	assert.Equal(t, user.RoleOwner, tu.Role)

	// owners may still rename themselves
	self := user.Actor{UserID: coach.ID, Role: user.RoleOwner}
	orig, err := env.UserSvc.Get(ctx, other.ID, coach.ID)
	require.NoError(t, err)
	tu, err = env.UserSvc.Update(ctx, other.ID, self, orig, user.UpdateUser{ID: coach.ID, Name: "Head Coach"})
	require.NoError(t, err)
	assert.Equal(t, "Head Coach", tu.Name)
}

func TestService_Remove(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	club := testutil.CreateTenant(t, env.TenantRepo, "Falcons", "falcons")
	other := testutil.CreateTenant(t, env.TenantRepo, "Eagles", "eagles")
	owner := testutil.CreateUser(t, env.UserRepo, club.ID, "Owner", "owner@test.cd", testPwd, user.RoleOwner, true)
	admin := testutil.CreateUser(t, env.UserRepo, club.ID, "Admin", "admin@test.cd", testPwd, user.RoleAdmin, true)
	coach := testutil.CreateUser(t, env.UserRepo, club.ID, "Coach", "coach@test.cd", testPwd, user.RoleCoach, true)
	testutil.CreateUser(t, env.UserRepo, other.ID, "Coach", "coach@test.cd", testPwd, user.RoleCoach, true)
	player := testutil.CreateUser(t, env.UserRepo, club.ID, "Player", "player@test.cd", testPwd, user.RoleMember, true)

	asAdmin := user.Actor{UserID: admin.ID, Role: user.RoleAdmin}

	var vErr *core.ValidationError
	_, err := env.UserSvc.Remove(ctx, club.ID, asAdmin, admin.ID)
	assert.ErrorAs(t, err, &vErr)
	_, err = env.UserSvc.Remove(ctx, club.ID, asAdmin, owner.ID)
	assert.ErrorAs(t, err, &vErr)

	// still a member of eagles
	deleted, err := env.UserSvc.Remove(ctx, club.ID, asAdmin, coach.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
	_, err = env.UserRepo.GetUser(ctx, coach.ID)
	assert.NoError(t, err)

	deleted, err = env.UserSvc.Remove(ctx, club.ID, asAdmin, player.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	_, err = env.UserRepo.GetUser(ctx, player.ID)
	assert.Equal(t, user.ErrNotFound, err)

	_, err = env.UserSvc.Remove(ctx, club.ID, asAdmin, player.ID)
	assert.Equal(t, user.ErrNotFound, err)
}
