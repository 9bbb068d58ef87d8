package testutil

import (
	"context"
	"io"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/vilmosmisota/sportapp/core"
	"github.com/vilmosmisota/sportapp/core/attendance"
	"github.com/vilmosmisota/sportapp/core/member"
	"github.com/vilmosmisota/sportapp/core/tenant"
	"github.com/vilmosmisota/sportapp/core/user"
	emailsvc "github.com/vilmosmisota/sportapp/services/email"
	logsvc "github.com/vilmosmisota/sportapp/services/logger"
	reportsvc "github.com/vilmosmisota/sportapp/services/report"
	"github.com/vilmosmisota/sportapp/storage/database/dummy"
)

// NewConfig returns the TEST environment config.
func NewConfig() *core.Config {
	_ = os.Setenv("ENV", "TEST")
	conf := core.NewConfig()
	conf.Email.RetryBaseDelay = time.Millisecond
	return conf
}

// NewLogger returns a logger that reports nothing.
func NewLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	logger.Enable(false)
	return logger
}

func NewValidator() (*validator.Validate, ut.Translator) {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")

	validate := validator.New()
	core.InitValidators(validate, translator)
	tenant.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

// EventRecorder is a core.EventPublisher keeping every published event in memory.
type EventRecorder struct {
	mu     sync.Mutex
	events []core.Event
}

func (r *EventRecorder) Publish(_ context.Context, evt core.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

// Types returns the types of the recorded events, in order.
func (r *EventRecorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.Type)
	}
	return types
}

// Env wires every service on top of the in-memory database.
type Env struct {
	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
	MailSvc    core.EmailService
	Events     *EventRecorder

	DB             *dummydb.DB
	Tx             core.Transactor
	TenantRepo     tenant.Repository
	UserRepo       user.Repository
	MemberRepo     member.Repository
	AttendanceRepo attendance.Repository

	TenantSvc     *tenant.Service
	MemberSvc     *member.Service
	UserSvc       *user.Service
	AttendanceSvc *attendance.Service
}

func NewEnv(t *testing.T) *Env {
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("NewEnv() failed: %v", err)
	}

	env := &Env{
		Conf:           NewConfig(),
		Events:         new(EventRecorder),
		DB:             db,
		Tx:             dummydb.NewTransactor(db),
		TenantRepo:     dummydb.NewTenantRepository(db),
		UserRepo:       dummydb.NewUserRepository(db),
		MemberRepo:     dummydb.NewMemberRepository(db),
		AttendanceRepo: dummydb.NewAttendanceRepository(db),
	}
	env.Logger = NewLogger(env.Conf)
	env.Validate, env.Translator = NewValidator()
	env.MailSvc = emailsvc.NewConsoleServiceMock(env.Conf, env.Logger)
	core.ParseEmailTemplates(env.Logger, env.Conf)
	user.LoadCommonPasswords(env.Logger)

	env.TenantSvc = tenant.NewService(env.TenantRepo, nil, env.Logger)
	env.MemberSvc = member.NewService(env.MemberRepo)
	env.UserSvc = user.NewService(env.Tx, env.UserRepo, env.MemberSvc, env.TenantSvc, env.MailSvc, env.Logger)
	env.AttendanceSvc = attendance.NewService(attendance.Deps{
		Tx:       env.Tx,
		Repo:     env.AttendanceRepo,
		Members:  env.MemberSvc,
		Settings: env.TenantSvc,
		Staff:    env.UserSvc,
		Reports:  reportsvc.NewXLSXWriter(),
		Events:   env.Events,
		MailSvc:  env.MailSvc,
		Logger:   env.Logger,
	})
	emailsvc.ResetSentMessages()
	return env
}

func CreateTenant(t *testing.T, repo tenant.Repository, name, slug string, threshold ...int) tenant.Tenant {
	now := time.Now().UTC()
	tnt, err := repo.CreateTenant(context.Background(), tenant.Tenant{
		ID:        uuid.NewString(),
		Name:      name,
		Slug:      slug,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateTenant() failed: %v", err)
	}
	settings := tenant.DefaultSettings(tnt.ID)
	if len(threshold) > 0 {
		settings.LateThresholdMinutes = threshold[0]
	}
	settings.UpdatedAt = now
	if _, err = repo.SaveSettings(context.Background(), settings); err != nil {
		t.Fatalf("CreateTenant() failed: %v", err)
	}
	return tnt
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	tenantID, name, email, pwd, role string,
	isActive bool,
	memberID ...string,
) user.TenantUser {
	now := time.Now().UTC()
	ctx := context.Background()

	usr, err := repo.GetUserByEmail(ctx, email)
	if err != nil {
		usr = user.User{
			ID:        uuid.NewString(),
			Name:      name,
			Email:     email,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if pwd != "" {
			if err = usr.SetPassword(pwd); err != nil {
				t.Fatalf("CreateUser() failed: %v", err)
			}
		}
		if usr, err = repo.CreateUser(ctx, usr); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}

	ms := user.Membership{TenantID: tenantID, UserID: usr.ID, Role: role, IsActive: isActive}
	if len(memberID) > 0 {
		ms.MemberID = null.StringFrom(memberID[0])
	}
	if err = repo.AddMembership(ctx, ms); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return user.TenantUser{User: usr, Role: role, MemberID: ms.MemberID, IsActive: isActive}
}

func CreateTeam(t *testing.T, repo member.Repository, tenantID, name string) member.Team {
	team, err := repo.CreateTeam(context.Background(), member.Team{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateTeam() failed: %v", err)
	}
	return team
}

func CreateMember(t *testing.T, repo member.Repository, tenantID, firstName, lastName, pin string, teamIDs ...string) member.Member {
	ctx := context.Background()
	now := time.Now().UTC()
	m := member.Member{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		FirstName: firstName,
		LastName:  lastName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if pin != "" {
		m.PIN = null.StringFrom(pin)
	}
	m, err := repo.CreateMember(ctx, m)
	if err != nil {
		t.Fatalf("CreateMember() failed: %v", err)
	}
	if len(teamIDs) > 0 {
		if err = repo.SetMemberTeams(ctx, tenantID, m.ID, teamIDs); err != nil {
			t.Fatalf("CreateMember() failed: %v", err)
		}
		m.TeamIDs = teamIDs
	}
	return m
}

func CreateSeason(t *testing.T, repo attendance.Repository, tenantID, startsOn, endsOn string, breaks ...core.DateRange) attendance.Season {
	s, err := repo.CreateSeason(context.Background(), attendance.Season{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      startsOn[:4] + " season",
		StartsOn:  startsOn,
		EndsOn:    endsOn,
		Breaks:    breaks,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateSeason() failed: %v", err)
	}
	return s
}

func CreateSession(t *testing.T, repo attendance.Repository, tenantID, teamID, seasonID, date, start, end string) attendance.Session {
	s, err := repo.CreateSession(context.Background(), attendance.Session{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		TeamID:    teamID,
		SeasonID:  seasonID,
		Date:      date,
		StartTime: start,
		EndTime:   end,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}
	return s
}
