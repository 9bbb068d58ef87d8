package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/vilmosmisota/sportapp/core"
	"github.com/vilmosmisota/sportapp/core/attendance"
	"github.com/vilmosmisota/sportapp/core/member"
	"github.com/vilmosmisota/sportapp/core/tenant"
	"github.com/vilmosmisota/sportapp/core/user"
	cachesvc "github.com/vilmosmisota/sportapp/services/cache"
	storagesvc "github.com/vilmosmisota/sportapp/services/storage"
)

type (
	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
		TenantSvc      *tenant.Service
		UserSvc        *user.Service
		MemberSvc      *member.Service
		AttendanceSvc  *attendance.Service
		Reports        attendance.ReportWriter
		Uploader       *storagesvc.Uploader
		Limiter        cachesvc.PINAttemptLimiter
		DisableReqLogs bool
	}

	Server struct {
		ServerDeps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	if deps.Limiter == nil {
		deps.Limiter = cachesvc.NopLimiter{}
	}
	s := &Server{
		ServerDeps: deps,
		app:        echo.New(),
		errors:     make(chan error, 1),
		shutdown:   make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	s.app.HideBanner = true
	s.app.Debug = s.Conf.Debug && !s.Conf.TestMode

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.Conf.Debug || s.Conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.Logger, s.Translator, s.signalShutdown)

	s.app.GET("/", s.home)
	if s.Conf.Storage.Driver == "local" {
		s.app.Static("/media", s.Conf.Storage.LocalDir)
	}

	api := s.app.Group("/api")
	auth := authMiddleware(s.Conf)

	registerAuthAPI(api, s)
	registerUserAPI(api, auth, s)
	registerTenantAPI(api, auth, s)
	registerAttendanceAPI(api, auth, s)
	registerKioskAPI(api, auth, s)
	registerUploadAPI(api, auth, s)
}

// Start blocks until the server stops. Errors other than a graceful close are sent to Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.Conf.Server.Address()); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.Conf.AppName+" API!")
}
