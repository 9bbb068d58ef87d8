package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	echoapi "github.com/vilmosmisota/sportapp/apps/api/echo"
	"github.com/vilmosmisota/sportapp/core"
	"github.com/vilmosmisota/sportapp/core/attendance"
	"github.com/vilmosmisota/sportapp/core/member"
	"github.com/vilmosmisota/sportapp/core/tenant"
	"github.com/vilmosmisota/sportapp/core/user"
	cachesvc "github.com/vilmosmisota/sportapp/services/cache"
	emailsvc "github.com/vilmosmisota/sportapp/services/email"
	eventsvc "github.com/vilmosmisota/sportapp/services/events"
	logsvc "github.com/vilmosmisota/sportapp/services/logger"
	reportsvc "github.com/vilmosmisota/sportapp/services/report"
	schedulersvc "github.com/vilmosmisota/sportapp/services/scheduler"
	storagesvc "github.com/vilmosmisota/sportapp/services/storage"
	"github.com/vilmosmisota/sportapp/storage/database"
	sqlxrepos "github.com/vilmosmisota/sportapp/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	// set up redis (optional)
	var (
		rdb           *redis.Client
		settingsCache tenant.SettingsCache
		limiter       cachesvc.PINAttemptLimiter = cachesvc.NopLimiter{}
	)
	if conf.Redis.Enabled {
		if rdb, err = cachesvc.NewRedisClient(conf); err != nil {
			logger.Fatal(fmt.Sprintf("connecting to redis: %v", err), err)
		}
		defer rdb.Close()
		settingsCache = cachesvc.NewSettingsCache(rdb, conf.Redis.SettingsCacheTTL)
		limiter = cachesvc.NewPINAttemptLimiter(rdb, conf.Kiosk.MaxPINAttempts, conf.Kiosk.PINAttemptWindow)
	}

	// set up events (optional)
	var events core.EventPublisher = eventsvc.NopPublisher{}
	if conf.AMQP.Enabled {
		pub, err := eventsvc.NewAMQPPublisher(conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("connecting to AMQP broker: %v", err), err)
		}
		defer pub.Close()
		events = pub
	}

	// set up storage
	store, err := storagesvc.NewStore(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up storage: %v", err), err)
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	reports := reportsvc.NewXLSXWriter()

	tx := sqlxrepos.NewTransactor(db)
	tenantSvc := tenant.NewService(sqlxrepos.NewTenantRepository(db), settingsCache, logger)
	memberSvc := member.NewService(sqlxrepos.NewMemberRepository(db))
	usrSvc := user.NewService(tx, sqlxrepos.NewUserRepository(db), memberSvc, tenantSvc, mailSvc, logger)
	attendanceSvc := attendance.NewService(attendance.Deps{
		Tx:       tx,
		Repo:     sqlxrepos.NewAttendanceRepository(db),
		Members:  memberSvc,
		Settings: tenantSvc,
		Staff:    usrSvc,
		Reports:  reports,
		Events:   events,
		MailSvc:  mailSvc,
		Logger:   logger,
	})

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	tenant.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	core.ParseEmailTemplates(logger, conf)

	user.LoadCommonPasswords(logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Scheduler

	if conf.Scheduler.Enabled {
		sched, err := schedulersvc.New(conf, attendanceSvc, logger)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up scheduler: %v", err), err)
		}
		sched.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()
			sched.Stop(ctx)
		}()
	}

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:          conf,
			Logger:        logger,
			Validate:      validate,
			Translator:    translator,
			TenantSvc:     tenantSvc,
			UserSvc:       usrSvc,
			MemberSvc:     memberSvc,
			AttendanceSvc: attendanceSvc,
			Reports:       reports,
			Uploader:      storagesvc.NewUploader(store, conf),
			Limiter:       limiter,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shut down and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
