package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/vilmosmisota/sportapp/core"
	"github.com/vilmosmisota/sportapp/core/attendance"
	"github.com/vilmosmisota/sportapp/core/member"
	"github.com/vilmosmisota/sportapp/core/tenant"
	"github.com/vilmosmisota/sportapp/core/user"
	emailsvc "github.com/vilmosmisota/sportapp/services/email"
	logsvc "github.com/vilmosmisota/sportapp/services/logger"
	reportsvc "github.com/vilmosmisota/sportapp/services/report"
	"github.com/vilmosmisota/sportapp/storage/database"
	sqlxrepos "github.com/vilmosmisota/sportapp/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	core.ParseEmailTemplates(logger, conf)
	user.LoadCommonPasswords(logger)

	tenantSvc := tenant.NewService(sqlxrepos.NewTenantRepository(db), nil, logger)
	memberSvc := member.NewService(sqlxrepos.NewMemberRepository(db))
	tx := sqlxrepos.NewTransactor(db)
	usrSvc := user.NewService(tx, sqlxrepos.NewUserRepository(db), memberSvc, tenantSvc, mailSvc, logger)

	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	tenant.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// start CLI
	cli := commandLine{
		db:        db,
		out:       os.Stdout,
		validate:  validate,
		tenantSvc: tenantSvc,
		userSvc:   usrSvc,
		memberSvc: memberSvc,
		attendanceSvc: attendance.NewService(attendance.Deps{
			Tx:       tx,
			Repo:     sqlxrepos.NewAttendanceRepository(db),
			Members:  memberSvc,
			Settings: tenantSvc,
			Staff:    usrSvc,
			Reports:  reportsvc.NewXLSXWriter(),
			MailSvc:  mailSvc,
			Logger:   logger,
		}),
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("\nerror: %s\n", err), err)
		}
		os.Exit(1)
	}
}
