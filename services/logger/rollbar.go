package logsvc

import (
	"log"
	"strings"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/vilmosmisota/sportapp/core"
	"github.com/vilmosmisota/sportapp/core/user"
)

// RollbarLogger reports to rollbar and echoes every entry to std.
type RollbarLogger struct {
	std *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{std: std}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// entry turns the logger args into rollbar's: the first user becomes the reported person,
// a tenant user also adds its role as custom data. Errors and maps are passed on.
func entry(msg string, args []interface{}) ([]interface{}, *user.User) {
	var person *user.User
	out := []interface{}{msg}
	for _, arg := range args {
		switch u := arg.(type) {
		case user.User:
			if person == nil {
				person = &u
			}
		case user.TenantUser:
			if person == nil {
				person = &u.User
				out = append(out, map[string]interface{}{"role": u.Role})
			}
		default:
			out = append(out, arg)
		}
	}
	return out, person
}

func (l RollbarLogger) log(level, msg string, args []interface{}) {
	out, person := entry(msg, args)
	if person != nil {
		rollbar.SetPerson(person.ID, person.Name, person.Email)
	} else {
		rollbar.ClearPerson()
	}
	rollbar.Log(level, out...)

	l.std.Printf("[%s] %s", strings.ToUpper(level), msg)
	for _, arg := range args {
		l.std.Printf("%+v\n", arg)
	}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	l.log(rollbar.DEBUG, msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	l.log(rollbar.INFO, msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	l.log(rollbar.WARN, msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	l.log(rollbar.ERR, msg, args)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.log(rollbar.CRIT, msg, args)
	l.std.Fatal(msg)
}
