package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/vilmosmisota/sportapp/core/attendance"
	"github.com/vilmosmisota/sportapp/core/member"
	"github.com/vilmosmisota/sportapp/core/tenant"
	"github.com/vilmosmisota/sportapp/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db            *sqlx.DB
	out           io.Writer
	validate      *validator.Validate
	tenantSvc     *tenant.Service
	userSvc       *user.Service
	memberSvc     *member.Service
	attendanceSvc *attendance.Service
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                                 - run goose migration commands (up, down, status...)")
	fmt.Fprintln(cli.out, "  addtenant -name NAME -slug SLUG                        - create a tenant")
	fmt.Fprintln(cli.out, "  adduser -tenant SLUG -email EMAIL -name NAME -role ROLE - add a user to a tenant")
	fmt.Fprintln(cli.out, "  resetpassword -email EMAIL                             - reset user's password")
	fmt.Fprintln(cli.out, "  addteam -tenant SLUG -name NAME                        - create a team")
	fmt.Fprintln(cli.out, "  addseason -tenant SLUG -name NAME -from DATE -to DATE  - create a season")
	fmt.Fprintln(cli.out, "  setpin -tenant SLUG -member ID -pin PIN                - set (or clear) a member's PIN")
	fmt.Fprintln(cli.out, "  closesessions                                          - close overdue sessions now")
}

// promptPassword reads a password from the terminal without echoing it.
func (cli *commandLine) promptPassword(fs *flag.FlagSet) (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		fs.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

// required prints the usage of fs when any of values is empty.
func required(fs *flag.FlagSet, values ...string) error {
	for _, v := range values {
		if v == "" {
			fs.Usage()
			return errHelp
		}
	}
	return nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "addtenant":
		cmd := flag.NewFlagSet("addtenant", flag.ExitOnError)
		name := cmd.String("name", "", "The tenant's display name.")
		slug := cmd.String("slug", "", "The tenant's unique slug, used to log in.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if err := required(cmd, *name, *slug); err != nil {
			return err
		}
		return cli.addTenant(*name, *slug)

	case "adduser":
		cmd := flag.NewFlagSet("adduser", flag.ExitOnError)
		slug := cmd.String("tenant", "", "The tenant's slug.")
		email := cmd.String("email", "", "The user's email. The password will be prompted next.")
		name := cmd.String("name", "", "The user's name.")
		role := cmd.String("role", user.RoleOwner, "The user's role in the tenant.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if err := required(cmd, *slug, *email, *name); err != nil {
			return err
		}
		pwd, err := cli.promptPassword(cmd)
		if err != nil {
			return err
		}
		return cli.addUser(*slug, *email, *name, *role, pwd)

	case "resetpassword":
		cmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
		email := cmd.String("email", "", "The user's email. The password will be prompted next.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if err := required(cmd, *email); err != nil {
			return err
		}
		pwd, err := cli.promptPassword(cmd)
		if err != nil {
			return err
		}
		return cli.resetPassword(*email, pwd)

	case "addteam":
		cmd := flag.NewFlagSet("addteam", flag.ExitOnError)
		slug := cmd.String("tenant", "", "The tenant's slug.")
		name := cmd.String("name", "", "The team's name.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if err := required(cmd, *slug, *name); err != nil {
			return err
		}
		return cli.addTeam(*slug, *name)

	case "addseason":
		cmd := flag.NewFlagSet("addseason", flag.ExitOnError)
		slug := cmd.String("tenant", "", "The tenant's slug.")
		name := cmd.String("name", "", "The season's name.")
		from := cmd.String("from", "", "First day of the season (YYYY-MM-DD).")
		to := cmd.String("to", "", "Last day of the season (YYYY-MM-DD).")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if err := required(cmd, *slug, *name, *from, *to); err != nil {
			return err
		}
		return cli.addSeason(*slug, *name, *from, *to)

	case "setpin":
		cmd := flag.NewFlagSet("setpin", flag.ExitOnError)
		slug := cmd.String("tenant", "", "The tenant's slug.")
		memberID := cmd.String("member", "", "The member's ID.")
		pin := cmd.String("pin", "", "The 4-digit PIN; empty to clear it.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if err := required(cmd, *slug, *memberID); err != nil {
			return err
		}
		return cli.setPIN(*slug, *memberID, *pin)

	case "closesessions":
		return cli.closeSessions()

	default:
		cli.printUsage()
		return errHelp
	}
}
