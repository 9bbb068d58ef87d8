package main

import (
	"context"
	"fmt"

	"github.com/vilmosmisota/sportapp/core/user"
)

// addUser adds a user to the tenant; the account is reused when the email is already known.
func (cli *commandLine) addUser(slug, email, name, role, pwd string) error {
	ctx := context.Background()
	tnt, err := cli.tenantSvc.GetBySlug(ctx, slug)
	if err != nil {
		return err
	}
	nu := user.NewUser{Name: name, Email: email, Password: pwd, PasswordConfirm: pwd, Role: role}
	if err = nu.Validate(cli.validate); err != nil {
		return err
	}
	// the CLI acts with full rights
	tu, err := cli.userSvc.Create(ctx, tnt.ID, user.Actor{Role: user.RoleOwner}, nu)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "user %s added to %q as %s\n", tu.Email, tnt.Slug, tu.Role)
	return nil
}

func (cli *commandLine) resetPassword(email, pwd string) error {
	return cli.userSvc.SetPassword(context.Background(), email, pwd)
}
