package main

import (
	"context"
	"fmt"

	"github.com/vilmosmisota/sportapp/core/attendance"
	"github.com/vilmosmisota/sportapp/core/member"
	"github.com/vilmosmisota/sportapp/core/tenant"
)

func (cli *commandLine) addTenant(name, slug string) error {
	nt := tenant.NewTenant{Name: name, Slug: slug}
	if err := nt.Validate(cli.validate); err != nil {
		return err
	}
	tnt, err := cli.tenantSvc.Create(context.Background(), nt)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "tenant %q created: %s\n", tnt.Slug, tnt.ID)
	return nil
}

func (cli *commandLine) addTeam(slug, name string) error {
	ctx := context.Background()
	tnt, err := cli.tenantSvc.GetBySlug(ctx, slug)
	if err != nil {
		return err
	}
	nt := member.NewTeam{Name: name}
	if err = nt.Validate(cli.validate); err != nil {
		return err
	}
	team, err := cli.memberSvc.CreateTeam(ctx, tnt.ID, nt)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "team %q created: %s\n", team.Name, team.ID)
	return nil
}

func (cli *commandLine) addSeason(slug, name, from, to string) error {
	ctx := context.Background()
	tnt, err := cli.tenantSvc.GetBySlug(ctx, slug)
	if err != nil {
		return err
	}
	ns := attendance.NewSeason{Name: name, StartsOn: from, EndsOn: to}
	if err = ns.Validate(cli.validate); err != nil {
		return err
	}
	season, err := cli.attendanceSvc.CreateSeason(ctx, tnt.ID, ns)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "season %q created: %s\n", season.Name, season.ID)
	return nil
}

func (cli *commandLine) setPIN(slug, memberID, pin string) error {
	ctx := context.Background()
	tnt, err := cli.tenantSvc.GetBySlug(ctx, slug)
	if err != nil {
		return err
	}
	m, err := cli.memberSvc.SetPIN(ctx, tnt.ID, memberID, pin)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "PIN of %s updated\n", m.FullName())
	return nil
}
