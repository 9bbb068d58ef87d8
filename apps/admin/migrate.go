package main

import (
	"context"

	"github.com/vilmosmisota/sportapp/storage/database"
)

var migrateFunc = database.RunMigrations // mockable

func (cli *commandLine) migrate(args []string) error {
	return migrateFunc(context.Background(), cli.db, args[0], args[1:]...)
}
