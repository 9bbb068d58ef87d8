package main

import (
	"context"
	"fmt"
	"time"
)

func (cli *commandLine) closeSessions() error {
	n, err := cli.attendanceSvc.CloseOverdueSessions(context.Background(), time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d session(s) closed\n", n)
	return nil
}
