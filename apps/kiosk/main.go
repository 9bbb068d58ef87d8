package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/vilmosmisota/sportapp/core"
	logsvc "github.com/vilmosmisota/sportapp/services/logger"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stderr, "KIOSK : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	apiURL := flag.String("api", "http://localhost:8000", "The API base URL.")
	slug := flag.String("tenant", "", "The tenant's slug.")
	email := flag.String("email", "", "The staff user's email. The password will be prompted next.")
	sessionID := flag.String("session", "", "The ID of the session to check in to.")
	flag.Parse()
	if *slug == "" || *email == "" || *sessionID == "" {
		flag.Usage()
		os.Exit(2)
	}

	fmt.Print("Enter password:")
	pwd, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		logger.Fatal(fmt.Sprintf("reading password: %v", err), err)
	}

	ctx := context.Background()
	client := newAPIClient(*apiURL, nil)
	if err = client.Login(ctx, *slug, *email, string(pwd)); err != nil {
		logger.Fatal(fmt.Sprintf("logging in: %v", err), err)
	}

	fd := int(os.Stdin.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		logger.Fatal(fmt.Sprintf("entering raw mode: %v", err), err)
	}
	err = newTerminal(client, *sessionID, os.Stdout, logger).run(ctx, os.Stdin)
	_ = term.Restore(fd, state)
	if err != nil {
		logger.Fatal(fmt.Sprintf("kiosk stopped: %v", err), err)
	}
}
