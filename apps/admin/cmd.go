package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/Joeboy77/dms-backend-sub000/core/defense"
)

var errHelp = errors.New("help provided")

type completer interface {
	CompletePast(ctx context.Context, today defense.Date, actor defense.Actor) (int, error)
}

type commandLine struct {
	migrator func(command string, args ...string) error
	sched    completer
	loc      *time.Location
	now      func() time.Time
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose command (up, down, status, redo, version...)")
	fmt.Println("  sweep [-date YYYY-MM-DD] - complete the active defenses dated before DATE (default: today)")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	sweepCmd := flag.NewFlagSet("sweep", flag.ContinueOnError)
	sweepDate := sweepCmd.String("date", "", "Defenses dated before this day are completed.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "sweep":
		if err := sweepCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.sweep(*sweepDate)
	default:
		cli.printUsage()
		return errHelp
	}
}
