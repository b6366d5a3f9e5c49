package main

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/Joeboy77/dms-backend-sub000/core/defense"
	"github.com/Joeboy77/dms-backend-sub000/tests"
)

type fakeCompleter struct {
	today defense.Date
	actor defense.Actor
	err   error
}

func (f *fakeCompleter) CompletePast(_ context.Context, today defense.Date, actor defense.Actor) (int, error) {
	f.today, f.actor = today, actor
	return 2, f.err
}

func fakeMigrator(command string, args ...string) error {
	switch command {
	case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
	case "up-to", "down-to":
		if len(args) == 0 {
			return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
		}
		if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
			return fmt.Errorf("version must be a number (got '%s')", args[0])
		}
	case "create":
		if len(args) == 0 {
			return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
		}
	default:
		return fmt.Errorf("%q: no such command", command)
	}
	return nil
}

func setup(t *testing.T) (*commandLine, *fakeCompleter) {
	t.Helper()
	sched := new(fakeCompleter)
	return &commandLine{
		migrator: fakeMigrator,
		sched:    sched,
		loc:      time.UTC,
		now:      testutil.Now,
	}, sched
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func runCLITests(t *testing.T, cli *commandLine, tests []cliTest) {
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			} else if tt.wantErr != nil || tt.wantErrStr != "" {
				t.Errorf("cli.run() error = nil, want an error")
			}
		})
	}
}

func Test_commandLine_run(t *testing.T) {
	cli, _ := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
	}
	runCLITests(t, cli, tests)
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "rooms", "sql"}},
	}
	runCLITests(t, cli, tests)
}

func Test_commandLine_sweep(t *testing.T) {
	cli, sched := setup(t)

	tests := []cliTest{
		{name: "bad date", args: []string{"sweep", "-date", "10/03/2030"}, wantErrStr: `parsing -date: invalid date "10/03/2030": expected YYYY-MM-DD`},
		{name: "today", args: []string{"sweep"}, extra: testutil.Today},
		{name: "given date", args: []string{"sweep", "-date", "2030-06-01"}, extra: defense.NewDate(2030, time.June, 1)},
	}
	for _, tt := range tests {
		sched.today = defense.Date{}
		runCLITests(t, cli, []cliTest{tt})
		if want, ok := tt.extra.(defense.Date); ok {
			if !sched.today.Equal(want.Time) {
				t.Errorf("%s: CompletePast() today = %v, want %v", tt.name, sched.today, want)
			}
			if sched.actor != defense.SystemActor {
				t.Errorf("%s: CompletePast() actor = %v, want %v", tt.name, sched.actor, defense.SystemActor)
			}
		}
	}

	sched.err = fmt.Errorf("db down")
	runCLITests(t, cli, []cliTest{
		{name: "failure", args: []string{"sweep"}, wantErrStr: "completing past schedules: db down"},
	})
}
