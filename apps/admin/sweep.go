package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/Joeboy77/dms-backend-sub000/core/defense"
)

// sweep completes the active schedules dated before rawDate, or before today when empty.
func (cli *commandLine) sweep(rawDate string) error {
	today := defense.DateOf(cli.now().In(cli.loc))
	if rawDate != "" {
		d, err := defense.ParseDate(rawDate)
		if err != nil {
			return errors.Wrap(err, "parsing -date")
		}
		today = d
	}

	n, err := cli.sched.CompletePast(context.Background(), today, defense.SystemActor)
	if err != nil {
		return errors.Wrap(err, "completing past schedules")
	}
	fmt.Printf("%d defense(s) completed\n", n)
	return nil
}
