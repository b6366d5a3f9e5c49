package main

import (
	"database/sql"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Joeboy77/dms-backend-sub000/core"
	"github.com/Joeboy77/dms-backend-sub000/core/defense"
	locksvc "github.com/Joeboy77/dms-backend-sub000/services/lock"
	logsvc "github.com/Joeboy77/dms-backend-sub000/services/logger"
	"github.com/Joeboy77/dms-backend-sub000/storage/database"
	sqlxrepos "github.com/Joeboy77/dms-backend-sub000/storage/database/sqlx"
	"github.com/Joeboy77/dms-backend-sub000/storage/directory"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()

	sched, err := newScheduler(db, conf)
	errAndDie(err)

	// start CLI
	cli := commandLine{
		migrator: func(command string, args ...string) error {
			return database.RunMigrations(db, command, args...)
		},
		sched: sched,
		loc:   conf.Scheduling.TimeLocation(),
		now:   time.Now,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func newScheduler(db *sql.DB, conf *core.Config) (*defense.Scheduler, error) {
	gdb, err := directory.Open(db)
	if err != nil {
		return nil, err
	}
	return defense.NewScheduler(defense.SchedulerOptions{
		Repo:          sqlxrepos.NewRepository(sqlx.NewDb(db, conf.Database.Engine)),
		Directory:     directory.New(gdb),
		Activity:      directory.NewActivityLog(gdb),
		Locker:        locksvc.NewMemory(),
		Logger:        logsvc.NewRollbarLogger(logger, conf),
		CreateTimeout: conf.Scheduling.CreateTimeout,
		LockWait:      conf.Scheduling.LockWait,
		Location:      conf.Scheduling.TimeLocation(),
	}), nil
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
