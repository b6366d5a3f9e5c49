package dig_container

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/dig"
	"gorm.io/gorm"

	echoapi "github.com/Joeboy77/dms-backend-sub000/apps/api/echo"
	"github.com/Joeboy77/dms-backend-sub000/core"
	"github.com/Joeboy77/dms-backend-sub000/core/defense"
	locksvc "github.com/Joeboy77/dms-backend-sub000/services/lock"
	logsvc "github.com/Joeboy77/dms-backend-sub000/services/logger"
	"github.com/Joeboy77/dms-backend-sub000/services/metrics"
	"github.com/Joeboy77/dms-backend-sub000/services/sweeper"
	"github.com/Joeboy77/dms-backend-sub000/storage/database"
	sqlxrepos "github.com/Joeboy77/dms-backend-sub000/storage/database/sqlx"
	"github.com/Joeboy77/dms-backend-sub000/storage/directory"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type SweepLoggerParam struct {
	dig.In
	Logger core.Logger `name:"sweepLogger"`
}

func newLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
}

func newSweepLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(log.New(os.Stdout, "SWEEP : ", log.LstdFlags|log.Lmicroseconds), conf)
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sql.DB {
	setUp := func() (*sql.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newRepository(db *sql.DB, conf *core.Config) defense.Repository {
	return sqlxrepos.NewRepository(sqlx.NewDb(db, conf.Database.Engine))
}

func newGormDB(db *sql.DB, loggerParam DBLoggerParam) *gorm.DB {
	gdb, err := directory.Open(db)
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("opening directory: %v", err), err)
	}
	return gdb
}

func newDirectory(db *gorm.DB) defense.Directory {
	return directory.New(db)
}

func newActivityLog(db *gorm.DB) defense.ActivityLog {
	return directory.NewActivityLog(db)
}

func newLocker(conf *core.Config) defense.Locker {
	if conf.Redis.Address == "" {
		return locksvc.NewMemory()
	}
	return locksvc.NewRedis(locksvc.NewRedisClient(conf.Redis), conf.Redis.LockTTL)
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func newRecorder(reg *prometheus.Registry) defense.Observer {
	return metrics.NewRecorder(reg)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newValidate(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	return validate
}

func newPanelRegistry(repo defense.Repository, dir defense.Directory, activity defense.ActivityLog, logger core.Logger) *defense.PanelRegistry {
	return defense.NewPanelRegistry(repo, dir, activity, logger)
}

type schedulerParams struct {
	dig.In
	Conf     *core.Config
	Repo     defense.Repository
	Dir      defense.Directory
	Activity defense.ActivityLog
	Locker   defense.Locker
	Logger   core.Logger
	Observer defense.Observer
}

func newScheduler(p schedulerParams) *defense.Scheduler {
	return defense.NewScheduler(defense.SchedulerOptions{
		Repo:          p.Repo,
		Directory:     p.Dir,
		Activity:      p.Activity,
		Locker:        p.Locker,
		Logger:        p.Logger,
		Observer:      p.Observer,
		CreateTimeout: p.Conf.Scheduling.CreateTimeout,
		LockWait:      p.Conf.Scheduling.LockWait,
		Location:      p.Conf.Scheduling.TimeLocation(),
	})
}

func newSweeper(conf *core.Config, sched *defense.Scheduler, loggerParam SweepLoggerParam) *sweeper.Sweeper {
	return sweeper.New(sched, loggerParam.Logger, conf.Scheduling.TimeLocation())
}

type serverParams struct {
	dig.In
	Conf       *core.Config
	Logger     core.Logger
	Panels     *defense.PanelRegistry
	Scheduler  *defense.Scheduler
	Calendar   *defense.Calendar
	Candidates *defense.CandidateResolver
	Validate   *validator.Validate
	Translator ut.Translator
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		Panels:     p.Panels,
		Scheduler:  p.Scheduler,
		Calendar:   p.Calendar,
		Candidates: p.Candidates,
		Validate:   p.Validate,
		Translator: p.Translator,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newSweepLogger, dig.Name("sweepLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newRepository))
	must(c.Provide(newGormDB))
	must(c.Provide(newDirectory))
	must(c.Provide(newActivityLog))
	must(c.Provide(newLocker))
	must(c.Provide(newRegistry))
	must(c.Provide(newRecorder))
	must(c.Provide(newTranslator))
	must(c.Provide(newValidate))
	must(c.Provide(newPanelRegistry))
	must(c.Provide(newScheduler))
	must(c.Provide(defense.NewCalendar))
	must(c.Provide(defense.NewCandidateResolver))
	must(c.Provide(newSweeper))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
