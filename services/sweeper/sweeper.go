// Package sweeper completes the defense schedules whose date has passed.
package sweeper

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/Joeboy77/dms-backend-sub000/core"
	"github.com/Joeboy77/dms-backend-sub000/core/defense"
)

const runTimeout = 5 * time.Minute

type completer interface {
	CompletePast(ctx context.Context, today defense.Date, actor defense.Actor) (int, error)
}

type Sweeper struct {
	sched  completer
	logger core.Logger
	loc    *time.Location
	cron   *cron.Cron
	now    func() time.Time
}

func New(sched *defense.Scheduler, logger core.Logger, loc *time.Location) *Sweeper {
	return newSweeper(sched, logger, loc)
}

func newSweeper(sched completer, logger core.Logger, loc *time.Location) *Sweeper {
	if loc == nil {
		loc = time.UTC
	}
	return &Sweeper{
		sched:  sched,
		logger: logger,
		loc:    loc,
		cron:   cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		now:    time.Now,
	}
}

// Schedule registers the sweep on a cron spec with seconds (e.g. "0 5 0 * * *").
func (s *Sweeper) Schedule(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		if _, err := s.Run(ctx); err != nil {
			s.logger.Error("sweeping past defenses failed", err)
		}
	})
	return errors.Wrapf(err, "scheduling sweep %q", spec)
}

// Run completes the active schedules dated before today.
func (s *Sweeper) Run(ctx context.Context) (int, error) {
	today := defense.DateOf(s.now().In(s.loc))
	n, err := s.sched.CompletePast(ctx, today, defense.SystemActor)
	if err != nil {
		return n, errors.Wrap(err, "completing past schedules")
	}
	if n > 0 {
		s.logger.Info("completed past defenses", map[string]interface{}{"count": n, "today": today.String()})
	}
	return n, nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for a running sweep.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
