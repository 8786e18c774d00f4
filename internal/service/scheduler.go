package service

import (
	"context"
	"time"

	"github.com/MimeLyc/contextual-book-translator/pkg/icron"
	"github.com/MimeLyc/contextual-book-translator/pkg/log"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"
)

// RunFunc is one complete pipeline pass.
type RunFunc func(ctx context.Context) error

// Scheduler re-runs a RunFunc on a cron schedule. A trigger that fires
// while a run is in progress joins that run instead of starting another.
type Scheduler struct {
	cron     *cron.Cron
	cronExpr string
	run      RunFunc
	group    singleflight.Group
	handler  ErrorHandler
	logger   *log.Logger
}

func NewScheduler(cronExpr string, run RunFunc, logger *log.Logger) *Scheduler {
	logger = log.OrGlobal(logger).With("scheduler")
	return &Scheduler{
		cron:     cron.New(),
		cronExpr: cronExpr,
		run:      run,
		handler:  NewDefaultErrorHandler(logger),
		logger:   logger,
	}
}

// Trigger runs now, or waits for the run already in progress. shared is
// true when the result came from a run started by another trigger.
func (s *Scheduler) Trigger(ctx context.Context) (shared bool, err error) {
	_, err, shared = s.group.Do("run", func() (any, error) {
		return nil, SafeExecute(func() error { return s.run(ctx) })
	})
	return shared, err
}

// Schedule registers the cron entry, starts the cron loop and blocks until
// ctx is done. A failed run is logged and the schedule keeps going.
func (s *Scheduler) Schedule(ctx context.Context) error {
	if _, err := icron.Parse(s.cronExpr); err != nil {
		return WrapError(err, ErrConfig, "schedule")
	}

	_, err := s.cron.AddFunc(s.cronExpr, func() {
		if ctx.Err() != nil {
			return
		}
		shared, err := s.Trigger(ctx)
		switch {
		case shared:
			s.logger.Info("trigger joined a run already in progress")
		case err != nil && ctx.Err() == nil:
			s.handler.Handle(err)
		}
		s.logNext()
	})
	if err != nil {
		return WrapError(err, ErrConfig, "schedule")
	}

	s.cron.Start()
	s.logNext()

	<-ctx.Done()
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
	return nil
}

func (s *Scheduler) logNext() {
	info, err := icron.GetTriggerInfo(s.cronExpr, time.Now())
	if err != nil {
		return
	}
	s.logger.Info("%s", info)
}
