package schedulersvc

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/vilmosmisota/sportapp/core"
)

// SessionCloser closes every session whose end time has passed.
type SessionCloser interface {
	CloseOverdueSessions(ctx context.Context, now time.Time) (int, error)
}

type Scheduler struct {
	cron   *cron.Cron
	closer SessionCloser
	logger core.Logger
	now    func() time.Time
}

// New registers the auto-close job on conf.Scheduler.AutoCloseSpec. Runs never overlap.
func New(conf *core.Config, closer SessionCloser, logger core.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		closer: closer,
		logger: logger,
		now:    time.Now,
	}
	if _, err := s.cron.AddFunc(conf.Scheduler.AutoCloseSpec, s.closeOverdueSessions); err != nil {
		return nil, errors.Wrapf(err, "scheduling %q", conf.Scheduler.AutoCloseSpec)
	}
	return s, nil
}

func (s *Scheduler) closeOverdueSessions() {
	n, err := s.closer.CloseOverdueSessions(context.Background(), s.now())
	if err != nil {
		s.logger.Error(fmt.Sprintf("closing overdue sessions: %v", err), err)
		return
	}
	if n > 0 {
		s.logger.Info(fmt.Sprintf("closed %d overdue session(s)", n))
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for a running job until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}
