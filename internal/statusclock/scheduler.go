package statusclock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"guest-ordering/internal/common/logger"
)

// Scheduler drives Clock.Tick on a fixed interval.
type Scheduler struct {
	clock *Clock
	s     gocron.Scheduler
	log   *logger.Logger
}

func NewScheduler(clock *Clock, every time.Duration, log *logger.Logger) (*Scheduler, error) {
	if log == nil {
		log = logger.Nop()
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			if clock.Pending() {
				clock.Tick(context.Background())
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("schedule status tick: %w", err)
	}
	return &Scheduler{clock: clock, s: s, log: log}, nil
}

// Run ticks until ctx is done.
func (sc *Scheduler) Run(ctx context.Context) error {
	sc.s.Start()
	sc.log.Debug("status_scheduler_started", nil)
	<-ctx.Done()
	return sc.s.Shutdown()
}
