package expiry

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const sweepJobName = "verification session sweep"

// ErrInvalidSweepInterval is returned by NewSweeper for a non-positive interval.
var ErrInvalidSweepInterval = errors.New("invalid sweep interval")

// SweepFunc evicts stale sessions and returns how many were removed.
type SweepFunc func(ctx context.Context) int

// Sweeper runs a SweepFunc on a fixed interval.
type Sweeper struct {
	scheduler gocron.Scheduler
	cancel    context.CancelFunc
	log       zerolog.Logger
}

// NewSweeper registers the sweep job. The scheduler does not run until
// Start. Overlapping runs are rescheduled rather than stacked.
func NewSweeper(clock clockwork.Clock, interval time.Duration, sweep SweepFunc, log zerolog.Logger) (*Sweeper, error) {
	if interval <= 0 {
		return nil, ErrInvalidSweepInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	log = log.With().Str("component", "sweeper").Logger()

	scheduler, err := gocron.NewScheduler(
		gocron.WithClock(clock),
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(schedulerLogger{l: log}),
		gocron.WithGlobalJobOptions(
			gocron.WithEventListeners(
				gocron.AfterJobRunsWithPanic(func(jobID uuid.UUID, jobName string, recoverData any) {
					log.Error().Str("job_name", jobName).Str("job_id", jobID.String()).Any("recover_data", recoverData).Msg("sweep panicked")
				}),
			),
		),
	)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func(ctx context.Context) {
			evicted := sweep(ctx)
			log.Debug().Int("evicted", evicted).Msg("sweep finished")
		}),
		gocron.WithContext(ctx),
		gocron.WithName(sweepJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		cancel()
		_ = scheduler.Shutdown()
		return nil, err
	}

	return &Sweeper{scheduler: scheduler, cancel: cancel, log: log}, nil
}

// Start begins periodic sweeping.
func (s *Sweeper) Start() {
	s.scheduler.Start()
}

// Shutdown stops the scheduler and waits for a running sweep.
func (s *Sweeper) Shutdown() error {
	s.cancel()
	return s.scheduler.Shutdown()
}

type schedulerLogger struct {
	l zerolog.Logger
}

func (l schedulerLogger) Debug(msg string, args ...any) {
	l.l.Debug().Fields(args).Msg(msg)
}

func (l schedulerLogger) Error(msg string, args ...any) {
	l.l.Error().Fields(args).Msg(msg)
}

func (l schedulerLogger) Info(msg string, args ...any) {
	l.l.Info().Fields(args).Msg(msg)
}

func (l schedulerLogger) Warn(msg string, args ...any) {
	l.l.Warn().Fields(args).Msg(msg)
}
