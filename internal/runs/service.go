package runs

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"leetmail/internal/scheduler"
)

const (
	TriggerHTTP = "http"
	TriggerCron = "cron"
	TriggerCLI  = "cli"
)

// StaleAfter is how long a RUNNING row may sit before it is reaped.
const StaleAfter = 30 * time.Minute

type Ledger interface {
	ReapStale(ctx context.Context, cutoff time.Duration) (int64, error)
	Start(ctx context.Context, trigger string, at time.Time) (uint64, error)
	Finish(ctx context.Context, id uint64, o Outcome) error
}

type Cycler interface {
	RunCycle(ctx context.Context, now time.Time) (scheduler.Report, error)
}

// Service runs a cycle and keeps the ledger row in step with it.
type Service struct {
	Ledger Ledger
	Engine Cycler
	Log    zerolog.Logger
}

func (s *Service) Run(ctx context.Context, trigger string, now time.Time) (scheduler.Report, error) {
	log := s.Log.With().Str("trigger", trigger).Logger()

	if n, err := s.Ledger.ReapStale(ctx, StaleAfter); err != nil {
		log.Warn().Err(err).Msg("reap stale runs")
	} else if n > 0 {
		log.Warn().Int64("count", n).Msg("abandoned runs reaped")
	}

	id, err := s.Ledger.Start(ctx, trigger, now)
	if err != nil {
		return scheduler.Report{At: now.UTC()}, err
	}

	rep, runErr := s.Engine.RunCycle(ctx, now)

	o := Outcome{
		Status:    StatusDone,
		Task:      rep.Task.Slug,
		Attempted: rep.Attempted,
		Sent:      rep.Sent,
		Skipped:   rep.Skipped,
		Failed:    rep.Failed,
		Uncertain: rep.Uncertain,
		FailedIDs: rep.FailedIDs,
	}
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		o.Status, o.Err = StatusCancelled, runErr.Error()
	default:
		o.Status, o.Err = StatusFailed, runErr.Error()
	}

	// the cycle's ctx may be gone by now
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.Ledger.Finish(fctx, id, o); err != nil {
		log.Error().Err(err).Uint64("run", id).Msg("record cycle outcome")
	}

	log.Info().Uint64("run", id).Str("status", o.Status).Msg(rep.String())
	return rep, runErr
}
