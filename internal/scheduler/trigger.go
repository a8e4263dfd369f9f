package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// RunFunc runs one cycle at instant now.
type RunFunc func(ctx context.Context, now time.Time) error

// Trigger fires cycles on a cron schedule inside the process. A tick that
// arrives while the previous cycle is still running is dropped; slot hours
// are wide enough that the next tick catches up.
type Trigger struct {
	spec string
	run  RunFunc
	log  zerolog.Logger

	parser cron.Parser
	c      *cron.Cron

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool
}

func NewTrigger(spec string, run RunFunc, log zerolog.Logger) (*Trigger, error) {
	p := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := p.Parse(spec); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return &Trigger{
		spec:   spec,
		run:    run,
		log:    log.With().Str("comp", "trigger").Logger(),
		parser: p,
	}, nil
}

func (t *Trigger) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.c != nil {
		return
	}
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.c = cron.New(cron.WithParser(t.parser), cron.WithLocation(time.UTC))
	// spec was validated in NewTrigger
	_, _ = t.c.AddFunc(t.spec, t.fire)
	t.c.Start()
	t.log.Info().Str("spec", t.spec).Msg("trigger started")
}

// Stop cancels an in-flight cycle and waits for it to return or ctx to expire.
func (t *Trigger) Stop(ctx context.Context) {
	t.mu.Lock()
	c, cancel := t.c, t.cancel
	t.c = nil
	t.mu.Unlock()
	if c == nil {
		return
	}

	done := c.Stop()
	cancel()
	select {
	case <-done.Done():
	case <-ctx.Done():
		t.log.Warn().Msg("trigger stop timed out with a cycle still running")
	}
}

func (t *Trigger) fire() {
	if !t.running.CompareAndSwap(false, true) {
		t.log.Warn().Msg("previous cycle still running, skipping tick")
		return
	}
	defer t.running.Store(false)

	t.mu.Lock()
	ctx := t.ctx
	t.mu.Unlock()

	if err := t.run(ctx, time.Now()); err != nil {
		t.log.Error().Err(err).Msg("scheduled cycle failed")
	}
}
