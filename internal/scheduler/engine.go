package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"leetmail/internal/leetcode"
	"leetmail/internal/mail"
	"leetmail/internal/slot"
	"leetmail/internal/subscriber"
)

// ErrFatalRun means the cycle could not start: no daily problem, no subscribers list.
var ErrFatalRun = errors.New("scheduling cycle aborted")

type TaskProvider interface {
	DailyProblem(ctx context.Context) (leetcode.Problem, error)
}

// CompletionOracle answers whether a user already solved the problem.
// An error means "unknown", never "not solved".
type CompletionOracle interface {
	SolvedToday(ctx context.Context, username, slug string) (bool, error)
}

type Store interface {
	ListEligible(ctx context.Context) ([]subscriber.Subscriber, error)
	Reserve(ctx context.Context, id uint64, date time.Time, slotName string) (subscriber.Reservation, error)
}

// Policy decides what an unknown completion status means.
type Policy int

const (
	// FailOpen notifies when completion cannot be confirmed.
	FailOpen Policy = iota
	// FailClosed skips the subscriber for this cycle instead.
	FailClosed
)

func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "open":
		return FailOpen, nil
	case "closed":
		return FailClosed, nil
	default:
		return FailOpen, fmt.Errorf("unknown fail policy %q (open|closed)", s)
	}
}

func (p Policy) String() string {
	if p == FailClosed {
		return "closed"
	}
	return "open"
}

type Config struct {
	Slots           slot.Table
	PublicURL       string
	Concurrency     int
	RatePerSec      float64
	TaskTimeout     time.Duration
	OracleTimeout   time.Duration
	DeliveryTimeout time.Duration
	OnUncertain     Policy
}

func (c *Config) setDefaults() {
	if len(c.Slots) == 0 {
		c.Slots = slot.Default
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 5
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 10 * time.Second
	}
	if c.OracleTimeout <= 0 {
		c.OracleTimeout = 10 * time.Second
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = 20 * time.Second
	}
}

// commitGrace is how long a reservation may outlive its delivery so a sent
// email still gets its marker written after the cycle is cancelled.
const commitGrace = 10 * time.Second

type Engine struct {
	cfg     Config
	tasks   TaskProvider
	oracle  CompletionOracle
	store   Store
	sender  mail.Sender
	links   subscriber.Links
	limiter *rate.Limiter
	log     zerolog.Logger

	commitGrace time.Duration
}

func New(cfg Config, tasks TaskProvider, oracle CompletionOracle, store Store, sender mail.Sender, log zerolog.Logger) *Engine {
	cfg.setDefaults()
	burst := int(cfg.RatePerSec)
	if burst < 1 {
		burst = 1
	}
	return &Engine{
		cfg:     cfg,
		tasks:   tasks,
		oracle:  oracle,
		store:   store,
		sender:  sender,
		links:   subscriber.Links{Base: cfg.PublicURL},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst),
		log:     log.With().Str("comp", "scheduler").Logger(),

		commitGrace: commitGrace,
	}
}

// Report summarises one cycle. Attempted == Sent + Skipped + Failed.
type Report struct {
	At        time.Time        `json:"at"`
	Task      leetcode.Problem `json:"task"`
	Attempted int              `json:"attempted"`
	Sent      int              `json:"sent"`
	Skipped   int              `json:"skipped"`
	Failed    int              `json:"failed"`
	Uncertain int              `json:"uncertain"`
	FailedIDs []uint64         `json:"failed_ids,omitempty"`
	Fatal     string           `json:"fatal,omitempty"`
}

func (r Report) String() string {
	if r.Fatal != "" {
		return "Scheduler aborted: " + r.Fatal
	}
	return fmt.Sprintf("Scheduler completed. Attempted: %d, Sent: %d, Skipped: %d, Failed: %d",
		r.Attempted, r.Sent, r.Skipped, r.Failed)
}

type outcome int

const (
	sent outcome = iota
	skipped
	failed
)

// RunCycle evaluates every eligible subscriber once at instant now.
// Per-subscriber failures end up in the report; only a missing daily
// problem or subscriber list aborts. If ctx is cancelled, subscribers not
// yet started are left for the next cycle and ctx.Err() is returned.
func (e *Engine) RunCycle(ctx context.Context, now time.Time) (Report, error) {
	rep := Report{At: now.UTC()}

	tctx, cancel := context.WithTimeout(ctx, e.cfg.TaskTimeout)
	task, err := e.tasks.DailyProblem(tctx)
	cancel()
	if err != nil {
		rep.Fatal = "fetch daily problem: " + err.Error()
		e.log.Error().Err(err).Msg("cannot fetch daily problem, aborting cycle")
		return rep, fmt.Errorf("%w: fetch daily problem: %w", ErrFatalRun, err)
	}
	rep.Task = task

	subs, err := e.store.ListEligible(ctx)
	if err != nil {
		rep.Fatal = "list subscribers: " + err.Error()
		e.log.Error().Err(err).Msg("cannot list subscribers, aborting cycle")
		return rep, fmt.Errorf("%w: list subscribers: %w", ErrFatalRun, err)
	}

	var mu sync.Mutex
	record := func(id uint64, u outcome, uncertain bool) {
		mu.Lock()
		defer mu.Unlock()
		rep.Attempted++
		switch u {
		case sent:
			rep.Sent++
		case skipped:
			rep.Skipped++
		case failed:
			rep.Failed++
			rep.FailedIDs = append(rep.FailedIDs, id)
		}
		if uncertain {
			rep.Uncertain++
		}
	}

	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for _, sub := range subs {
		if ctx.Err() != nil {
			break
		}
		sub := sub
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			u, uncertain := e.process(ctx, now, task, sub)
			record(sub.ID, u, uncertain)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(rep.FailedIDs, func(i, j int) bool { return rep.FailedIDs[i] < rep.FailedIDs[j] })

	ev := e.log.Info()
	if rep.Failed > 0 {
		ev = e.log.Warn()
	}
	ev.Str("task", task.Slug).
		Int("eligible", len(subs)).
		Int("attempted", rep.Attempted).
		Int("sent", rep.Sent).
		Int("skipped", rep.Skipped).
		Int("failed", rep.Failed).
		Int("uncertain", rep.Uncertain).
		Msg("cycle finished")

	if err := ctx.Err(); err != nil {
		return rep, err
	}
	return rep, nil
}

func (e *Engine) process(ctx context.Context, now time.Time, task leetcode.Problem, sub subscriber.Subscriber) (outcome, bool) {
	log := e.log.With().Uint64("sub", sub.ID).Str("tz", sub.Timezone).Logger()

	s, ok, err := slot.Resolve(now, sub.Timezone, e.cfg.Slots)
	if err != nil {
		log.Warn().Err(err).Msg("invalid timezone, skipping subscriber")
		return failed, false
	}
	if !ok {
		return skipped, false
	}
	// cached by Resolve
	loc, _ := slot.LoadLocation(sub.Timezone)
	today := slot.LocalDate(now, loc)
	log = log.With().Str("slot", s.Name).Logger()

	if sub.Notified(today, s.Name) {
		log.Debug().Msg("already notified this slot")
		return skipped, false
	}

	octx, cancel := context.WithTimeout(ctx, e.cfg.OracleTimeout)
	solved, err := e.oracle.SolvedToday(octx, sub.LeetcodeUsername, task.Slug)
	cancel()
	uncertain := false
	switch {
	case err != nil && ctx.Err() != nil:
		return failed, false
	case err != nil:
		uncertain = true
		if e.cfg.OnUncertain == FailClosed {
			log.Warn().Err(err).Msg("completion unknown, skipping (fail closed)")
			return skipped, true
		}
		log.Warn().Err(err).Msg("completion unknown, notifying anyway (fail open)")
	case solved:
		log.Debug().Msg("already solved")
		return skipped, false
	}

	// Wait for a delivery token before the row is held: the reservation
	// budget covers only delivery and commit.
	if err := e.limiter.Wait(ctx); err != nil {
		return failed, uncertain
	}

	// The reservation outlives ctx: a sent email must still get its marker
	// when the cycle is cancelled mid-delivery.
	rctx, rcancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.DeliveryTimeout+e.commitGrace)
	defer rcancel()
	res, err := e.store.Reserve(rctx, sub.ID, today, s.Name)
	switch {
	case errors.Is(err, subscriber.ErrBusy), errors.Is(err, subscriber.ErrAlreadyNotified):
		log.Debug().Err(err).Msg("reservation declined")
		return skipped, uncertain
	case err != nil:
		log.Error().Err(err).Msg("reserve subscriber")
		return failed, uncertain
	}

	// Build from the locked row: token and email are current.
	locked := res.Subscriber()
	msg, err := compose(e.cfg.Slots, s, task, locked.Email, e.links.Unsubscribe(locked.VerificationToken))
	if err != nil {
		res.Release()
		log.Error().Err(err).Msg("compose message")
		return failed, uncertain
	}

	dctx, dcancel := context.WithTimeout(ctx, e.cfg.DeliveryTimeout)
	err = e.sender.Send(dctx, msg)
	dcancel()
	if err != nil {
		res.Release()
		log.Warn().Err(err).Msg("delivery failed, will retry next cycle")
		return failed, uncertain
	}

	if err := res.Commit(); err != nil {
		// the email went out; without the marker the next cycle may send again
		log.Error().Err(err).Msg("delivered but marker not committed")
		return failed, uncertain
	}
	log.Info().Msg("notified")
	return sent, uncertain
}
