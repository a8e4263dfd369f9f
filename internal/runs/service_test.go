package runs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"leetmail/internal/leetcode"
	"leetmail/internal/scheduler"
)

type fakeLedger struct {
	reaped   int
	started  []string
	finished map[uint64]Outcome
	startErr error
}

func (f *fakeLedger) ReapStale(ctx context.Context, cutoff time.Duration) (int64, error) {
	f.reaped++
	return 0, nil
}

func (f *fakeLedger) Start(ctx context.Context, trigger string, at time.Time) (uint64, error) {
	if f.startErr != nil {
		return 0, f.startErr
	}
	f.started = append(f.started, trigger)
	return uint64(len(f.started)), nil
}

func (f *fakeLedger) Finish(ctx context.Context, id uint64, o Outcome) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if f.finished == nil {
		f.finished = map[uint64]Outcome{}
	}
	f.finished[id] = o
	return nil
}

type fakeCycler struct {
	rep scheduler.Report
	err error
}

func (f fakeCycler) RunCycle(ctx context.Context, now time.Time) (scheduler.Report, error) {
	return f.rep, f.err
}

func TestServiceRecordsOutcome(t *testing.T) {
	t.Parallel()
	fatal := errors.Join(scheduler.ErrFatalRun, leetcode.ErrUnreachable)
	tests := []struct {
		name   string
		cycler fakeCycler
		status string
	}{
		{
			name: "done",
			cycler: fakeCycler{rep: scheduler.Report{
				Task: leetcode.Problem{Slug: "two-sum"}, Attempted: 3, Sent: 1, Skipped: 1, Failed: 1, FailedIDs: []uint64{7},
			}},
			status: StatusDone,
		},
		{name: "fatal", cycler: fakeCycler{err: fatal}, status: StatusFailed},
		{name: "cancelled", cycler: fakeCycler{err: context.Canceled}, status: StatusCancelled},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			led := &fakeLedger{}
			svc := &Service{Ledger: led, Engine: tt.cycler, Log: zerolog.Nop()}

			rep, err := svc.Run(context.Background(), TriggerHTTP, time.Now())
			if !errors.Is(err, tt.cycler.err) {
				t.Fatalf("Run error = %v, want %v", err, tt.cycler.err)
			}
			if rep.Attempted != tt.cycler.rep.Attempted {
				t.Fatalf("report not passed through: %+v", rep)
			}
			if led.reaped != 1 || len(led.started) != 1 || led.started[0] != TriggerHTTP {
				t.Fatalf("ledger calls: reaped=%d started=%v", led.reaped, led.started)
			}
			o := led.finished[1]
			if o.Status != tt.status {
				t.Fatalf("status = %q, want %q", o.Status, tt.status)
			}
			if tt.status == StatusDone && (o.Task != "two-sum" || o.Failed != 1 || len(o.FailedIDs) != 1) {
				t.Fatalf("outcome = %+v", o)
			}
			if tt.status != StatusDone && o.Err == "" {
				t.Fatal("error not recorded")
			}
		})
	}
}

func TestServiceFinishesAfterCancel(t *testing.T) {
	t.Parallel()
	led := &fakeLedger{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := &Service{Ledger: led, Engine: fakeCycler{err: context.Canceled}, Log: zerolog.Nop()}

	_, _ = svc.Run(ctx, TriggerCron, time.Now())
	if o, ok := led.finished[1]; !ok || o.Status != StatusCancelled {
		t.Fatalf("finished = %+v, want a CANCELLED row", led.finished)
	}
}

func TestServiceStartFailure(t *testing.T) {
	t.Parallel()
	boom := errors.New("db down")
	svc := &Service{Ledger: &fakeLedger{startErr: boom}, Engine: fakeCycler{}, Log: zerolog.Nop()}
	if _, err := svc.Run(context.Background(), TriggerCLI, time.Now()); !errors.Is(err, boom) {
		t.Fatalf("Run error = %v, want %v", err, boom)
	}
}
