package runs

import (
	"context"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

type Repo struct {
	DB *gorm.DB
}

// Outcome is what a finished cycle writes back to its row.
type Outcome struct {
	Status    string
	Task      string
	Attempted int
	Sent      int
	Skipped   int
	Failed    int
	Uncertain int
	FailedIDs []uint64
	Err       string
}

func (r *Repo) Start(ctx context.Context, trigger string, at time.Time) (uint64, error) {
	run := CycleRun{
		Trigger:   trigger,
		Status:    StatusRunning,
		At:        at.UTC(),
		StartedAt: time.Now(),
	}
	if err := r.DB.WithContext(ctx).Create(&run).Error; err != nil {
		return 0, err
	}
	return run.ID, nil
}

func (r *Repo) Finish(ctx context.Context, id uint64, o Outcome) error {
	ids := make(pq.Int64Array, 0, len(o.FailedIDs))
	for _, v := range o.FailedIDs {
		ids = append(ids, int64(v))
	}
	return r.DB.WithContext(ctx).Exec(`
update cycle_runs
set status=?,
    task=nullif(?, ''),
    attempted=?, sent=?, skipped=?, failed=?, uncertain=?,
    failed_ids=?,
    last_error=nullif(?, ''),
    finished_at=now()
where id=? and status='RUNNING'`,
		o.Status, o.Task, o.Attempted, o.Sent, o.Skipped, o.Failed, o.Uncertain, ids, o.Err, id).Error
}

// ReapStale marks RUNNING rows older than cutoff as ABANDONED. Those belong
// to a process that died mid-cycle.
func (r *Repo) ReapStale(ctx context.Context, cutoff time.Duration) (int64, error) {
	res := r.DB.WithContext(ctx).Exec(`
update cycle_runs
set status='ABANDONED', last_error='process exited before the cycle finished', finished_at=now()
where status='RUNNING' and started_at < now() - make_interval(secs => ?)`, cutoff.Seconds())
	return res.RowsAffected, res.Error
}

func (r *Repo) Recent(ctx context.Context, limit int) ([]CycleRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	var out []CycleRun
	err := r.DB.WithContext(ctx).Order("id desc").Limit(limit).Find(&out).Error
	return out, err
}
