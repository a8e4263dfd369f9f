package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"leetmail/internal/runs"
	"leetmail/internal/subscriber"
)

func Connect(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	return gdb, nil
}

func AutoMigrateAndIndexes(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&subscriber.Subscriber{},
		&runs.CycleRun{},
	); err != nil {
		return err
	}

	stmts := []string{
		// the scheduler only ever scans active subscribers
		`create index if not exists idx_subscribers_eligible on subscribers(id) where email_verified and not unsubscribed;`,
		`create index if not exists idx_cycle_runs_running on cycle_runs(started_at) where status = 'RUNNING';`,
		`create index if not exists idx_cycle_runs_started on cycle_runs(started_at desc);`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}
	return nil
}
