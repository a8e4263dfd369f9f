package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"leetmail/internal/db"
	httpx "leetmail/internal/http"
	"leetmail/internal/runs"
	"leetmail/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and, when SCHEDULE is set, run cycles in-process",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		if v.GetBool("migrate") {
			if err := db.AutoMigrateAndIndexes(a.db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}

		deps := httpx.Deps{
			Subscriptions: a.subs,
			Runner:        a.cycles,
			Runs:          a.runs,
			CycleTimeout:  a.cfg.CycleTimeout,
			Log:           a.log,
		}
		jwtCfg := a.cfg
		if err := a.cfg.RequireTrigger(); err != nil {
			// /cron answers 401 to everything until a trigger secret is configured
			a.log.Warn().Err(err).Msg("HTTP trigger disabled")
			jwtCfg.JWTSecret = uuid.NewString() + uuid.NewString()
		} else {
			deps.Secret = cronSecret(a.cfg)
		}
		deps.JWT = newJWT(jwtCfg)

		var trigger *scheduler.Trigger
		if a.cfg.Schedule != "" {
			trigger, err = scheduler.NewTrigger(a.cfg.Schedule, func(ctx context.Context, now time.Time) error {
				_, err := a.cycles.Run(ctx, runs.TriggerCron, now)
				return err
			}, a.log)
			if err != nil {
				return err
			}
			trigger.Start(ctx)
		}

		srv := &http.Server{
			Addr:              a.cfg.HTTPAddr,
			Handler:           httpx.NewRouter(a.cfg, deps),
			ReadHeaderTimeout: 5 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			a.log.Info().Str("addr", a.cfg.HTTPAddr).Msg("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
		_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

		select {
		case <-ctx.Done():
			a.log.Info().Msg("shutting down")
		case err := <-errCh:
			return err
		}
		_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if trigger != nil {
			trigger.Stop(shutdownCtx)
		}
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().String("http_addr", ":8080", "Listen address")
	serveCmd.Flags().String("schedule", "", "Cron spec for in-process cycles, e.g. \"1 * * * *\" (empty disables)")
	serveCmd.Flags().Bool("migrate", false, "Run database migrations before serving")
	bindFlags(v, serveCmd.Flags(), "http_addr", "schedule", "migrate")
}
