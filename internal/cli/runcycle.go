package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"leetmail/internal/runs"
	"leetmail/internal/scheduler"
)

var runCycleCmd = &cobra.Command{
	Use:   "run-cycle",
	Short: "Run one scheduling cycle and print the report",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		now := time.Now()
		if at, _ := cmd.Flags().GetString("at"); at != "" {
			t, err := time.Parse(time.RFC3339, at)
			if err != nil {
				return fmt.Errorf("--at: %w", err)
			}
			now = t
		}

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		rep, err := a.cycles.Run(ctx, runs.TriggerCLI, now)
		fmt.Fprintln(cmd.OutOrStdout(), rep.String())
		if err != nil && !errors.Is(err, scheduler.ErrFatalRun) {
			return err
		}
		if rep.Fatal != "" || rep.Failed > 0 {
			return fmt.Errorf("cycle finished with failures")
		}
		return nil
	},
}

func init() {
	runCycleCmd.Flags().String("at", "", "Evaluate slots at this RFC3339 instant instead of now")
}
