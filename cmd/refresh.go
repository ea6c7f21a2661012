package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marketglass/marketglass/internal/app"
	"github.com/marketglass/marketglass/internal/status"
)

func newRefreshCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Run one full refresh and exit",
		Long: `Fetches the seller's inventory and store statistics once, reconciles
the result into the persisted store, and exits. The exit status reflects
the refresh: non-zero when a fetch failed or a captcha challenge blocked
it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// A single pass: no periodic ticker, no cron, no debug server.
			cfg.ScrapeInterval = 0
			cfg.RefreshSchedule = ""
			cfg.DebugListen = ""

			a, err := app.Build(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			done := make(chan error, 1)
			go func() { done <- a.Run(ctx) }()

			rep, waitErr := waitForSettle(ctx, a)
			cancel()
			runErr := <-done
			if waitErr != nil {
				return waitErr
			}
			if runErr != nil {
				return runErr
			}
			return reportRefresh(cmd, a, rep)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "abort the refresh after this long")
	return cmd
}

// waitForSettle blocks until the engine's batch has settled. Success and
// error activity are terminal; so is a return to idle after at least one
// attempt, which covers a hold expiring between polls.
func waitForSettle(ctx context.Context, a *app.App) (status.Report, error) {
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return status.Report{}, fmt.Errorf("refresh did not settle: %w", ctx.Err())
		case <-tick.C:
			rep := a.Monitor().Report()
			switch rep.Activity {
			case status.ActivitySuccess, status.ActivityError:
				return rep, nil
			case status.ActivityIdle:
				if rep.Window.Total > 0 {
					return rep, nil
				}
			}
		}
	}
}

func reportRefresh(cmd *cobra.Command, a *app.App, rep status.Report) error {
	if len(rep.CaptchaBlocked) > 0 {
		return fmt.Errorf("captcha challenge blocked %s; open the seller page in a browser, solve it, and retry",
			strings.Join(rep.CaptchaBlocked, ", "))
	}
	if rep.Activity == status.ActivityError || rep.Window.Failures > 0 {
		if rep.LastError != "" {
			return fmt.Errorf("refresh finished with failures: %s", rep.LastError)
		}
		return fmt.Errorf("refresh finished with %d failed attempts", rep.Window.Failures)
	}

	snap := a.State().Current()
	fmt.Fprintf(cmd.OutOrStdout(), "refresh complete: snapshot v%d, %d active listings\n",
		snap.Version, len(snap.Active()))
	return nil
}
