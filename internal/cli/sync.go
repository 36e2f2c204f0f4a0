package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/graceworks/missionsync/internal/service"
	"github.com/graceworks/missionsync/pkg/infra"
	"github.com/graceworks/missionsync/pkg/metrics"
	"github.com/graceworks/missionsync/pkg/output"
)

const maxReportedErrors = 10

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync ServePoint events and rosters into Beacon",
	Long: `Sync mirrors every ServePoint event into Beacon, then reconciles each
roster member to a constituent and keeps the event participants current.

Re-running is always safe: events and constituents resolve through the
persisted ID mappings and nothing is created twice.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eventID, _ := cmd.Flags().GetString("event")
		watch, _ := cmd.Flags().GetBool("watch")
		interval, _ := cmd.Flags().GetDuration("interval")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		rt, err := buildRuntime(dryRun)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		if watch {
			if eventID != "" {
				return fmt.Errorf("--watch and --event are mutually exclusive")
			}
			go startObservabilityServer(cfg.MetricsAddr, logger)
			return watchLoop(ctx, rt, interval)
		}

		var sum *service.RunSummary
		if eventID != "" {
			sum, err = rt.orch.RunEvent(ctx, eventID)
		} else {
			sum, err = rt.orch.RunFull(ctx)
		}
		if sum != nil {
			printSyncReport(sum, dryRun)
		}
		if err != nil {
			return err
		}
		if sum.HasErrors() {
			return fmt.Errorf("%d records failed, see %s for details", len(sum.Errors), cfg.LogFile)
		}
		output.Success("Sync complete in %s", sum.Duration.Round(time.Millisecond))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().String("event", "", "sync a single ServePoint event by ID")
	syncCmd.Flags().Bool("watch", false, "run continuously and serve Prometheus metrics")
	syncCmd.Flags().Duration("interval", 15*time.Minute, "delay between runs in watch mode")
	syncCmd.Flags().Bool("dry-run", false, "log intended writes without changing Beacon")
}

// watchLoop re-runs the full sync forever. Failed runs back off with
// jitter so a struggling remote API is not hammered on a fixed beat;
// successful runs reset the backoff and wait out the interval.
func watchLoop(ctx context.Context, rt *runtime, interval time.Duration) error {
	logger.Info("🚀 Watch mode started", "interval", interval.String(), "pid", os.Getpid())
	backoff := infra.NewBackoff(time.Minute, 30*time.Minute, 2.0)

	for {
		sum, err := rt.orch.RunFull(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info("👋 Shutting down watch loop...")
				return nil
			}
			metrics.HealthStatus.Set(0)
			wait := backoff.Next()
			logger.Error("Sync run failed, backing off",
				"retry_in", wait.String(),
				"attempt", backoff.Attempts(),
				"error", err,
			)
			if err := infra.Sleep(ctx, wait); err != nil {
				logger.Info("👋 Shutting down watch loop...")
				return nil
			}
			continue
		}

		metrics.HealthStatus.Set(1)
		backoff.Reset()
		if sum.HasErrors() {
			logger.Warn("Run finished with record failures", "failed", len(sum.Errors))
		}

		select {
		case <-ctx.Done():
			logger.Info("👋 Shutting down watch loop...")
			return nil
		case <-time.After(interval):
		}
	}
}

// startObservabilityServer exposes Prometheus metrics and a liveness
// endpoint while watch mode runs.
func startObservabilityServer(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("MISSIONSYNC ALIVE"))
	})

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	logger.Info("📊 Observability server online", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Observability server failed", "error", err)
	}
}

func printSyncReport(sum *service.RunSummary, dryRun bool) {
	if dryRun {
		output.Warn("Dry run, nothing was written")
	}
	t := output.NewTable("RECORD", "CREATED", "MATCHED", "UPDATED", "UNCHANGED", "SKIPPED")
	t.AddRow("events",
		strconv.Itoa(sum.EventsCreated), strconv.Itoa(sum.EventsMatched), "-", "-", "-")
	t.AddRow("constituents",
		strconv.Itoa(sum.ConstituentsCreated), strconv.Itoa(sum.ConstituentsMatched), "-", "-", "-")
	t.AddRow("participants",
		strconv.Itoa(sum.ParticipantsCreated), "-",
		strconv.Itoa(sum.ParticipantsUpdated),
		strconv.Itoa(sum.ParticipantsUnchanged),
		strconv.Itoa(sum.ParticipantsSkipped))
	t.Render()
	printRunErrors(sum)
}

func printRunErrors(sum *service.RunSummary) {
	for i, msg := range sum.Errors {
		if i == maxReportedErrors {
			output.Warn("...and %d more, see %s", len(sum.Errors)-maxReportedErrors, cfg.LogFile)
			return
		}
		output.Error("%s", msg)
	}
}
