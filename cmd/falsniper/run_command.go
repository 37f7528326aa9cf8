package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/eng540/Falsniper/internal/clock"
	"github.com/eng540/Falsniper/internal/config"
	"github.com/eng540/Falsniper/internal/engine"
	"github.com/eng540/Falsniper/internal/journal"
	"github.com/eng540/Falsniper/internal/logging"
	"github.com/eng540/Falsniper/internal/profile"
)

// Restart policy for exhausted runs. A run that dies faster than minRuntime
// is charged against the quick-exit budget; a healthy-length run refills it.
const (
	minRuntime    = 30 * time.Second
	maxQuickExits = 5
	backoffStep   = 30 * time.Second
	maxBackoff    = 5 * time.Minute
)

func newRunCommand(cmdCtx *commandContext) *cobra.Command {
	var maxRuns int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Hunt for an appointment slot",
		Long: "Run the hunt in the foreground: one scout discovers open days, the attackers\n" +
			"claim and submit. The engine is restarted when it exhausts its cycles without\n" +
			"booking, until --max-runs is spent or a booking succeeds.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			lockPath := filepath.Join(cfg.Paths.LogDir, "falsniper.lock")
			lock := flock.New(lockPath)
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire lock: %w", err)
			}
			if !locked {
				return fmt.Errorf("another falsniper instance is already running (lock %s)", lockPath)
			}
			defer lock.Unlock() //nolint:errcheck

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			prof, err := profile.Load(cfg.Paths.ProfilePath)
			if err != nil {
				return err
			}

			store, err := journal.Open(cfg)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer store.Close()

			clk := buildClock(ctx, cfg, logger)

			return superviseRuns(ctx, cmd, runDeps{
				cfg:     cfg,
				prof:    &prof,
				store:   store,
				logger:  logger,
				clk:     clk,
				maxRuns: maxRuns,
			})
		},
	}

	cmd.Flags().IntVar(&maxRuns, "max-runs", 3, "Engine restarts before giving up (0 = unlimited)")
	return cmd
}

func buildClock(ctx context.Context, cfg *config.Config, logger *slog.Logger) clock.Clock {
	if !cfg.Clock.Enabled || len(cfg.Clock.Servers) == 0 {
		return clock.System()
	}
	corrected := clock.NewCorrected(cfg.Clock.Servers, cfg.ClockRequestTimeout(), cfg.ClockSampleInterval(), logger)
	go corrected.Run(ctx)
	return corrected
}

type runDeps struct {
	cfg     *config.Config
	prof    *profile.Profile
	store   *journal.Store
	logger  *slog.Logger
	clk     clock.Clock
	maxRuns int
}

// superviseRuns drives repeated engine runs until a booking, a stop signal,
// or the restart policy gives up.
func superviseRuns(ctx context.Context, cmd *cobra.Command, deps runDeps) error {
	out := cmd.OutOrStdout()
	quickExits := 0

	for attempt := 1; ; attempt++ {
		start := time.Now()
		coord, err := engine.New(deps.cfg, deps.prof, deps.store, deps.logger,
			engine.WithClock(deps.clk))
		if err != nil {
			return fmt.Errorf("build engine: %w", err)
		}

		res, err := coord.Run(ctx)
		if err != nil {
			return fmt.Errorf("engine run: %w", err)
		}
		elapsed := time.Since(start)

		switch res.Outcome {
		case journal.OutcomeBooked:
			fmt.Fprintf(out, "Appointment booked by %s after %s (run %s)\n",
				res.Booked.Worker, elapsed.Round(time.Second), res.RunID)
			fmt.Fprintf(out, "Confirmation page: %s\n", res.Booked.PageURL)
			return nil
		case journal.OutcomeAborted:
			return ctx.Err()
		}

		deps.logger.Warn("run exhausted without booking",
			logging.String(logging.FieldRunID, res.RunID),
			logging.Int(logging.FieldAttempt, attempt),
			logging.Duration("elapsed", elapsed),
			logging.Int("scans", res.Stats.Scans),
			logging.Int("claims", res.Stats.Claims),
		)

		if deps.maxRuns > 0 && attempt >= deps.maxRuns {
			return fmt.Errorf("no appointment booked after %d runs", attempt)
		}
		if elapsed < minRuntime {
			quickExits++
			if quickExits > maxQuickExits {
				return fmt.Errorf("engine exited %d times in under %s, giving up", quickExits, minRuntime)
			}
		} else {
			quickExits = 0
		}

		backoff := time.Duration(attempt) * backoffStep
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		deps.logger.Info("restarting engine", logging.Duration("backoff", backoff))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}
