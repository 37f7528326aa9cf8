package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/eng540/Falsniper/internal/journal"
)

func newJournalCommand(ctx *commandContext) *cobra.Command {
	journalCmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect recorded hunts",
	}

	journalCmd.AddCommand(newJournalListCommand(ctx))
	journalCmd.AddCommand(newJournalEventsCommand(ctx))
	journalCmd.AddCommand(newJournalStatsCommand(ctx))
	journalCmd.AddCommand(newJournalClearCommand(ctx))

	return journalCmd
}

func newJournalListCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openJournal()
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded yet")
				return nil
			}

			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					run.RunID,
					humanize.Time(run.StartedAt),
					runDuration(run),
					run.Outcome,
					strconv.Itoa(run.Scans),
					strconv.Itoa(run.Claims),
					strconv.Itoa(run.SubmitAttempts),
					run.BookedBy,
				})
			}
			fmt.Fprintln(out, renderTable(out,
				[]string{"Run", "Started", "Duration", "Outcome", "Scans", "Claims", "Submits", "Booked by"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to show")
	return cmd
}

func newJournalEventsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "events <run-id>",
		Short: "Show the event trail of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openJournal()
			if err != nil {
				return err
			}
			defer store.Close()

			runID := args[0]
			run, err := store.GetRun(cmd.Context(), runID)
			if err != nil {
				return err
			}
			if run == nil {
				return fmt.Errorf("run %s not found", runID)
			}
			events, err := store.EventsForRun(cmd.Context(), runID, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(events) == 0 {
				fmt.Fprintln(out, "No events recorded for this run")
				return nil
			}

			rows := make([][]string, 0, len(events))
			for _, ev := range events {
				rows = append(rows, []string{
					ev.OccurredAt.Format("15:04:05"),
					ev.Worker,
					ev.Kind,
					ev.Detail,
				})
			}
			fmt.Fprintln(out, renderTable(out,
				[]string{"Time", "Worker", "Kind", "Detail"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 200, "Maximum events to show")
	return cmd
}

func newJournalStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Aggregate hunt statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openJournal()
			if err != nil {
				return err
			}
			defer store.Close()

			totals, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Runs:         %d\n", totals.Runs)
			fmt.Fprintf(out, "Booked:       %d\n", totals.Booked)
			fmt.Fprintf(out, "Total scans:  %d\n", totals.Scans)
			fmt.Fprintf(out, "Total claims: %d\n", totals.Claims)
			if totals.LastBooked.IsZero() {
				fmt.Fprintln(out, "Last booking: never")
			} else {
				fmt.Fprintf(out, "Last booking: %s\n", humanize.Time(totals.LastBooked))
			}
			return nil
		},
	}
}

func newJournalClearCommand(ctx *commandContext) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all recorded runs and events",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear the journal without --yes")
			}
			store, err := ctx.openJournal()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Journal cleared")
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the deletion")
	return cmd
}

func runDuration(run *journal.Run) string {
	if run.FinishedAt.IsZero() {
		return "running"
	}
	d := run.FinishedAt.Sub(run.StartedAt).Round(time.Second)
	if d < 0 {
		d = 0
	}
	return d.String()
}
