package journal_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/eng540/Falsniper/internal/journal"
	"github.com/eng540/Falsniper/internal/testsupport"
)

func TestOpenCreatesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)

	ctx := context.Background()
	run, err := store.StartRun(ctx, "run-0001", 4)
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if run.ID == 0 {
		t.Fatal("expected run ID to be assigned")
	}
	if run.Outcome != journal.OutcomeRunning {
		t.Fatalf("new run outcome = %q, want running", run.Outcome)
	}
	if run.Workers != 4 {
		t.Fatalf("run workers = %d, want 4", run.Workers)
	}
	if run.Finished() {
		t.Fatal("new run must not be finished")
	}
}

func TestStartRunRequiresID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)

	if _, err := store.StartRun(context.Background(), "  ", 1); err == nil {
		t.Fatal("expected error for blank run id")
	}
}

func TestFinishRunRecordsOutcome(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()

	testsupport.StartRun(t, store, "run-0002", 3)
	err := store.FinishRun(ctx, "run-0002", journal.OutcomeBooked, "attacker-1", "https://example.org/confirm")
	if err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	run, err := store.GetRun(ctx, "run-0002")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run == nil {
		t.Fatal("run not found after finish")
	}
	if !run.Finished() {
		t.Fatal("run should be finished")
	}
	if run.Outcome != journal.OutcomeBooked {
		t.Fatalf("outcome = %q, want booked", run.Outcome)
	}
	if run.BookedBy != "attacker-1" || run.BookedURL != "https://example.org/confirm" {
		t.Fatalf("booked fields = (%q, %q), unexpected", run.BookedBy, run.BookedURL)
	}
	if time.Since(run.FinishedAt) > time.Minute {
		t.Fatalf("finished_at %v is implausibly old", run.FinishedAt)
	}
}

func TestUpdateRunStats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()

	testsupport.StartRun(t, store, "run-0003", 2)
	if err := store.UpdateRunStats(ctx, "run-0003", 120, 3, 5, 17); err != nil {
		t.Fatalf("UpdateRunStats failed: %v", err)
	}

	run, err := store.GetRun(ctx, "run-0003")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.Scans != 120 || run.TargetsFound != 3 || run.Claims != 5 || run.SubmitAttempts != 17 {
		t.Fatalf("stats = (%d, %d, %d, %d), want (120, 3, 5, 17)",
			run.Scans, run.TargetsFound, run.Claims, run.SubmitAttempts)
	}
}

func TestEventsRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()

	testsupport.StartRun(t, store, "run-0004", 1)
	kinds := []string{"target_found", "claim_started", "submit_attempt"}
	for i, kind := range kinds {
		detail := fmt.Sprintf("detail-%d", i)
		if err := store.RecordEvent(ctx, "run-0004", "scout", kind, detail); err != nil {
			t.Fatalf("RecordEvent(%s) failed: %v", kind, err)
		}
	}
	if err := store.RecordEvent(ctx, "run-0004", "attacker-1", "booked", ""); err != nil {
		t.Fatalf("RecordEvent with empty detail failed: %v", err)
	}

	events, err := store.EventsForRun(ctx, "run-0004", 0)
	if err != nil {
		t.Fatalf("EventsForRun failed: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4", len(events))
	}
	for i, kind := range kinds {
		if events[i].Kind != kind {
			t.Errorf("event %d kind = %q, want %q (order must be insertion order)", i, events[i].Kind, kind)
		}
	}
	if events[3].Detail != "" {
		t.Errorf("empty detail should round-trip empty, got %q", events[3].Detail)
	}
	if events[3].Worker != "attacker-1" {
		t.Errorf("event worker = %q, want attacker-1", events[3].Worker)
	}
}

func TestGetRunMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)

	run, err := store.GetRun(context.Background(), "no-such-run")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run != nil {
		t.Fatalf("expected nil for missing run, got %#v", run)
	}
}

func TestRecentRunsNewestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		testsupport.StartRun(t, store, fmt.Sprintf("run-%04d", i), 1)
		// started_at must differ for the ordering to be observable.
		time.Sleep(5 * time.Millisecond)
	}

	runs, err := store.RecentRuns(ctx, 2)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].RunID != "run-0003" || runs[1].RunID != "run-0002" {
		t.Fatalf("order = [%s, %s], want newest first", runs[0].RunID, runs[1].RunID)
	}
}

func TestStatsAggregates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()

	testsupport.StartRun(t, store, "run-a", 2)
	if err := store.UpdateRunStats(ctx, "run-a", 50, 1, 2, 9); err != nil {
		t.Fatalf("UpdateRunStats failed: %v", err)
	}
	if err := store.FinishRun(ctx, "run-a", journal.OutcomeBooked, "attacker-2", "https://example.org/ok"); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	testsupport.StartRun(t, store, "run-b", 2)
	if err := store.UpdateRunStats(ctx, "run-b", 30, 0, 1, 4); err != nil {
		t.Fatalf("UpdateRunStats failed: %v", err)
	}
	if err := store.FinishRun(ctx, "run-b", journal.OutcomeAborted, "", ""); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	totals, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if totals.Runs != 2 || totals.Booked != 1 {
		t.Fatalf("totals = %d runs / %d booked, want 2 / 1", totals.Runs, totals.Booked)
	}
	if totals.Scans != 80 || totals.Claims != 3 {
		t.Fatalf("totals = %d scans / %d claims, want 80 / 3", totals.Scans, totals.Claims)
	}
	if totals.LastBooked.IsZero() {
		t.Fatal("LastBooked should be set after a booked run")
	}
}

func TestClearWipesHistory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()

	testsupport.StartRun(t, store, "run-z", 1)
	if err := store.RecordEvent(ctx, "run-z", "scout", "target_found", "day 15"); err != nil {
		t.Fatalf("RecordEvent failed: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	runs, err := store.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no runs after clear, got %d", len(runs))
	}
	totals, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if totals.Runs != 0 {
		t.Fatalf("totals.Runs = %d after clear, want 0", totals.Runs)
	}
}
