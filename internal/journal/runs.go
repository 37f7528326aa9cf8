package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Run outcomes.
const (
	OutcomeRunning   = "running"
	OutcomeBooked    = "booked"
	OutcomeExhausted = "exhausted"
	OutcomeAborted   = "aborted"
)

// Event kinds. The set is closed; the engine never invents ad-hoc kinds.
const (
	KindTargetFound = "target_found"
	KindClaim       = "claim_started"
	KindSubmit      = "submit"
	KindBooked      = "booked"
	KindRebirth     = "rebirth"
	KindPoisoned    = "poisoned"
	KindPanic       = "panic"
	KindWorkerExit  = "worker_exit"
)

// Run is one engine invocation from start to stop.
type Run struct {
	ID             int64
	RunID          string
	StartedAt      time.Time
	FinishedAt     time.Time
	Outcome        string
	Workers        int
	Scans          int
	TargetsFound   int
	Claims         int
	SubmitAttempts int
	BookedBy       string
	BookedURL      string
}

// Finished reports whether the run has been closed out.
func (r *Run) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// Event is a notable moment inside a run.
type Event struct {
	ID         int64
	RunID      string
	OccurredAt time.Time
	Worker     string
	Kind       string
	Detail     string
}

// Totals aggregates history for reporting.
type Totals struct {
	Runs       int
	Booked     int
	Scans      int
	Claims     int
	LastBooked time.Time
}

const runColumns = "id, run_id, started_at, finished_at, outcome, workers, scans, targets_found, claims, submit_attempts, booked_by, booked_url"

// StartRun records a new engine invocation.
func (s *Store) StartRun(ctx context.Context, runID string, workers int) (*Run, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, errors.New("run id required")
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO runs (run_id, started_at, outcome, workers) VALUES (?, ?, ?, ?)`,
		runID,
		timestamp,
		OutcomeRunning,
		workers,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return s.GetRun(ctx, runID)
}

// FinishRun closes a run with its outcome. The booked fields may be empty
// for anything but OutcomeBooked.
func (s *Store) FinishRun(ctx context.Context, runID, outcome, bookedBy, bookedURL string) error {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	err := s.execWithoutResultRetry(
		ctx,
		`UPDATE runs SET finished_at = ?, outcome = ?, booked_by = ?, booked_url = ? WHERE run_id = ?`,
		timestamp,
		outcome,
		nullableString(bookedBy),
		nullableString(bookedURL),
		runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// UpdateRunStats overwrites the run's aggregate counters.
func (s *Store) UpdateRunStats(ctx context.Context, runID string, scans, targetsFound, claims, submitAttempts int) error {
	err := s.execWithoutResultRetry(
		ctx,
		`UPDATE runs SET scans = ?, targets_found = ?, claims = ?, submit_attempts = ? WHERE run_id = ?`,
		scans,
		targetsFound,
		claims,
		submitAttempts,
		runID,
	)
	if err != nil {
		return fmt.Errorf("update run stats: %w", err)
	}
	return nil
}

// RecordEvent appends a run event.
func (s *Store) RecordEvent(ctx context.Context, runID, worker, kind, detail string) error {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO run_events (run_id, occurred_at, worker, kind, detail) VALUES (?, ?, ?, ?, ?)`,
		runID,
		timestamp,
		worker,
		kind,
		nullableString(detail),
	)
	if err != nil {
		return fmt.Errorf("insert run event: %w", err)
	}
	return nil
}

// GetRun fetches one run by its run id.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		"SELECT "+runColumns+" FROM runs WHERE run_id = ?", runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// RecentRuns returns the newest runs first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]*Run, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+runColumns+" FROM runs ORDER BY started_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// EventsForRun returns a run's events oldest first.
func (s *Store) EventsForRun(ctx context.Context, runID string, limit int) ([]*Event, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, occurred_at, worker, kind, detail FROM run_events
         WHERE run_id = ? ORDER BY id ASC LIMIT ?`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("list run events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var (
			event      Event
			occurredAt string
			detail     sql.NullString
		)
		if err := rows.Scan(&event.ID, &event.RunID, &occurredAt, &event.Worker, &event.Kind, &detail); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		event.OccurredAt = parseTimestamp(occurredAt)
		event.Detail = detail.String
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run events: %w", err)
	}
	return events, nil
}

// Stats aggregates over the full history.
func (s *Store) Stats(ctx context.Context) (Totals, error) {
	ctx = ensureContext(ctx)
	var totals Totals

	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
                COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0),
                COALESCE(SUM(scans), 0),
                COALESCE(SUM(claims), 0)
         FROM runs`, OutcomeBooked)
	if err := row.Scan(&totals.Runs, &totals.Booked, &totals.Scans, &totals.Claims); err != nil {
		return totals, fmt.Errorf("aggregate runs: %w", err)
	}

	var lastBooked sql.NullString
	row = s.db.QueryRowContext(ctx,
		`SELECT MAX(finished_at) FROM runs WHERE outcome = ?`, OutcomeBooked)
	if err := row.Scan(&lastBooked); err != nil {
		return totals, fmt.Errorf("last booked: %w", err)
	}
	if lastBooked.Valid {
		totals.LastBooked = parseTimestamp(lastBooked.String)
	}
	return totals, nil
}

// Clear wipes all history.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.execWithoutResultRetry(ctx, "DELETE FROM run_events"); err != nil {
		return fmt.Errorf("clear run events: %w", err)
	}
	if err := s.execWithoutResultRetry(ctx, "DELETE FROM runs"); err != nil {
		return fmt.Errorf("clear runs: %w", err)
	}
	return nil
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run         Run
		startedRaw  string
		finishedRaw sql.NullString
		bookedBy    sql.NullString
		bookedURL   sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&run.RunID,
		&startedRaw,
		&finishedRaw,
		&run.Outcome,
		&run.Workers,
		&run.Scans,
		&run.TargetsFound,
		&run.Claims,
		&run.SubmitAttempts,
		&bookedBy,
		&bookedURL,
	); err != nil {
		return nil, err
	}
	run.StartedAt = parseTimestamp(startedRaw)
	if finishedRaw.Valid {
		run.FinishedAt = parseTimestamp(finishedRaw.String)
	}
	run.BookedBy = bookedBy.String
	run.BookedURL = bookedURL.String
	return &run, nil
}

func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func nullableString(value string) any {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return value
}
