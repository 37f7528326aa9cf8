package testsupport

import (
	"context"
	"testing"

	"github.com/eng540/Falsniper/internal/config"
	"github.com/eng540/Falsniper/internal/journal"
)

// MustOpenJournal opens a journal.Store for tests and registers cleanup.
func MustOpenJournal(t testing.TB, cfg *config.Config) *journal.Store {
	t.Helper()

	store, err := journal.Open(cfg)
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// StartRun records a run for tests using the provided store.
func StartRun(t testing.TB, store *journal.Store, runID string, workers int) *journal.Run {
	t.Helper()

	run, err := store.StartRun(context.Background(), runID, workers)
	if err != nil {
		t.Fatalf("store.StartRun: %v", err)
	}
	return run
}
