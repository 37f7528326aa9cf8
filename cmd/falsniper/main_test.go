package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eng540/Falsniper/internal/config"
	"github.com/eng540/Falsniper/internal/journal"
)

func writeTestConfig(t *testing.T, base string) string {
	t.Helper()
	content := fmt.Sprintf(`[identity]
last_name = "Tester"
first_name = "Toni"
email = "toni@example.org"
passport = "X1234567"
phone = "+4915112345678"

[target]
url = "https://booking.example.org/extern/appointment_showMonth.do?locationCode=9001"

[paths]
log_dir = %q
journal_dir = %q
evidence_dir = %q
`,
		filepath.Join(base, "logs"),
		filepath.Join(base, "journal"),
		filepath.Join(base, "evidence"),
	)
	path := filepath.Join(base, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestCLIConfigInitValidateShow(t *testing.T) {
	base := t.TempDir()
	configPath := writeTestConfig(t, base)

	out, _, err := runCLI(t, configPath, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, configPath)
	requireContains(t, out, "booking.example.org")

	out, _, err = runCLI(t, configPath, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "booking.example.org")
	requireContains(t, out, "Tester, Toni")
	requireContains(t, out, "1 scout + 2 attackers")
	requireContains(t, out, "built-in")

	// config init to a fresh location works without any loadable config
	target := filepath.Join(base, "fresh", "config.toml")
	out, _, err = runCLI(t, "", "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err = runCLI(t, "", "config", "init", "--path", target); err == nil {
		t.Fatal("expected second init without --overwrite to fail")
	}
	if _, _, err = runCLI(t, "", "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestCLIValidateRejectsIncompleteConfig(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "config.toml")
	content := `[target]
url = "https://booking.example.org/extern/appointment_showMonth.do"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, _, err := runCLI(t, path, "config", "validate")
	if err == nil {
		t.Fatal("expected validation to fail without applicant identity")
	}
	if !strings.Contains(err.Error(), "identity.last_name") {
		t.Fatalf("expected missing-field error, got %v", err)
	}
}

func TestCLIJournalCommands(t *testing.T) {
	base := t.TempDir()
	configPath := writeTestConfig(t, base)

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	store, err := journal.Open(cfg)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	ctx := context.Background()
	if _, err := store.StartRun(ctx, "cafe0001", 3); err != nil {
		t.Fatalf("start run: %v", err)
	}
	if err := store.RecordEvent(ctx, "cafe0001", "scout", journal.KindTargetFound, "found open day"); err != nil {
		t.Fatalf("record event: %v", err)
	}
	if err := store.RecordEvent(ctx, "cafe0001", "attacker-1", journal.KindBooked, "confirmation page reached"); err != nil {
		t.Fatalf("record event: %v", err)
	}
	if err := store.UpdateRunStats(ctx, "cafe0001", 12, 2, 2, 3); err != nil {
		t.Fatalf("update stats: %v", err)
	}
	if err := store.FinishRun(ctx, "cafe0001", journal.OutcomeBooked, "attacker-1", "https://booking.example.org/booked"); err != nil {
		t.Fatalf("finish run: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close journal: %v", err)
	}

	out, _, err := runCLI(t, configPath, "journal", "list")
	if err != nil {
		t.Fatalf("journal list: %v", err)
	}
	requireContains(t, out, "cafe0001")
	requireContains(t, out, "booked")
	requireContains(t, out, "attacker-1")

	out, _, err = runCLI(t, configPath, "journal", "events", "cafe0001")
	if err != nil {
		t.Fatalf("journal events: %v", err)
	}
	requireContains(t, out, journal.KindTargetFound)
	requireContains(t, out, "confirmation page reached")

	if _, _, err = runCLI(t, configPath, "journal", "events", "feed9999"); err == nil {
		t.Fatal("expected events lookup for unknown run to fail")
	}

	out, _, err = runCLI(t, configPath, "journal", "stats")
	if err != nil {
		t.Fatalf("journal stats: %v", err)
	}
	requireContains(t, out, "Runs:         1")
	requireContains(t, out, "Booked:       1")
	requireContains(t, out, "Total scans:  12")

	if _, _, err = runCLI(t, configPath, "journal", "clear"); err == nil {
		t.Fatal("expected clear without --yes to fail")
	}

	out, _, err = runCLI(t, configPath, "journal", "clear", "--yes")
	if err != nil {
		t.Fatalf("journal clear --yes: %v", err)
	}
	requireContains(t, out, "Journal cleared")

	out, _, err = runCLI(t, configPath, "journal", "list")
	if err != nil {
		t.Fatalf("journal list after clear: %v", err)
	}
	requireContains(t, out, "No runs recorded yet")
}

func TestCLIJournalListEmpty(t *testing.T) {
	base := t.TempDir()
	configPath := writeTestConfig(t, base)

	out, _, err := runCLI(t, configPath, "journal", "list")
	if err != nil {
		t.Fatalf("journal list: %v", err)
	}
	requireContains(t, out, "No runs recorded yet")

	out, _, err = runCLI(t, configPath, "journal", "stats")
	if err != nil {
		t.Fatalf("journal stats: %v", err)
	}
	requireContains(t, out, "Last booking: never")
}

func TestCLINotifyTestWithoutTelegram(t *testing.T) {
	base := t.TempDir()
	configPath := writeTestConfig(t, base)

	out, _, err := runCLI(t, configPath, "notify", "test")
	if err != nil {
		t.Fatalf("notify test: %v", err)
	}
	requireContains(t, out, "Telegram is not configured")
}
