package profile_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eng540/Falsniper/internal/profile"
)

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	p, err := profile.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if p.Name != "consulate-appointments" {
		t.Fatalf("unexpected profile name: %q", p.Name)
	}
	if p.Discovery.DateParam != "dateStr" {
		t.Fatalf("unexpected date param: %q", p.Discovery.DateParam)
	}
	if len(p.Discovery.MonthOffsets) == 0 || p.Discovery.MonthOffsets[0] != 2 {
		t.Fatalf("unexpected month offsets: %v", p.Discovery.MonthOffsets)
	}
	if p.Form.CaptchaInput != "input[name='captchaText']" {
		t.Fatalf("unexpected captcha selector: %q", p.Form.CaptchaInput)
	}
}

func TestLoadOverridesSections(t *testing.T) {
	contents := `
name: embassy-custom
markers:
  success:
    - "booking confirmed"
`
	path := filepath.Join(t.TempDir(), "profile.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	p, err := profile.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if p.Name != "embassy-custom" {
		t.Fatalf("expected overridden name, got %q", p.Name)
	}
	if len(p.Markers.Success) != 1 || p.Markers.Success[0] != "booking confirmed" {
		t.Fatalf("expected success markers replaced, got %v", p.Markers.Success)
	}
	// Untouched sections keep defaults.
	if len(p.Discovery.DaySelectors) == 0 {
		t.Fatal("expected default day selectors to survive override")
	}
	if len(p.Markers.NoSlots) == 0 {
		t.Fatal("expected default no-slots markers to survive override")
	}
}

func TestLoadRejectsInvalidProfile(t *testing.T) {
	contents := `
discovery:
  day_selectors: []
`
	path := filepath.Join(t.TempDir(), "profile.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	if _, err := profile.Load(path); err == nil {
		t.Fatal("expected error for empty day selectors")
	}
	if _, err := profile.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestMarkerMatchingNormalizesText(t *testing.T) {
	m := profile.Default().Markers

	page := profile.NormalizeContent("<html>Vielen Dank! Ihre Buchung war erfolgreich.</html>")
	if got := m.SuccessIn(page); got != "ihre buchung" && got != "vielen dank" {
		t.Fatalf("expected success marker, got %q", got)
	}

	// Decomposed umlaut (u + combining diaeresis) must match the precomposed
	// marker text after NFC normalization.
	custom := profile.Markers{NoSlots: []string{"keine termine verfügbar"}}
	decomposed := profile.NormalizeContent("Leider KEINE Termine verfügbar")
	if got := custom.NoSlotsIn(decomposed); got == "" {
		t.Fatal("expected no-slots marker in decomposed text")
	}

	if got := m.SuccessIn(profile.NormalizeContent("please choose a date")); got != "" {
		t.Fatalf("expected no success marker, got %q", got)
	}
}

func TestHardFailMarkers(t *testing.T) {
	m := profile.Default().Markers
	page := profile.NormalizeContent("Ein Fehler ist aufgetreten. Bitte versuchen Sie es erneut.")
	got := m.HardFailIn(page)
	if got == "" {
		t.Fatal("expected hard failure marker")
	}
	if !strings.Contains(got, "fehler") {
		t.Fatalf("unexpected marker: %q", got)
	}
}
