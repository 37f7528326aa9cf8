package testsupport

import (
	"path/filepath"
	"testing"

	"github.com/eng540/Falsniper/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test
// and enough identity to pass validation.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Identity.LastName = "Tester"
	cfg.Identity.FirstName = "Toni"
	cfg.Identity.Email = "toni@example.org"
	cfg.Identity.Passport = "X1234567"
	cfg.Identity.Phone = "+4915112345678"
	cfg.Target.URL = "https://service.example.org/extern/appointment_showMonth.do"
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.JournalDir = filepath.Join(base, "journal")
	cfg.Paths.EvidenceDir = filepath.Join(base, "evidence")

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithAttackers sets the attacker worker count.
func WithAttackers(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workers.Attackers = n
	}
}

// WithTargetURL overrides the booking endpoint.
func WithTargetURL(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Target.URL = url
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LogDir)
}
