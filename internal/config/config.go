package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Identity holds the applicant details typed into the booking form.
// All fields are required; the engine refuses to start without them.
type Identity struct {
	LastName  string `toml:"last_name"`
	FirstName string `toml:"first_name"`
	Email     string `toml:"email"`
	Passport  string `toml:"passport"`
	Phone     string `toml:"phone"`
}

// Target describes the booking endpoint the workers hunt against.
type Target struct {
	URL     string `toml:"url"`
	Purpose string `toml:"purpose"`
}

// Timing contains the attack-window anchors and per-mode sleep ranges.
// Sleep values are milliseconds; window anchors are clock values in the
// configured timezone.
type Timing struct {
	Timezone            string `toml:"timezone"`
	AttackHour          int    `toml:"attack_hour"`
	AttackWindowMinutes int    `toml:"attack_window_minutes"`
	PreAttackMinute     int    `toml:"pre_attack_minute"`
	PreAttackSecond     int    `toml:"pre_attack_second"`
	WarmupLeadMinutes   int    `toml:"warmup_lead_minutes"`
	PatrolSleepMinMS    int    `toml:"patrol_sleep_min_ms"`
	PatrolSleepMaxMS    int    `toml:"patrol_sleep_max_ms"`
	WarmupSleepMS       int    `toml:"warmup_sleep_ms"`
	PreAttackSleepMS    int    `toml:"pre_attack_sleep_ms"`
	AttackSleepMinMS    int    `toml:"attack_sleep_min_ms"`
	AttackSleepMaxMS    int    `toml:"attack_sleep_max_ms"`
}

// Clock configures the corrected-time sampler.
type Clock struct {
	Enabled               bool     `toml:"enabled"`
	Servers               []string `toml:"servers"`
	SampleIntervalSeconds int      `toml:"sample_interval_seconds"`
	RequestTimeoutSeconds int      `toml:"request_timeout_seconds"`
}

// Session contains per-worker session ceilings. Exceeding any of them
// forces the worker to tear the session down and start a fresh one.
type Session struct {
	MaxAgeSeconds      int `toml:"max_age_seconds"`
	MaxIdleSeconds     int `toml:"max_idle_seconds"`
	MaxCaptchaAttempts int `toml:"max_captcha_attempts"`
	MaxFailures        int `toml:"max_failures"`
}

// Workers sizes the hunting pack: one scout plus the configured attackers.
type Workers struct {
	Attackers            int `toml:"attackers"`
	DiscoveryWaitSeconds int `toml:"discovery_wait_seconds"`
	TargetTTLSeconds     int `toml:"target_ttl_seconds"`
	MaxCycles            int `toml:"max_cycles"`
}

// Breaker configures the shared navigation circuit breaker.
type Breaker struct {
	MaxFailures         int `toml:"max_failures"`
	ResetTimeoutSeconds int `toml:"reset_timeout_seconds"`
	BaseDelayMS         int `toml:"base_delay_ms"`
	MaxDelayMS          int `toml:"max_delay_ms"`
}

// Submit bounds the commit retry loop.
type Submit struct {
	MaxAttempts int `toml:"max_attempts"`
}

// Navigation contains page-load timeout settings. The timeout is divided
// by DegradedTimeoutDivisor once the health score falls below the threshold.
type Navigation struct {
	TimeoutSeconds          int `toml:"timeout_seconds"`
	DegradedHealthThreshold int `toml:"degraded_health_threshold"`
	DegradedTimeoutDivisor  int `toml:"degraded_timeout_divisor"`
}

// Solver configures the external captcha solving service and the manual
// fallback path.
type Solver struct {
	Endpoint             string `toml:"endpoint"`
	TimeoutSeconds       int    `toml:"timeout_seconds"`
	ManualFallback       bool   `toml:"manual_fallback"`
	ManualTimeoutSeconds int    `toml:"manual_timeout_seconds"`
}

// Telegram contains bot credentials for notifications and the manual captcha
// relay. Leaving the token empty disables both.
type Telegram struct {
	Token                 string `toml:"token"`
	ChatID                string `toml:"chat_id"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Browser configures the page driver. Proxies are assigned to workers by
// index: scout first, then attackers in order; workers past the end of the
// list run without a proxy.
type Browser struct {
	Headless  bool     `toml:"headless"`
	UserAgent string   `toml:"user_agent"`
	Width     int      `toml:"width"`
	Height    int      `toml:"height"`
	Proxies   []string `toml:"proxies"`
}

// Paths contains directory configuration.
type Paths struct {
	LogDir      string `toml:"log_dir"`
	JournalDir  string `toml:"journal_dir"`
	EvidenceDir string `toml:"evidence_dir"`
	ProfilePath string `toml:"profile_path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Evidence controls retention of diagnostic artifacts.
type Evidence struct {
	CaptureOnFailure bool `toml:"capture_on_failure"`
	MaxAgeHours      int  `toml:"max_age_hours"`
}

// Config encapsulates all configuration values for Falsniper.
//
// Configuration sections by subsystem:
//   - Identity: applicant fields typed into the booking form
//   - Target: booking endpoint and visit purpose
//   - Timing: attack-window anchors and per-mode sleep ranges
//   - Clock: corrected-time sampling servers
//   - Session: per-worker age, idle, and failure ceilings
//   - Workers: attacker count, discovery wait, target staleness
//   - Breaker: navigation circuit breaker thresholds
//   - Submit: commit retry attempt cap
//   - Navigation: page-load timeouts and degraded-health scaling
//   - Solver: captcha solver endpoint and manual fallback
//   - Telegram: notification and manual-relay credentials
//   - Browser: page driver settings and per-worker proxies
//   - Paths: log, journal, and evidence directories, profile override
//   - Logging: log format and level
//   - Evidence: artifact capture and retention
type Config struct {
	Identity   Identity   `toml:"identity"`
	Target     Target     `toml:"target"`
	Timing     Timing     `toml:"timing"`
	Clock      Clock      `toml:"clock"`
	Session    Session    `toml:"session"`
	Workers    Workers    `toml:"workers"`
	Breaker    Breaker    `toml:"breaker"`
	Submit     Submit     `toml:"submit"`
	Navigation Navigation `toml:"navigation"`
	Solver     Solver     `toml:"solver"`
	Telegram   Telegram   `toml:"telegram"`
	Browser    Browser    `toml:"browser"`
	Paths      Paths      `toml:"paths"`
	Logging    Logging    `toml:"logging"`
	Evidence   Evidence   `toml:"evidence"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/falsniper/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The second return
// value is the resolved path, the third reports whether a file was found
// there (defaults apply when it was not).
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("falsniper.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for engine operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LogDir, c.Paths.JournalDir, c.Paths.EvidenceDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// JournalPath returns the path to the sqlite journal database.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.JournalDir, "journal.db")
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// Duration accessors. TOML carries integer seconds or milliseconds;
// everything downstream works in time.Duration.

func (c *Config) NavigationTimeout() time.Duration {
	return time.Duration(c.Navigation.TimeoutSeconds) * time.Second
}

func (c *Config) SessionMaxAge() time.Duration {
	return time.Duration(c.Session.MaxAgeSeconds) * time.Second
}

func (c *Config) SessionMaxIdle() time.Duration {
	return time.Duration(c.Session.MaxIdleSeconds) * time.Second
}

func (c *Config) DiscoveryWait() time.Duration {
	return time.Duration(c.Workers.DiscoveryWaitSeconds) * time.Second
}

func (c *Config) TargetTTL() time.Duration {
	return time.Duration(c.Workers.TargetTTLSeconds) * time.Second
}

func (c *Config) BreakerResetTimeout() time.Duration {
	return time.Duration(c.Breaker.ResetTimeoutSeconds) * time.Second
}

func (c *Config) BreakerBaseDelay() time.Duration {
	return time.Duration(c.Breaker.BaseDelayMS) * time.Millisecond
}

func (c *Config) BreakerMaxDelay() time.Duration {
	return time.Duration(c.Breaker.MaxDelayMS) * time.Millisecond
}

func (c *Config) SolverTimeout() time.Duration {
	return time.Duration(c.Solver.TimeoutSeconds) * time.Second
}

func (c *Config) ManualSolveTimeout() time.Duration {
	return time.Duration(c.Solver.ManualTimeoutSeconds) * time.Second
}

func (c *Config) ClockSampleInterval() time.Duration {
	return time.Duration(c.Clock.SampleIntervalSeconds) * time.Second
}

func (c *Config) ClockRequestTimeout() time.Duration {
	return time.Duration(c.Clock.RequestTimeoutSeconds) * time.Second
}

func (c *Config) TelegramRequestTimeout() time.Duration {
	return time.Duration(c.Telegram.RequestTimeoutSeconds) * time.Second
}

func (c *Config) EvidenceMaxAge() time.Duration {
	return time.Duration(c.Evidence.MaxAgeHours) * time.Hour
}

// WorkerProxy returns the proxy assigned to a worker index, or "" once the
// list is exhausted. Index 0 is the scout.
func (c *Config) WorkerProxy(index int) string {
	if index < 0 || index >= len(c.Browser.Proxies) {
		return ""
	}
	return strings.TrimSpace(c.Browser.Proxies[index])
}
