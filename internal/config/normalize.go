package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizeIdentity()
	c.normalizeTarget()
	c.normalizeTiming()
	c.normalizeClock()
	c.normalizeSession()
	c.normalizeWorkers()
	c.normalizeBreaker()
	c.normalizeSubmit()
	c.normalizeNavigation()
	c.normalizeSolver()
	c.normalizeTelegram()
	c.normalizeBrowser()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeEvidence()
	return nil
}

func (c *Config) normalizeIdentity() {
	c.Identity.LastName = strings.TrimSpace(c.Identity.LastName)
	c.Identity.FirstName = strings.TrimSpace(c.Identity.FirstName)
	c.Identity.Email = strings.TrimSpace(c.Identity.Email)
	c.Identity.Passport = strings.TrimSpace(c.Identity.Passport)
	c.Identity.Phone = strings.TrimSpace(c.Identity.Phone)
}

func (c *Config) normalizeTarget() {
	c.Target.URL = strings.TrimSpace(c.Target.URL)
	c.Target.Purpose = strings.TrimSpace(c.Target.Purpose)
	if c.Target.Purpose == "" {
		c.Target.Purpose = "Schengen visa"
	}
}

func (c *Config) normalizeTiming() {
	c.Timing.Timezone = strings.TrimSpace(c.Timing.Timezone)
	if c.Timing.Timezone == "" {
		c.Timing.Timezone = defaultTimezone
	}
	if c.Timing.AttackWindowMinutes <= 0 {
		c.Timing.AttackWindowMinutes = defaultAttackWindowMinutes
	}
	if c.Timing.WarmupLeadMinutes <= 0 {
		c.Timing.WarmupLeadMinutes = defaultWarmupLeadMinutes
	}
	if c.Timing.PatrolSleepMinMS <= 0 {
		c.Timing.PatrolSleepMinMS = defaultPatrolSleepMinMS
	}
	if c.Timing.PatrolSleepMaxMS <= 0 {
		c.Timing.PatrolSleepMaxMS = defaultPatrolSleepMaxMS
	}
	if c.Timing.PatrolSleepMaxMS < c.Timing.PatrolSleepMinMS {
		c.Timing.PatrolSleepMinMS, c.Timing.PatrolSleepMaxMS = c.Timing.PatrolSleepMaxMS, c.Timing.PatrolSleepMinMS
	}
	if c.Timing.WarmupSleepMS <= 0 {
		c.Timing.WarmupSleepMS = defaultWarmupSleepMS
	}
	if c.Timing.PreAttackSleepMS <= 0 {
		c.Timing.PreAttackSleepMS = defaultPreAttackSleepMS
	}
	if c.Timing.AttackSleepMinMS <= 0 {
		c.Timing.AttackSleepMinMS = defaultAttackSleepMinMS
	}
	if c.Timing.AttackSleepMaxMS <= 0 {
		c.Timing.AttackSleepMaxMS = defaultAttackSleepMaxMS
	}
	if c.Timing.AttackSleepMaxMS < c.Timing.AttackSleepMinMS {
		c.Timing.AttackSleepMinMS, c.Timing.AttackSleepMaxMS = c.Timing.AttackSleepMaxMS, c.Timing.AttackSleepMinMS
	}
}

func (c *Config) normalizeClock() {
	servers := make([]string, 0, len(c.Clock.Servers))
	for _, server := range c.Clock.Servers {
		trimmed := strings.TrimSpace(server)
		if trimmed == "" {
			continue
		}
		servers = append(servers, trimmed)
	}
	if len(servers) == 0 {
		servers = Default().Clock.Servers
	}
	c.Clock.Servers = servers
	if c.Clock.SampleIntervalSeconds <= 0 {
		c.Clock.SampleIntervalSeconds = defaultClockSampleInterval
	}
	if c.Clock.RequestTimeoutSeconds <= 0 {
		c.Clock.RequestTimeoutSeconds = defaultClockRequestTimeout
	}
}

func (c *Config) normalizeSession() {
	if c.Session.MaxAgeSeconds <= 0 {
		c.Session.MaxAgeSeconds = defaultSessionMaxAge
	}
	if c.Session.MaxIdleSeconds <= 0 {
		c.Session.MaxIdleSeconds = defaultSessionMaxIdle
	}
	if c.Session.MaxCaptchaAttempts <= 0 {
		c.Session.MaxCaptchaAttempts = defaultSessionMaxCaptcha
	}
	if c.Session.MaxFailures <= 0 {
		c.Session.MaxFailures = defaultSessionMaxFailures
	}
}

func (c *Config) normalizeWorkers() {
	if c.Workers.Attackers <= 0 {
		c.Workers.Attackers = defaultAttackers
	}
	if c.Workers.DiscoveryWaitSeconds <= 0 {
		c.Workers.DiscoveryWaitSeconds = defaultDiscoveryWait
	}
	if c.Workers.TargetTTLSeconds <= 0 {
		c.Workers.TargetTTLSeconds = defaultTargetTTL
	}
	if c.Workers.MaxCycles < 0 {
		c.Workers.MaxCycles = 0
	}
}

func (c *Config) normalizeBreaker() {
	if c.Breaker.MaxFailures <= 0 {
		c.Breaker.MaxFailures = defaultBreakerMaxFailures
	}
	if c.Breaker.ResetTimeoutSeconds <= 0 {
		c.Breaker.ResetTimeoutSeconds = defaultBreakerResetTimeout
	}
	if c.Breaker.BaseDelayMS <= 0 {
		c.Breaker.BaseDelayMS = defaultBreakerBaseDelayMS
	}
	if c.Breaker.MaxDelayMS < c.Breaker.BaseDelayMS {
		c.Breaker.MaxDelayMS = defaultBreakerMaxDelayMS
	}
}

func (c *Config) normalizeSubmit() {
	if c.Submit.MaxAttempts <= 0 {
		c.Submit.MaxAttempts = defaultSubmitMaxAttempts
	}
}

func (c *Config) normalizeNavigation() {
	if c.Navigation.TimeoutSeconds <= 0 {
		c.Navigation.TimeoutSeconds = defaultNavTimeoutSeconds
	}
	if c.Navigation.DegradedHealthThreshold <= 0 {
		c.Navigation.DegradedHealthThreshold = defaultDegradedThreshold
	}
	if c.Navigation.DegradedTimeoutDivisor <= 0 {
		c.Navigation.DegradedTimeoutDivisor = defaultDegradedDivisor
	}
}

func (c *Config) normalizeSolver() {
	c.Solver.Endpoint = strings.TrimSpace(c.Solver.Endpoint)
	if c.Solver.Endpoint == "" {
		if value, ok := os.LookupEnv("CAPTCHA_SOLVER_ENDPOINT"); ok {
			c.Solver.Endpoint = strings.TrimSpace(value)
		}
	}
	if c.Solver.TimeoutSeconds <= 0 {
		c.Solver.TimeoutSeconds = defaultSolverTimeout
	}
	if c.Solver.ManualTimeoutSeconds <= 0 {
		c.Solver.ManualTimeoutSeconds = defaultManualSolveTimeout
	}
}

func (c *Config) normalizeTelegram() {
	c.Telegram.Token = strings.TrimSpace(c.Telegram.Token)
	if c.Telegram.Token == "" {
		if value, ok := os.LookupEnv("TELEGRAM_BOT_TOKEN"); ok {
			c.Telegram.Token = strings.TrimSpace(value)
		}
	}
	c.Telegram.ChatID = strings.TrimSpace(c.Telegram.ChatID)
	if c.Telegram.ChatID == "" {
		if value, ok := os.LookupEnv("TELEGRAM_CHAT_ID"); ok {
			c.Telegram.ChatID = strings.TrimSpace(value)
		}
	}
	if c.Telegram.RequestTimeoutSeconds <= 0 {
		c.Telegram.RequestTimeoutSeconds = defaultTelegramTimeout
	}
}

func (c *Config) normalizeBrowser() {
	c.Browser.UserAgent = strings.TrimSpace(c.Browser.UserAgent)
	if c.Browser.Width <= 0 {
		c.Browser.Width = defaultBrowserWidth
	}
	if c.Browser.Height <= 0 {
		c.Browser.Height = defaultBrowserHeight
	}
	proxies := make([]string, 0, len(c.Browser.Proxies))
	for _, proxy := range c.Browser.Proxies {
		trimmed := strings.TrimSpace(proxy)
		if trimmed == "" {
			continue
		}
		proxies = append(proxies, trimmed)
	}
	c.Browser.Proxies = proxies
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.JournalDir) == "" {
		c.Paths.JournalDir = defaultJournalDir
	}
	if c.Paths.JournalDir, err = expandPath(c.Paths.JournalDir); err != nil {
		return fmt.Errorf("paths.journal_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.EvidenceDir) == "" {
		c.Paths.EvidenceDir = defaultEvidenceDir
	}
	if c.Paths.EvidenceDir, err = expandPath(c.Paths.EvidenceDir); err != nil {
		return fmt.Errorf("paths.evidence_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ProfilePath) != "" {
		if c.Paths.ProfilePath, err = expandPath(c.Paths.ProfilePath); err != nil {
			return fmt.Errorf("paths.profile_path: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeEvidence() {
	if c.Evidence.MaxAgeHours < 0 {
		c.Evidence.MaxAgeHours = 0
	}
}
