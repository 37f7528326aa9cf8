package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateIdentity(); err != nil {
		return err
	}
	if err := c.validateTarget(); err != nil {
		return err
	}
	if err := c.validateTiming(); err != nil {
		return err
	}
	if err := c.validateRuntime(); err != nil {
		return err
	}
	if err := c.validateSolver(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateIdentity() error {
	required := []struct {
		key   string
		value string
	}{
		{"identity.last_name", c.Identity.LastName},
		{"identity.first_name", c.Identity.FirstName},
		{"identity.email", c.Identity.Email},
		{"identity.passport", c.Identity.Passport},
		{"identity.phone", c.Identity.Phone},
	}
	missing := make([]string, 0, len(required))
	for _, field := range required {
		if field.value == "" {
			missing = append(missing, field.key)
		}
	}
	if len(missing) > 0 {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/falsniper/config.toml"
		}
		return fmt.Errorf("missing required applicant fields: %s. Edit %s (create with 'falsniper config init')", strings.Join(missing, ", "), defaultPath)
	}
	return nil
}

func (c *Config) validateTarget() error {
	if c.Target.URL == "" {
		return errors.New("target.url must be set")
	}
	parsed, err := url.Parse(c.Target.URL)
	if err != nil {
		return fmt.Errorf("target.url is not a valid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("target.url must use http or https")
	}
	if parsed.Host == "" {
		return errors.New("target.url must include a host")
	}
	return nil
}

func (c *Config) validateTiming() error {
	if c.Timing.AttackHour < 0 || c.Timing.AttackHour > 23 {
		return errors.New("timing.attack_hour must be between 0 and 23")
	}
	if c.Timing.PreAttackMinute < 0 || c.Timing.PreAttackMinute > 59 {
		return errors.New("timing.pre_attack_minute must be between 0 and 59")
	}
	if c.Timing.PreAttackSecond < 0 || c.Timing.PreAttackSecond > 59 {
		return errors.New("timing.pre_attack_second must be between 0 and 59")
	}
	if c.Timing.AttackSleepMaxMS >= c.Timing.PatrolSleepMinMS {
		return errors.New("timing.attack_sleep_max_ms must stay below timing.patrol_sleep_min_ms")
	}
	if _, err := time.LoadLocation(c.Timing.Timezone); err != nil {
		return fmt.Errorf("timing.timezone %q is not a recognized IANA zone: %w", c.Timing.Timezone, err)
	}
	return nil
}

func (c *Config) validateRuntime() error {
	return ensurePositiveMap(map[string]int{
		"session.max_age_seconds":        c.Session.MaxAgeSeconds,
		"session.max_idle_seconds":       c.Session.MaxIdleSeconds,
		"session.max_captcha_attempts":   c.Session.MaxCaptchaAttempts,
		"session.max_failures":           c.Session.MaxFailures,
		"workers.attackers":              c.Workers.Attackers,
		"workers.discovery_wait_seconds": c.Workers.DiscoveryWaitSeconds,
		"workers.target_ttl_seconds":     c.Workers.TargetTTLSeconds,
		"breaker.max_failures":           c.Breaker.MaxFailures,
		"breaker.reset_timeout_seconds":  c.Breaker.ResetTimeoutSeconds,
		"breaker.base_delay_ms":          c.Breaker.BaseDelayMS,
		"submit.max_attempts":            c.Submit.MaxAttempts,
		"navigation.timeout_seconds":     c.Navigation.TimeoutSeconds,
	})
}

func (c *Config) validateSolver() error {
	if c.Solver.Endpoint == "" {
		return nil
	}
	parsed, err := url.Parse(c.Solver.Endpoint)
	if err != nil {
		return fmt.Errorf("solver.endpoint is not a valid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("solver.endpoint must use http or https")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
