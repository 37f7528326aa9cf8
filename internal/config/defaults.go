package config

const (
	defaultLogDir              = "~/.local/share/falsniper/logs"
	defaultJournalDir          = "~/.local/share/falsniper"
	defaultEvidenceDir         = "~/.local/share/falsniper/evidence"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultTimezone            = "Asia/Aden"
	defaultAttackHour          = 2
	defaultAttackWindowMinutes = 2
	defaultPreAttackMinute     = 59
	defaultPreAttackSecond     = 30
	defaultWarmupLeadMinutes   = 5
	defaultPatrolSleepMinMS    = 10000
	defaultPatrolSleepMaxMS    = 20000
	defaultWarmupSleepMS       = 5000
	defaultPreAttackSleepMS    = 500
	defaultAttackSleepMinMS    = 500
	defaultAttackSleepMaxMS    = 1500
	defaultSessionMaxAge       = 45
	defaultSessionMaxIdle      = 12
	defaultSessionMaxCaptcha   = 5
	defaultSessionMaxFailures  = 3
	defaultAttackers           = 2
	defaultDiscoveryWait       = 30
	defaultTargetTTL           = 90
	defaultBreakerMaxFailures  = 3
	defaultBreakerResetTimeout = 60
	defaultBreakerBaseDelayMS  = 1000
	defaultBreakerMaxDelayMS   = 30000
	defaultSubmitMaxAttempts   = 10
	defaultNavTimeoutSeconds   = 25
	defaultDegradedThreshold   = 40
	defaultDegradedDivisor     = 2
	defaultSolverTimeout       = 30
	defaultManualSolveTimeout  = 120
	defaultClockSampleInterval = 300
	defaultClockRequestTimeout = 5
	defaultTelegramTimeout     = 10
	defaultBrowserWidth        = 1366
	defaultBrowserHeight       = 768
	defaultEvidenceMaxAgeHours = 72
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Target: Target{
			Purpose: "Schengen visa",
		},
		Timing: Timing{
			Timezone:            defaultTimezone,
			AttackHour:          defaultAttackHour,
			AttackWindowMinutes: defaultAttackWindowMinutes,
			PreAttackMinute:     defaultPreAttackMinute,
			PreAttackSecond:     defaultPreAttackSecond,
			WarmupLeadMinutes:   defaultWarmupLeadMinutes,
			PatrolSleepMinMS:    defaultPatrolSleepMinMS,
			PatrolSleepMaxMS:    defaultPatrolSleepMaxMS,
			WarmupSleepMS:       defaultWarmupSleepMS,
			PreAttackSleepMS:    defaultPreAttackSleepMS,
			AttackSleepMinMS:    defaultAttackSleepMinMS,
			AttackSleepMaxMS:    defaultAttackSleepMaxMS,
		},
		Clock: Clock{
			Enabled: true,
			Servers: []string{
				"https://www.google.com",
				"https://www.cloudflare.com",
				"https://www.wikipedia.org",
			},
			SampleIntervalSeconds: defaultClockSampleInterval,
			RequestTimeoutSeconds: defaultClockRequestTimeout,
		},
		Session: Session{
			MaxAgeSeconds:      defaultSessionMaxAge,
			MaxIdleSeconds:     defaultSessionMaxIdle,
			MaxCaptchaAttempts: defaultSessionMaxCaptcha,
			MaxFailures:        defaultSessionMaxFailures,
		},
		Workers: Workers{
			Attackers:            defaultAttackers,
			DiscoveryWaitSeconds: defaultDiscoveryWait,
			TargetTTLSeconds:     defaultTargetTTL,
		},
		Breaker: Breaker{
			MaxFailures:         defaultBreakerMaxFailures,
			ResetTimeoutSeconds: defaultBreakerResetTimeout,
			BaseDelayMS:         defaultBreakerBaseDelayMS,
			MaxDelayMS:          defaultBreakerMaxDelayMS,
		},
		Submit: Submit{
			MaxAttempts: defaultSubmitMaxAttempts,
		},
		Navigation: Navigation{
			TimeoutSeconds:          defaultNavTimeoutSeconds,
			DegradedHealthThreshold: defaultDegradedThreshold,
			DegradedTimeoutDivisor:  defaultDegradedDivisor,
		},
		Solver: Solver{
			TimeoutSeconds:       defaultSolverTimeout,
			ManualFallback:       true,
			ManualTimeoutSeconds: defaultManualSolveTimeout,
		},
		Telegram: Telegram{
			RequestTimeoutSeconds: defaultTelegramTimeout,
		},
		Browser: Browser{
			Headless: true,
			Width:    defaultBrowserWidth,
			Height:   defaultBrowserHeight,
		},
		Paths: Paths{
			LogDir:      defaultLogDir,
			JournalDir:  defaultJournalDir,
			EvidenceDir: defaultEvidenceDir,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Evidence: Evidence{
			CaptureOnFailure: true,
			MaxAgeHours:      defaultEvidenceMaxAgeHours,
		},
	}
}
