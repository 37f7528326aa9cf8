package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eng540/Falsniper/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigShowCommand(ctx))

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create config directory %q: %w", dir, err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Fill in [identity] and target.url before running a hunt.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", ctx.configPath)
			fmt.Fprintf(out, "Target: %s\n", cfg.Target.URL)
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "Config path: %s\n\n", ctx.configPath)
			fmt.Fprintf(out, "Target URL:        %s\n", cfg.Target.URL)
			fmt.Fprintf(out, "Applicant:         %s, %s <%s>\n",
				cfg.Identity.LastName, cfg.Identity.FirstName, cfg.Identity.Email)
			fmt.Fprintf(out, "Timezone:          %s (attack window %02d:00 for %d min)\n",
				cfg.Timing.Timezone, cfg.Timing.AttackHour, cfg.Timing.AttackWindowMinutes)
			fmt.Fprintf(out, "Workers:           1 scout + %d attackers, max %d cycles\n",
				cfg.Workers.Attackers, cfg.Workers.MaxCycles)
			fmt.Fprintf(out, "Submit attempts:   %d\n", cfg.Submit.MaxAttempts)
			fmt.Fprintf(out, "Solver endpoint:   %s\n", orNone(cfg.Solver.Endpoint))
			fmt.Fprintf(out, "Manual fallback:   %s\n", yesNo(cfg.Solver.ManualFallback))
			fmt.Fprintf(out, "Telegram:          %s\n", yesNo(cfg.Telegram.Token != ""))
			fmt.Fprintf(out, "Corrected clock:   %s (%d servers)\n",
				yesNo(cfg.Clock.Enabled), len(cfg.Clock.Servers))
			fmt.Fprintf(out, "Headless browser:  %s\n", yesNo(cfg.Browser.Headless))
			fmt.Fprintf(out, "Proxies:           %d\n", len(cfg.Browser.Proxies))
			fmt.Fprintf(out, "Site profile:      %s\n", orDefault(cfg.Paths.ProfilePath, "built-in"))
			fmt.Fprintf(out, "Journal:           %s\n", cfg.JournalPath())
			fmt.Fprintf(out, "Evidence dir:      %s\n", cfg.Paths.EvidenceDir)
			return nil
		},
	}
}

func orNone(value string) string {
	return orDefault(value, "none")
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
