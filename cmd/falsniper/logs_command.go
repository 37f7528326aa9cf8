package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/eng540/Falsniper/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the hunt log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			path := logs.Path(cfg.Paths.LogDir)

			tail, offset, err := logs.ReadLast(path, lines)
			if err != nil {
				return err
			}
			for _, line := range tail {
				fmt.Fprintln(out, line)
			}
			if !follow {
				if len(tail) == 0 {
					fmt.Fprintln(out, "No log entries yet")
				}
				return nil
			}

			for {
				batch, next, err := logs.ReadFrom(cmd.Context(), path, offset, time.Second)
				if err != nil {
					if cmd.Context().Err() != nil {
						return nil
					}
					return err
				}
				offset = next
				for _, line := range batch {
					fmt.Fprintln(out, line)
				}
			}
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream new entries as they are written")
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Trailing lines to show (0 for all)")
	return cmd
}
