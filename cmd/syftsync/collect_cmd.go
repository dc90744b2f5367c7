package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/openmined/syftsync/internal/app"
	"github.com/openmined/syftsync/internal/collect"
	"github.com/openmined/syftsync/internal/config"
	"github.com/spf13/cobra"
)

func newCollectCmd() *cobra.Command {
	var opts collect.RunOptions

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Copy changed static files to the configured storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newViper(cmd, map[string]string{
				"threads":  "threads",
				"strategy": "strategy",
				"debug":    "debug",
			})
			if err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			logWarnings(cfg)

			// config is valid, usage errors are behind us
			cmd.SilenceUsage = true

			lock := app.NewLock(cfg.LockPath)
			if err := lock.Acquire(); err != nil {
				return err
			}
			defer func() {
				if err := lock.Release(); err != nil {
					slog.Warn("syftsync lock release", "error", err)
				}
			}()

			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Collect(cmd.Context(), opts)
			if err != nil {
				return err
			}

			summary := res.Summary()
			if opts.DryRun {
				summary = cyan("[dry run] ") + summary
			}
			if res.Failed > 0 {
				summary += " " + red(fmt.Sprintf("%d file(s) failed.", res.Failed))
			}
			summary += fmt.Sprintf(" Collected in %s.", res.Duration.Round(time.Millisecond))
			_, err = fmt.Fprintln(cmd.OutOrStdout(), green(summary))
			return err
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().BoolVarP(&opts.DryRun, "dry-run", "n", false, "Report what would be copied or deleted without touching storage")
	cmd.Flags().BoolVar(&opts.Disable, "disable", false, "Copy every file, ignoring the sync strategy")
	cmd.Flags().BoolVar(&opts.Clear, "clear", false, "Delete remote files that no source provides anymore")
	cmd.Flags().IntP("threads", "t", 0, "Number of parallel workers (0 copies sequentially)")
	cmd.Flags().String("strategy", "", "Sync strategy (guessed from the storage backend when empty)")
	return cmd
}
