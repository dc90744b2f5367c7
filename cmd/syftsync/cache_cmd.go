package main

import (
	"fmt"

	"github.com/openmined/syftsync/internal/app"
	"github.com/openmined/syftsync/internal/config"
	"github.com/openmined/syftsync/internal/utils"
	"github.com/spf13/cobra"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the remote hash cache",
	}
	cmd.AddCommand(newCachePurgeCmd())
	return cmd
}

func newCachePurgeCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove expired entries from the sqlite hash cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newViper(cmd, nil)
			if err != nil {
				return err
			}
			cfg, err := config.Decode(v)
			if err != nil {
				return err
			}
			if err := cfg.Cache.Validate(); err != nil {
				return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
			}
			if cfg.Cache.Path, err = utils.ResolvePath(cfg.Cache.Path); err != nil {
				return fmt.Errorf("cache.path: %w", err)
			}
			cmd.SilenceUsage = true

			n, err := app.PurgeCache(cmd.Context(), &cfg.Cache, all)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %d cache entries.\n", green("Purged"), n)
			return err
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Remove every entry, not only expired ones")
	return cmd
}
