package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/openmined/syftsync/internal/config"
	"github.com/openmined/syftsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "SYFTSYNC"
	configFileName = "syftsync"
)

var (
	red   = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green = color.New(color.FgHiGreen).SprintFunc()
	cyan  = color.New(color.FgHiCyan).SprintFunc()
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	var closeLog func() error

	cmd := &cobra.Command{
		Use:           "syftsync",
		Short:         "Sync static files to remote storage, uploading only what changed",
		Version:       version.Detailed(),
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadDotEnv(cmd); err != nil {
				return err
			}
			verbosity, _ := cmd.Flags().GetInt("verbosity")
			logFile, _ := cmd.Flags().GetString("log-file")
			if logFile == "" {
				logFile = os.Getenv(envPrefix + "_LOG_FILE")
			}
			var err error
			closeLog, err = setupLogging(cmd.ErrOrStderr(), verbosity, logFile)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if closeLog == nil {
				return nil
			}
			return closeLog()
		},
	}

	cmd.PersistentFlags().SortFlags = false
	cmd.PersistentFlags().StringP("config", "c", "", "syftsync config file (default ./syftsync.* or ~/.syftsync/syftsync.*)")
	cmd.PersistentFlags().IntP("verbosity", "v", 1, "Verbosity level: 0=warnings, 1=info, 2=debug, 3=debug with source")
	cmd.PersistentFlags().String("log-file", "", "Also write logs to this file")
	cmd.PersistentFlags().String("env-file", "", "Load environment variables from this file (default .env if present)")
	cmd.PersistentFlags().Bool("debug", false, "Abort on the first strategy error instead of copying the file")

	cmd.AddCommand(newCollectCmd())
	cmd.AddCommand(newCacheCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func main() {
	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, red("Error:"), err)
		stop()
		os.Exit(1)
	}
}

func loadDotEnv(cmd *cobra.Command) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("env file %s: %w", envFile, err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("env file .env: %w", err)
	}
	return nil
}

// newViper reads the config file and layers SYFTSYNC_* variables and the
// command's bound flags on top of it.
func newViper(cmd *cobra.Command, bindings map[string]string) (*viper.Viper, error) {
	v := viper.New()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else if path := os.Getenv(envPrefix + "_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(config.DefaultDir)
		v.SetConfigName(configFileName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, flag := range bindings {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}
	return v, nil
}

func logWarnings(cfg *config.Config) {
	for _, w := range cfg.Warnings() {
		slog.Warn("config", "warning", w)
	}
}
