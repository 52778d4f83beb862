package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/branchline/branchline/internal/cli"
	"github.com/branchline/branchline/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "branchline",
	Short: "Branchline is an interactive narrative engine",
	Long: `Branchline plays branching stories made of scenes and choices,
remembering each player's progress and the endings they have discovered.

Settings are read from BRANCHLINE_* environment variables; flags override them.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("dir", "", "Directory containing the stories (overrides BRANCHLINE_STORY_DIR)")
	rootCmd.PersistentFlags().String("source", "", "Story source: file, loam or http")
	rootCmd.PersistentFlags().String("backend", "", "Progress backend: memory, file, sqlite or redis")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error or off")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json")
	rootCmd.PersistentFlags().Bool("strict", false, "Reject stories that fail validation")
}

// loadConfig reads the environment and applies the flags that were set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("dir") {
		cfg.StoryDir, _ = flags.GetString("dir")
	}
	if flags.Changed("source") {
		cfg.StorySource, _ = flags.GetString("source")
	}
	if flags.Changed("backend") {
		cfg.SnapshotBackend, _ = flags.GetString("backend")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.LogFormat, _ = flags.GetString("log-format")
	}
	if flags.Changed("strict") {
		cfg.StrictStories, _ = flags.GetBool("strict")
	}
	return cfg, cfg.Validate()
}

// setup loads the configuration and builds the runtime behind a command.
func setup(ctx context.Context, cmd *cobra.Command) (*cli.Runtime, *slog.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger, err := cli.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	rt, err := cli.Build(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize branchline: %w", err)
	}
	return rt, logger, nil
}
