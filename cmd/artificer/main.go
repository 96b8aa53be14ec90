package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"artificer/internal/config"
	"artificer/internal/logging"
	"artificer/internal/service"
)

var (
	// Global flags
	verbose    bool
	configPath string
	dataDir    string
	timeout    time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "artificer",
	Short: "artificer - meeting notes in, reviewed artifacts out",
	Long: `artificer turns meeting notes into versioned development artifacts:
mermaid diagrams, API docs, jira tickets, and code prototypes.

Every job climbs a retry/fallback model ladder; each attempt is cleaned
and validated before it can win. Accepted output is stored as a new
version, streamed as job events, and offered to the fine-tuning pool so
the local model improves from real feedback.

State lives under the data directory: versions/, feedback/,
finetuning_pool/, performance/. Run "artificer serve" for a long-running
daemon, or use the verbs directly for one-shot work.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: artificer.yaml when present)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory override")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(regenerateCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(poolCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

const defaultConfigFile = "artificer.yaml"

// loadConfig resolves the effective configuration: file (or defaults),
// env overrides, then command-line overrides.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = defaultConfigFile
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}
	if verbose {
		cfg.Logging.Enabled = true
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// buildService wires the full component graph. The returned cleanup
// drains jobs and releases the bus; call it before exiting.
func buildService() (*service.Service, *config.Config, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	if err := logging.Initialize(cfg.Logging.Dir, logging.Options{
		Enabled:    cfg.Logging.Enabled,
		Level:      cfg.Logging.Level,
		JSONFormat: cfg.Logging.JSONFormat,
	}); err != nil {
		return nil, nil, nil, err
	}

	logger.Debug("building service",
		zap.String("data_dir", cfg.Storage.DataDir),
		zap.String("default_model", cfg.Models.DefaultLocal))

	svc, err := service.Build(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to build service: %w", err)
	}
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := svc.Close(ctx); err != nil {
			logger.Warn("service close", zap.Error(err))
		}
	}
	return svc, cfg, cleanup, nil
}

// watchSignals cancels ctx work on SIGINT/SIGTERM.
func watchSignals(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()
}
