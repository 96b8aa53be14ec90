package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// serveCmd keeps the component graph warm until signalled
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run artificer as a long-lived daemon",
	Long: `Builds the full component graph and keeps it running: the job table
stays warm, rule hot-reload watches for edits, and pool thresholds emit
training batches as feedback arrives. Status is logged once a minute.

SIGINT/SIGTERM stops intake and drains running jobs before exit.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	svc, cfg, cleanup, err := buildService()
	if err != nil {
		return err
	}
	defer cleanup()

	boot, err := svc.Stats()
	if err != nil {
		return err
	}
	logger.Info("artificer up",
		zap.String("data_dir", cfg.Storage.DataDir),
		zap.Int("artifacts", boot.Artifacts),
		zap.Int("models", len(boot.Models)),
		zap.Duration("sync_wait", cfg.GetSyncWait()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigCh:
			logger.Info("shutting down", zap.String("signal", sig.String()))
			return nil
		case <-ticker.C:
			stats, err := svc.Stats()
			if err != nil {
				logger.Warn("stats unavailable", zap.Error(err))
				continue
			}
			poolTotal := 0
			for _, n := range stats.PoolSizes {
				poolTotal += n
			}
			logger.Info("status",
				zap.Int("active_jobs", stats.Jobs.Active),
				zap.Int64("completed", stats.Jobs.Completed),
				zap.Int64("failed", stats.Jobs.Failed),
				zap.Int("pool_examples", poolTotal),
				zap.Int("pending_batches", stats.PendingBatches))
		}
	}
}
