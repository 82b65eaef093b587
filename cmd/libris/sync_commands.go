package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"libris/internal/deliverysync"
	"libris/internal/downloads"
	"libris/internal/logging"
	"libris/internal/requests"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize delivery states from the download queue",
	}

	syncCmd.AddCommand(newSyncRunCommand(ctx))
	syncCmd.AddCommand(newSyncDaemonCommand(ctx))

	return syncCmd
}

func newSyncRunCommand(ctx *commandContext) *cobra.Command {
	var (
		asUser       string
		snapshotPath string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one synchronization pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(s *stores) error {
				opts := deliverysync.Options{}
				if asUser != "" {
					owner, err := resolveUser(cmd.Context(), s, "sync run", asUser)
					if err != nil {
						return err
					}
					opts.UserID = &owner.ID
				}

				snapshot, err := loadSnapshot(cmd.Context(), s, snapshotPath)
				if err != nil {
					return err
				}
				if len(snapshot) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue snapshot is empty; nothing to sync")
					return nil
				}

				changed, err := s.sync.Sync(cmd.Context(), snapshot, opts)
				if err != nil {
					return err
				}
				reportSyncPass(cmd, s, changed)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&asUser, "as", "", "Restrict the pass to one owner's requests")
	cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "Read the queue snapshot from a file instead of the spool")
	return cmd
}

func newSyncDaemonCommand(ctx *commandContext) *cobra.Command {
	var interval int

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run synchronization passes on an interval until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(s *stores) error {
				logger, err := logging.NewFromConfig(s.cfg)
				if err != nil {
					return err
				}

				lock := flock.New(filepath.Join(s.cfg.Paths.LogDir, "libris-sync.lock"))
				locked, err := lock.TryLock()
				if err != nil {
					return fmt.Errorf("acquire sync lock: %w", err)
				}
				if !locked {
					return fmt.Errorf("another sync daemon is already running")
				}
				defer lock.Unlock()

				if interval <= 0 {
					interval = s.cfg.Sync.IntervalSeconds
				}
				if interval <= 0 {
					interval = 60
				}

				runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				logger.Info("sync daemon started", "interval_seconds", interval)
				ticker := time.NewTicker(time.Duration(interval) * time.Second)
				defer ticker.Stop()

				for {
					if err := daemonPass(runCtx, s, logger); err != nil {
						logger.Error("sync pass failed", "error", err)
					}
					select {
					case <-runCtx.Done():
						logger.Info("sync daemon stopping")
						return nil
					case <-ticker.C:
					}
				}
			})
		},
	}

	cmd.Flags().IntVar(&interval, "interval", 0, "Seconds between passes (defaults to the configured interval)")
	return cmd
}

func daemonPass(ctx context.Context, s *stores, logger *slog.Logger) error {
	snapshot, err := s.spool.QueueStatus(ctx)
	if err != nil {
		return err
	}
	if len(snapshot) == 0 {
		return nil
	}
	changed, err := s.sync.Sync(ctx, snapshot, deliverysync.Options{})
	if err != nil {
		return err
	}
	for _, row := range changed {
		logger.Info("delivery state updated",
			logging.FieldRequestID, row.ID, "delivery_state", string(row.DeliveryState))
		if err := notifyTerminalChange(ctx, s, row); err != nil {
			logger.Warn("notification not delivered",
				logging.FieldRequestID, row.ID, "error", err)
		}
	}
	return nil
}

func loadSnapshot(ctx context.Context, s *stores, path string) (downloads.Snapshot, error) {
	if path == "" {
		return s.spool.QueueStatus(ctx)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot file: %w", err)
	}
	return downloads.ParseSnapshot(data)
}

func reportSyncPass(cmd *cobra.Command, s *stores, changed []*requests.Request) {
	out := cmd.OutOrStdout()
	if len(changed) == 0 {
		fmt.Fprintln(out, "All delivery states already current")
		return
	}
	for _, row := range changed {
		fmt.Fprintf(out, "Request %d delivery is now %s\n", row.ID, row.DeliveryState)
		notifyWarn(cmd, notifyTerminalChange(cmd.Context(), s, row))
	}
}

// notifyTerminalChange pushes a notification for deliveries that just ended.
// Callers report the error as a warning; it never fails the pass.
func notifyTerminalChange(ctx context.Context, s *stores, row *requests.Request) error {
	if !row.DeliveryState.Terminal() {
		return nil
	}
	title := bookTitle(row.BookData)
	return s.notifier.NotifyDeliveryTerminal(ctx, title, string(row.DeliveryState))
}
