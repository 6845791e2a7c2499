package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jrmdev/linkloom/internal/sync"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle (push pending changes, pull server events)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.SyncCycle(ctx); err != nil {
				return describeSyncError(err)
			}

			status, err := a.engine.Status(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Synced. Cursor %d, %d pending.\n", status.Cursor, status.Pending)

			return nil
		},
	}
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Sync continuously until interrupted",
		Long: `Run sync in a loop: a full cycle at every poll interval, plus an
immediate push whenever a local edit lands in the queue. Stop with Ctrl-C.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return describeSyncError(err)
			}

			return nil
		},
	}
}

// describeSyncError rewrites engine precondition sentinels into actionable
// messages; everything else passes through.
func describeSyncError(err error) error {
	switch {
	case errors.Is(err, sync.ErrNotConfigured):
		return errors.New("not configured: set server url and api token with 'linkloom config set'")
	case errors.Is(err, sync.ErrNotInitialized):
		return errors.New("first sync has not been run: use 'linkloom first-sync --mode <mode>'")
	case errors.Is(err, sync.ErrSyncDisabled):
		return errors.New("sync is disabled: enable it with 'linkloom config set enabled true'")
	default:
		return err
	}
}
