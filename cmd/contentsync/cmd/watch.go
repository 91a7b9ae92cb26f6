package cmd

import (
	"context"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/input-output-hk/catalyst-forge-libs/contentsync"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/internal/watch"
)

func newWatchCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [<source> <destination>]",
		Short: "Sync once, then again whenever the source changes",
		Long: `Run a sync, then watch the source directory and sync again after changes.
Changes are debounced, and syncs never overlap. Stop with Ctrl-C.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyArgs(a.cfg, args); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			syncer, err := a.newSyncer(ctx)
			if err != nil {
				return err
			}
			defer syncer.Close() //nolint:errcheck // shutting down

			root, err := filepath.Abs(a.cfg.Source)
			if err != nil {
				return err
			}
			// Only the first run may discard snapshots.
			full := a.cfg.Full
			run := func(ctx context.Context) error {
				result, err := syncer.Sync(ctx, contentsync.Config{DryRun: a.cfg.DryRun, ForceFullRehash: full})
				full = false
				a.writeMetrics()
				if err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), result, a.cfg.DryRun)
				return nil
			}

			w := watch.New(root, a.cfg.WatchDebounce, run,
				watch.WithLogger(a.logger),
				watch.WithIgnore(a.snapshotIgnore()),
			)
			return w.Run(ctx)
		},
	}
	bindSyncFlags(cmd, a.cfg)
	cmd.Flags().DurationVar(&a.cfg.WatchDebounce, "debounce", a.cfg.WatchDebounce,
		"Quiet period after the last change before syncing")
	return cmd
}

// snapshotIgnore skips events caused by writing snapshot files that live
// inside the watched tree.
func (a *app) snapshotIgnore() func(string) bool {
	var snapshots []string
	for _, p := range []string{a.cfg.SourceSnapshot, a.cfg.DestinationSnapshot} {
		if p == "" {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			snapshots = append(snapshots, abs)
		}
	}
	return func(p string) bool {
		for _, s := range snapshots {
			if p == s || strings.HasPrefix(p, s+".") {
				return true
			}
		}
		return false
	}
}
