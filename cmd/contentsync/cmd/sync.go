package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/input-output-hk/catalyst-forge-libs/contentsync"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/fs/billy"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/snapshot"
)

func newSyncCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync [<source> <destination>]",
		Short: "Make the destination identical to the source",
		Long: `Build content trees of the source and the destination, then copy new and
changed files and delete files missing from the source.

With --dry-run the planned operations are printed and nothing is changed.`,
		Example: `  contentsync sync ./site deploy@web:/var/www/site
  contentsync sync --source ./site --destination s3://assets/site --dry-run
  contentsync sync ./site /mnt/backup --source-snapshot .contentsync/src.snap`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyArgs(a.cfg, args); err != nil {
				return err
			}
			syncer, err := a.newSyncer(cmd.Context())
			if err != nil {
				return err
			}
			defer syncer.Close() //nolint:errcheck // run result already reported

			result, err := syncer.Sync(cmd.Context(), contentsync.Config{
				DryRun:          a.cfg.DryRun,
				ForceFullRehash: a.cfg.Full,
			})
			a.writeMetrics()
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), result, a.cfg.DryRun)
			return nil
		},
	}
	bindSyncFlags(cmd, a.cfg)
	return cmd
}

// newSyncer opens both locations and wires the snapshot caches.
func (a *app) newSyncer(ctx context.Context) (*contentsync.Syncer, error) {
	opts := []contentsync.Option{
		contentsync.WithLogger(a.logger),
		contentsync.WithMetrics(a.metrics),
	}
	srcCache, err := a.snapshotCache(a.cfg.SourceSnapshot)
	if err != nil {
		return nil, err
	}
	if srcCache != nil {
		opts = append(opts, contentsync.WithSourceCache(srcCache))
	}
	dstCache, err := a.snapshotCache(a.cfg.DestinationSnapshot)
	if err != nil {
		return nil, err
	}
	if dstCache != nil {
		opts = append(opts, contentsync.WithDestinationCache(dstCache))
	}

	src, err := a.openSource()
	if err != nil {
		return nil, err
	}
	dst, err := a.openDestination(ctx)
	if err != nil {
		return nil, err
	}
	return contentsync.NewSyncer(src, dst, opts...), nil
}

// snapshotCache returns the cache stored at path, or nil for an empty path.
func (a *app) snapshotCache(path string) (*snapshot.Cache, error) {
	if path == "" {
		return nil, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve snapshot %s: %w", path, err)
	}
	return snapshot.NewCache(billy.NewBaseOSFS(), abs, snapshot.WithLogger(a.logger)), nil
}

func printResult(w io.Writer, result *contentsync.Result, dryRun bool) {
	for _, op := range result.Operations {
		fmt.Fprintln(w, op.String())
	}
	verb := "Copied"
	deleted := "deleted"
	if dryRun {
		verb = "Would copy"
		deleted = "would delete"
	}
	fmt.Fprintf(w, "%s %d, %s %d\n", verb, result.Copies, deleted, result.Deletes)
}
