package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/input-output-hk/catalyst-forge-libs/contentsync/internal/sync/scanner"
	"github.com/input-output-hk/catalyst-forge-libs/contentsync/snapshot"
)

func newSnapshotCommand(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "snapshot <dir>",
		Short: "Hash a local directory and write its snapshot",
		Long: `Hash every file below a local directory and write the snapshot to stdout, or
to --output. An existing --output snapshot is used to skip rehashing files not
modified since it was written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cfg.Source = args[0]
			loc, err := a.openSource()
			if err != nil {
				return err
			}

			cache, err := a.snapshotCache(output)
			if err != nil {
				return err
			}

			s := scanner.New(scanner.WithLogger(a.logger), scanner.WithMetrics(a.metrics))
			tree, err := s.Scan(cmd.Context(), loc, cache)
			if err != nil {
				return err
			}
			if cache != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d files to %s\n", len(tree.AllFiles()), cache.Path())
				return nil
			}
			return snapshot.NewCodec().Encode(cmd.OutOrStdout(), tree)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Snapshot file to write")
	cmd.Flags().StringSliceVar(&a.cfg.Include, "include", a.cfg.Include, "Only include files matching these patterns")
	cmd.Flags().StringSliceVar(&a.cfg.Exclude, "exclude", a.cfg.Exclude, "Skip files matching these patterns")
	cmd.Flags().StringSliceVar(&a.cfg.DirExclude, "dir-exclude", a.cfg.DirExclude,
		"Skip directories matching these patterns")
	return cmd
}
