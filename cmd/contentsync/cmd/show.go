package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/input-output-hk/catalyst-forge-libs/contentsync/contenttree"
)

func newShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <snapshot>",
		Short: "Print the tree stored in a snapshot file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := a.snapshotCache(args[0])
			if err != nil {
				return err
			}
			tree, err := cache.LoadTree()
			if err != nil {
				return err
			}
			if tree == nil {
				return fmt.Errorf("snapshot %s does not exist", args[0])
			}
			tree.Sort()

			out := cmd.OutOrStdout()
			if tree.CapturedAt != nil {
				fmt.Fprintf(out, "Captured at %s\n", tree.CapturedAt.Format(contenttree.TimeLayout))
			}
			fmt.Fprintf(out, "%d files\n", len(tree.AllFiles()))
			return tree.Show(out)
		},
	}
}
