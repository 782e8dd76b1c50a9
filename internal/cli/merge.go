package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ooddaa/mango-sub002/pkg/engine"
)

func newMergeCmd() *cobra.Command {
	var (
		file   string
		format string
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Promote and merge a batch document into the graph",
		Long: `Reads nodes, relationships and enhanced nodes from a YAML or JSON document,
promotes them against the configured templates and merges them into the store.
Plain nodes are merged first, then relationships, then enhanced nodes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e := envFrom(ctx)

			batch, err := readBatch(file)
			if err != nil {
				return err
			}

			a, err := newApp(ctx, e.cfg, e.logger)
			if err != nil {
				return err
			}
			if err := a.start(ctx); err != nil {
				return err
			}
			defer a.stop(ctx)

			results, err := a.engine.MergeBatch(ctx, batch)
			if err != nil {
				return err
			}
			if err := output(cmd.OutOrStdout(), format, results); err != nil {
				return err
			}
			return failIfStrict(strict, results)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "batch document (YAML or JSON, - for stdin)")
	cmd.Flags().StringVarP(&format, "output", "o", "json", "output format: json or yaml")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any item fails")
	return cmd
}

func failIfStrict(strict bool, results *engine.BatchResults) error {
	if !strict {
		return nil
	}
	if n := results.Failed(); n > 0 {
		return fmt.Errorf("%d items failed", n)
	}
	return nil
}
