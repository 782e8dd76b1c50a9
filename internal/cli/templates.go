package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ooddaa/mango-sub002/pkg/template"
)

func newTemplatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage template definitions stored in Redis",
	}
	cmd.AddCommand(newTemplatesLoadCmd())
	cmd.AddCommand(newTemplatesListCmd())
	return cmd
}

// withTemplateStore connects to Redis for the duration of fn.
func withTemplateStore(ctx context.Context, fn func(*template.RedisStore) error) error {
	e := envFrom(ctx)
	client := newRedis(e.cfg, e.logger)
	if err := client.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := client.Stop(ctx); err != nil {
			e.logger.WithContext(ctx).WithError(err).Warn("Failed to close Redis")
		}
	}()
	return fn(template.NewRedisStore(client.Redis(), e.cfg.TemplatesRedisPrefix))
}

func newTemplatesLoadCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Compile template definitions and store them",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e := envFrom(ctx)

			defs, err := readDefinitions(file)
			if err != nil {
				return err
			}
			compiler := template.NewCompiler()
			for _, d := range defs {
				if _, err := compiler.Compile(d); err != nil {
					return fmt.Errorf("template %s: %w", d.Label, err)
				}
			}

			return withTemplateStore(ctx, func(s *template.RedisStore) error {
				for _, d := range defs {
					if err := s.Save(ctx, d); err != nil {
						return fmt.Errorf("failed to store template %s: %w", d.Label, err)
					}
				}
				e.logger.WithContext(ctx).WithField("templates", len(defs)).Info("Templates stored")
				fmt.Fprintf(cmd.OutOrStdout(), "stored %d templates\n", len(defs))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "template definitions (YAML or JSON, - for stdin)")
	return cmd
}

func newTemplatesListCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored template definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withTemplateStore(ctx, func(s *template.RedisStore) error {
				labels, err := s.Labels(ctx)
				if err != nil {
					return err
				}
				defs := make([]*template.Definition, 0, len(labels))
				for _, label := range labels {
					d, err := s.Load(ctx, label)
					if err != nil {
						return err
					}
					if d != nil {
						defs = append(defs, d)
					}
				}
				return output(cmd.OutOrStdout(), format, defs)
			})
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", "yaml", "output format: json or yaml")
	return cmd
}
