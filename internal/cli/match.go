package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ooddaa/mango-sub002/pkg/criteria"
)

func newMatchCmd() *cobra.Command {
	var (
		labels   []string
		where    string
		rangeKey string
		from     string
		to       string
		day      string
		format   string
	)

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Find nodes by labels, property criteria and a date range",
		Example: `  mango match --label Person --where '{AGE: {$gte: 18}}'
  mango match --label Person --day 2024-03-09`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e := envFrom(ctx)

			partial, err := partialNode(labels, where, rangeKey, from, to, day)
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

			res := a.engine.MatchPartialNodes(ctx, []criteria.PartialNode{partial})[0]
			if res.Failure != nil {
				return res.Failure
			}
			return output(cmd.OutOrStdout(), format, res.Data())
		},
	}

	cmd.Flags().StringSliceVarP(&labels, "label", "l", nil, "node label (repeatable)")
	cmd.Flags().StringVarP(&where, "where", "w", "", "criteria map in YAML or JSON")
	cmd.Flags().StringVar(&rangeKey, "range-key", "", "property the range applies to (default _date_created)")
	cmd.Flags().StringVar(&from, "from", "", "inclusive lower bound")
	cmd.Flags().StringVar(&to, "to", "", "inclusive upper bound")
	cmd.Flags().StringVar(&day, "day", "", "calendar day, YYYY-MM-DD")
	cmd.Flags().StringVarP(&format, "output", "o", "json", "output format: json or yaml")
	return cmd
}

func partialNode(labels []string, where, rangeKey, from, to, day string) (criteria.PartialNode, error) {
	p := criteria.PartialNode{Labels: labels}
	if len(labels) == 0 {
		return p, fmt.Errorf("at least one --label is required")
	}
	if where != "" {
		if err := yaml.Unmarshal([]byte(where), &p.Conditions); err != nil {
			return p, fmt.Errorf("invalid --where: %w", err)
		}
	}
	if from != "" || to != "" || day != "" {
		p.Range = &criteria.Range{Key: rangeKey, Day: day}
		if from != "" {
			p.Range.From = from
		}
		if to != "" {
			p.Range.To = to
		}
	}
	if _, err := criteria.Compile(p, "n", criteria.NewParams("c")); err != nil {
		return p, err
	}
	return p, nil
}
