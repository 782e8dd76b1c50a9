package cli

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/spf13/cobra"

	"github.com/ooddaa/mango-sub002/pkg/candidate"
	"github.com/ooddaa/mango-sub002/pkg/graph"
	"github.com/ooddaa/mango-sub002/pkg/result"
	"github.com/ooddaa/mango-sub002/pkg/template"
)

// HashEntry is one promoted entity in `mango hash` output.
type HashEntry struct {
	Kind   string `json:"kind"`
	Label  string `json:"label"`
	Hash   string `json:"hash,omitempty"`
	Parent string `json:"parent,omitempty"`
	Error  string `json:"error,omitempty"`
}

func newHashCmd() *cobra.Command {
	var (
		file      string
		templates string
		format    string
	)

	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Print content hashes of a batch document without touching the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e := envFrom(ctx)

			builder, err := localBuilder(ctx, e.logger, templates)
			if err != nil {
				return err
			}
			batch, err := readBatch(file)
			if err != nil {
				return err
			}

			entries, err := hashBatch(ctx, builder, batch)
			if err != nil {
				return err
			}
			return output(cmd.OutOrStdout(), format, entries)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "batch document (YAML or JSON, - for stdin)")
	cmd.Flags().StringVar(&templates, "templates", "", "template definitions to validate against")
	cmd.Flags().StringVarP(&format, "output", "o", "json", "output format: json or yaml")
	return cmd
}

func readBatch(path string) (*candidate.Batch, error) {
	in, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	return candidate.ReadBatch(in)
}

// localBuilder builds a promoter over templates read from a file, if given.
func localBuilder(ctx context.Context, logger ectologger.Logger, templatesFile string) (*candidate.Builder, error) {
	registry := template.NewRegistry(logger, nil)
	if templatesFile != "" {
		defs, err := readDefinitions(templatesFile)
		if err != nil {
			return nil, err
		}
		if err := registry.RegisterDefinitions(defs...); err != nil {
			return nil, err
		}
		logger.WithContext(ctx).WithField("templates", len(defs)).Debug("Loaded templates")
	}
	return candidate.NewBuilder(registry, logger), nil
}

func readDefinitions(path string) ([]template.Definition, error) {
	in, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	return template.ReadDefinitions(in)
}

func hashBatch(ctx context.Context, builder *candidate.Builder, batch *candidate.Batch) ([]HashEntry, error) {
	var entries []HashEntry

	for _, r := range builder.Nodes(ctx, batch.NodeCandidates()) {
		n, _ := result.DataAs[*graph.Node](r)
		entries = append(entries, nodeEntry("node", n, "", r))
	}

	rels, err := batch.RelationshipCandidates()
	if err != nil {
		return nil, err
	}
	for _, r := range builder.Relationships(ctx, rels) {
		rel, _ := result.DataAs[*graph.Relationship](r)
		entries = append(entries, relationshipEntry(rel, "", r))
	}

	enodes, err := batch.EnhancedNodeCandidates()
	if err != nil {
		return nil, err
	}
	for _, r := range builder.EnhancedNodes(ctx, enodes) {
		en, _ := result.DataAs[*graph.EnhancedNode](r)
		if en == nil {
			entries = append(entries, nodeEntry("enhancedNode", nil, "", r))
			continue
		}
		root := en.Hash()
		entries = append(entries, nodeEntry("enhancedNode", en.Node, "", r))
		for _, n := range en.ParticipatingNodes() {
			if n.Hash() != root {
				entries = append(entries, nodeEntry("node", n, root, r))
			}
		}
		for _, rel := range en.ParticipatingRelationships(true) {
			entries = append(entries, relationshipEntry(rel, root, r))
		}
	}
	return entries, nil
}

func nodeEntry(kind string, n *graph.Node, parent string, r result.Result) HashEntry {
	if n == nil {
		return HashEntry{Kind: kind, Error: failureText(r)}
	}
	return HashEntry{Kind: kind, Label: n.Label(), Hash: n.Hash(), Parent: parent}
}

func relationshipEntry(rel *graph.Relationship, parent string, r result.Result) HashEntry {
	if rel == nil {
		return HashEntry{Kind: "relationship", Error: failureText(r)}
	}
	return HashEntry{Kind: "relationship", Label: rel.Label, Hash: rel.Hash(), Parent: parent}
}

func failureText(r result.Result) string {
	if r.Failure == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", r.Failure.Kind, r.Failure.Reason)
}
