// Package cli implements the mango command line: the HTTP service and
// one-shot commands over the merge engine.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/Gobusters/ectologger"
	"github.com/spf13/cobra"

	"github.com/ooddaa/mango-sub002/config"
	"github.com/ooddaa/mango-sub002/pkg/logging"
)

var (
	version string
	commit  string
	date    string
)

// SetVersion sets the version information displayed by --version.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

type envKey struct{}

// env is what every command needs before it runs.
type env struct {
	cfg    *config.Config
	logger ectologger.Logger
}

func withEnv(ctx context.Context, e *env) context.Context {
	return context.WithValue(ctx, envKey{}, e)
}

func envFrom(ctx context.Context) *env {
	if e, ok := ctx.Value(envKey{}).(*env); ok {
		return e
	}
	return &env{cfg: &config.Config{}, logger: logging.Nop()}
}

// Execute runs the mango CLI.
func Execute() error {
	return newRootCmd().ExecuteContext(context.Background())
}

func newRootCmd() *cobra.Command {
	var (
		envFile string
		verbose bool
	)

	root := &cobra.Command{
		Use:          "mango",
		Short:        "mango keeps a content-addressed property graph in sync",
		Long:         `mango promotes node and relationship documents into hashed entities and merges them into a Neo4j/Memgraph store exactly once per distinct content.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var files []string
			if envFile != "" {
				files = append(files, envFile)
			}
			cfg, err := config.Load(files...)
			if err != nil {
				return err
			}
			if verbose {
				cfg.LogLevel = "debug"
			}
			logger, err := logging.New(cfg.LogLevel, cfg.PrettyLogs)
			if err != nil {
				return err
			}
			cmd.SetContext(withEnv(cmd.Context(), &env{cfg: cfg, logger: logger}))
			return nil
		},
	}

	root.SetVersionTemplate(fmt.Sprintf("mango %s\ncommit: %s\nbuilt: %s\n", version, commit, date))
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (default .env)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newServeCmd())
	root.AddCommand(newMergeCmd())
	root.AddCommand(newMatchCmd())
	root.AddCommand(newHashCmd())
	root.AddCommand(newTemplatesCmd())

	return root
}

// output prints v as JSON or YAML.
func output(w io.Writer, format string, v any) error {
	switch format {
	case "", "json":
		return writeJSON(w, v)
	case "yaml":
		return writeYAML(w, v)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
