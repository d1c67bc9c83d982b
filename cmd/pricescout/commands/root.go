package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"pricescout/searchservice/internal/app"
)

type rootOptions struct {
	logLevel string
	offline  bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "pricescout",
		Short:         "pricescout compares repair part offers across storefronts.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level written to stderr (debug, info, warn, error).")
	cmd.PersistentFlags().BoolVar(&opts.offline, "offline", false, "Only query the embedded catalog.")

	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newSourcesCmd(opts))
	return cmd
}

func ExecuteContext(ctx context.Context) {
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the same configuration as the server and applies the
// flags shared by every subcommand.
func (o *rootOptions) loadConfig() (app.Config, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return app.Config{}, err
	}
	if o.offline {
		cfg.Sources = []string{"catalog"}
		cfg.FallbackSources = nil
		cfg.RedisURL = ""
	}
	return cfg, nil
}

func (o *rootOptions) buildRuntime(cmd *cobra.Command, cfg app.Config) (*app.Runtime, error) {
	logger := app.NewLogger(cmd.ErrOrStderr(), o.logLevel, "text")
	return app.BuildService(cmd.Context(), cfg, logger)
}

func newTable(cmd *cobra.Command) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(cmd.OutOrStdout())
	return t
}
