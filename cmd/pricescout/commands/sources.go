package commands

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newSourcesCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "Lists the configured sources and their tiers.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			runtime, err := root.buildRuntime(cmd, cfg)
			if err != nil {
				return err
			}
			defer runtime.Close()

			t := newTable(cmd)
			t.AppendHeader(table.Row{"Source", "Label", "Kind", "Tier", "Enabled"})
			for _, info := range runtime.Service.Sources() {
				t.AppendRow(table.Row{info.Name, info.Label, info.Kind, info.Tier, info.Enabled})
			}
			t.Render()
			return nil
		},
	}
}
