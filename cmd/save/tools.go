package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the registered tools, including those discovered from MCP servers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tAUTHORITATIVE\tDESCRIPTION")
		for _, t := range a.registry.List() {
			fmt.Fprintf(w, "%s\t%v\t%s\n", t.Name, t.Authoritative, t.Description)
		}
		return w.Flush()
	},
}
