package app

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	listToolsJSON bool
	listToolsYAML bool
)

var listToolsCmd = &cobra.Command{
	Use:   "list-tools",
	Short: "Discover and list tools across every enabled server",
	Long: `list-tools connects to every enabled server (or reuses their cached
catalogs) and prints the union of tools they advertise.`,
	RunE: listToolsCmdFunc,
}

func init() {
	listToolsCmd.Flags().BoolVar(&listToolsJSON, "json", false, "print as JSON")
	listToolsCmd.Flags().BoolVar(&listToolsYAML, "yaml", false, "print as YAML")
}

func listToolsCmdFunc(cmd *cobra.Command, _ []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	tools, err := rt.orchestrator.GetAllTools(cmd.Context())
	if err != nil {
		return fmt.Errorf("list tools: %w", err)
	}

	if listToolsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tools)
	}
	if listToolsYAML {
		enc := yaml.NewEncoder(os.Stdout)
		defer enc.Close()
		return enc.Encode(tools)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "SERVER\tTOOL\tDESCRIPTION")
	for _, t := range tools {
		fmt.Fprintf(w, "%s\t%s\t%s\n", t.ServerName, t.Name, t.Description)
	}
	return nil
}
