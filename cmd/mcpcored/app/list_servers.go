package app

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/deechat/mcp-core/pkg/mcp"
)

var (
	listServersCollection string
	listServersJSON       bool
	listServersYAML       bool
)

var listServersCmd = &cobra.Command{
	Use:   "list-servers",
	Short: "List configured MCP servers",
	RunE:  listServersCmdFunc,
}

func init() {
	listServersCmd.Flags().StringVar(&listServersCollection, "collection", "",
		"filter by collection (system, project, user); default lists all")
	listServersCmd.Flags().BoolVar(&listServersJSON, "json", false, "print as JSON")
	listServersCmd.Flags().BoolVar(&listServersYAML, "yaml", false, "print as YAML")
}

func listServersCmdFunc(_ *cobra.Command, _ []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	servers := rt.registry.List(mcp.Collection(listServersCollection))

	if listServersJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(servers)
	}
	if listServersYAML {
		enc := yaml.NewEncoder(os.Stdout)
		defer enc.Close()
		return enc.Encode(servers)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "ID\tNAME\tCOLLECTION\tTYPE\tENABLED\tSTATUS")
	for _, s := range servers {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
			s.ID, s.Name, s.Collection, s.Type, s.IsEnabled, rt.supervisor.Status(s.ID))
	}
	return nil
}
