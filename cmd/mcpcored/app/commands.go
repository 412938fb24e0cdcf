package app

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/deechat/mcp-core/pkg/logger"
)

// NewRootCmd creates a new root command for the mcpcored CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "mcpcored",
		DisableAutoGenTag: true,
		Short:             "mcpcored is a standalone runtime for MCP servers registered outside of DeeChat",
		Long: `mcpcored wires up the same config registry, transport supervisor, tool cache,
and orchestrator the embedding DeeChat desktop application links in-process, exposed
here as a command-line daemon for scripting, debugging, and CI smoke tests.`,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				logger.Errorf("error displaying help: %v", err)
			}
		},
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logger.Initialize()
		},
	}

	rootCmd.PersistentFlags().Bool("debug", false, "bound to the \"debug\" config key; does not change log output (verbosity follows MCPCORE_UNSTRUCTURED_LOGS)")
	rootCmd.PersistentFlags().String("config-dir", "", "directory the config registry persists server entries under (default: OS user config dir)")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("error binding debug flag: %v", err)
	}
	if err := viper.BindPFlag("config-dir", rootCmd.PersistentFlags().Lookup("config-dir")); err != nil {
		logger.Errorf("error binding config-dir flag: %v", err)
	}
	viper.SetEnvPrefix("mcpcored")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(listServersCmd)
	rootCmd.AddCommand(addServerCmd)
	rootCmd.AddCommand(removeServerCmd)
	rootCmd.AddCommand(listToolsCmd)
	rootCmd.AddCommand(callToolCmd)
	rootCmd.AddCommand(testConnectionCmd)

	rootCmd.SilenceUsage = true

	return rootCmd
}
