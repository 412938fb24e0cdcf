package app

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deechat/mcp-core/pkg/mcp"
)

var (
	addName        string
	addCollection  string
	addType        string
	addCommand     string
	addArgs        []string
	addURL         string
	addChannel     string
	addEnv         []string
	addDisabled    bool
	addAutoStart   bool
	addBearerToken string
)

var addServerCmd = &cobra.Command{
	Use:   "add-server",
	Short: "Register a new MCP server",
	Long: `add-server writes a new ServerConfig to the registry and, unless --disabled
is set, immediately attempts to connect it.`,
	RunE: addServerCmdFunc,
}

func init() {
	addServerCmd.Flags().StringVar(&addName, "name", "", "display name (required)")
	addServerCmd.Flags().StringVar(&addCollection, "collection", "user", "collection: system, project, or user")
	addServerCmd.Flags().StringVar(&addType, "type", "",
		"transport type: stdio, websocket, streamableHttp, sse, or inMemory (required)")
	addServerCmd.Flags().StringVar(&addCommand, "command", "", "stdio: executable to spawn")
	addServerCmd.Flags().StringSliceVar(&addArgs, "arg", nil, "stdio: argument (repeatable)")
	addServerCmd.Flags().StringSliceVar(&addEnv, "env", nil, "stdio: KEY=VALUE environment variable (repeatable)")
	addServerCmd.Flags().StringVar(&addURL, "url", "", "websocket/streamableHttp/sse: server URL")
	addServerCmd.Flags().StringVar(&addChannel, "channel", "", "inMemory: loopback channel name")
	addServerCmd.Flags().StringVar(&addBearerToken, "bearer-token", "", "bearer token, if the server requires auth")
	addServerCmd.Flags().BoolVar(&addDisabled, "disabled", false, "add the server without enabling it")
	addServerCmd.Flags().BoolVar(&addAutoStart, "auto-start", false, "record the autoStart flag on the entry (serve connects every enabled server regardless)")

	if err := addServerCmd.MarkFlagRequired("name"); err != nil {
		panic(err)
	}
	if err := addServerCmd.MarkFlagRequired("type"); err != nil {
		panic(err)
	}
}

func addServerCmdFunc(cmd *cobra.Command, _ []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	env, err := parseEnv(addEnv)
	if err != nil {
		return err
	}

	cfg := &mcp.ServerConfig{
		Name:       addName,
		Collection: mcp.Collection(addCollection),
		Source:     mcp.SourceUser,
		Type:       mcp.TransportType(addType),
		Command:    addCommand,
		Args:       addArgs,
		Env:        env,
		URL:        addURL,
		Channel:    addChannel,
		IsEnabled:  !addDisabled,
		AutoStart:  addAutoStart,
		Retry:      mcp.DefaultRetryPolicy(),
	}
	if addBearerToken != "" {
		cfg.Auth = mcp.Auth{Type: mcp.AuthBearer, Token: addBearerToken}
	}

	added, err := rt.orchestrator.AddServer(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("add server: %w", err)
	}
	fmt.Printf("added server %q (id=%s, status=%s)\n", added.Name, added.ID, rt.supervisor.Status(added.ID))
	return nil
}

func parseEnv(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --env %q, expected KEY=VALUE", p)
		}
		env[k] = v
	}
	return env, nil
}
