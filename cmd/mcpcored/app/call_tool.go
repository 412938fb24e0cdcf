package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deechat/mcp-core/pkg/mcp"
)

var callToolArgsJSON string

var callToolCmd = &cobra.Command{
	Use:   "call-tool [server-id] [tool-name]",
	Short: "Invoke one tool on one server",
	Args:  cobra.ExactArgs(2),
	RunE:  callToolCmdFunc,
}

func init() {
	callToolCmd.Flags().StringVar(&callToolArgsJSON, "args", "{}", "tool arguments, as a JSON object")
}

func callToolCmdFunc(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	var toolArgs map[string]any
	if err := json.Unmarshal([]byte(callToolArgsJSON), &toolArgs); err != nil {
		return fmt.Errorf("parse --args: %w", err)
	}

	resp := rt.orchestrator.CallTool(cmd.Context(), mcp.ToolCallRequest{
		ServerID:  args[0],
		ToolName:  args[1],
		Arguments: toolArgs,
	})

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if !resp.Success {
		return fmt.Errorf("tool call failed: %s", resp.Error)
	}
	return nil
}
