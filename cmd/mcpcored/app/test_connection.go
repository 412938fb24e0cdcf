package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

var testConnectionCmd = &cobra.Command{
	Use:   "test-connection [id]",
	Short: "Check whether a registered server is reachable",
	Args:  cobra.ExactArgs(1),
	RunE:  testConnectionCmdFunc,
}

func testConnectionCmdFunc(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	ok := rt.orchestrator.TestConnection(cmd.Context(), args[0])
	fmt.Printf("%s: reachable=%t\n", args[0], ok)
	if !ok {
		return fmt.Errorf("server %s is not reachable", args[0])
	}
	return nil
}
