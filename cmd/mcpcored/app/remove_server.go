package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

var removeServerCmd = &cobra.Command{
	Use:   "remove-server [id]",
	Short: "Close and delete a registered server",
	Args:  cobra.ExactArgs(1),
	RunE:  removeServerCmdFunc,
}

func removeServerCmdFunc(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	if err := rt.orchestrator.RemoveServer(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("remove server: %w", err)
	}
	fmt.Printf("removed server %s\n", args[0])
	return nil
}
