package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rm [slot...]",
		Short: "Delete saved games",
		Args:  cobra.MinimumNArgs(1),
		Run:   runRm,
	}

	RootCmd.AddCommand(cmd)
}

func runRm(cmd *cobra.Command, args []string) {
	storer, closeFn, err := openStorer()
	if err != nil {
		exitErr("open save store", err)
	}
	defer closeFn()

	for _, arg := range args {
		slot, err := parseSlot(arg)
		if err != nil {
			exitErr("rm", err)
		}
		if !storer.HasDataInSlot(cmd.Context(), slot) {
			fmt.Fprintf(cmd.ErrOrStderr(), "slot %d is already empty\n", slot)
			continue
		}
		storer.DeleteSavedGameData(cmd.Context(), slot)
		fmt.Fprintf(cmd.OutOrStdout(), "deleted slot %d\n", slot)
	}
}
