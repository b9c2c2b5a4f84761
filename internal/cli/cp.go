package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "cp [from] [to]",
		Short: "Copy a saved game to another slot",
		Args:  cobra.ExactArgs(2),
		Run:   runCp,
	}
	cmd.Flags().Bool("force", false, "Overwrite an occupied target slot")

	RootCmd.AddCommand(cmd)
}

func runCp(cmd *cobra.Command, args []string) {
	force, _ := cmd.Flags().GetBool("force")
	from, err := parseSlot(args[0])
	if err != nil {
		exitErr("cp", err)
	}
	to, err := parseSlot(args[1])
	if err != nil {
		exitErr("cp", err)
	}

	storer, closeFn, err := openStorer()
	if err != nil {
		exitErr("open save store", err)
	}
	defer closeFn()

	ctx := cmd.Context()
	if !storer.HasDataInSlot(ctx, from) {
		exitErr("cp", fmt.Errorf("slot %d is empty", from))
	}
	if storer.HasDataInSlot(ctx, to) && !force {
		exitErr("cp", fmt.Errorf("slot %d is occupied (use --force)", to))
	}
	if err := storer.StoreSavedGameData(ctx, to, storer.RetrieveSavedGameData(ctx, from)); err != nil {
		exitErr("cp", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "copied slot %d to %d\n", from, to)
}
