package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Corphon/DialogueEngine/internal/savesystem"
)

func init() {
	cmd := &cobra.Command{
		Use:   "dump [slot]",
		Short: "Print the records stored in a slot",
		Args:  cobra.ExactArgs(1),
		Run:   runDump,
	}
	cmd.Flags().StringP("key", "k", "", "Only print the record with this key")

	RootCmd.AddCommand(cmd)
}

func runDump(cmd *cobra.Command, args []string) {
	key, _ := cmd.Flags().GetString("key")
	slot, err := parseSlot(args[0])
	if err != nil {
		exitErr("dump", err)
	}

	storer, closeFn, err := openStorer()
	if err != nil {
		exitErr("open save store", err)
	}
	defer closeFn()

	if !storer.HasDataInSlot(cmd.Context(), slot) {
		exitErr("dump", fmt.Errorf("slot %d is empty", slot))
	}
	data := storer.RetrieveSavedGameData(cmd.Context(), slot)

	if key != "" {
		value, ok := data.GetData(key)
		if !ok {
			exitErr("dump", fmt.Errorf("no record %q in slot %d", key, slot))
		}
		fmt.Fprintln(cmd.OutOrStdout(), value)
		return
	}

	content, err := savesystem.JSONSerializer{Indent: true}.Serialize(data)
	if err != nil {
		exitErr("dump", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), content)
}
