package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Corphon/DialogueEngine/internal/savesystem"
)

func init() {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "List occupied save slots",
		Run:   runSlots,
	}
	cmd.Flags().StringP("format", "f", "text", "Output format: json or text")

	RootCmd.AddCommand(cmd)
}

func runSlots(cmd *cobra.Command, args []string) {
	format, _ := cmd.Flags().GetString("format")

	storer, closeFn, err := openStorer()
	if err != nil {
		exitErr("open save store", err)
	}
	defer closeFn()

	lister, ok := storer.(savesystem.SlotLister)
	if !ok {
		exitErr("slots", fmt.Errorf("backend cannot list slots"))
	}
	slots := lister.ListSlots(cmd.Context())

	if format == "json" {
		printJSON(cmd.OutOrStdout(), slots)
		return
	}
	if len(slots) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no saved games")
		return
	}
	for _, info := range slots {
		fmt.Fprintf(cmd.OutOrStdout(), "%4d  %s\n", info.Slot, info.SceneName)
	}
}
