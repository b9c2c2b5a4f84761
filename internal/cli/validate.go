package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Corphon/DialogueEngine/internal/models"
)

func init() {
	cmd := &cobra.Command{
		Use:   "validate [database]",
		Short: "Check a dialogue database for broken links and unknown actors",
		Args:  cobra.MaximumNArgs(1),
		Run:   runValidate,
	}

	RootCmd.AddCommand(cmd)
}

func runValidate(cmd *cobra.Command, args []string) {
	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		cfg, err := loadConfig()
		if err != nil {
			exitErr("load config", err)
		}
		path = cfg.DialogueDB
	}

	db, err := models.LoadDialogueDatabase(path)
	if err != nil {
		exitErr("load database", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d actors, %d conversations\n", path, len(db.Actors), len(db.Conversations))
	problems := db.Validate()
	for _, problem := range problems {
		fmt.Fprintf(out, "  %s\n", problem)
	}
	if len(problems) > 0 {
		exitErr("validate", fmt.Errorf("%d problems found", len(problems)))
	}
	fmt.Fprintln(out, "ok")
}
