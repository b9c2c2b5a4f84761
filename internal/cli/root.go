// Package cli implements the dialoguectl commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Corphon/DialogueEngine/internal/app"
	"github.com/Corphon/DialogueEngine/internal/config"
	"github.com/Corphon/DialogueEngine/internal/savesystem"
	"github.com/Corphon/DialogueEngine/internal/utils"
)

var (
	backendFlag  string
	saveDirFlag  string
	dialogueFlag string
	verboseFlag  bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "dialoguectl",
	Short: "Inspect save slots and play conversations",
	Long:  "Command line companion for the dialogue server. Reads the same environment and .env file as the server.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&backendFlag, "backend", "b", "", "Save backend: disk, memory or sqlite (default: $SAVE_BACKEND)")
	RootCmd.PersistentFlags().StringVar(&saveDirFlag, "save-dir", "", "Save directory (default: $SAVE_DIR)")
	RootCmd.PersistentFlags().StringVar(&dialogueFlag, "db", "", "Dialogue database (default: $DIALOGUE_DB)")
	RootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log to stderr")
}

// loadConfig reads the environment and applies the command line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if backendFlag != "" {
		cfg.SaveBackend = backendFlag
	}
	if saveDirFlag != "" {
		cfg.SaveDir = saveDirFlag
	}
	if dialogueFlag != "" {
		cfg.DialogueDB = dialogueFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger() *utils.Logger {
	level := utils.ERROR
	if verboseFlag {
		level = utils.DEBUG
	}
	return utils.NewLogger(os.Stderr, level)
}

// openStorer opens the configured save store. The returned close func is
// never nil.
func openStorer() (savesystem.Storer, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	storer, closer, err := app.NewStorer(cfg, newLogger())
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {}
	if closer != nil {
		closeFn = func() { closer.Close() }
	}
	return storer, closeFn, nil
}

func parseSlot(arg string) (int, error) {
	slot, err := strconv.Atoi(arg)
	if err != nil || slot < 0 {
		return 0, fmt.Errorf("invalid slot %q: must be a non-negative integer", arg)
	}
	return slot, nil
}

func printJSON(w io.Writer, v interface{}) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
