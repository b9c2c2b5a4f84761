package main

import (
	"os"

	"github.com/Corphon/DialogueEngine/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
