package cli

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Corphon/DialogueEngine/internal/auth"
)

func init() {
	cmd := &cobra.Command{
		Use:   "token [client]",
		Short: "Issue an API token signed with AUTH_SECRET_KEY",
		Long: "Prints a bearer token for the dialogue server.\n" +
			"With --new-secret, prints a random value suitable for AUTH_SECRET_KEY instead.",
		Args: cobra.MaximumNArgs(1),
		Run:  runToken,
	}
	cmd.Flags().Duration("ttl", auth.DefaultExpiration, "Token lifetime")
	cmd.Flags().Bool("new-secret", false, "Print a new random secret and exit")

	RootCmd.AddCommand(cmd)
}

func runToken(cmd *cobra.Command, args []string) {
	out := cmd.OutOrStdout()

	if newSecret, _ := cmd.Flags().GetBool("new-secret"); newSecret {
		key, err := auth.GenerateSecureKey(32)
		if err != nil {
			exitErr("generate secret", err)
		}
		fmt.Fprintln(out, hex.EncodeToString(key))
		return
	}

	if len(args) != 1 {
		exitErr("token", fmt.Errorf("client name is required"))
	}
	ttl, _ := cmd.Flags().GetDuration("ttl")

	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	token, err := issueToken(cfg.AuthSecret, args[0], ttl)
	if err != nil {
		exitErr("token", err)
	}
	fmt.Fprintln(out, token)
}

func issueToken(secret, client string, ttl time.Duration) (string, error) {
	tokens := auth.NewTokenConfig(secret, ttl)
	if tokens == nil {
		return "", fmt.Errorf("AUTH_SECRET_KEY is not set")
	}
	return auth.GenerateToken(client, tokens)
}
