package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inboxtriage/inboxtriage/internal/google"
)

func newAuthCmd() *cobra.Command {
	var (
		credentialsFile string
		tokenFile       string
		account         string
		force           bool
	)

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize mailbox access interactively",
		Long: `Run the one-time OAuth authorization flow for a Gmail account.

Prints an authorization URL, waits for the authorization code on stdin
and stores the resulting token next to the default token file. The MCP
server itself never runs this flow; it refreshes the stored token
silently and fails with an authorization error when none exists.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuth(cmd, credentialsFile, tokenFile, account, force)
		},
	}

	cmd.Flags().StringVar(&credentialsFile, "credentials", "", "Path to the OAuth client credentials file. Can also use GMAIL_CREDENTIALS_FILE env var.")
	cmd.Flags().StringVar(&tokenFile, "token-file", "", "Path to the stored OAuth token file. Can also use GMAIL_TOKEN_FILE env var.")
	cmd.Flags().StringVar(&account, "account", "", "Account name to authorize (default: 'default')")
	cmd.Flags().BoolVar(&force, "force", false, "Re-authorize even if a token is already stored")

	return cmd
}

func runAuth(cmd *cobra.Command, credentialsFile, tokenFile, account string, force bool) error {
	config, err := google.LoadConfig(google.ResolveCredentialsPath(credentialsFile))
	if err != nil {
		return err
	}

	path := google.ResolveTokenPath(tokenFile)
	if account != "" && account != "default" {
		path = google.TokenPathForAccount(path, account)
	}

	store := google.NewStore(config, path, nil)
	if store.HasToken() && !force {
		fmt.Fprintf(cmd.OutOrStdout(), "Token already stored at %s (use --force to re-authorize)\n", path)
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Visit this URL to authorize mailbox access:\n\n  %s\n\n", store.AuthCodeURL())
	fmt.Fprint(cmd.OutOrStdout(), "Enter the authorization code: ")

	reader := bufio.NewReader(os.Stdin)
	code, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("no authorization code provided")
	}

	if err := store.Exchange(cmd.Context(), code); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Token stored at %s\n", path)
	return nil
}
