package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/meetbroker/internal/google"
)

func newAuthCmd() *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate a Google account for Gmail and Calendar access",
		Long: `Authenticate with Google and store an OAuth token for the given account.

The command prints an authorization URL. Open it in a browser, grant
access, and paste the resulting authorization code back on stdin. The
token is stored per account, so multiple mailboxes can be authenticated
side by side (e.g. --account work, --account personal).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Move any legacy single-account token to the per-account scheme.
			if err := google.MigrateDefaultToken(); err != nil {
				return fmt.Errorf("failed to migrate legacy token: %w", err)
			}

			if google.HasTokenForAccount(account) {
				fmt.Printf("Account %q is already authenticated; continuing will replace its token.\n\n", account)
			}

			fmt.Println("Open the following URL in a browser and authorize access:")
			fmt.Printf("\n  %s\n\n", google.GetAuthURL())
			fmt.Print("Enter the authorization code: ")

			reader := bufio.NewReader(os.Stdin)
			code, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("failed to read authorization code: %w", err)
			}
			code = strings.TrimSpace(code)
			if code == "" {
				return fmt.Errorf("no authorization code provided")
			}

			if err := google.SaveTokenForAccount(cmd.Context(), account, code); err != nil {
				return fmt.Errorf("failed to save token for account %s: %w", account, err)
			}

			fmt.Printf("Token saved for account %q.\n", account)
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "default", "Google account name to authenticate (default: 'default')")

	return cmd
}
