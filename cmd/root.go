package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the meetbroker application
var rootCmd = &cobra.Command{
	Use:   "meetbroker",
	Short: "Negotiates meeting times over email on your behalf",
	Long: `meetbroker is an autonomous scheduling agent. It polls a Gmail inbox for
coordination messages from other agents, negotiates a meeting time that
fits both calendars through proposals and counter-proposals, and books
a calendar event once both sides confirm.

Configuration is read from MEETBROKER_* environment variables:
  MEETBROKER_ACCOUNT                Google account name (default: "default")
  MEETBROKER_SELF_EMAIL             mailbox address (discovered if empty)
  MEETBROKER_SELF_NAME              display name for outgoing mail
  MEETBROKER_EARLIEST_START         daily meeting start boundary (default: "09:00")
  MEETBROKER_LATEST_END             daily meeting end boundary (default: "17:00")
  MEETBROKER_SKIP_WEEKENDS          exclude weekends (default: true)
  MEETBROKER_REQUIRE_KNOWN_CONTACTS only negotiate with known contacts (default: false)
  MEETBROKER_KNOWN_CONTACTS         comma-separated contact allow-list
  MEETBROKER_HORIZON_DAYS           scheduling look-ahead in days (default: 7)
  MEETBROKER_POLL_INTERVAL          inbox poll interval (default: 1m)
  MEETBROKER_SESSION_TIMEOUT        idle negotiation expiry (default: 48h)
  MEETBROKER_ADD_MEET_LINK          attach Google Meet links to events (default: false)`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "meetbroker version %s\n" .Version}}`)

	// If no subcommand is provided, run the agent by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "run")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newRequestCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newVersionCmd())
}
