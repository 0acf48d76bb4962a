package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/meetbroker/internal/logging"
	"github.com/teemow/meetbroker/internal/negotiation"
	"github.com/teemow/meetbroker/internal/prefs"
)

func newRequestCmd() *cobra.Command {
	var (
		account   string
		to        string
		toName    string
		subject   string
		duration  time.Duration
		wait      time.Duration
		debugMode bool
		logFormat string
	)

	cmd := &cobra.Command{
		Use:   "request",
		Short: "Send a meeting request to a counterpart",
		Long: `Send a schedule request to another agent's mailbox and negotiate a
meeting time.

The command keeps polling the inbox after sending, so the counterpart's
proposals are answered and the negotiation can run to completion.
Negotiation state lives in this process; exiting before the negotiation
resolves abandons it. Use --wait to bound how long to keep polling.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(),
				os.Interrupt, syscall.SIGTERM)
			defer cancel()

			logger := logging.New(logFormat, debugMode)
			slog.SetDefault(logger)

			cfg, err := prefs.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("account") {
				cfg.Account = account
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ag, err := buildAgent(ctx, cfg, logger, nil, nil)
			if err != nil {
				return err
			}

			threadID, err := ag.Initiate(ctx, to, toName, subject, duration)
			if err != nil {
				return fmt.Errorf("failed to send schedule request: %w", err)
			}
			fmt.Printf("Schedule request sent to %s (thread %s)\n", to, threadID)

			if wait <= 0 {
				fmt.Println("Not waiting for a reply; the negotiation is abandoned unless restarted.")
				return nil
			}

			fmt.Printf("Negotiating, waiting up to %s...\n", wait)
			deadline := time.Now().Add(wait)
			ticker := time.NewTicker(cfg.PollInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					if err := ag.RunCycle(ctx); err != nil {
						logger.Error("poll cycle failed", logging.Err(err))
					}

					sess, ok := ag.Session(threadID)
					if !ok {
						// Rejected, failed or expired sessions are evicted once recorded.
						fmt.Println("Negotiation ended without a confirmed meeting.")
						return nil
					}
					if sess.Status.Terminal() {
						return reportOutcome(sess)
					}
					if time.Now().After(deadline) {
						return fmt.Errorf("negotiation did not resolve within %s (thread %s still %s)", wait, threadID, sess.Status)
					}
				}
			}
		},
	}

	cmd.Flags().StringVar(&account, "account", "default", "Google account name to use (overrides MEETBROKER_ACCOUNT)")
	cmd.Flags().StringVar(&to, "to", "", "Counterpart's email address (required)")
	cmd.Flags().StringVar(&toName, "to-name", "", "Counterpart's display name")
	cmd.Flags().StringVar(&subject, "subject", "Meeting", "Meeting subject")
	cmd.Flags().DurationVar(&duration, "duration", 30*time.Minute, "Meeting duration")
	cmd.Flags().DurationVar(&wait, "wait", time.Hour, "How long to keep negotiating before giving up (0 to send and exit)")
	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&logFormat, "log-format", "text", "Log output format: text or json")

	_ = cmd.MarkFlagRequired("to")

	return cmd
}

// reportOutcome prints the terminal state of a negotiation.
func reportOutcome(sess negotiation.Session) error {
	switch sess.Status {
	case negotiation.StatusConfirmed:
		fmt.Printf("Meeting confirmed: %s from %s to %s\n",
			sess.Subject,
			sess.ConfirmedSlot.Start.Format(time.RFC1123),
			sess.ConfirmedSlot.End.Format(time.RFC1123),
		)
		return nil
	case negotiation.StatusRejected:
		fmt.Println("The counterpart rejected the meeting request.")
		return nil
	case negotiation.StatusExpired:
		return fmt.Errorf("negotiation expired without a reply")
	default:
		return fmt.Errorf("negotiation failed (status %s)", sess.Status)
	}
}
