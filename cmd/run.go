package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/meetbroker/internal/agent"
	"github.com/teemow/meetbroker/internal/calendar"
	"github.com/teemow/meetbroker/internal/gmail"
	"github.com/teemow/meetbroker/internal/google"
	"github.com/teemow/meetbroker/internal/instrumentation"
	"github.com/teemow/meetbroker/internal/logging"
	"github.com/teemow/meetbroker/internal/negotiation"
	"github.com/teemow/meetbroker/internal/prefs"
	"github.com/teemow/meetbroker/internal/server"
)

func newRunCmd() *cobra.Command {
	var (
		account   string
		interval  time.Duration
		once      bool
		debugMode bool
		logFormat string
		// Metrics server configuration
		metricsEnabled bool
		metricsAddr    string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduling agent against one mailbox",
		Long: `Poll the configured Gmail inbox for coordination messages and drive
meeting negotiations until interrupted.

The agent answers schedule requests from counterparts, proposes time
slots from its own calendar availability, exchanges counter-proposals
within the round limit, and books a calendar event once both sides
confirm. Negotiations that go quiet expire after the session timeout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Setup graceful shutdown
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
			if cmd.Flags().Changed("interval") {
				cfg.PollInterval = interval
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			// Initialize instrumentation provider
			instrConfig := instrumentation.DefaultConfig()
			instrConfig.ServiceVersion = version

			provider, err := instrumentation.NewProvider(ctx, instrConfig)
			if err != nil {
				return fmt.Errorf("failed to create instrumentation provider: %w", err)
			}
			defer func() {
				if err := provider.Shutdown(context.Background()); err != nil {
					logger.Error("instrumentation shutdown failed", logging.Err(err))
				}
			}()

			// Start metrics server if enabled
			if metricsEnabled && provider.Enabled() {
				metricsServer, err := startMetricsServer(metricsAddr, provider, logger)
				if err != nil {
					return err
				}
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					if err := metricsServer.Shutdown(shutdownCtx); err != nil {
						logger.Error("metrics server shutdown failed", logging.Err(err))
					}
				}()
			}

			var metrics *instrumentation.Metrics
			var audit *instrumentation.AuditLogger
			if provider.Enabled() {
				metrics = provider.Metrics()
				audit = instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging)
			}

			ag, err := buildAgent(ctx, cfg, logger, metrics, audit)
			if err != nil {
				return err
			}

			if once {
				return ag.RunCycle(ctx)
			}
			return ag.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&account, "account", "default", "Google account name to use (overrides MEETBROKER_ACCOUNT)")
	cmd.Flags().DurationVar(&interval, "interval", agent.DefaultPollInterval, "Inbox poll interval (overrides MEETBROKER_POLL_INTERVAL)")
	cmd.Flags().BoolVar(&once, "once", false, "Run a single poll cycle and exit")
	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&logFormat, "log-format", "text", "Log output format: text or json")
	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address")

	return cmd
}

// startMetricsServer starts the dedicated metrics listener and blocks
// until it is bound or fails.
func startMetricsServer(addr string, provider *instrumentation.Provider, logger *slog.Logger) (*server.MetricsServer, error) {
	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    addr,
		Enabled:                 true,
		InstrumentationProvider: provider,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}

	// Use ready channel to confirm metrics server started successfully
	metricsReady := make(chan struct{})
	metricsErr := make(chan error, 1)
	go func() {
		if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && err != http.ErrServerClosed {
			metricsErr <- err
		}
		close(metricsErr)
	}()

	select {
	case <-metricsReady:
		logger.Info("metrics server started", slog.String("addr", metricsServer.Addr()))
	case err := <-metricsErr:
		return nil, fmt.Errorf("metrics server failed to start: %w", err)
	case <-time.After(5 * time.Second):
		return nil, fmt.Errorf("metrics server startup timed out")
	}

	return metricsServer, nil
}

// buildAgent wires the Gmail channel, the calendar backend and the
// negotiation agent for the configured account.
func buildAgent(ctx context.Context, cfg prefs.Config, logger *slog.Logger, metrics *instrumentation.Metrics, audit *instrumentation.AuditLogger) (*agent.Agent, error) {
	if !gmail.HasTokenForAccount(cfg.Account) {
		return nil, fmt.Errorf("%s", google.GetAuthenticationErrorMessage(cfg.Account))
	}

	gmailClient, err := gmail.NewClientForAccount(ctx, cfg.Account)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail client for account %s: %w", cfg.Account, err)
	}

	selfEmail := cfg.SelfEmail
	if selfEmail == "" {
		selfEmail, err = gmailClient.Profile()
		if err != nil {
			return nil, fmt.Errorf("failed to discover mailbox address: %w", err)
		}
	}

	calendarClient, err := calendar.NewClientForAccount(ctx, cfg.Account)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar client for account %s: %w", cfg.Account, err)
	}

	return agent.New(agent.Config{
		Self:           negotiation.Participant{Email: selfEmail, Name: cfg.SelfName},
		Mail:           gmail.NewChannel(gmailClient, logger, metrics),
		Calendar:       calendar.NewBackend(calendarClient, cfg.AddMeetLink, logger, metrics),
		Prefs:          cfg.Schedule(),
		Contacts:       cfg.Contacts(),
		Horizon:        cfg.Horizon(),
		PollInterval:   cfg.PollInterval,
		SessionTimeout: cfg.SessionTimeout,
		Logger:         logger,
		Metrics:        metrics,
		Audit:          audit,
	})
}
