package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/pos-payments/internal/callbackreplay"
	"github.com/frahmantamala/pos-payments/pkg/logger"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay recorded gateway callbacks against a running server",
	Long: `Reads one callback JSON object per line and posts each to the webhook with a worker pool.
Use --repeat to resend every callback the way a gateway retries.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReplay(cmd.Context())
	},
}

var (
	replayFile    string
	replayURL     string
	replayGateway string
	maxWorkers    int
	jobQueueSize  int
	replayRepeat  int
	replayTimeout time.Duration
)

func runReplay(parent context.Context) error {
	log := logger.LoggerWrapper()

	webhookURL := replayURL
	if webhookURL == "" {
		config, err := loadConfig(configDir)
		if err != nil {
			return fmt.Errorf("no --url given and config could not be loaded: %w", err)
		}
		baseURL := config.Server.BaseURL
		if baseURL == "" {
			baseURL = fmt.Sprintf("http://localhost:%d", config.Server.Port)
		}
		gatewayName := getStringFlag(replayGateway, config.Payment.DefaultGateway)
		webhookURL = fmt.Sprintf("%s/api/v1/payments/callback/%s", baseURL, gatewayName)
		log = logger.LoggerWrapper()
	}

	src := os.Stdin
	if replayFile != "" && replayFile != "-" {
		f, err := os.Open(replayFile)
		if err != nil {
			return fmt.Errorf("open callbacks file: %w", err)
		}
		defer f.Close()
		src = f
	}

	replayer, err := callbackreplay.NewReplayer(callbackreplay.Config{
		WebhookURL:     webhookURL,
		MaxWorkers:     maxWorkers,
		JobQueueSize:   jobQueueSize,
		RequestTimeout: replayTimeout,
		Repeat:         replayRepeat,
	}, nil, log)
	if err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("replaying callbacks", "webhook_url", webhookURL, "max_workers", maxWorkers, "repeat", replayRepeat)

	summary, err := replayer.Run(ctx, src)
	if err != nil {
		return err
	}

	fmt.Printf("sent=%d accepted=%d rejected=%d failed=%d invalid=%d skipped=%d\n",
		summary.Sent, summary.Accepted, summary.Rejected, summary.Failed, summary.Invalid, summary.Skipped)
	if summary.Failed > 0 || summary.Rejected > 0 {
		return fmt.Errorf("%d callbacks were not accepted", summary.Failed+summary.Rejected)
	}
	return nil
}

func getStringFlag(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

func init() {
	replayCmd.Flags().StringVarP(&replayFile, "file", "f", "-", "JSON-lines file of recorded callbacks (- for stdin)")
	replayCmd.Flags().StringVar(&replayURL, "url", "", "Webhook URL (defaults to the configured server and gateway)")
	replayCmd.Flags().StringVar(&replayGateway, "gateway", "", "Gateway path segment (overrides config)")
	replayCmd.Flags().IntVar(&maxWorkers, "max-workers", 4, "Maximum number of concurrent senders")
	replayCmd.Flags().IntVar(&jobQueueSize, "job-queue-size", 100, "Job queue buffer size")
	replayCmd.Flags().IntVar(&replayRepeat, "repeat", 1, "Send every callback this many times")
	replayCmd.Flags().DurationVar(&replayTimeout, "timeout", 15*time.Second, "Per-request timeout")

	rootCmd.AddCommand(replayCmd)
}
