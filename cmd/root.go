// Package cmd defines the wayback-etl command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/morikuni/failure/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-etl/internal/app"
	"github.com/JakeFAU/wayback-etl/internal/config"
	"github.com/JakeFAU/wayback-etl/internal/logging"
	"github.com/JakeFAU/wayback-etl/internal/pipeline"
)

// App is what the root command needs from the application container.
// Tests substitute their own implementation through newApp.
type App interface {
	Run(ctx context.Context, urls []string) (pipeline.Summary, error)
	RunID() string
	Close(ctx context.Context) error
}

// newApp is the application factory.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

// newLogger is the logger factory.
var newLogger = logging.New

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "wayback-etl [url ...]",
		Short: "Collect Wayback Machine snapshot metadata into a document store.",
		Long: `wayback-etl queries the Wayback Machine's available, cdx and timemap
endpoints for each URL, normalizes every response and inserts one document
per URL and endpoint. Without arguments the configured default URLs are used.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfgFile, args)
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	return cmd
}

func run(ctx context.Context, cfgFile string, args []string) error {
	if _, err := config.LoadDotEnv(config.DotEnvFile); err != nil {
		return err
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	urls := args
	if len(urls) == 0 {
		urls = cfg.DefaultURLs
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appInstance, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize application services", zap.Error(err))
		return err
	}
	defer func() {
		// Close with a fresh context so an interrupted run still releases the store.
		if cerr := appInstance.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.Warn("failed to close application services", zap.Error(cerr))
		}
	}()

	summary, err := appInstance.Run(ctx, urls)
	if err != nil {
		logger.Error("ETL process failed", zap.String("run_id", appInstance.RunID()), zap.Error(err))
		return err
	}
	logger.Info("ETL process completed",
		zap.String("run_id", appInstance.RunID()),
		zap.Int("records", summary.Records),
	)
	return nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", userMessage(err))
		os.Exit(1)
	}
}

func userMessage(err error) string {
	if msg := failure.MessageOf(err); msg != "" {
		return msg.String()
	}
	return err.Error()
}
