package main

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/parley-ai/parley"
	"github.com/parley-ai/parley/pkg/config"
	"github.com/parley-ai/parley/pkg/observability"
)

// rootFlags carries the persistent flag values shared by subcommands.
type rootFlags struct {
	configPath string
	endpoint   string
	user       string
	noStream   bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "parley",
		Short:         "Streaming session client for the assistant service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default $PARLEY_CONFIG)")
	pf.StringVar(&flags.endpoint, "endpoint", "", "assistant service base URL")
	pf.StringVar(&flags.user, "user", "", "user id owning the sessions")
	pf.BoolVar(&flags.noStream, "no-stream", false, "use the single-response fallback instead of streaming")

	cmd.AddCommand(
		newChatCmd(flags),
		newSessionsCmd(flags),
		newBatchCmd(flags),
		newDevserverCmd(flags),
		newVersionCmd(),
	)
	return cmd
}

// loadConfig loads the configuration and applies flag overrides.
func (f *rootFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.endpoint != "" {
		cfg.Endpoint = f.endpoint
	}
	if f.user != "" {
		cfg.UserID = f.user
	}
	if f.noStream {
		cfg.Streaming = false
	}
	return cfg, nil
}

func (f *rootFlags) openApp(ctx context.Context) (*parley.App, error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, err
	}
	return parley.Open(ctx, cfg)
}

// startMetrics starts the metrics and health server when enabled,
// returning a shutdown func.
func startMetrics(cfg *config.Config) func(context.Context) {
	if !cfg.Metrics.Enabled {
		return func(context.Context) {}
	}

	observability.InitMetrics()
	healthChecker := observability.InitHealthChecker()
	healthChecker.RegisterCheck(observability.PingCheck())
	healthChecker.RegisterCheck(observability.EndpointCheck(http.DefaultClient, cfg.Endpoint+"/healthz"))

	srv := observability.NewServer(cfg.Metrics.Port)
	go func() {
		log.Printf("Starting metrics server on :%d", cfg.Metrics.Port)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	return func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Metrics server shutdown error: %v", err)
		}
	}
}
