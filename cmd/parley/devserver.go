package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/parley-ai/parley/internal/devserver"
)

func newDevserverCmd(flags *rootFlags) *cobra.Command {
	var (
		port          int
		completerName string
	)

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run a local assistant service speaking the turn protocol",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}

			completer, err := devserver.NewCompleter(cmd.Context(), completerName)
			if err != nil {
				return err
			}

			stopMetrics := startMetrics(cfg)
			defer stopMetrics(context.Background())

			return devserver.New(devserver.WithCompleter(completer)).ListenAndServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8420, "port to listen on")
	cmd.Flags().StringVar(&completerName, "completer", "canned", "reply source: canned, openai, gemini, or bedrock")
	return cmd
}
