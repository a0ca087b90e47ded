package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ent0n29/mnemo/internal/config"
	"github.com/ent0n29/mnemo/internal/logger"
)

const rootLongDesc string = `mnemo is a chat assistant that remembers facts about you.

Run it using:
  mnemo serve    Run the HTTP and WebSocket API
  mnemo chat     Chat in the terminal

Configuration is read from the environment (see .env.example).`

const rootShortDesc string = "mnemo - assistant with persistent memory"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "mnemo",
		Short:         rootShortDesc,
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newChatCmd())

	return cmd
}

// loadRuntime reads configuration and builds the process logger. --debug
// overrides LOG_LEVEL.
func loadRuntime(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("loading config: %w", err)
	}
	debug, err := cmd.Flags().GetBool("debug")
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("could not get debug flag: %w", err)
	}
	level := cfg.LogLevel
	if debug {
		level = "debug"
	}
	log := logger.New(
		logger.WithLevel(level),
		logger.WithFormat(cfg.LogFormat),
		logger.WithWriter(cmd.ErrOrStderr()),
	)
	slog.SetDefault(log)
	return cfg, log, nil
}
