package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ent0n29/mnemo/internal/app"
)

type serveCommander struct {
	bindAddr string
}

const serveLongDesc string = `Run the mnemo API server.

Routes:
  POST /v1/conversations                 start a conversation
  POST /v1/conversations/{id}/messages   send a message
  GET  /v1/conversations/{id}/ws         streamed turns
  GET  /v1/memories                      list memories

Examples:
  mnemo serve
  mnemo serve --listen :8080`

func newServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		Long:  serveLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.bindAddr, "listen", "l", "", "Address to listen on (overrides APP_BIND_ADDR)")

	return cmd
}

func (c *serveCommander) run(cmd *cobra.Command) error {
	cfg, log, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	if c.bindAddr != "" {
		cfg.BindAddr = c.bindAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	built, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := built.Cleanup(); err != nil {
			log.Error("cleanup failed", "err", err)
		}
	}()
	built.StartJanitor(ctx)

	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: built.API.Router(),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.BindAddr,
			"completion_provider", built.Status.CompletionProvider,
			"memory_backend", built.Status.MemoryBackend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "err", err)
		_ = httpServer.Close()
	}
	log.Info("shutdown complete")
	return nil
}
