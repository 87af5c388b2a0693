// Package main provides the MCP server entry point for the document assistant.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bull/rag-assistant/internal/app"
	"github.com/bull/rag-assistant/internal/config"
	ghclient "github.com/bull/rag-assistant/internal/github"
	mcpserver "github.com/bull/rag-assistant/internal/mcp"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// stdout carries the stdio transport, so logs go to stderr.
	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	serverCfg := &mcpserver.Config{
		Service:     a.Service,
		DefaultTopK: cfg.TopK,
		Logger:      logger,
	}
	if cfg.GitHubOwner != "" && cfg.GitHubRepo != "" {
		gh, err := ghclient.NewClient(cfg.GitHubToken)
		if err != nil {
			return err
		}
		serverCfg.Commits = ghclient.NewFetcher(gh, cfg.GitHubOwner, cfg.GitHubRepo, cfg.GitHubBasePath)
	}
	server := mcpserver.NewServer(serverCfg)

	httpServer := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           mcpserver.NewMux(server, a, nil),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	if cfg.ServerMode {
		// HTTP mode: serve MCP over HTTP for remote clients
		logger.Info("Starting HTTP server", "addr", httpServer.Addr, "mcp", "/mcp", "health", "/health")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	// Stdio mode: MCP over stdin/stdout for local clients, health endpoint
	// in the background for local testing.
	go func() {
		logger.Info("Starting health server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Health server error", "error", err)
		}
	}()

	logger.Info("Starting MCP server (stdio mode)")
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
