// Command debugmcp serves the standalone debugging backend over MCP stdio.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/spf13/cobra"

	"github.com/debugmcp/debugmcp/internal/backend"
	"github.com/debugmcp/debugmcp/internal/config"
	"github.com/debugmcp/debugmcp/internal/mcp"
	"github.com/debugmcp/debugmcp/internal/version"
)

func main() {
	var (
		configPath string
		verbosity  int
	)

	rootCmd := &cobra.Command{
		Use:   "debugmcp",
		Short: "Drive a debug adapter from an automation agent",
		Long: `debugmcp is a debugging control plane: it exposes MCP tools that drive a
running program through a Debug Adapter Protocol adapter configured in
debugmcp.config.json.`,
		Version:       version.Get().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, verbosity)
		},
	}

	rootCmd.Flags().StringVar(&configPath, "config", "", "path to debugmcp.config.json (default: search upward from cwd)")
	rootCmd.Flags().IntVar(&verbosity, "log-level", 0, "diagnostic log verbosity (higher is noisier)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(configPath string, verbosity int) error {
	// stdout carries the MCP transport; diagnostics go to stderr.
	log := newStderrLogger(verbosity)

	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.LoadAndDiscover("")
	}
	if err != nil {
		return err
	}
	log.Info("configuration loaded",
		"path", cfg.Path,
		"adapters", len(cfg.Adapters),
		"port", cfg.ServerPort(),
		"timeout", cfg.SessionTimeout())

	b := backend.NewStandalone(cfg.Adapters, log.WithName("backend"))
	provider := config.NewFileProvider(cfg)
	srv := mcp.NewServer(b, provider, log.WithName("mcp"))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		srv.Close()
		os.Exit(0)
	}()

	log.Info("debugmcp server starting", "version", version.Version)
	if err := srv.ServeStdio(); err != nil {
		srv.Close()
		return fmt.Errorf("server error: %w", err)
	}
	srv.Close()
	return nil
}

func newStderrLogger(verbosity int) logr.Logger {
	return funcr.New(func(prefix, args string) {
		if prefix != "" {
			fmt.Fprintln(os.Stderr, prefix, args)
			return
		}
		fmt.Fprintln(os.Stderr, args)
	}, funcr.Options{Verbosity: verbosity})
}
