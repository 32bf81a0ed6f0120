// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// diagramd is the KodiakFlow diagram service daemon. It hosts the command
// bus, undo/redo history, and the collaborative websocket endpoint.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/KodiakLabs/KodiakFlow/pkg/logging"
	"github.com/KodiakLabs/KodiakFlow/services/diagram/api"
	"github.com/KodiakLabs/KodiakFlow/services/diagram/config"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "diagramd",
		Short: "KodiakFlow diagram service",
		Long:  "Serves the diagram editing API: command execution, undo/redo history, and collaborative sessions.",
	}
	root.AddCommand(serveCmd(), versionCmd())
	return root
}

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the diagram service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger := logging.New(logging.Config{
				Level:   logging.ParseLevel(cfg.Logging.Level),
				LogDir:  cfg.Logging.Dir,
				Service: "diagramd",
				JSON:    cfg.Logging.JSON,
			})
			defer logger.Close()

			svc, err := api.NewService(cfg, logger.Slog(), prometheus.DefaultRegisterer)
			if err != nil {
				return fmt.Errorf("build service: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("diagramd starting", "version", version, "addr", cfg.Server.Addr())
			if err := svc.Run(ctx); err != nil {
				return fmt.Errorf("run service: %w", err)
			}
			logger.Info("diagramd stopped")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the diagramd version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("diagramd %s\n", version)
		},
	}
}
