package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/akorchagin/foliochat/internal/app"
	"github.com/akorchagin/foliochat/internal/config"
	"github.com/akorchagin/foliochat/internal/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath        string
		addr              string
		databasePath      string
		staticDir         string
		logLevel          string
		readHeaderTimeout time.Duration
		shutdownTimeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:          "foliochat-server",
		Short:        "Portfolio site chat backend",
		Long:         "Serves the portfolio SPA assets, the auth API, and the room chat WebSocket endpoint.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			bootLogger := log.New("info")

			cfg, configFile, err := config.Load(bootLogger, configPath)
			if err != nil {
				return err
			}
			cfg.UpdateFrom(config.Config{
				Addr:              addr,
				DatabasePath:      databasePath,
				StaticDir:         staticDir,
				LogLevel:          logLevel,
				ReadHeaderTimeout: readHeaderTimeout,
				ShutdownTimeout:   shutdownTimeout,
			})

			logger := log.New(cfg.LogLevel)
			logger.Info().Str("config", configFile).Str("addr", cfg.Addr).Msg("starting foliochat server")

			application, err := app.New(&cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := application.Run(ctx); err != nil {
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address")
	cmd.Flags().StringVar(&databasePath, "db", "", "path to the SQLite database")
	cmd.Flags().StringVar(&staticDir, "static-dir", "", "directory with the built SPA assets")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.Flags().DurationVar(&readHeaderTimeout, "read-header-timeout", 0, "HTTP read header timeout")
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")

	return cmd
}
