package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/filesentry/filesentry/internal/transport"
	"github.com/filesentry/filesentry/pkg/config"
	"github.com/filesentry/filesentry/pkg/logger"
	"github.com/filesentry/filesentry/pkg/sentry"
)

func newServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the watcher service with the streaming HTTP surface",
		Long: `Start the long-running service. Watchers declared in the configuration
are created at boot; further watchers are managed over the HTTP command
surface. Subscribers attach to /watchers/stream for server-sent events.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewManager().LoadConfig(getConfigPath())
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cmd.Flags().Changed("host") {
				cfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}

			return runServe(cfg)
		},
	}

	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "listen address")
	cmd.Flags().IntVar(&port, "port", config.DefaultPort, "listen port")

	return cmd
}

func runServe(cfg *config.Config) error {
	log := logger.CreateLogger(cfg.LogFile, firstNonEmpty(verbosity, cfg.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core := sentry.New(cfg, log)
	if err := core.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           transport.NewServer(core, log).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Listening", logger.WithField("addr", cfg.Addr()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		core.Stop()
		return err
	case sig := <-sigCh:
		log.Info("Shutting down", logger.WithField("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	core.Stop()
	return srv.Shutdown(shutdownCtx)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return "info"
}
