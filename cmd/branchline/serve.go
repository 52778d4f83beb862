package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/branchline/branchline"
	"github.com/branchline/branchline/internal/cli"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Exposes player sessions as a JSON API over HTTP, with Server-Sent Events for
state changes and Prometheus metrics on /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, logger, err := setup(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		addr := rt.Config.HTTPAddr
		if cmd.Flags().Changed("addr") {
			addr, _ = cmd.Flags().GetString("addr")
		}

		svc, err := cli.NewService(rt, branchline.Version)
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              addr,
			Handler:           svc.Handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)

		go func() {
			logger.Info("Starting Branchline server",
				"address", srv.Addr,
				"story_source", rt.Config.StorySource,
				"snapshot_backend", rt.Config.SnapshotBackend,
			)
			serverErrors <- srv.ListenAndServe()
		}()

		// Channel to listen for interrupt or terminate signals.
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			logger.Info("Start shutdown", "signal", sig.String())

			// Give outstanding requests a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			// SSE streams never finish on their own; Shutdown waits for them until the deadline.
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("Graceful shutdown did not complete", "timeout", 5*time.Second, "err", err)
				if err := srv.Close(); err != nil {
					logger.Error("Error killing server", "err", err)
				}
			}

			flushCtx, cancelFlush := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelFlush()
			if err := svc.Manager.Shutdown(flushCtx); err != nil {
				logger.Warn("Pending saves did not finish", "err", err)
			}
			logger.Info("Branchline server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Address to listen on (overrides BRANCHLINE_HTTP_ADDR)")
}
