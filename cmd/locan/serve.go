package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	httpadapter "github.com/couchcryptid/location-enrichment/internal/adapter/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the upload and progress-polling web API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(); err != nil {
				a.logger.Error("close error", "error", err)
			}
		}()
		logger := a.logger

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := a.engine.LoadCache(ctx); err != nil {
			return err
		}

		analyses := httpadapter.NewAnalyses(a.engine, httpadapter.AnalysesConfig{
			UploadDir:   a.cfg.UploadDir,
			OutputDir:   a.cfg.OutputDir,
			Credentials: a.cfg.Credentials,
			Delay:       a.cfg.ProviderDelay,
			BatchSize:   a.cfg.BatchSize,
		}, logger)
		srv := httpadapter.NewServer(a.cfg.HTTPAddr, a.engine, analyses, logger)

		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
				stop()
			}
		}()

		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		analyses.Close()

		logger.Info("shutdown complete")
		return nil
	},
}
