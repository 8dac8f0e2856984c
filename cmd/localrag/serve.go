package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpserver "github.com/fyrsmithlabs/localrag/internal/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve the REST API on api_host:api_port until interrupted.

Endpoints:
  GET    /api/v1/health
  POST   /api/v1/documents/upload
  GET    /api/v1/documents/stats
  DELETE /api/v1/documents
  POST   /api/v1/query
  GET    /metrics`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, runServe)
	},
}

func runServe(ctx context.Context, a *app, _ io.Writer) error {
	server, err := httpserver.NewServer(a.service, a.logger.Named("http"), &httpserver.Config{
		Host:          a.cfg.APIHost,
		Port:          a.cfg.APIPort,
		UploadPath:    a.cfg.UploadPath,
		MaxUploadSize: a.cfg.MaxUploadSize,
		CORSOrigins:   a.cfg.CORSOrigins,
		Version:       version,
		Mode:          a.cfg.Mode,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("received shutdown signal", zap.Duration("timeout", a.cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-errCh
}
