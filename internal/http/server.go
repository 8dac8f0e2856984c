// Package http serves the localrag HTTP API.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/localrag/internal/parser"
	"github.com/fyrsmithlabs/localrag/internal/rag"
	"github.com/fyrsmithlabs/localrag/internal/retrieval"
)

const (
	defaultTopK = 5
	maxTopK     = 20
)

// Service is the part of rag.Service the API exposes.
type Service interface {
	Ingest(ctx context.Context, path string) (rag.IngestResult, error)
	Query(ctx context.Context, question string, topK int) (*rag.Answer, error)
	Stats(ctx context.Context) (retrieval.Stats, error)
	Reset(ctx context.Context) error
	Supports(path string) bool
}

var _ Service = (*rag.Service)(nil)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// UploadPath is where uploaded files are saved before ingestion.
	UploadPath string

	// MaxUploadSize bounds request bodies, in bytes. Zero means no limit.
	MaxUploadSize int64

	CORSOrigins []string

	Version string
	Mode    string
}

// Server provides the HTTP endpoints.
type Server struct {
	echo    *echo.Echo
	service Service
	logger  *zap.Logger
	config  *Config
}

// NewServer creates a new HTTP server.
func NewServer(service Service, logger *zap.Logger, cfg *Config) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "0.0.0.0", Port: 8000, UploadPath: "./data/uploads"}
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
	}))
	if cfg.MaxUploadSize > 0 {
		e.Use(middleware.BodyLimit(fmt.Sprintf("%dB", cfg.MaxUploadSize)))
	}
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return nil
		}
	})

	s := &Server{
		echo:    e,
		service: service,
		logger:  logger,
		config:  cfg,
	}
	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/health", s.handleHealth)
	v1.POST("/query", s.handleQuery)

	docs := v1.Group("/documents")
	docs.POST("/upload", s.handleUpload)
	docs.GET("/stats", s.handleStats)
	docs.DELETE("", s.handleReset)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: s.config.Version,
		Mode:    s.config.Mode,
	})
}

func (s *Server) handleUpload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field \"file\" is required")
	}

	name := filepath.Base(filepath.Clean("/" + fh.Filename))
	if name == "/" || name == "." {
		return echo.NewHTTPError(http.StatusBadRequest, "no filename provided")
	}
	if !s.service.Supports(name) {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unsupported file type %q", filepath.Ext(name)))
	}

	dst, err := s.saveUpload(fh, name)
	if err != nil {
		return err
	}
	s.logger.Info("file uploaded", zap.String("filename", name), zap.Int64("size", fh.Size))

	result, err := s.service.Ingest(c.Request().Context(), dst)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, UploadResponse{
		Message:        fmt.Sprintf("Successfully ingested %s", name),
		FilesProcessed: result.FilesProcessed,
		ChunksCreated:  result.ChunksCreated,
		ChunksStored:   result.ChunksStored,
	})
}

// saveUpload copies the uploaded file to UploadPath/name and returns the
// destination path.
func (s *Server) saveUpload(fh *multipart.FileHeader, name string) (string, error) {
	if err := os.MkdirAll(s.config.UploadPath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	dst := filepath.Join(s.config.UploadPath, name)
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write %s: %w", dst, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return dst, nil
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.service.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, StatsResponse{
		Collection:  stats.CollectionName,
		TotalChunks: stats.TotalChunkCount,
		StoragePath: stats.StorageLocation,
	})
}

func (s *Server) handleReset(c echo.Context) error {
	if err := s.service.Reset(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ResetResponse{Message: "All documents removed"})
}

func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid query request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Question) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question field is required")
	}
	topK := defaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}
	if topK < 1 || topK > maxTopK {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("top_k must be between 1 and %d", maxTopK))
	}

	answer, err := s.service.Query(c.Request().Context(), req.Question, topK)
	if err != nil {
		return err
	}

	sources := make([]SourceResponse, len(answer.Sources))
	for i, src := range answer.Sources {
		sources[i] = SourceResponse{
			Document:       src.Document,
			Page:           src.Page,
			ChunkText:      src.ChunkText,
			RelevanceScore: src.RelevanceScore,
		}
	}
	return c.JSON(http.StatusOK, QueryResponse{
		Answer:  answer.Answer,
		Sources: sources,
		Model:   answer.Model,
		Mode:    answer.Mode,
	})
}

// errorHandler renders errors as {"detail": message}. Caller mistakes are
// 400, everything else from the service is 500.
func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		msg := err.Error()
		var he *echo.HTTPError
		switch {
		case errors.As(err, &he):
			code = he.Code
			msg = fmt.Sprint(he.Message)
		case errors.Is(err, rag.ErrPathNotFound), errors.Is(err, parser.ErrUnsupportedFormat):
			code = http.StatusBadRequest
		}

		if code >= http.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("uri", c.Request().RequestURI),
				zap.Error(err),
			)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(code)
		} else {
			werr = c.JSON(code, map[string]string{"detail": msg})
		}
		if werr != nil {
			logger.Warn("failed to write error response", zap.Error(werr))
		}
	}
}

// Start listens on Host:Port until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
