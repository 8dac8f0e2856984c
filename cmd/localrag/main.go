// Package main implements the localrag command line interface.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/localrag/internal/config"
	"github.com/fyrsmithlabs/localrag/internal/logging"
	"github.com/fyrsmithlabs/localrag/internal/rag"
	"github.com/fyrsmithlabs/localrag/internal/retrieval"
	"github.com/fyrsmithlabs/localrag/internal/telemetry"
)

var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"

	configPath string
	modeFlag   string
)

// ragService is what the commands need from rag.Service.
type ragService interface {
	Ingest(ctx context.Context, path string) (rag.IngestResult, error)
	Refresh(ctx context.Context, path string) (rag.IngestResult, error)
	Query(ctx context.Context, question string, topK int) (*rag.Answer, error)
	Stats(ctx context.Context) (retrieval.Stats, error)
	Reset(ctx context.Context) error
	Supports(path string) bool
	Close() error
}

var _ ragService = (*rag.Service)(nil)

// newService builds the service; tests replace it.
var newService = func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ragService, error) {
	return rag.NewFromConfig(ctx, cfg, logger)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "localrag",
	Short: "Private document question answering",
	Long: `localrag indexes local documents (PDF, DOCX, TXT, Markdown, CSV) into a
vector store and answers questions about them with a language model.

Local mode uses Ollama for embeddings and generation; cloud mode uses OpenAI.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/localrag/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&modeFlag, "mode", "", "override mode: local or cloud")

	rootCmd.AddCommand(ingestCmd, queryCmd, statsCmd, resetCmd, serveCmd, watchCmd, versionCmd)
}

// app is the per-command runtime: configuration, logger, telemetry and
// the rag service.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	tel     *telemetry.Telemetry
	service ragService
}

// setup loads configuration and builds the service. The caller must close
// the returned app.
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if modeFlag != "" {
		cfg.Mode = modeFlag
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	lc, err := logging.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(lc)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg, version), logger.Named("telemetry"))
	if err != nil {
		return nil, err
	}

	service, err := newService(ctx, cfg, logger)
	if err != nil {
		_ = tel.Shutdown(context.Background())
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, tel: tel, service: service}, nil
}

func (a *app) Close() {
	if err := a.service.Close(); err != nil {
		a.logger.Warn("failed to close service", zap.Error(err))
	}
	if err := a.tel.Shutdown(context.Background()); err != nil {
		a.logger.Warn("failed to shut down telemetry", zap.Error(err))
	}
	_ = logging.Sync(a.logger)
}

// withApp runs fn against a fully built app.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app, out io.Writer) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a, cmd.OutOrStdout())
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "localrag %s\n", version)
		fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
		fmt.Fprintf(out, "Build Date: %s\n", buildDate)
	},
}
