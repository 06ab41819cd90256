package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ondrasimku/image-upload-service/internal/config"
	httphandler "github.com/ondrasimku/image-upload-service/internal/http"
	"github.com/ondrasimku/image-upload-service/internal/log"
	"github.com/ondrasimku/image-upload-service/internal/matcher"
	"github.com/ondrasimku/image-upload-service/internal/metrics"
	"github.com/ondrasimku/image-upload-service/internal/storage/local"
	"github.com/ondrasimku/image-upload-service/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "upload-service",
		Short:         "Accepts image uploads and relays them to the image matcher",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path, _ := cmd.Flags().GetString("config"); path != "" {
				v.SetConfigFile(path)
			}
			cfg, err := config.Load(v)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("config", "", "Path to a config file (yaml, json or toml)")
	flags.String("addr", "", "HTTP listen address (overrides MEDIA_HTTP_ADDR)")
	flags.String("temp-dir", "", "Directory for staged uploads (overrides MEDIA_UPLOAD_TEMP_DIR)")
	flags.String("log-level", "", "Log level: debug, info, warn, error")

	_ = v.BindPFlag("http_addr", flags.Lookup("addr"))
	_ = v.BindPFlag("upload.temp_dir", flags.Lookup("temp-dir"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))

	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := log.NewLogger(log.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	if log.ParseLevel(cfg.Log.Level) != slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	tracer, err := telemetry.NewTracerProvider(ctx, telemetry.TracingConfig{
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	staging, err := openStaging(ctx, cfg.Upload.TempDir)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	uploadMetrics, err := metrics.NewUpload("media", reg)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	router := httphandler.NewRouter(httphandler.Dependencies{
		Config:   cfg,
		Staging:  staging,
		Matcher:  matcher.NewHTTPClient(cfg.Matcher.URL, cfg.Matcher.Timeout, staging, logger),
		Metrics:  uploadMetrics,
		Gatherer: reg,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting upload service", "addr", cfg.HTTPAddr, "tempDir", staging.Dir(), "matcher", cfg.Matcher.URL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed to start: %w", err)
		}
	case <-quit:
	}

	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Failed to flush traces", "error", err)
	}

	logger.Info("Server exited")
	return nil
}

// openStaging creates the staging directory and checks that it is writable.
func openStaging(ctx context.Context, dir string) (*local.LocalStorage, error) {
	staging, err := local.NewLocalStorage(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize staging storage: %w", err)
	}
	if err := staging.Probe(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize staging storage: %w", err)
	}
	return staging, nil
}
