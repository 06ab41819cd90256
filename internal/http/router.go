package http

import (
	"context"
	"log/slog"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/ondrasimku/image-upload-service/internal/config"
	"github.com/ondrasimku/image-upload-service/internal/http/handler"
	"github.com/ondrasimku/image-upload-service/internal/http/middleware"
	"github.com/ondrasimku/image-upload-service/internal/matcher"
	"github.com/ondrasimku/image-upload-service/internal/metrics"
	"github.com/ondrasimku/image-upload-service/internal/storage"
	"github.com/ondrasimku/image-upload-service/internal/upload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Staging is the temporary file store behind the upload endpoints.
type Staging interface {
	storage.Stager
	Probe(ctx context.Context) error
}

type Dependencies struct {
	Config   *config.Config
	Staging  Staging
	Matcher  matcher.Client
	Metrics  *metrics.Upload
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

func NewRouter(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	logger := deps.Logger

	router := gin.New()
	router.Use(middleware.Recovery(logger), middleware.RequestLogger(logger))

	if origins := cfg.CORS.AllowedOrigins; len(origins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = origins
		corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
		router.Use(cors.New(corsConfig))
	}

	router.Use(middleware.ErrorHandler(logger))

	healthHandler := handler.NewHealthHandler(deps.Staging)
	uploadHandler := handler.NewUploadHandler(deps.Matcher, logger)
	pipeline := upload.NewPipeline(cfg.Upload, deps.Staging, logger, deps.Metrics)

	router.GET("/healthz", healthHandler.Health)
	router.GET("/readyz", healthHandler.Ready)

	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/v1")
	{
		v1.POST("/match", pipeline.Single("image", uploadHandler.Match)...)
		v1.POST("/compare", pipeline.Array("images", cfg.Upload.MinCompareFiles, cfg.Upload.MaxFileCount, uploadHandler.Compare)...)
	}

	return router
}
