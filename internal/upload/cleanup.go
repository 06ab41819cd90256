package upload

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ondrasimku/image-upload-service/internal/domain"
	"github.com/ondrasimku/image-upload-service/internal/metrics"
	"github.com/ondrasimku/image-upload-service/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

type Remover interface {
	Delete(ctx context.Context, path string) error
}

// Cleaner removes the staged files of a request. Removal is best effort:
// failures are logged and counted, never returned to the request.
type Cleaner struct {
	remover Remover
	logger  *slog.Logger
	metrics *metrics.Upload
	tracer  trace.Tracer
}

func NewCleaner(remover Remover, logger *slog.Logger, m *metrics.Upload) *Cleaner {
	return &Cleaner{
		remover: remover,
		logger:  logger,
		metrics: m,
		tracer:  telemetry.Tracer(),
	}
}

// Cleanup removes every staged file of req concurrently and waits for all
// removals to settle. Calls after the first are no-ops.
func (cl *Cleaner) Cleanup(ctx context.Context, req *Request) {
	if req == nil || req.cleaned {
		return
	}
	req.cleaned = true

	files := req.files.All()
	if len(files) == 0 {
		return
	}

	ctx, span := cl.tracer.Start(context.WithoutCancel(ctx), "upload.cleanup",
		trace.WithAttributes(
			attribute.Int("upload.files", len(files)),
			attribute.String("upload.kind", req.files.Kind().String()),
		))
	defer span.End()

	start := time.Now()

	var g errgroup.Group
	for _, f := range files {
		g.Go(func() error {
			return cl.remove(ctx, f)
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "staged file removal failed")
	}

	cl.metrics.ObserveCleanup(time.Since(start))
}

func (cl *Cleaner) remove(ctx context.Context, f domain.StagedFile) error {
	err := cl.remover.Delete(ctx, f.Path)
	switch {
	case err == nil:
		cl.metrics.Removal(metrics.RemovalRemoved)
		return nil
	case errors.Is(err, fs.ErrNotExist):
		cl.metrics.Removal(metrics.RemovalMissing)
		cl.logger.Debug("Staged file already removed", "field", f.FieldName, "path", f.Path)
		return nil
	default:
		cl.metrics.Removal(metrics.RemovalFailed)
		cl.logger.Warn("Failed to remove staged file", "field", f.FieldName, "path", f.Path, "error", err)
		return err
	}
}

// Guard runs Cleanup once the rest of the chain has finished, including when
// a later handler panics.
func (cl *Cleaner) Guard() gin.HandlerFunc {
	return func(c *gin.Context) {
		req := FromContext(c)
		defer cl.Cleanup(c.Request.Context(), req)
		c.Next()
	}
}
