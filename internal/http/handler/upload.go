package handler

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/ondrasimku/image-upload-service/internal/matcher"
	"github.com/ondrasimku/image-upload-service/internal/upload"
)

// UploadHandler runs after the upload chain has staged and validated the
// request's files and hands them to the image matcher.
type UploadHandler struct {
	matcher matcher.Client
	logger  *slog.Logger
}

func NewUploadHandler(matcherClient matcher.Client, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{
		matcher: matcherClient,
		logger:  logger,
	}
}

func (h *UploadHandler) Match(c *gin.Context) {
	h.relay(c, h.matcher.Match)
}

func (h *UploadHandler) Compare(c *gin.Context) {
	h.relay(c, h.matcher.Compare)
}

func (h *UploadHandler) relay(c *gin.Context, call func(context.Context, matcher.Request) (*matcher.Result, error)) {
	req := upload.FromContext(c)
	files := req.Files().All()

	result, err := call(c.Request.Context(), matcher.Request{
		Files:  files,
		Fields: req.Fields(),
	})
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}

	h.logger.Info("Upload relayed to matcher", "files", len(files), "path", c.FullPath(), "status", result.StatusCode)
	c.Data(result.StatusCode, result.ContentType, result.Body)
}
