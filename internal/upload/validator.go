package upload

import (
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/ondrasimku/image-upload-service/internal/apierr"
	"github.com/ondrasimku/image-upload-service/internal/domain"
	"github.com/ondrasimku/image-upload-service/internal/metrics"
)

// CheckSingle validates the upload of a single-file endpoint.
func CheckSingle(files Files) error {
	f, ok := files.Single()
	if !ok {
		return apierr.BadRequest(apierr.CodeNoFiles, "No file uploaded")
	}
	return checkFile(f)
}

// CheckArray validates the upload of a multi-file endpoint. Files are checked
// in order and the first offending file decides the error.
func CheckArray(files Files, minFiles int) error {
	all := files.All()
	if len(all) == 0 {
		return apierr.BadRequest(apierr.CodeNoFiles, "No files uploaded")
	}
	if len(all) < minFiles {
		return apierr.BadRequest(apierr.CodeTooFewFiles, "At least %d files are required, got %d", minFiles, len(all))
	}
	for _, f := range all {
		if err := checkFile(f); err != nil {
			return err
		}
	}
	return nil
}

// checkFile rejects non-image files before empty ones.
func checkFile(f domain.StagedFile) error {
	if !f.IsImage() {
		return apierr.BadRequest(apierr.CodeUnsupportedFile, "Unsupported file type %q for %q, expected an image", f.MimeType, f.OriginalName)
	}
	if f.IsEmpty() {
		return apierr.BadRequest(apierr.CodeEmptyFile, "File %q is empty", f.OriginalName)
	}
	return nil
}

type Validator struct {
	logger  *slog.Logger
	metrics *metrics.Upload
}

func NewValidator(logger *slog.Logger, m *metrics.Upload) *Validator {
	return &Validator{logger: logger, metrics: m}
}

func (v *Validator) Single() gin.HandlerFunc {
	return v.handler(CheckSingle)
}

func (v *Validator) Array(minFiles int) gin.HandlerFunc {
	return v.handler(func(files Files) error {
		return CheckArray(files, minFiles)
	})
}

func (v *Validator) handler(check func(Files) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := FromContext(c)
		if err := check(req.Files()); err != nil {
			var apiErr *apierr.Error
			if errors.As(err, &apiErr) {
				v.metrics.Rejected(string(apiErr.Code))
				v.logger.Warn("Upload rejected", "code", apiErr.Code, "status", apiErr.Status, "files", req.Files().Len())
			}
			_ = c.Error(err)
			c.Abort()
			return
		}
		c.Next()
	}
}
