package upload

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ondrasimku/image-upload-service/internal/apierr"
	"github.com/ondrasimku/image-upload-service/internal/metrics"
)

var translatedLimits = map[LimitCode]apierr.Code{
	LimitPartCount:      apierr.CodeUploadPartCount,
	LimitFileSize:       apierr.CodeUploadFileSize,
	LimitFileCount:      apierr.CodeUploadFileCount,
	LimitFieldKey:       apierr.CodeUploadFieldKey,
	LimitFieldValue:     apierr.CodeUploadFieldValue,
	LimitFieldCount:     apierr.CodeUploadFieldCount,
	LimitUnexpectedFile: apierr.CodeUploadUnexpectedFile,
}

// TranslateLimit maps a limit violation to a 400 response. Unrecognized
// limit kinds become BAD_REQUEST; the message is kept as is.
func TranslateLimit(err *LimitError) *apierr.Error {
	code, ok := translatedLimits[err.Code]
	if !ok {
		code = apierr.CodeBadRequest
	}
	return apierr.New(http.StatusBadRequest, code, err.Message)
}

// TranslateErrors handles errors raised further down the chain. It always
// cleans up the request's staged files first, answers limit violations itself
// and leaves every other error for the next error handler.
func TranslateErrors(cleaner *Cleaner, logger *slog.Logger, m *metrics.Upload) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil {
			return
		}

		cleaner.Cleanup(c.Request.Context(), FromContext(c))

		var limitErr *LimitError
		if !errors.As(last.Err, &limitErr) {
			return
		}

		apiErr := TranslateLimit(limitErr)
		m.Rejected(string(apiErr.Code))
		logger.Warn("Upload limit exceeded", "code", apiErr.Code, "limit", limitErr.Code, "field", limitErr.Field, "error", limitErr)

		if c.Writer.Written() {
			return
		}
		c.AbortWithStatusJSON(apiErr.Status, apiErr.Response())
	}
}
