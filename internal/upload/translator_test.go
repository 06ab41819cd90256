package upload

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/ondrasimku/image-upload-service/internal/apierr"
	"github.com/ondrasimku/image-upload-service/internal/domain"
	"github.com/ondrasimku/image-upload-service/internal/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslateLimit(t *testing.T) {
	tests := []struct {
		code LimitCode
		want apierr.Code
	}{
		{LimitPartCount, apierr.CodeUploadPartCount},
		{LimitFileSize, apierr.CodeUploadFileSize},
		{LimitFileCount, apierr.CodeUploadFileCount},
		{LimitFieldKey, apierr.CodeUploadFieldKey},
		{LimitFieldValue, apierr.CodeUploadFieldValue},
		{LimitFieldCount, apierr.CodeUploadFieldCount},
		{LimitUnexpectedFile, apierr.CodeUploadUnexpectedFile},
		{MissingFieldName, apierr.CodeBadRequest},
		{MalformedMultipart, apierr.CodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			limitErr := newLimitError(tt.code, "images")
			got := TranslateLimit(limitErr)

			assert.Equal(t, http.StatusBadRequest, got.Status)
			assert.Equal(t, tt.want, got.Code)
			assert.Equal(t, limitErr.Message, got.Message)
		})
	}
}

func translatorEngine(remover *recordingRemover, fail error) *gin.Engine {
	cleaner := NewCleaner(remover, log.Discard(), nil)

	engine := gin.New()
	engine.Use(renderErrors())
	engine.POST("/", TranslateErrors(cleaner, log.Discard(), nil), func(c *gin.Context) {
		FromContext(c).setFiles(Sequence(
			domain.StagedFile{Path: "/staging/a"},
			domain.StagedFile{Path: "/staging/b"},
		))
		_ = c.Error(fail)
		c.Abort()
	})
	return engine
}

func TestTranslateErrorsMapsLimitErrorsAfterCleanup(t *testing.T) {
	remover := newRecordingRemover()
	engine := translatorEngine(remover, newLimitError(LimitFileSize, "images"))

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, apierr.CodeUploadFileSize, resp.Code)
	assert.Equal(t, "File too large", resp.Message)
	assert.ElementsMatch(t, []string{"/staging/a", "/staging/b"}, remover.calls)
}

func TestTranslateErrorsPassesOtherErrorsThrough(t *testing.T) {
	remover := newRecordingRemover()
	engine := translatorEngine(remover, errors.New("matcher crashed"))

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, apierr.CodeInternal, decodeError(t, rec).Code)
	assert.Len(t, remover.calls, 2)
}

func TestTranslateErrorsPassesValidationErrorsThrough(t *testing.T) {
	remover := newRecordingRemover()
	engine := translatorEngine(remover, apierr.BadRequest(apierr.CodeTooFewFiles, "need more"))

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apierr.CodeTooFewFiles, decodeError(t, rec).Code)
	assert.Len(t, remover.calls, 2)
}

func TestLimitErrorMessage(t *testing.T) {
	err := malformed(errors.New("unexpected EOF"))
	assert.Contains(t, err.Error(), "MALFORMED_MULTIPART")
	assert.Contains(t, err.Error(), "unexpected EOF")

	var limitErr *LimitError
	assert.True(t, errors.As(error(newLimitError(LimitFileCount, "images")), &limitErr))
	assert.Contains(t, limitErr.Error(), `field "images"`)
}
