package upload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/ondrasimku/image-upload-service/internal/apierr"
	"github.com/ondrasimku/image-upload-service/internal/config"
	"github.com/ondrasimku/image-upload-service/internal/log"
	"github.com/ondrasimku/image-upload-service/internal/storage/local"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type part struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

func imagePart(field, name string, size int) part {
	return part{field: field, filename: name, contentType: "image/png", data: bytes.Repeat([]byte{0x89}, size)}
}

func textField(field, value string) part {
	return part{field: field, data: []byte(value)}
}

func multipartRequest(t *testing.T, target string, parts ...part) *http.Request {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		switch {
		case p.filename != "" && p.field != "":
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.field, p.filename))
		case p.filename != "":
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; filename=%q`, p.filename))
		default:
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q`, p.field))
		}
		if p.contentType != "" {
			h.Set("Content-Type", p.contentType)
		}
		pw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = pw.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func testUploadConfig(dir string) config.UploadConfig {
	return config.UploadConfig{
		TempDir:          dir,
		MaxFileSize:      4096,
		MaxFileCount:     5,
		MaxFieldNameSize: 100,
		MaxFieldSize:     1024,
		MinCompareFiles:  2,
	}
}

type testEnv struct {
	dir      string
	pipeline *Pipeline
	engine   *gin.Engine
}

func newTestEnv(t *testing.T, mutate func(*config.UploadConfig)) *testEnv {
	t.Helper()

	dir := t.TempDir()
	cfg := testUploadConfig(dir)
	if mutate != nil {
		mutate(&cfg)
	}

	stager, err := local.NewLocalStorage(dir)
	require.NoError(t, err)

	engine := gin.New()
	engine.Use(gin.CustomRecovery(func(c *gin.Context, _ any) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, apierr.Internal("Internal server error").Response())
	}))
	engine.Use(renderErrors())

	return &testEnv{
		dir:      dir,
		pipeline: NewPipeline(cfg, stager, log.Discard(), nil),
		engine:   engine,
	}
}

// renderErrors stands in for the service's outer error handler.
func renderErrors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if last := c.Errors.Last(); last != nil && !c.Writer.Written() {
			apiErr := apierr.From(last.Err)
			c.AbortWithStatusJSON(apiErr.Status, apiErr.Response())
		}
	}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) stagedCount(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(e.dir)
	require.NoError(t, err)
	return len(entries)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apierr.ErrorResponse {
	t.Helper()
	var resp apierr.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}
