package matcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/ondrasimku/image-upload-service/internal/apierr"
	"github.com/ondrasimku/image-upload-service/internal/domain"
	"github.com/ondrasimku/image-upload-service/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const maxResponseSize = 8 << 20

type Request struct {
	Files  []domain.StagedFile
	Fields map[string][]string
}

type Result struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Client forwards validated uploads to the image matching service.
type Client interface {
	Match(ctx context.Context, req Request) (*Result, error)
	Compare(ctx context.Context, req Request) (*Result, error)
}

// Opener gives read access to staged files.
type Opener interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

type HTTPClient struct {
	baseURL    string
	files      Opener
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
}

func NewHTTPClient(baseURL string, timeout time.Duration, files Opener, logger *slog.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		files:      files,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		tracer:     telemetry.Tracer(),
	}
}

func (c *HTTPClient) Match(ctx context.Context, req Request) (*Result, error) {
	return c.post(ctx, "/match", req)
}

func (c *HTTPClient) Compare(ctx context.Context, req Request) (*Result, error) {
	return c.post(ctx, "/compare", req)
}

func (c *HTTPClient) post(ctx context.Context, path string, req Request) (*Result, error) {
	ctx, span := c.tracer.Start(ctx, "matcher"+strings.ReplaceAll(path, "/", "."),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int("upload.files", len(req.Files))))
	defer span.End()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(c.writeBody(ctx, mw, req))
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("failed to create matcher request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		pr.Close()
		span.RecordError(err)
		span.SetStatus(codes.Error, "matcher request failed")
		c.logger.Error("Image matcher request failed", "path", path, "error", err)
		return nil, apierr.New(http.StatusBadGateway, apierr.CodeUpstream, "Image matcher unavailable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		span.RecordError(err)
		return nil, apierr.New(http.StatusBadGateway, apierr.CodeUpstream, "Failed to read image matcher response")
	}
	if len(body) > maxResponseSize {
		span.SetStatus(codes.Error, "matcher response too large")
		c.logger.Warn("Image matcher response exceeds limit", "path", path, "max", maxResponseSize)
		return nil, apierr.New(http.StatusBadGateway, apierr.CodeUpstream, "Image matcher response too large")
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		span.SetStatus(codes.Error, resp.Status)
		c.logger.Warn("Image matcher returned error", "path", path, "status", resp.StatusCode)
		return nil, apierr.New(http.StatusBadGateway, apierr.CodeUpstream,
			fmt.Sprintf("Image matcher returned status %d", resp.StatusCode))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}

	return &Result{
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        body,
	}, nil
}

func (c *HTTPClient) writeBody(ctx context.Context, mw *multipart.Writer, req Request) error {
	for name, values := range req.Fields {
		for _, v := range values {
			if err := mw.WriteField(name, v); err != nil {
				return err
			}
		}
	}

	for _, f := range req.Files {
		if err := c.writeFile(ctx, mw, f); err != nil {
			return err
		}
	}

	return mw.Close()
}

func (c *HTTPClient) writeFile(ctx context.Context, mw *multipart.Writer, f domain.StagedFile) error {
	src, err := c.files.Open(ctx, f.Path)
	if err != nil {
		return err
	}
	defer src.Close()

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(f.FieldName), escapeQuotes(f.OriginalName)))
	h.Set("Content-Type", f.MimeType)

	dst, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
