package matcher

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ondrasimku/image-upload-service/internal/apierr"
	"github.com/ondrasimku/image-upload-service/internal/domain"
	"github.com/ondrasimku/image-upload-service/internal/log"
	"github.com/ondrasimku/image-upload-service/internal/storage"
	"github.com/ondrasimku/image-upload-service/internal/storage/local"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type receivedPart struct {
	Field       string `json:"field"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Data        string `json:"data"`
}

func echoServer(t *testing.T, wantPath string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != wantPath {
			http.NotFound(w, r)
			return
		}

		mr, err := r.MultipartReader()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var parts []receivedPart
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			data, _ := io.ReadAll(p)
			parts = append(parts, receivedPart{
				Field:       p.FormName(),
				Filename:    p.FileName(),
				ContentType: p.Header.Get("Content-Type"),
				Data:        string(data),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(parts)
	}))
}

func stageFile(t *testing.T, s *local.LocalStorage, field, name, mimeType, data string) domain.StagedFile {
	t.Helper()
	info, err := s.Save(context.Background(), strings.NewReader(data), storage.SaveOptions{OriginalName: name, ContentType: mimeType})
	require.NoError(t, err)
	return domain.StagedFile{FieldName: field, OriginalName: name, Path: info.Path, MimeType: mimeType, Size: info.Size}
}

func TestCompareRelaysFilesAndFields(t *testing.T) {
	srv := echoServer(t, "/compare")
	defer srv.Close()

	s, err := local.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	files := []domain.StagedFile{
		stageFile(t, s, "images", "a.png", "image/png", "AAAA"),
		stageFile(t, s, "images", "b.jpg", "image/jpeg", "BBBB"),
	}

	client := NewHTTPClient(srv.URL+"/", time.Second, s, log.Discard())
	res, err := client.Compare(context.Background(), Request{
		Files:  files,
		Fields: map[string][]string{"threshold": {"0.9"}},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "application/json", res.ContentType)

	var parts []receivedPart
	require.NoError(t, json.Unmarshal(res.Body, &parts))
	require.Len(t, parts, 3)
	assert.Equal(t, receivedPart{Field: "threshold", Data: "0.9"}, parts[0])
	assert.Equal(t, receivedPart{Field: "images", Filename: "a.png", ContentType: "image/png", Data: "AAAA"}, parts[1])
	assert.Equal(t, receivedPart{Field: "images", Filename: "b.jpg", ContentType: "image/jpeg", Data: "BBBB"}, parts[2])
}

func TestMatchUpstreamErrorIsBadGateway(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s, err := local.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	client := NewHTTPClient(srv.URL, time.Second, s, log.Discard())
	_, err = client.Match(context.Background(), Request{Files: []domain.StagedFile{stageFile(t, s, "image", "a.png", "image/png", "x")}})
	require.Error(t, err)

	apiErr := apierr.From(err)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, apierr.CodeUpstream, apiErr.Code)
	assert.Contains(t, apiErr.Message, "503")
}

func TestMatchUnreachableUpstream(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s, err := local.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	client := NewHTTPClient(url, time.Second, s, log.Discard())
	_, err = client.Match(context.Background(), Request{Files: []domain.StagedFile{stageFile(t, s, "image", "a.png", "image/png", "x")}})
	require.Error(t, err)
	assert.Equal(t, apierr.CodeUpstream, apierr.From(err).Code)
}

func TestEscapeQuotes(t *testing.T) {
	assert.Equal(t, `my \"photo\".png`, escapeQuotes(`my "photo".png`))
}

func TestMatchRejectsOversizedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"data":"`+strings.Repeat("x", maxResponseSize)+`"}`)
	}))
	defer srv.Close()

	s, err := local.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	client := NewHTTPClient(srv.URL, 5*time.Second, s, log.Discard())
	res, err := client.Match(context.Background(), Request{Files: []domain.StagedFile{stageFile(t, s, "image", "a.png", "image/png", "x")}})
	require.Error(t, err)
	assert.Nil(t, res)

	apiErr := apierr.From(err)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, apierr.CodeUpstream, apiErr.Code)
	assert.Equal(t, "Image matcher response too large", apiErr.Message)
}

func TestMatchKeepsUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, `{"queued":true}`)
	}))
	defer srv.Close()

	s, err := local.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	client := NewHTTPClient(srv.URL, time.Second, s, log.Discard())
	res, err := client.Match(context.Background(), Request{Files: []domain.StagedFile{stageFile(t, s, "image", "a.png", "image/png", "x")}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, res.StatusCode)
	assert.JSONEq(t, `{"queued":true}`, string(res.Body))
}
