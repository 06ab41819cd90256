package upload

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ondrasimku/image-upload-service/internal/config"
	"github.com/ondrasimku/image-upload-service/internal/domain"
	"github.com/ondrasimku/image-upload-service/internal/metrics"
	"github.com/ondrasimku/image-upload-service/internal/storage"
)

const defaultMimeType = "application/octet-stream"

// FieldSpec declares a file field accepted by an endpoint and how many files it may carry.
type FieldSpec struct {
	Name     string
	MaxCount int
}

type mode int

const (
	modeSingle mode = iota
	modeArray
	modeFields
)

// Acceptor streams multipart file parts into the staging directory and
// records them on the request's upload state.
type Acceptor struct {
	cfg     config.UploadConfig
	stager  storage.Stager
	logger  *slog.Logger
	metrics *metrics.Upload
}

func NewAcceptor(cfg config.UploadConfig, stager storage.Stager, logger *slog.Logger, m *metrics.Upload) *Acceptor {
	return &Acceptor{
		cfg:     cfg,
		stager:  stager,
		logger:  logger,
		metrics: m,
	}
}

// Single accepts at most one file in field.
func (a *Acceptor) Single(field string) gin.HandlerFunc {
	return a.handler(modeSingle, []FieldSpec{{Name: field, MaxCount: 1}})
}

// Array accepts up to maxCount files in field.
func (a *Acceptor) Array(field string, maxCount int) gin.HandlerFunc {
	return a.handler(modeArray, []FieldSpec{{Name: field, MaxCount: maxCount}})
}

// Fields accepts files in several fields, each with its own maximum.
func (a *Acceptor) Fields(specs ...FieldSpec) gin.HandlerFunc {
	return a.handler(modeFields, specs)
}

func (a *Acceptor) handler(m mode, specs []FieldSpec) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := FromContext(c)
		if err := a.accept(c.Request, req, m, specs); err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		c.Next()
	}
}

func (a *Acceptor) accept(r *http.Request, req *Request, m mode, specs []FieldSpec) error {
	var staged []domain.StagedFile
	req.setFiles(collect(m, specs, staged))

	mr, err := r.MultipartReader()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil
		}
		return malformed(err)
	}

	var (
		parts      int
		fileCount  int
		fieldCount int
		perField   = make(map[string]int)
	)

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return malformed(err)
		}

		parts++
		if a.cfg.MaxParts > 0 && parts > a.cfg.MaxParts {
			part.Close()
			return newLimitError(LimitPartCount, "")
		}

		name := part.FormName()
		if name == "" {
			part.Close()
			return newLimitError(MissingFieldName, "")
		}
		if len(name) > a.cfg.MaxFieldNameSize {
			part.Close()
			return newLimitError(LimitFieldKey, "")
		}

		if part.FileName() == "" {
			fieldCount++
			if a.cfg.MaxFields > 0 && fieldCount > a.cfg.MaxFields {
				part.Close()
				return newLimitError(LimitFieldCount, name)
			}
			if err := a.readField(part, name, req); err != nil {
				return err
			}
			continue
		}

		fileCount++
		if fileCount > a.cfg.MaxFileCount {
			part.Close()
			return newLimitError(LimitFileCount, name)
		}

		spec, ok := lookup(specs, name)
		if !ok {
			part.Close()
			return newLimitError(LimitUnexpectedFile, name)
		}
		perField[name]++
		if perField[name] > spec.MaxCount {
			part.Close()
			return newLimitError(LimitUnexpectedFile, name)
		}

		file, err := a.stage(r, part, name)
		if err != nil {
			return err
		}
		staged = append(staged, file)
		req.setFiles(collect(m, specs, staged))
	}
}

func (a *Acceptor) readField(part *multipart.Part, name string, req *Request) error {
	defer part.Close()

	value, err := io.ReadAll(io.LimitReader(part, a.cfg.MaxFieldSize+1))
	if err != nil {
		return malformed(err)
	}
	if int64(len(value)) > a.cfg.MaxFieldSize {
		return newLimitError(LimitFieldValue, name)
	}
	req.addField(name, string(value))
	return nil
}

func (a *Acceptor) stage(r *http.Request, part *multipart.Part, name string) (domain.StagedFile, error) {
	defer part.Close()

	mimeType := part.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = defaultMimeType
	}

	limited := &sizeLimitReader{r: part, remaining: a.cfg.MaxFileSize}
	info, err := a.stager.Save(r.Context(), limited, storage.SaveOptions{
		ContentType:  mimeType,
		OriginalName: part.FileName(),
	})
	if err != nil {
		switch {
		case limited.exceeded:
			a.logger.Warn("Upload exceeds file size limit", "field", name, "max", a.cfg.MaxFileSize)
			return domain.StagedFile{}, newLimitError(LimitFileSize, name)
		case limited.readErr != nil:
			return domain.StagedFile{}, malformed(limited.readErr)
		default:
			return domain.StagedFile{}, fmt.Errorf("failed to stage upload: %w", err)
		}
	}

	a.metrics.StagedFile(name)
	a.logger.Debug("Staged upload", "field", name, "path", info.Path, "size", info.Size, "contentType", mimeType)

	return domain.StagedFile{
		FieldName:    name,
		OriginalName: part.FileName(),
		Path:         info.Path,
		MimeType:     mimeType,
		Size:         info.Size,
	}, nil
}

func lookup(specs []FieldSpec, name string) (FieldSpec, bool) {
	for _, spec := range specs {
		if spec.Name == name {
			return spec, true
		}
	}
	return FieldSpec{}, false
}

func collect(m mode, specs []FieldSpec, staged []domain.StagedFile) Files {
	switch m {
	case modeSingle:
		if len(staged) == 0 {
			return Empty()
		}
		return Single(staged[0])
	case modeArray:
		return Sequence(staged...)
	default:
		order := make([]string, 0, len(specs))
		groups := make(map[string][]domain.StagedFile)
		for _, spec := range specs {
			order = append(order, spec.Name)
		}
		for _, f := range staged {
			groups[f.FieldName] = append(groups[f.FieldName], f)
		}
		return FieldGroups(order, groups)
	}
}
