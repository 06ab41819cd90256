package upload

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/ondrasimku/image-upload-service/internal/config"
	"github.com/ondrasimku/image-upload-service/internal/metrics"
	"github.com/ondrasimku/image-upload-service/internal/storage"
)

// Pipeline assembles the per-route upload chain:
// Guard -> TranslateErrors -> Acceptor -> Validator -> handlers.
type Pipeline struct {
	Acceptor  *Acceptor
	Validator *Validator
	Cleaner   *Cleaner

	translate gin.HandlerFunc
}

func NewPipeline(cfg config.UploadConfig, stager storage.Stager, logger *slog.Logger, m *metrics.Upload) *Pipeline {
	cleaner := NewCleaner(stager, logger, m)
	return &Pipeline{
		Acceptor:  NewAcceptor(cfg, stager, logger, m),
		Validator: NewValidator(logger, m),
		Cleaner:   cleaner,
		translate: TranslateErrors(cleaner, logger, m),
	}
}

func (p *Pipeline) Single(field string, handlers ...gin.HandlerFunc) []gin.HandlerFunc {
	return p.chain(p.Acceptor.Single(field), p.Validator.Single(), handlers)
}

func (p *Pipeline) Array(field string, minFiles, maxFiles int, handlers ...gin.HandlerFunc) []gin.HandlerFunc {
	return p.chain(p.Acceptor.Array(field, maxFiles), p.Validator.Array(minFiles), handlers)
}

func (p *Pipeline) chain(accept, validate gin.HandlerFunc, handlers []gin.HandlerFunc) []gin.HandlerFunc {
	chain := []gin.HandlerFunc{p.Cleaner.Guard(), p.translate, accept, validate}
	return append(chain, handlers...)
}

// Fields builds a chain accepting several file fields; minFiles applies to
// the total across all fields.
func (p *Pipeline) Fields(specs []FieldSpec, minFiles int, handlers ...gin.HandlerFunc) []gin.HandlerFunc {
	return p.chain(p.Acceptor.Fields(specs...), p.Validator.Array(minFiles), handlers)
}
