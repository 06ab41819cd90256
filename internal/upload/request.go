package upload

import (
	"github.com/gin-gonic/gin"
	"github.com/ondrasimku/image-upload-service/internal/domain"
)

const requestKey = "upload.request"

type Kind int

const (
	KindEmpty Kind = iota
	KindSingle
	KindSequence
	KindFieldGroups
)

func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindSequence:
		return "sequence"
	case KindFieldGroups:
		return "field_groups"
	default:
		return "empty"
	}
}

// Files is the set of staged files of one request: nothing, one file, an
// ordered sequence, or sequences grouped by form field.
type Files struct {
	kind   Kind
	single domain.StagedFile
	seq    []domain.StagedFile
	order  []string
	groups map[string][]domain.StagedFile
}

func Empty() Files {
	return Files{kind: KindEmpty}
}

func Single(f domain.StagedFile) Files {
	return Files{kind: KindSingle, single: f}
}

func Sequence(files ...domain.StagedFile) Files {
	return Files{kind: KindSequence, seq: append([]domain.StagedFile(nil), files...)}
}

// FieldGroups groups files by field; order fixes the iteration order of All.
func FieldGroups(order []string, groups map[string][]domain.StagedFile) Files {
	g := make(map[string][]domain.StagedFile, len(groups))
	for name, files := range groups {
		g[name] = append([]domain.StagedFile(nil), files...)
	}
	return Files{kind: KindFieldGroups, order: append([]string(nil), order...), groups: g}
}

func (f Files) Kind() Kind {
	return f.kind
}

func (f Files) Single() (domain.StagedFile, bool) {
	if f.kind != KindSingle {
		return domain.StagedFile{}, false
	}
	return f.single, true
}

func (f Files) Sequence() []domain.StagedFile {
	if f.kind != KindSequence {
		return nil
	}
	return f.seq
}

func (f Files) Groups() map[string][]domain.StagedFile {
	if f.kind != KindFieldGroups {
		return nil
	}
	return f.groups
}

func (f Files) All() []domain.StagedFile {
	switch f.kind {
	case KindSingle:
		return []domain.StagedFile{f.single}
	case KindSequence:
		return f.seq
	case KindFieldGroups:
		var all []domain.StagedFile
		for _, name := range f.order {
			all = append(all, f.groups[name]...)
		}
		return all
	default:
		return nil
	}
}

func (f Files) Len() int {
	switch f.kind {
	case KindSingle:
		return 1
	case KindSequence:
		return len(f.seq)
	case KindFieldGroups:
		n := 0
		for _, files := range f.groups {
			n += len(files)
		}
		return n
	default:
		return 0
	}
}

// Request is the upload state of a single HTTP request. It lives on the
// gin context and is never shared between requests.
type Request struct {
	files   Files
	fields  map[string][]string
	cleaned bool
}

// FromContext returns the upload state of c, creating it on first use.
func FromContext(c *gin.Context) *Request {
	if v, ok := c.Get(requestKey); ok {
		if req, ok := v.(*Request); ok {
			return req
		}
	}
	req := &Request{files: Empty()}
	c.Set(requestKey, req)
	return req
}

func (r *Request) Files() Files {
	return r.files
}

func (r *Request) Fields() map[string][]string {
	return r.fields
}

func (r *Request) Cleaned() bool {
	return r.cleaned
}

func (r *Request) setFiles(f Files) {
	r.files = f
}

func (r *Request) addField(name, value string) {
	if r.fields == nil {
		r.fields = make(map[string][]string)
	}
	r.fields[name] = append(r.fields[name], value)
}
