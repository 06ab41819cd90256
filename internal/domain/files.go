package domain

import "strings"

// StagedFile is one multipart file part written to the temporary upload directory.
type StagedFile struct {
	FieldName    string `json:"fieldName"`
	OriginalName string `json:"originalName"`
	Path         string `json:"-"`
	MimeType     string `json:"mimeType"`
	Size         int64  `json:"size"`
}

func (f StagedFile) IsImage() bool {
	return strings.HasPrefix(f.MimeType, "image/")
}

func (f StagedFile) IsEmpty() bool {
	return f.Size == 0
}
