package upload

import (
	"errors"
	"fmt"
	"io"
)

// LimitCode identifies a transport-level upload violation raised while the
// multipart body is being read.
type LimitCode string

const (
	LimitPartCount      LimitCode = "LIMIT_PART_COUNT"
	LimitFileSize       LimitCode = "LIMIT_FILE_SIZE"
	LimitFileCount      LimitCode = "LIMIT_FILE_COUNT"
	LimitFieldKey       LimitCode = "LIMIT_FIELD_KEY"
	LimitFieldValue     LimitCode = "LIMIT_FIELD_VALUE"
	LimitFieldCount     LimitCode = "LIMIT_FIELD_COUNT"
	LimitUnexpectedFile LimitCode = "LIMIT_UNEXPECTED_FILE"
	MissingFieldName    LimitCode = "MISSING_FIELD_NAME"
	MalformedMultipart  LimitCode = "MALFORMED_MULTIPART"
)

var limitMessages = map[LimitCode]string{
	LimitPartCount:      "Too many parts",
	LimitFileSize:       "File too large",
	LimitFileCount:      "Too many files",
	LimitFieldKey:       "Field name too long",
	LimitFieldValue:     "Field value too long",
	LimitFieldCount:     "Too many fields",
	LimitUnexpectedFile: "Unexpected field",
	MissingFieldName:    "Field name missing",
	MalformedMultipart:  "Malformed multipart body",
}

type LimitError struct {
	Code    LimitCode
	Field   string
	Message string
	Err     error
}

func newLimitError(code LimitCode, field string) *LimitError {
	return &LimitError{Code: code, Field: field, Message: limitMessages[code]}
}

func malformed(err error) *LimitError {
	e := newLimitError(MalformedMultipart, "")
	e.Err = err
	return e
}

func (e *LimitError) Error() string {
	msg := fmt.Sprintf("upload limit %s: %s", e.Code, e.Message)
	if e.Field != "" {
		msg += fmt.Sprintf(" (field %q)", e.Field)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LimitError) Unwrap() error {
	return e.Err
}

var errFileTooLarge = errors.New("file exceeds size limit")

// sizeLimitReader fails with errFileTooLarge once more than remaining bytes
// have been read, and remembers errors coming from the underlying body.
type sizeLimitReader struct {
	r         io.Reader
	remaining int64
	exceeded  bool
	readErr   error
}

func (l *sizeLimitReader) Read(p []byte) (int, error) {
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	if int64(n) > l.remaining {
		n = int(l.remaining)
		l.remaining = 0
		l.exceeded = true
		return n, errFileTooLarge
	}
	l.remaining -= int64(n)
	if err != nil && err != io.EOF {
		l.readErr = err
	}
	return n, err
}
