// Package apierr defines the error vocabulary returned to API clients.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeNoFiles         Code = "NO_FILES"
	CodeTooFewFiles     Code = "TOO_FEW_FILES"
	CodeUnsupportedFile Code = "UNSUPPORTED_FILE"
	CodeEmptyFile       Code = "EMPTY_FILE"
	CodeBadRequest      Code = "BAD_REQUEST"

	CodeUploadPartCount      Code = "UPLOAD_LIMIT_PART_COUNT"
	CodeUploadFileSize       Code = "UPLOAD_LIMIT_FILE_SIZE"
	CodeUploadFileCount      Code = "UPLOAD_LIMIT_FILE_COUNT"
	CodeUploadFieldKey       Code = "UPLOAD_LIMIT_FIELD_KEY"
	CodeUploadFieldValue     Code = "UPLOAD_LIMIT_FIELD_VALUE"
	CodeUploadFieldCount     Code = "UPLOAD_LIMIT_FIELD_COUNT"
	CodeUploadUnexpectedFile Code = "UPLOAD_LIMIT_UNEXPECTED_FILE"

	CodeUpstream Code = "UPSTREAM_ERROR"
	CodeInternal Code = "INTERNAL_ERROR"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Status  int    `json:"status"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

type Error struct {
	Status  int
	Code    Code
	Message string
}

func New(status int, code Code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

func BadRequest(code Code, format string, args ...any) *Error {
	return New(http.StatusBadRequest, code, fmt.Sprintf(format, args...))
}

func Internal(message string) *Error {
	return New(http.StatusInternalServerError, CodeInternal, message)
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

func (e *Error) Response() ErrorResponse {
	return ErrorResponse{
		Success: false,
		Status:  e.Status,
		Code:    e.Code,
		Message: e.Message,
	}
}

// From returns err as an *Error, or a generic internal error if err carries none.
func From(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return Internal("Internal server error")
}
