// Package errs defines the error type handlers return to API clients.
//
// Every HTTPError renders as {"error": message} with its Status.
package errs

import (
	"errors"
	"net/http"
)

// HTTPError 返回给调用方的错误
type HTTPError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
}

func (e *HTTPError) Error() string {
	return e.Message
}

// Is 只比较类型
func (e *HTTPError) Is(target error) bool {
	_, ok := target.(*HTTPError)
	return ok
}

func NewBadRequestError(message string) *HTTPError {
	return &HTTPError{Status: http.StatusBadRequest, Message: message}
}

func NewTooManyRequestsError(message string) *HTTPError {
	return &HTTPError{Status: http.StatusTooManyRequests, Message: message}
}

func NewInternalServerError(message string) *HTTPError {
	return &HTTPError{Status: http.StatusInternalServerError, Message: message}
}

// From 把任意错误转成 HTTPError，非 HTTPError 统一为 500
func From(err error) *HTTPError {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	return NewInternalServerError(http.StatusText(http.StatusInternalServerError))
}
