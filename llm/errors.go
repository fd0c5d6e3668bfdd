package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"

	"github.com/sashabaranov/go-openai"
)

// ErrorKind classifies transport failures
type ErrorKind int

const (
	KindNetwork ErrorKind = iota
	KindInvalidURL
	KindServerError
	KindInvalidResponse
	KindCancelled
)

var (
	ErrInvalidURL      = errors.New("invalid URL")
	ErrNetwork         = errors.New("network error")
	ErrServerError     = errors.New("server error")
	ErrInvalidResponse = errors.New("invalid response format")
	ErrCancelled       = errors.New("request cancelled")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindInvalidURL:
		return ErrInvalidURL
	case KindServerError:
		return ErrServerError
	case KindInvalidResponse:
		return ErrInvalidResponse
	case KindCancelled:
		return ErrCancelled
	default:
		return ErrNetwork
	}
}

// String returns the kind name
func (k ErrorKind) String() string {
	switch k {
	case KindInvalidURL:
		return "invalidURL"
	case KindServerError:
		return "serverError"
	case KindInvalidResponse:
		return "invalidResponse"
	case KindCancelled:
		return "cancelled"
	default:
		return "network"
	}
}

// Error is returned by every Client operation that fails
type Error struct {
	Kind       ErrorKind
	StatusCode int // set for KindServerError
	Err        error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Kind.sentinel().Error()
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error of the kind
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// KindOf reports the kind of a transport error
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return KindNetwork, false
}

// StreamError is returned when a stream fails after some content arrived.
// Partial holds the text accumulated before the failure.
type StreamError struct {
	Partial string
	Err     error
}

// Error implements the error interface
func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content received: %d chars): %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

// Unwrap returns the underlying error
func (e *StreamError) Unwrap() error {
	return e.Err
}

// classifyError maps errors returned by go-openai and net/http to an *Error
func classifyError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled) {
		return &Error{Kind: KindCancelled, Err: err}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Kind: KindServerError, StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &Error{Kind: KindServerError, StatusCode: reqErr.HTTPStatusCode, Err: err}
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return &Error{Kind: KindNetwork, Err: err}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return &Error{Kind: KindInvalidResponse, Err: err}
	}

	return &Error{Kind: KindNetwork, Err: err}
}
