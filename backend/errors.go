// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package backend holds what the search and geocoding clients share: the error
// taxonomy for remote calls and the retry policy applied to them.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies failures of a remote backend.
type ErrorKind int

const (
	// KindBackendError the backend answered, but not with something usable.
	KindBackendError ErrorKind = iota
	// KindUnavailable the call could not complete: network, timeout, overload.
	KindUnavailable
	// KindNoLocality geocoding succeeded but returned no locality component.
	KindNoLocality
	// KindInvalidRequest the request was rejected before reaching the network.
	KindInvalidRequest
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnavailable:
		return "backend_unavailable"
	case KindNoLocality:
		return "no_locality_found"
	case KindInvalidRequest:
		return "invalid_request"
	default:
		return "backend_error"
	}
}

// Error is the error returned by every backend client.
type Error struct {
	Kind       ErrorKind
	Backend    string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Backend != "" {
		msg = e.Backend + ": " + msg
	}

	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func kindOf(err error) (ErrorKind, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind, true
	}

	return KindBackendError, false
}

// IsUnavailable reports whether err is a transport level failure worth retrying.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}

	if k, ok := kindOf(err); ok {
		return k == KindUnavailable
	}

	return false
}

// IsNoLocality reports whether err means geocoding found no locality.
func IsNoLocality(err error) bool {
	k, ok := kindOf(err)

	return ok && k == KindNoLocality
}

// Kind returns the kind of err, KindBackendError when err is not a backend error.
func Kind(err error) ErrorKind {
	k, _ := kindOf(err)

	return k
}

// Unavailable wraps a transport failure.
func Unavailable(name string, err error) *Error {
	msg := "request failed"

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		msg = "request timed out"
	}

	return &Error{Kind: KindUnavailable, Backend: name, Message: msg, Err: err}
}

// Invalid reports a request rejected before any network call.
func Invalid(name, message string) *Error {
	return &Error{Kind: KindInvalidRequest, Backend: name, Message: message}
}

// Malformed reports a response that could not be understood.
func Malformed(name string, err error) *Error {
	return &Error{Kind: KindBackendError, Backend: name, Message: "decoding response", Err: err}
}

// NoLocality reports a geocoding answer without a usable locality.
func NoLocality(name, latlng string) *Error {
	return &Error{Kind: KindNoLocality, Backend: name, Message: "no locality found for " + latlng}
}

// ClassifyHTTPError maps a non-success status code to a backend error.
func ClassifyHTTPError(name string, statusCode int) *Error {
	switch statusCode {
	case http.StatusTooManyRequests:
		return &Error{
			Kind:       KindUnavailable,
			Backend:    name,
			StatusCode: statusCode,
			Message:    "rate limit reached",
		}
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return &Error{
			Kind:       KindUnavailable,
			Backend:    name,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("service unavailable (status %d)", statusCode),
		}
	default:
		return &Error{
			Kind:       KindBackendError,
			Backend:    name,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("HTTP error %d", statusCode),
		}
	}
}
