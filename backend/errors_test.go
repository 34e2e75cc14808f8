// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyHTTPError(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{http.StatusTooManyRequests, KindUnavailable},
		{http.StatusServiceUnavailable, KindUnavailable},
		{http.StatusBadGateway, KindUnavailable},
		{http.StatusGatewayTimeout, KindUnavailable},
		{http.StatusInternalServerError, KindBackendError},
		{http.StatusNotFound, KindBackendError},
		{http.StatusBadRequest, KindBackendError},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := ClassifyHTTPError("search", tt.status)
			assert.Equal(t, tt.want, err.Kind)
			assert.Equal(t, tt.status, err.StatusCode)
			assert.Contains(t, err.Error(), "search: ")
		})
	}
}

func TestKindHelpers(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		unavailable bool
		noLocality  bool
		kind        ErrorKind
	}{
		{"nil", nil, false, false, KindBackendError},
		{"plain error", errors.New("boom"), false, false, KindBackendError},
		{"unavailable", Unavailable("search", errors.New("connection refused")), true, false, KindUnavailable},
		{"wrapped unavailable", fmt.Errorf("geo: %w", Unavailable("search", errors.New("x"))), true, false, KindUnavailable},
		{"no locality", NoLocality("geocode", "52.1,5.1"), false, true, KindNoLocality},
		{"invalid", Invalid("search", "radius must be positive"), false, false, KindInvalidRequest},
		{"malformed", Malformed("search", errors.New("eof")), false, false, KindBackendError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.unavailable, IsUnavailable(tt.err))
			assert.Equal(t, tt.noLocality, IsNoLocality(tt.err))
			assert.Equal(t, tt.kind, Kind(tt.err))
		})
	}
}

func TestUnavailableTimeoutMessage(t *testing.T) {
	err := Unavailable("geocode", fmt.Errorf("get: %w", context.DeadlineExceeded))
	assert.Equal(t, "geocode: request timed out: get: context deadline exceeded", err.Error())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func fastPolicy(tries uint) RetryPolicy {
	return RetryPolicy{MaxTries: tries, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestRetryUnavailable(t *testing.T) {
	calls := 0
	res, err := Retry(context.Background(), fastPolicy(3), "search", func() (int, error) {
		calls++
		if calls < 3 {
			return 0, Unavailable("search", errors.New("reset"))
		}

		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, res)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsAtMaxTries(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(2), "search", func() (int, error) {
		calls++

		return 0, Unavailable("search", errors.New("reset"))
	})

	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.Equal(t, 2, calls)
}

func TestRetrySkipsPermanentErrors(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(5), "geocode", func() (string, error) {
		calls++

		return "", NoLocality("geocode", "0,0")
	})

	require.Error(t, err)
	assert.True(t, IsNoLocality(err))
	assert.Equal(t, 1, calls)
}

func TestNoRetry(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), NoRetry(), "search", func() (int, error) {
		calls++

		return 0, Unavailable("search", errors.New("reset"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
