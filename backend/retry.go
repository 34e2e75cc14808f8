// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy decides how often a backend call is attempted.
// Only KindUnavailable failures are retried; anything else is returned at once.
type RetryPolicy struct {
	// MaxTries is the total number of attempts. Zero or one disables retries.
	MaxTries uint

	// InitialInterval is the wait before the second attempt.
	InitialInterval time.Duration

	// MaxInterval caps the wait between attempts.
	MaxInterval time.Duration

	// Logf receives a line per retried failure. Nil is silent.
	Logf func(format string, args ...any)
}

// DefaultRetryPolicy three attempts, starting at half a second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxTries:        3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Logf:            log.Printf,
	}
}

// NoRetry makes a single attempt.
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxTries: 1}
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}

	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}

	return b
}

// Retry runs op under the policy. The error of the last attempt is returned.
func Retry[T any](ctx context.Context, p RetryPolicy, what string, op func() (T, error)) (T, error) {
	if p.MaxTries <= 1 {
		return op()
	}

	return backoff.Retry(ctx,
		func() (T, error) {
			res, err := op()
			if err != nil && !IsUnavailable(err) {
				return res, backoff.Permanent(err)
			}

			return res, err
		},
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(p.MaxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			if p.Logf != nil {
				p.Logf("%s failed, retrying in %v - %s", what, wait.Round(time.Millisecond), err)
			}
		}),
	)
}
