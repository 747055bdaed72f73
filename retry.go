// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package k5link

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	// OnRetry is called before the sleep that precedes another attempt
	OnRetry func(attempt int, err error)
	// RetryIf decides which errors earn another attempt (nil = IsRetryable)
	RetryIf func(err error) bool
	// MaxAttempts is the maximum number of attempts (0 = single attempt, no retry)
	MaxAttempts int
	// InitialBackoff is the initial backoff duration
	InitialBackoff time.Duration
	// MaxBackoff is the maximum backoff duration
	MaxBackoff time.Duration
	// BackoffMultiplier is the factor by which the backoff increases
	BackoffMultiplier float64
	// Jitter adds randomness to backoff
	Jitter float64
	// RetryTimeout is the overall timeout for all retry attempts (0 = none)
	RetryTimeout time.Duration
}

// DefaultRetryConfig returns the handshake retry policy: three attempts
// separated by a fixed settle delay.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       DefaultHandshakeAttempts,
		InitialBackoff:    DefaultSettleDelay,
		MaxBackoff:        DefaultSettleDelay,
		BackoffMultiplier: 1.0,
	}
}

// RetryableFunc is a function that can be retried. attempt starts at 1.
type RetryableFunc func(attempt int) error

// RetryWithConfig executes a function with retry logic. Errors rejected by
// config.RetryIf (IsRetryable by default) end the loop immediately. No sleep
// follows the final attempt.
func RetryWithConfig(ctx context.Context, config *RetryConfig, retryFunc RetryableFunc) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	if config.MaxAttempts <= 0 {
		return retryFunc(1)
	}

	retryCtx, cancel := setupRetryContext(ctx, config)
	defer cancel()
	return executeWithRetry(retryCtx, config, retryFunc)
}

func (c *RetryConfig) shouldRetry(err error) bool {
	if c.RetryIf != nil {
		return c.RetryIf(err)
	}
	return IsRetryable(err)
}

func setupRetryContext(ctx context.Context, config *RetryConfig) (context.Context, context.CancelFunc) {
	if config.RetryTimeout > 0 {
		return context.WithTimeout(ctx, config.RetryTimeout)
	}
	return ctx, func() {}
}

func executeWithRetry(ctx context.Context, config *RetryConfig, retryFunc RetryableFunc) error {
	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := checkContextCancellation(ctx, lastErr); err != nil {
			return err
		}

		err := retryFunc(attempt)
		if err == nil {
			return nil
		}
		if !config.shouldRetry(err) {
			return err
		}
		lastErr = err

		if attempt < config.MaxAttempts {
			if config.OnRetry != nil {
				config.OnRetry(attempt, err)
			}
			sleep := calculateJitteredSleep(backoff, config.Jitter)
			if err := sleepWithContext(ctx, sleep, lastErr); err != nil {
				return err
			}
			backoff = calculateNextBackoff(backoff, config)
		}
	}

	return lastErr
}

func checkContextCancellation(ctx context.Context, lastErr error) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry cancelled: %w", errors.Join(ctx.Err(), lastErr))
	default:
		return nil
	}
}

func sleepWithContext(ctx context.Context, sleep time.Duration, lastErr error) error {
	if sleep <= 0 {
		return checkContextCancellation(ctx, lastErr)
	}
	timer := time.NewTimer(sleep)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("retry cancelled: %w", errors.Join(ctx.Err(), lastErr))
	case <-timer.C:
		return nil
	}
}

func calculateNextBackoff(backoff time.Duration, config *RetryConfig) time.Duration {
	newBackoff := time.Duration(float64(backoff) * config.BackoffMultiplier)
	if config.MaxBackoff > 0 && newBackoff > config.MaxBackoff {
		return config.MaxBackoff
	}
	return newBackoff
}

// calculateJitteredSleep adds up to jitterFactor*baseSleep of random delay.
func calculateJitteredSleep(baseSleep time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return baseSleep
	}
	//nolint:gosec // timing jitter, not crypto
	return baseSleep + time.Duration(rand.Float64()*jitterFactor*float64(baseSleep))
}
