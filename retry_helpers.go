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

import "context"

// retryCounted runs fn under config and reports how many attempts ran.
// It exists so callers can tell exhaustion apart from a non-retryable error.
func retryCounted(ctx context.Context, config *RetryConfig, fn RetryableFunc) (attempts int, err error) {
	err = RetryWithConfig(ctx, config, func(attempt int) error {
		attempts = attempt
		return fn(attempt)
	})
	return attempts, err
}

// exhausted reports whether a retry loop ended because it ran out of attempts
// on a retryable error.
func exhausted(config *RetryConfig, attempts int, err error) bool {
	return err != nil && attempts >= config.MaxAttempts && config.shouldRetry(err)
}
