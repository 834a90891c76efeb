/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/tomoncle/keel/errs"
	"github.com/tomoncle/keel/store"
)

// retryStrategy retries an operation with capped exponential backoff while
// it fails with a transient error.
type retryStrategy struct {
	maxRetries uint64
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     Logger
}

var _ store.ExecutionStrategy = (*retryStrategy)(nil)

func newRetryStrategy(cfg SessionConfig, logger Logger) *retryStrategy {
	defaults := DefaultSessionConfig()
	s := &retryStrategy{
		baseDelay: cfg.RetryBaseDelay,
		maxDelay:  cfg.RetryMaxDelay,
		logger:    logger,
	}
	if cfg.MaxRetries > 0 {
		s.maxRetries = uint64(cfg.MaxRetries) // #nosec G115 -- checked positive above
	}
	if s.baseDelay <= 0 {
		s.baseDelay = defaults.RetryBaseDelay
	}
	if s.maxDelay <= 0 {
		s.maxDelay = defaults.RetryMaxDelay
	}
	return s
}

func (s *retryStrategy) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(s.maxRetries,
		retry.WithCappedDuration(s.maxDelay, retry.NewExponential(s.baseDelay)))

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := op(ctx)
		if err != nil && errs.IsTransient(err) {
			s.logger.Warn("Transient failure, retrying", "attempt", attempt, "max_retries", s.maxRetries, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}
