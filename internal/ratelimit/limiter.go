// Copyright 2026 The OpenTrusty Authors
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

// Package ratelimit blocks network origins with too many recent failures.
// The decision is computed from the audit trail on every call; the limiter
// keeps no state of its own.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opentrusty/ssoproxy/internal/audit"
	"github.com/opentrusty/ssoproxy/internal/observability/logger"
)

// Policy defaults
const (
	DefaultMaxAttempts = 20
	DefaultWindow      = 30 * time.Minute
)

// Policy configures blocking
type Policy struct {
	MaxAttempts int
	Window      time.Duration
}

// DefaultPolicy returns 20 failures per 30 minutes
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, Window: DefaultWindow}
}

// Limiter evaluates the policy against failure history
type Limiter struct {
	repo   audit.Repository
	policy Policy
}

// New creates a limiter. Non-positive policy fields fall back to defaults.
func New(repo audit.Repository, policy Policy) *Limiter {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultMaxAttempts
	}
	if policy.Window <= 0 {
		policy.Window = DefaultWindow
	}
	return &Limiter{repo: repo, policy: policy}
}

// Policy returns the effective policy
func (l *Limiter) Policy() Policy {
	return l.policy
}

// IsBlocked reports whether origin has reached the failure limit within the
// window ending at now
func (l *Limiter) IsBlocked(ctx context.Context, origin string, now time.Time) (bool, error) {
	return l.IsBlockedWith(ctx, origin, now, l.policy)
}

// IsBlockedWith evaluates an explicit policy
func (l *Limiter) IsBlockedWith(ctx context.Context, origin string, now time.Time, policy Policy) (bool, error) {
	if origin == "" {
		return false, nil
	}

	count, err := l.repo.CountFailures(ctx, audit.CleanOrigin(origin), now.Add(-policy.Window))
	if err != nil {
		return false, fmt.Errorf("failed to count failures: %w", err)
	}
	return count >= int64(policy.MaxAttempts), nil
}

// Acknowledge clears the origin's eligible failures so it is no longer
// blocked. History is kept for reporting.
func (l *Limiter) Acknowledge(ctx context.Context, origin string) (int64, error) {
	n, err := l.repo.Acknowledge(ctx, audit.CleanOrigin(origin))
	if err != nil {
		return 0, fmt.Errorf("failed to acknowledge failures: %w", err)
	}

	slog.InfoContext(ctx, "rate limit cleared",
		logger.Component("ratelimit"),
		logger.Origin(origin),
		logger.RowsAffected(n),
	)
	return n, nil
}
