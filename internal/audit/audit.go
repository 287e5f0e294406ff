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

package audit

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/opentrusty/ssoproxy/internal/id"
	"github.com/opentrusty/ssoproxy/internal/observability/logger"
	"go.opentelemetry.io/otel/metric"
)

// StatisticsSampleLimit caps how many entries Statistics and
// SuspiciousOrigins examine
const StatisticsSampleLimit = 5000

// DefaultSuspiciousThreshold is the failure count above which an origin is
// reported by SuspiciousOrigins
const DefaultSuspiciousThreshold = 2

// Log records and queries the audit trail
type Log struct {
	repo          Repository
	writeFailures metric.Int64Counter
	now           func() time.Time
}

// NewLog creates a new audit log. writeFailures may be nil.
func NewLog(repo Repository, writeFailures metric.Int64Counter) *Log {
	return &Log{
		repo:          repo,
		writeFailures: writeFailures,
		now:           time.Now,
	}
}

// Record appends an entry. It never fails: a store error is reported to
// operators through the log and the write failure counter.
func (l *Log) Record(ctx context.Context, entry Entry) *Entry {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now().UTC()
	}
	if entry.RequestID == "" {
		entry.RequestID = id.NewUUIDv7()
	}
	entry.RateLimitEligible = true
	entry.Origin = CleanOrigin(entry.Origin)
	entry.Identifier = clean(entry.Identifier, MaxIdentifierLength)
	entry.Details = clean(entry.Details, MaxDetailsLength)

	if err := l.repo.Insert(ctx, &entry); err != nil {
		slog.ErrorContext(ctx, "failed to record audit entry",
			logger.Component("audit"),
			logger.Error(err),
			logger.RequestID(entry.RequestID),
			logger.Origin(entry.Origin),
			slog.String("identifier", entry.Identifier),
			slog.Bool("success", entry.Success),
			slog.String("details", entry.Details),
		)
		if l.writeFailures != nil {
			l.writeFailures.Add(ctx, 1)
		}
	}
	return &entry
}

// Query returns entries for operator review, newest first
func (l *Log) Query(ctx context.Context, filter Filter) ([]*Entry, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultQueryLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return l.repo.Query(ctx, filter)
}

// Statistics summarizes entries matching filter
func (l *Log) Statistics(ctx context.Context, filter Filter) (*Statistics, error) {
	entries, err := l.sample(ctx, filter)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{Total: len(entries)}
	identifiers := make(map[string]struct{})
	origins := make(map[string]struct{})
	for _, e := range entries {
		if e.Success {
			stats.Successful++
		} else {
			stats.Failed++
		}
		if e.Identifier != "" {
			identifiers[e.Identifier] = struct{}{}
		}
		if e.Origin != "" {
			origins[e.Origin] = struct{}{}
		}
	}
	stats.UniqueIdentifiers = len(identifiers)
	stats.UniqueOrigins = len(origins)
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total) * 100
	}
	return stats, nil
}

// SuspiciousOrigins reports origins with more than threshold failures among
// the entries matching filter, most failures first
func (l *Log) SuspiciousOrigins(ctx context.Context, filter Filter, threshold int) ([]OriginFailures, error) {
	failed := false
	filter.Success = &failed
	entries, err := l.sample(ctx, filter)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, e := range entries {
		if e.Origin != "" {
			counts[e.Origin]++
		}
	}

	var out []OriginFailures
	for origin, n := range counts {
		if n > threshold {
			out = append(out, OriginFailures{Origin: origin, Failures: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Failures != out[j].Failures {
			return out[i].Failures > out[j].Failures
		}
		return out[i].Origin < out[j].Origin
	})
	return out, nil
}

func (l *Log) sample(ctx context.Context, filter Filter) ([]*Entry, error) {
	filter.Limit = StatisticsSampleLimit
	filter.Offset = 0
	return l.repo.Query(ctx, filter)
}

// CleanOrigin returns origin as Record stores it. Lookups by origin must
// use the same form.
func CleanOrigin(origin string) string {
	return clean(origin, MaxOriginLength)
}

// clean makes s storable: valid UTF-8, no NUL bytes, at most max bytes
func clean(s string, max int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	s = strings.ReplaceAll(s, "\x00", "\uFFFD")
	return truncate(s, max)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	s = s[:max]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
