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

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/opentrusty/ssoproxy/internal/accesskey"
	"github.com/opentrusty/ssoproxy/internal/audit"
	"github.com/opentrusty/ssoproxy/internal/authz"
	"github.com/opentrusty/ssoproxy/internal/directory"
	"github.com/opentrusty/ssoproxy/internal/errs"
	"github.com/opentrusty/ssoproxy/internal/observability/logger"
	"github.com/opentrusty/ssoproxy/internal/ratelimit"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// External results. Every failure other than rate limiting is reported as
// ErrUnauthorized; the audit entry carries the specific cause.
var (
	ErrUnauthorized = errs.New(errs.Unauthorized, "authentication failed")
	ErrRateLimited  = errs.New(errs.RateLimited, "too many failed attempts")
)

// DetailSecretUnreadable is recorded when a stored secret cannot be opened
const DetailSecretUnreadable = "stored secret unreadable"

// Request is one credential exchange attempt
type Request struct {
	TenantID   *int64 // optional; must match the key's tenant when set
	Identifier string
	Secret     string
	Origin     string
}

// Credential is the real identity and secret handed to the login client
type Credential struct {
	Identity  string
	Secret    string
	TenantID  int64
	AccountID int64
	SubjectID int64
}

// ListRequest asks for the accounts a key holder may use
type ListRequest struct {
	TenantID *int64
	Secret   string
	Origin   string
}

// AccountSummary is the public view of an accessible account
type AccountSummary struct {
	Name    string
	Aliases []string
	Tags    []string
}

// Service runs the credential exchange
type Service struct {
	directory *directory.Service
	keys      *accesskey.Service
	engine    *authz.Engine
	limiter   *ratelimit.Limiter
	audit     *audit.Log
	roles     authz.RoleLookup

	tracer   trace.Tracer
	attempts metric.Int64Counter
	now      func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithTracer sets the tracer used for spans
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithAttemptCounter sets the counter incremented once per attempt
func WithAttemptCounter(c metric.Int64Counter) Option {
	return func(s *Service) { s.attempts = c }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new auth service
func NewService(
	dir *directory.Service,
	keys *accesskey.Service,
	engine *authz.Engine,
	limiter *ratelimit.Limiter,
	auditLog *audit.Log,
	roles authz.RoleLookup,
	opts ...Option,
) *Service {
	s := &Service{
		directory: dir,
		keys:      keys,
		engine:    engine,
		limiter:   limiter,
		audit:     auditLog,
		roles:     roles,
		tracer:    otel.Tracer("ssoproxy/auth"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authenticate exchanges an identifier and access key for the stored
// credential. States: rate check, key check, resolve, authorize, success.
// The first failing state ends the attempt.
func (s *Service) Authenticate(ctx context.Context, req Request) (*Credential, error) {
	ctx, span := s.tracer.Start(ctx, "auth.Authenticate")
	defer span.End()

	entry := audit.Entry{
		Origin:     req.Origin,
		Identifier: req.Identifier,
		TenantID:   req.TenantID,
	}

	if err := s.rateCheck(ctx, span, entry); err != nil {
		return nil, err
	}

	key, err := s.keyCheck(ctx, span, &entry, req.TenantID, req.Secret)
	if err != nil {
		return nil, err
	}

	account, err := s.directory.Resolve(ctx, key.TenantID, req.Identifier)
	if err != nil {
		if errs.Is(err, errs.NotFound) {
			return nil, s.deny(ctx, span, entry, audit.DetailAccountNotFound, nil)
		}
		return nil, s.deny(ctx, span, entry, audit.DetailStoreUnavailable, err)
	}
	entry.AccountID = &account.ID

	if err := s.authorizeCheck(ctx, span, entry, key, account.ID); err != nil {
		return nil, err
	}

	plain, err := s.directory.RevealSecret(account)
	if err != nil {
		return nil, s.deny(ctx, span, entry, DetailSecretUnreadable, err)
	}

	if err := s.directory.MarkAccessed(ctx, account.ID, s.now()); err != nil {
		return nil, s.deny(ctx, span, entry, audit.DetailStoreUnavailable, err)
	}

	entry.Success = true
	entry.Details = audit.DetailSuccess
	s.audit.Record(ctx, entry)
	s.count(ctx, "success", audit.DetailSuccess)
	span.SetAttributes(attribute.Bool("auth.success", true))

	slog.InfoContext(ctx, "authentication succeeded",
		logger.Component("auth"),
		logger.Tenant(key.TenantID),
		logger.Subject(key.SubjectID),
		logger.Account(account.Name),
		logger.Origin(req.Origin),
	)

	return &Credential{
		Identity:  account.Name,
		Secret:    plain,
		TenantID:  key.TenantID,
		AccountID: account.ID,
		SubjectID: key.SubjectID,
	}, nil
}

// ListAccessibleAccounts returns the accounts the key holder may use.
// Attempts are audited under audit.ListingIdentifier.
func (s *Service) ListAccessibleAccounts(ctx context.Context, req ListRequest) ([]AccountSummary, error) {
	ctx, span := s.tracer.Start(ctx, "auth.ListAccessibleAccounts")
	defer span.End()

	entry := audit.Entry{
		Origin:     req.Origin,
		Identifier: audit.ListingIdentifier,
		TenantID:   req.TenantID,
	}

	if err := s.rateCheck(ctx, span, entry); err != nil {
		return nil, err
	}

	key, err := s.keyCheck(ctx, span, &entry, req.TenantID, req.Secret)
	if err != nil {
		return nil, err
	}

	roles, err := s.roles.Roles(ctx, key.TenantID, key.SubjectID)
	if err != nil {
		return nil, s.deny(ctx, span, entry, audit.DetailRoleLookupFailed, err)
	}

	accounts, err := s.directory.ListAccounts(ctx, key.TenantID, directory.Filter{})
	if err != nil {
		return nil, s.deny(ctx, span, entry, audit.DetailStoreUnavailable, err)
	}

	accessible, err := s.engine.FilterAccessible(ctx, key.TenantID, key.SubjectID, accounts, roles)
	if err != nil {
		return nil, s.deny(ctx, span, entry, audit.DetailStoreUnavailable, err)
	}

	entry.Success = true
	entry.Details = audit.DetailListed
	s.audit.Record(ctx, entry)
	s.count(ctx, "success", audit.DetailListed)

	out := make([]AccountSummary, 0, len(accessible))
	for _, a := range accessible {
		out = append(out, AccountSummary{
			Name:    a.Name,
			Aliases: a.Aliases,
			Tags:    a.Tags,
		})
	}
	return out, nil
}

func (s *Service) rateCheck(ctx context.Context, span trace.Span, entry audit.Entry) error {
	blocked, err := s.limiter.IsBlocked(ctx, entry.Origin, s.now())
	if err != nil {
		return s.deny(ctx, span, entry, audit.DetailStoreUnavailable, err)
	}
	if !blocked {
		return nil
	}

	entry.Details = audit.DetailRateLimited
	s.audit.Record(ctx, entry)
	s.count(ctx, "rate_limited", audit.DetailRateLimited)
	span.SetStatus(codes.Error, audit.DetailRateLimited)

	slog.WarnContext(ctx, "origin rate limited",
		logger.Component("auth"),
		logger.Origin(entry.Origin),
	)
	return ErrRateLimited
}

// keyCheck resolves the access key and records its subject on entry
func (s *Service) keyCheck(ctx context.Context, span trace.Span, entry *audit.Entry, tenantID *int64, value string) (*accesskey.AccessKey, error) {
	key, err := s.keys.LookupBySecret(ctx, value)
	if err != nil {
		if errs.Is(err, errs.NotFound) {
			return nil, s.deny(ctx, span, *entry, audit.DetailInvalidKey, nil)
		}
		return nil, s.deny(ctx, span, *entry, audit.DetailStoreUnavailable, err)
	}

	// A key only opens accounts of its own tenant
	if tenantID != nil && *tenantID != key.TenantID {
		return nil, s.deny(ctx, span, *entry, audit.DetailInvalidKey, nil)
	}

	entry.SubjectID = &key.SubjectID
	entry.TenantID = &key.TenantID
	span.SetAttributes(
		attribute.Int64("auth.tenant_id", key.TenantID),
		attribute.Int64("auth.subject_id", key.SubjectID),
	)
	return key, nil
}

func (s *Service) authorizeCheck(ctx context.Context, span trace.Span, entry audit.Entry, key *accesskey.AccessKey, accountID int64) error {
	roles, err := s.roles.Roles(ctx, key.TenantID, key.SubjectID)
	if err != nil {
		return s.deny(ctx, span, entry, audit.DetailRoleLookupFailed, err)
	}

	decision, err := s.engine.IsAuthorized(ctx, key.TenantID, key.SubjectID, accountID, roles)
	if err != nil {
		return s.deny(ctx, span, entry, audit.DetailStoreUnavailable, err)
	}
	if decision.Allowed {
		return nil
	}

	detail := audit.DetailNoMatchingGroup
	if decision.Reason == authz.ReasonRevoked {
		detail = audit.DetailRevoked
	}
	return s.deny(ctx, span, entry, detail, nil)
}

// deny records a failed attempt and returns the uniform external error
func (s *Service) deny(ctx context.Context, span trace.Span, entry audit.Entry, detail string, cause error) error {
	entry.Success = false
	entry.Details = detail
	s.audit.Record(ctx, entry)
	s.count(ctx, "denied", detail)
	span.SetStatus(codes.Error, detail)

	attrs := []any{
		logger.Component("auth"),
		logger.Origin(entry.Origin),
		slog.String("identifier", entry.Identifier),
		slog.String("reason", detail),
	}
	if cause != nil {
		attrs = append(attrs, logger.Error(cause))
		span.RecordError(cause)
	}
	if cause != nil && !errors.Is(cause, errs.ErrNotFound) {
		slog.ErrorContext(ctx, "authentication failed", attrs...)
	} else {
		slog.WarnContext(ctx, "authentication failed", attrs...)
	}
	return ErrUnauthorized
}

func (s *Service) count(ctx context.Context, result, detail string) {
	if s.attempts == nil {
		return
	}
	s.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
		attribute.String("detail", detail),
	))
}
