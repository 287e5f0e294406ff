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

package revocation

import (
	"context"
	"log/slog"
	"time"

	"github.com/opentrusty/ssoproxy/internal/observability/logger"
)

// Service records and evaluates revocations
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new revocation service
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Revoke always records a new revocation row
func (s *Service) Revoke(ctx context.Context, tenantID, subjectID int64, expiryDays int, reason string) (*Revocation, error) {
	if expiryDays < 0 {
		return nil, ErrInvalidExpiry
	}

	r := &Revocation{
		TenantID:   tenantID,
		SubjectID:  subjectID,
		CreatedAt:  s.now().UTC(),
		ExpiryDays: expiryDays,
		Active:     true,
		Reason:     reason,
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "access revoked",
		logger.Component("revocation"),
		logger.Tenant(tenantID),
		logger.Subject(subjectID),
		slog.Int("expiry_days", expiryDays),
	)
	return r, nil
}

// IsRevoked reports whether any active revocation is in effect at now
func (s *Service) IsRevoked(ctx context.Context, tenantID, subjectID int64, now time.Time) (bool, error) {
	rows, err := s.repo.ListActive(ctx, tenantID, subjectID)
	if err != nil {
		return false, err
	}
	for _, r := range rows {
		if r.InEffect(now) {
			return true, nil
		}
	}
	return false, nil
}

// Clear deactivates every revocation for the subject, keeping history
func (s *Service) Clear(ctx context.Context, tenantID, subjectID int64) (int64, error) {
	n, err := s.repo.Deactivate(ctx, tenantID, subjectID)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrRevocationNotFound
	}

	slog.InfoContext(ctx, "revocations cleared",
		logger.Component("revocation"),
		logger.Tenant(tenantID),
		logger.Subject(subjectID),
		logger.RowsAffected(n),
	)
	return n, nil
}

// List returns revocations for review
func (s *Service) List(ctx context.Context, tenantID int64, subjectID *int64, activeOnly bool) ([]*Revocation, error) {
	return s.repo.List(ctx, tenantID, subjectID, activeOnly)
}
