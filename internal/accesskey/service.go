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

package accesskey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/opentrusty/ssoproxy/internal/observability/logger"
	"github.com/opentrusty/ssoproxy/internal/secret"
)

// maxCreateRaces bounds how often GetOrCreate re-reads after losing an
// insert race for the same subject
const maxCreateRaces = 3

// Service issues, looks up and rotates access keys
type Service struct {
	repo      Repository
	cipher    *secret.Cipher
	generator Generator
}

// NewService creates a new access key service
func NewService(repo Repository, cipher *secret.Cipher, generator Generator) *Service {
	if generator == nil {
		generator = WordGenerator{}
	}
	return &Service{
		repo:      repo,
		cipher:    cipher,
		generator: generator,
	}
}

// GetOrCreate returns the subject's key, issuing one on first request
func (s *Service) GetOrCreate(ctx context.Context, tenantID, subjectID int64) (*AccessKey, error) {
	for race := 0; race < maxCreateRaces; race++ {
		key, err := s.repo.GetBySubject(ctx, tenantID, subjectID)
		if err == nil {
			return s.reveal(key)
		}
		if !errors.Is(err, ErrKeyNotFound) {
			return nil, err
		}

		key, err = s.create(ctx, tenantID, subjectID)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, ErrKeyExists) {
			return nil, err
		}
		// Another request issued the key first; read theirs
	}
	return nil, fmt.Errorf("failed to issue access key: %w", ErrKeyExists)
}

// LookupBySecret finds the key holding secret
func (s *Service) LookupBySecret(ctx context.Context, value string) (*AccessKey, error) {
	if value == "" {
		return nil, ErrKeyNotFound
	}
	key, err := s.repo.GetByHash(ctx, secret.Hash(value))
	if err != nil {
		return nil, err
	}
	key.Secret = value
	return key, nil
}

// Rotate replaces the subject's secret, invalidating the old one immediately
func (s *Service) Rotate(ctx context.Context, tenantID, subjectID int64) (*AccessKey, error) {
	key, err := s.repo.GetBySubject(ctx, tenantID, subjectID)
	if errors.Is(err, ErrKeyNotFound) {
		return s.GetOrCreate(ctx, tenantID, subjectID)
	}
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < MaxGenerateAttempts; attempt++ {
		if err := s.assign(key); err != nil {
			return nil, err
		}
		err := s.repo.UpdateSecret(ctx, key)
		if err == nil {
			slog.InfoContext(ctx, "access key rotated",
				logger.Component("accesskey"),
				logger.Tenant(tenantID),
				logger.Subject(subjectID),
			)
			return key, nil
		}
		if !errors.Is(err, ErrSecretCollision) {
			return nil, err
		}
	}
	return nil, ErrKeyspaceExhausted
}

// Delete removes the subject's key
func (s *Service) Delete(ctx context.Context, tenantID, subjectID int64) error {
	return s.repo.Delete(ctx, tenantID, subjectID)
}

// List returns the tenant's keys without their plaintext
func (s *Service) List(ctx context.Context, tenantID int64) ([]*AccessKey, error) {
	return s.repo.List(ctx, tenantID)
}

func (s *Service) create(ctx context.Context, tenantID, subjectID int64) (*AccessKey, error) {
	key := &AccessKey{
		TenantID:  tenantID,
		SubjectID: subjectID,
	}

	for attempt := 0; attempt < MaxGenerateAttempts; attempt++ {
		if err := s.assign(key); err != nil {
			return nil, err
		}
		err := s.repo.Create(ctx, key)
		if err == nil {
			slog.InfoContext(ctx, "access key issued",
				logger.Component("accesskey"),
				logger.Tenant(tenantID),
				logger.Subject(subjectID),
			)
			return key, nil
		}
		if !errors.Is(err, ErrSecretCollision) {
			return nil, err
		}
		slog.DebugContext(ctx, "access key collision, regenerating",
			logger.Component("accesskey"),
			slog.Int("attempt", attempt+1),
		)
	}

	slog.ErrorContext(ctx, "access key generation exhausted",
		logger.Component("accesskey"),
		logger.Tenant(tenantID),
		logger.Subject(subjectID),
	)
	return nil, ErrKeyspaceExhausted
}

// assign generates a fresh secret into key
func (s *Service) assign(key *AccessKey) error {
	value, err := s.generator.Generate()
	if err != nil {
		return fmt.Errorf("failed to generate access key: %w", err)
	}
	sealed, err := s.cipher.Seal(value)
	if err != nil {
		return fmt.Errorf("failed to seal access key: %w", err)
	}
	key.Secret = value
	key.SecretHash = secret.Hash(value)
	key.SecretEncrypted = sealed
	return nil
}

func (s *Service) reveal(key *AccessKey) (*AccessKey, error) {
	value, err := s.cipher.Open(key.SecretEncrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to open access key: %w", err)
	}
	key.Secret = value
	return key, nil
}
