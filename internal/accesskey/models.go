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
	"time"

	"github.com/opentrusty/ssoproxy/internal/errs"
)

// Domain errors
var (
	ErrKeyNotFound       = errs.New(errs.NotFound, "access key not found")
	ErrKeyExists         = errs.New(errs.Conflict, "access key already exists for subject")
	ErrSecretCollision   = errs.New(errs.Conflict, "access key secret already in use")
	ErrKeyspaceExhausted = errs.New(errs.Exhausted, "failed to generate a unique access key")
)

// MaxGenerateAttempts bounds secret generation on collision
const MaxGenerateAttempts = 10

// AccessKey is the long-lived secret that identifies a subject
type AccessKey struct {
	ID              int64
	TenantID        int64
	SubjectID       int64
	Secret          string // plaintext, only set when known to the caller
	SecretHash      string
	SecretEncrypted []byte
	CreatedAt       time.Time
}

// Repository defines persistence for access keys
type Repository interface {
	// Create stores a new key. Returns ErrKeyExists when the subject already
	// has a key and ErrSecretCollision when the secret hash is taken.
	Create(ctx context.Context, key *AccessKey) error

	GetBySubject(ctx context.Context, tenantID, subjectID int64) (*AccessKey, error)

	// GetByHash is the single indexed lookup used on every authentication
	GetByHash(ctx context.Context, secretHash string) (*AccessKey, error)

	// UpdateSecret replaces the secret of an existing key
	UpdateSecret(ctx context.Context, key *AccessKey) error

	Delete(ctx context.Context, tenantID, subjectID int64) error
	List(ctx context.Context, tenantID int64) ([]*AccessKey, error)
}

// Generator produces candidate secrets
type Generator interface {
	Generate() (string, error)
}
