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

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/ssoproxy/internal/accesskey"
)

// KeyRepository implements accesskey.Repository
type KeyRepository struct {
	db *DB
}

// NewKeyRepository creates a new key repository
func NewKeyRepository(db *DB) *KeyRepository {
	return &KeyRepository{db: db}
}

// Create stores a new key
func (r *KeyRepository) Create(ctx context.Context, key *accesskey.AccessKey) error {
	err := r.db.pool.QueryRow(ctx, `
		INSERT INTO access_keys (tenant_id, subject_id, secret_hash, secret_encrypted)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`,
		key.TenantID, key.SubjectID, key.SecretHash, key.SecretEncrypted,
	).Scan(&key.ID, &key.CreatedAt)

	if err != nil {
		return storeError("create key", err)
	}

	return nil
}

// GetBySubject retrieves the subject's key
func (r *KeyRepository) GetBySubject(ctx context.Context, tenantID, subjectID int64) (*accesskey.AccessKey, error) {
	return r.getOne(ctx, `
		SELECT id, tenant_id, subject_id, secret_hash, secret_encrypted, created_at
		FROM access_keys
		WHERE tenant_id = $1 AND subject_id = $2
	`, tenantID, subjectID)
}

// GetByHash retrieves the key holding a secret hash
func (r *KeyRepository) GetByHash(ctx context.Context, secretHash string) (*accesskey.AccessKey, error) {
	return r.getOne(ctx, `
		SELECT id, tenant_id, subject_id, secret_hash, secret_encrypted, created_at
		FROM access_keys
		WHERE secret_hash = $1
	`, secretHash)
}

func (r *KeyRepository) getOne(ctx context.Context, query string, args ...any) (*accesskey.AccessKey, error) {
	var key accesskey.AccessKey
	err := r.db.pool.QueryRow(ctx, query, args...).Scan(
		&key.ID, &key.TenantID, &key.SubjectID, &key.SecretHash, &key.SecretEncrypted, &key.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, accesskey.ErrKeyNotFound
		}
		return nil, storeError("get key", err)
	}
	return &key, nil
}

// UpdateSecret replaces the secret of an existing key
func (r *KeyRepository) UpdateSecret(ctx context.Context, key *accesskey.AccessKey) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE access_keys SET secret_hash = $3, secret_encrypted = $4
		WHERE tenant_id = $1 AND subject_id = $2
	`, key.TenantID, key.SubjectID, key.SecretHash, key.SecretEncrypted)
	if err != nil {
		return storeError("update key", err)
	}
	if result.RowsAffected() == 0 {
		return accesskey.ErrKeyNotFound
	}
	return nil
}

// Delete removes the subject's key
func (r *KeyRepository) Delete(ctx context.Context, tenantID, subjectID int64) error {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM access_keys WHERE tenant_id = $1 AND subject_id = $2
	`, tenantID, subjectID)
	if err != nil {
		return storeError("delete key", err)
	}
	if result.RowsAffected() == 0 {
		return accesskey.ErrKeyNotFound
	}
	return nil
}

// List returns the tenant's keys ordered by subject
func (r *KeyRepository) List(ctx context.Context, tenantID int64) ([]*accesskey.AccessKey, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, tenant_id, subject_id, secret_hash, secret_encrypted, created_at
		FROM access_keys
		WHERE tenant_id = $1
		ORDER BY subject_id
	`, tenantID)
	if err != nil {
		return nil, storeError("list keys", err)
	}
	defer rows.Close()

	var keys []*accesskey.AccessKey
	for rows.Next() {
		var key accesskey.AccessKey
		if err := rows.Scan(&key.ID, &key.TenantID, &key.SubjectID, &key.SecretHash, &key.SecretEncrypted, &key.CreatedAt); err != nil {
			return nil, storeError("scan key", err)
		}
		keys = append(keys, &key)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list keys", err)
	}
	return keys, nil
}
