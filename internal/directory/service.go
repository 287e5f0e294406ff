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

package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opentrusty/ssoproxy/internal/observability/logger"
	"github.com/opentrusty/ssoproxy/internal/secret"
)

// Service manages accounts, aliases, tags and groups of each tenant
type Service struct {
	accounts AccountRepository
	aliases  AliasRepository
	tags     TagRepository
	groups   GroupRepository
	cipher   *secret.Cipher
}

// NewService creates a new directory service
func NewService(
	accounts AccountRepository,
	aliases AliasRepository,
	tags TagRepository,
	groups GroupRepository,
	cipher *secret.Cipher,
) *Service {
	return &Service{
		accounts: accounts,
		aliases:  aliases,
		tags:     tags,
		groups:   groups,
		cipher:   cipher,
	}
}

// normalize lowercases and trims names; every name in the directory is
// case-insensitive
func normalize(name string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return "", ErrInvalidName
	}
	return n, nil
}

// Resolve maps an identifier to exactly one account: canonical name first,
// then alias, then the least recently used member of the tag pool.
func (s *Service) Resolve(ctx context.Context, tenantID int64, identifier string) (*Account, error) {
	name, err := normalize(identifier)
	if err != nil {
		return nil, ErrAccountNotFound
	}

	account, err := s.accounts.GetByName(ctx, tenantID, name)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	account, err = s.accounts.GetByAlias(ctx, tenantID, name)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	return s.accounts.OldestByTag(ctx, tenantID, name)
}

// GetAccount retrieves an account by its canonical name only
func (s *Service) GetAccount(ctx context.Context, tenantID int64, name string) (*Account, error) {
	n, err := normalize(name)
	if err != nil {
		return nil, err
	}
	return s.accounts.GetByName(ctx, tenantID, n)
}

// CreateAccount stores a new account with its secret sealed
func (s *Service) CreateAccount(ctx context.Context, tenantID int64, name, plainSecret string) (*Account, error) {
	n, err := normalize(name)
	if err != nil {
		return nil, err
	}

	// The new name would shadow an existing alias
	if _, err := s.accounts.GetByAlias(ctx, tenantID, n); err == nil {
		return nil, ErrAccountExists
	} else if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	sealed, err := s.cipher.Seal(plainSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to seal secret: %w", err)
	}

	account := &Account{
		TenantID:        tenantID,
		Name:            n,
		SecretEncrypted: sealed,
		LastAccessAt:    NeverAccessed,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "account created",
		logger.Component("directory"),
		logger.Tenant(tenantID),
		logger.Account(n),
	)
	return account, nil
}

// UpdateSecret replaces an account's stored secret
func (s *Service) UpdateSecret(ctx context.Context, tenantID int64, name, plainSecret string) error {
	n, err := normalize(name)
	if err != nil {
		return err
	}

	sealed, err := s.cipher.Seal(plainSecret)
	if err != nil {
		return fmt.Errorf("failed to seal secret: %w", err)
	}

	return s.accounts.UpdateSecret(ctx, tenantID, n, sealed)
}

// DeleteAccount removes an account together with its tags and aliases
func (s *Service) DeleteAccount(ctx context.Context, tenantID int64, name string) error {
	n, err := normalize(name)
	if err != nil {
		return err
	}
	if err := s.accounts.Delete(ctx, tenantID, n); err != nil {
		return err
	}

	slog.InfoContext(ctx, "account deleted",
		logger.Component("directory"),
		logger.Tenant(tenantID),
		logger.Account(n),
	)
	return nil
}

// RevealSecret opens the sealed secret of an account
func (s *Service) RevealSecret(account *Account) (string, error) {
	return s.cipher.Open(account.SecretEncrypted)
}

// ListAccounts returns accounts with their groups, tags and aliases
func (s *Service) ListAccounts(ctx context.Context, tenantID int64, filter Filter) ([]*Account, error) {
	filter.Group = strings.ToLower(strings.TrimSpace(filter.Group))
	filter.Tag = strings.ToLower(strings.TrimSpace(filter.Tag))
	return s.accounts.List(ctx, tenantID, filter)
}

// MarkAccessed records a successful use of the account
func (s *Service) MarkAccessed(ctx context.Context, accountID int64, when time.Time) error {
	return s.accounts.MarkAccessed(ctx, accountID, when.UTC())
}

// CreateAlias adds an alternate name for an account
func (s *Service) CreateAlias(ctx context.Context, tenantID int64, accountName, alias string) (*Alias, error) {
	account, err := s.GetAccount(ctx, tenantID, accountName)
	if err != nil {
		return nil, err
	}
	a, err := normalize(alias)
	if err != nil {
		return nil, err
	}

	// An alias shadowed by an account name could never resolve
	if _, err := s.accounts.GetByName(ctx, tenantID, a); err == nil {
		return nil, ErrAliasExists
	} else if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	record := &Alias{
		TenantID:    tenantID,
		Name:        a,
		AccountID:   account.ID,
		AccountName: account.Name,
	}
	if err := s.aliases.Create(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// DeleteAlias removes an alias and returns the account it pointed to
func (s *Service) DeleteAlias(ctx context.Context, tenantID int64, alias string) (string, error) {
	a, err := normalize(alias)
	if err != nil {
		return "", err
	}
	removed, err := s.aliases.Delete(ctx, tenantID, a)
	if err != nil {
		return "", err
	}
	return removed.AccountName, nil
}

// ListAliases returns every alias in the tenant
func (s *Service) ListAliases(ctx context.Context, tenantID int64) ([]*Alias, error) {
	return s.aliases.List(ctx, tenantID)
}

// CreateTag adds an account to a tag pool
func (s *Service) CreateTag(ctx context.Context, tenantID int64, accountName, tag string) (*Tag, error) {
	account, err := s.GetAccount(ctx, tenantID, accountName)
	if err != nil {
		return nil, err
	}
	t, err := normalize(tag)
	if err != nil {
		return nil, err
	}

	record := &Tag{
		TenantID:  tenantID,
		Name:      t,
		AccountID: account.ID,
	}
	if err := s.tags.Create(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// RemoveTag takes an account out of a tag pool
func (s *Service) RemoveTag(ctx context.Context, tenantID int64, accountName, tag string) error {
	account, err := s.GetAccount(ctx, tenantID, accountName)
	if err != nil {
		return err
	}
	t, err := normalize(tag)
	if err != nil {
		return err
	}
	return s.tags.Delete(ctx, tenantID, account.ID, t)
}

// RenameTag renames every tag sharing oldName, atomically
func (s *Service) RenameTag(ctx context.Context, tenantID int64, oldName, newName string) (int64, error) {
	from, err := normalize(oldName)
	if err != nil {
		return 0, err
	}
	to, err := normalize(newName)
	if err != nil {
		return 0, err
	}
	if from == to {
		return 0, nil
	}

	n, err := s.tags.Rename(ctx, tenantID, from, to)
	if err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "tag renamed",
		logger.Component("directory"),
		logger.Tenant(tenantID),
		slog.String("from", from),
		slog.String("to", to),
		logger.RowsAffected(n),
	)
	return n, nil
}

// ListTags returns tag names with their member accounts
func (s *Service) ListTags(ctx context.Context, tenantID int64) (map[string][]string, error) {
	return s.tags.List(ctx, tenantID)
}

// SetTagAnnotation stores the client configuration blob shared by a tag pool
func (s *Service) SetTagAnnotation(ctx context.Context, tenantID int64, tag string, data []byte) (*TagAnnotation, error) {
	t, err := normalize(tag)
	if err != nil {
		return nil, err
	}
	return s.tags.SetAnnotation(ctx, tenantID, t, data)
}

// GetTagAnnotation returns the blob of a tag pool
func (s *Service) GetTagAnnotation(ctx context.Context, tenantID int64, tag string) (*TagAnnotation, error) {
	t, err := normalize(tag)
	if err != nil {
		return nil, err
	}
	return s.tags.GetAnnotation(ctx, tenantID, t)
}

// CreateGroup binds a new group to an external role
func (s *Service) CreateGroup(ctx context.Context, tenantID int64, name string, externalRoleID int64) (*Group, error) {
	n, err := normalize(name)
	if err != nil {
		return nil, err
	}
	group := &Group{
		TenantID:       tenantID,
		Name:           n,
		ExternalRoleID: externalRoleID,
	}
	if err := s.groups.Create(ctx, group); err != nil {
		return nil, err
	}
	return group, nil
}

// RenameGroup changes a group's name
func (s *Service) RenameGroup(ctx context.Context, tenantID int64, name, newName string) error {
	from, err := normalize(name)
	if err != nil {
		return err
	}
	to, err := normalize(newName)
	if err != nil {
		return err
	}
	return s.groups.Rename(ctx, tenantID, from, to)
}

// DeleteGroup removes a group and its memberships
func (s *Service) DeleteGroup(ctx context.Context, tenantID int64, name string) error {
	n, err := normalize(name)
	if err != nil {
		return err
	}
	return s.groups.Delete(ctx, tenantID, n)
}

// ListGroups returns the tenant's groups, optionally those bound to roleID
func (s *Service) ListGroups(ctx context.Context, tenantID int64, roleID *int64) ([]*Group, error) {
	return s.groups.List(ctx, tenantID, roleID)
}

// GetGroup retrieves a group by name
func (s *Service) GetGroup(ctx context.Context, tenantID int64, name string) (*Group, error) {
	n, err := normalize(name)
	if err != nil {
		return nil, err
	}
	return s.groups.GetByName(ctx, tenantID, n)
}

// AddAccountToGroup adds an account to a group
func (s *Service) AddAccountToGroup(ctx context.Context, tenantID int64, groupName, accountName string) error {
	group, account, err := s.groupAndAccount(ctx, tenantID, groupName, accountName)
	if err != nil {
		return err
	}
	return s.groups.AddMember(ctx, group.ID, account.ID)
}

// RemoveAccountFromGroup removes an account from a group
func (s *Service) RemoveAccountFromGroup(ctx context.Context, tenantID int64, groupName, accountName string) error {
	group, account, err := s.groupAndAccount(ctx, tenantID, groupName, accountName)
	if err != nil {
		return err
	}
	return s.groups.RemoveMember(ctx, group.ID, account.ID)
}

// GroupsForAccount returns the groups an account belongs to
func (s *Service) GroupsForAccount(ctx context.Context, accountID int64) ([]*Group, error) {
	return s.groups.ListForAccount(ctx, accountID)
}

func (s *Service) groupAndAccount(ctx context.Context, tenantID int64, groupName, accountName string) (*Group, *Account, error) {
	group, err := s.GetGroup(ctx, tenantID, groupName)
	if err != nil {
		return nil, nil, err
	}
	account, err := s.GetAccount(ctx, tenantID, accountName)
	if err != nil {
		return nil, nil, err
	}
	return group, account, nil
}
