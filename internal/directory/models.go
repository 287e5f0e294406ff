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
	"time"

	"github.com/opentrusty/ssoproxy/internal/errs"
)

// Domain errors
var (
	ErrAccountNotFound    = errs.New(errs.NotFound, "account not found")
	ErrAccountExists      = errs.New(errs.Conflict, "account already exists")
	ErrAliasNotFound      = errs.New(errs.NotFound, "alias not found")
	ErrAliasExists        = errs.New(errs.Conflict, "alias already exists")
	ErrTagNotFound        = errs.New(errs.NotFound, "tag not found")
	ErrTagExists          = errs.New(errs.Conflict, "account already has tag")
	ErrGroupNotFound      = errs.New(errs.NotFound, "group not found")
	ErrGroupExists        = errs.New(errs.Conflict, "group already exists")
	ErrMembershipNotFound = errs.New(errs.NotFound, "account is not a member of group")
	ErrMembershipExists   = errs.New(errs.Conflict, "account is already a member of group")
	ErrAnnotationNotFound = errs.New(errs.NotFound, "tag annotation not found")
	ErrInvalidName        = errors.New("name must not be empty")
)

// NeverAccessed is the last access time of an account that has not been used.
// It sorts before every real timestamp, so new pool members are drawn first.
var NeverAccessed = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)

// Account is a stored real credential pair
type Account struct {
	ID              int64
	TenantID        int64
	Name            string // canonical, lowercase
	SecretEncrypted []byte
	LastAccessAt    time.Time
	CreatedAt       time.Time

	// Populated by listing operations only
	Groups  []string
	Tags    []string
	Aliases []string
}

// Alias is an alternate name for exactly one account
type Alias struct {
	ID          int64
	TenantID    int64
	Name        string
	AccountID   int64
	AccountName string
}

// Tag places an account into a named pool
type Tag struct {
	ID           int64
	TenantID     int64
	Name         string
	AccountID    int64
	AnnotationID *int64
}

// TagAnnotation is opaque client configuration shared by every tag of a name
type TagAnnotation struct {
	ID       int64
	TenantID int64
	TagName  string
	Data     []byte
}

// Group binds accounts to one external role
type Group struct {
	ID             int64
	TenantID       int64
	Name           string
	ExternalRoleID int64
	Members        []string
}

// Filter narrows ListAccounts. Empty fields do not filter.
type Filter struct {
	Group string
	Tag   string
}

// AccountRepository defines persistence for accounts
type AccountRepository interface {
	// Create stores a new account, setting ID and CreatedAt
	Create(ctx context.Context, account *Account) error

	// GetByName retrieves an account by canonical name
	GetByName(ctx context.Context, tenantID int64, name string) (*Account, error)

	// GetByID retrieves an account by ID
	GetByID(ctx context.Context, id int64) (*Account, error)

	// GetByAlias retrieves the account an alias points to
	GetByAlias(ctx context.Context, tenantID int64, alias string) (*Account, error)

	// OldestByTag returns the pool member with the oldest last access time,
	// ties broken by lowest ID
	OldestByTag(ctx context.Context, tenantID int64, tag string) (*Account, error)

	// UpdateSecret replaces the sealed secret
	UpdateSecret(ctx context.Context, tenantID int64, name string, secret []byte) error

	// Delete removes an account with its tags, aliases and memberships
	Delete(ctx context.Context, tenantID int64, name string) error

	// List returns materialized accounts matching the filter, ordered by name
	List(ctx context.Context, tenantID int64, filter Filter) ([]*Account, error)

	// MarkAccessed sets the last access time
	MarkAccessed(ctx context.Context, id int64, when time.Time) error
}

// AliasRepository defines persistence for aliases
type AliasRepository interface {
	Create(ctx context.Context, alias *Alias) error
	Delete(ctx context.Context, tenantID int64, name string) (*Alias, error)
	List(ctx context.Context, tenantID int64) ([]*Alias, error)
}

// TagRepository defines persistence for tags and their shared annotation
type TagRepository interface {
	Create(ctx context.Context, tag *Tag) error
	Delete(ctx context.Context, tenantID, accountID int64, name string) error

	// Rename renames every tag of oldName in the tenant in one transaction
	Rename(ctx context.Context, tenantID int64, oldName, newName string) (int64, error)

	// List returns tag name to member account names
	List(ctx context.Context, tenantID int64) (map[string][]string, error)

	// SetAnnotation upserts the annotation and links every tag of that name
	SetAnnotation(ctx context.Context, tenantID int64, tagName string, data []byte) (*TagAnnotation, error)
	GetAnnotation(ctx context.Context, tenantID int64, tagName string) (*TagAnnotation, error)
}

// GroupRepository defines persistence for groups and membership
type GroupRepository interface {
	Create(ctx context.Context, group *Group) error
	GetByName(ctx context.Context, tenantID int64, name string) (*Group, error)
	Rename(ctx context.Context, tenantID int64, name, newName string) error
	Delete(ctx context.Context, tenantID int64, name string) error

	// List returns groups, optionally only those bound to roleID
	List(ctx context.Context, tenantID int64, roleID *int64) ([]*Group, error)

	AddMember(ctx context.Context, groupID, accountID int64) error
	RemoveMember(ctx context.Context, groupID, accountID int64) error

	// ListForAccount returns every group the account belongs to
	ListForAccount(ctx context.Context, accountID int64) ([]*Group, error)
}
