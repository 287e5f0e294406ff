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

package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/opentrusty/ssoproxy/internal/directory"
)

// Engine decides whether a subject may use an account.
//
// Order of evaluation:
//  1. An active revocation denies, regardless of anything else.
//  2. Access is granted when some group containing the account is bound to
//     a role the subject holds.
//  3. Otherwise access is denied. An account in no group is never accessible.
type Engine struct {
	groups      MembershipSource
	revocations RevocationChecker
	now         func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the time revocations are evaluated at
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a new authorization engine
func NewEngine(groups MembershipSource, revocations RevocationChecker, opts ...Option) *Engine {
	e := &Engine{
		groups:      groups,
		revocations: revocations,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsAuthorized evaluates access of subjectID to accountID
func (e *Engine) IsAuthorized(ctx context.Context, tenantID, subjectID, accountID int64, roles RoleSet) (Decision, error) {
	revoked, err := e.revocations.IsRevoked(ctx, tenantID, subjectID, e.now())
	if err != nil {
		return Decision{}, fmt.Errorf("failed to check revocation: %w", err)
	}
	if revoked {
		return Decision{Reason: ReasonRevoked}, nil
	}

	groups, err := e.groups.GroupsForAccount(ctx, accountID)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to get account groups: %w", err)
	}

	for _, g := range groups {
		if g.TenantID != tenantID {
			continue
		}
		if roles.Has(g.ExternalRoleID) {
			return Decision{Allowed: true, Reason: ReasonAllowed, Group: g.Name}, nil
		}
	}

	return Decision{Reason: ReasonNoMatchingGroup}, nil
}

// FilterAccessible returns the accounts subjectID may use, applying the same
// rules as IsAuthorized with one revocation check and one group query
func (e *Engine) FilterAccessible(ctx context.Context, tenantID, subjectID int64, accounts []*directory.Account, roles RoleSet) ([]*directory.Account, error) {
	revoked, err := e.revocations.IsRevoked(ctx, tenantID, subjectID, e.now())
	if err != nil {
		return nil, fmt.Errorf("failed to check revocation: %w", err)
	}
	if revoked || len(roles) == 0 {
		return []*directory.Account{}, nil
	}

	groups, err := e.groups.ListGroups(ctx, tenantID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}

	granted := make(map[string]struct{})
	for _, g := range groups {
		if roles.Has(g.ExternalRoleID) {
			granted[g.Name] = struct{}{}
		}
	}

	accessible := make([]*directory.Account, 0, len(accounts))
	for _, a := range accounts {
		if a.TenantID != tenantID {
			continue
		}
		for _, name := range a.Groups {
			if _, ok := granted[name]; ok {
				accessible = append(accessible, a)
				break
			}
		}
	}
	return accessible, nil
}
