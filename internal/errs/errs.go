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

// Package errs defines the closed set of error kinds shared by every domain
// package. Domain sentinels wrap one of these so callers can switch on the
// kind without knowing which entity was involved.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error
type Kind int

const (
	Unknown Kind = iota
	NotFound
	Conflict
	RateLimited
	Unauthorized
	Revoked
	Exhausted
	StoreUnavailable
)

var kindNames = map[Kind]string{
	Unknown:          "unknown",
	NotFound:         "not_found",
	Conflict:         "conflict",
	RateLimited:      "rate_limited",
	Unauthorized:     "unauthorized",
	Revoked:          "revoked",
	Exhausted:        "exhausted",
	StoreUnavailable: "store_unavailable",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Kind sentinels
var (
	ErrNotFound         = &kindError{kind: NotFound}
	ErrConflict         = &kindError{kind: Conflict}
	ErrRateLimited      = &kindError{kind: RateLimited}
	ErrUnauthorized     = &kindError{kind: Unauthorized}
	ErrRevoked          = &kindError{kind: Revoked}
	ErrExhausted        = &kindError{kind: Exhausted}
	ErrStoreUnavailable = &kindError{kind: StoreUnavailable}
)

type kindError struct {
	kind Kind
}

func (e *kindError) Error() string {
	return e.kind.String()
}

// New returns a sentinel error with its own message that matches the kind
// sentinel under errors.Is.
func New(kind Kind, message string) error {
	return &domainError{kind: kind, message: message}
}

type domainError struct {
	kind    Kind
	message string
}

func (e *domainError) Error() string {
	return e.message
}

func (e *domainError) Is(target error) bool {
	k, ok := target.(*kindError)
	return ok && k.kind == e.kind
}

// KindOf reports the kind carried by err, or Unknown.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var de *domainError
	if errors.As(err, &de) {
		return de.kind
	}
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Unavailable wraps a backing store failure so it reports StoreUnavailable
// while keeping the cause for logs.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
