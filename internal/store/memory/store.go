// Package memory provides in-process repositories with the same semantics as
// the PostgreSQL store. Used by tests and by the server when no database is
// configured.
package memory

import (
	"sync"
	"time"

	"github.com/opentrusty/ssoproxy/internal/accesskey"
	"github.com/opentrusty/ssoproxy/internal/audit"
	"github.com/opentrusty/ssoproxy/internal/directory"
	"github.com/opentrusty/ssoproxy/internal/revocation"
)

// Store holds every table behind one lock
type Store struct {
	mu     sync.Mutex
	nextID int64

	accounts    map[int64]*directory.Account
	aliases     map[int64]*directory.Alias
	tags        map[int64]*directory.Tag
	annotations map[int64]*directory.TagAnnotation
	groups      map[int64]*directory.Group
	members     map[int64]map[int64]struct{} // group -> accounts
	keys        map[int64]*accesskey.AccessKey
	revocations map[int64]*revocation.Revocation
	entries     []*audit.Entry

	// returned by the next repository call when set
	failNext error
}

// New creates an empty store
func New() *Store {
	return &Store{
		accounts:    make(map[int64]*directory.Account),
		aliases:     make(map[int64]*directory.Alias),
		tags:        make(map[int64]*directory.Tag),
		annotations: make(map[int64]*directory.TagAnnotation),
		groups:      make(map[int64]*directory.Group),
		members:     make(map[int64]map[int64]struct{}),
		keys:        make(map[int64]*accesskey.AccessKey),
		revocations: make(map[int64]*revocation.Revocation),
	}
}

// FailNext makes the next repository call return err
func (s *Store) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// Accounts returns the account repository
func (s *Store) Accounts() *AccountRepository { return &AccountRepository{s: s} }

// Aliases returns the alias repository
func (s *Store) Aliases() *AliasRepository { return &AliasRepository{s: s} }

// Tags returns the tag repository
func (s *Store) Tags() *TagRepository { return &TagRepository{s: s} }

// Groups returns the group repository
func (s *Store) Groups() *GroupRepository { return &GroupRepository{s: s} }

// Keys returns the access key repository
func (s *Store) Keys() *KeyRepository { return &KeyRepository{s: s} }

// Revocations returns the revocation repository
func (s *Store) Revocations() *RevocationRepository { return &RevocationRepository{s: s} }

// Audit returns the audit repository
func (s *Store) Audit() *AuditRepository { return &AuditRepository{s: s} }

// lock acquires the store and consumes an injected failure
func (s *Store) lock() error {
	s.mu.Lock()
	if err := s.failNext; err != nil {
		s.failNext = nil
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func now() time.Time {
	return time.Now().UTC()
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func ptr[T any](v T) *T {
	return &v
}
