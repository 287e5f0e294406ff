package memory

import (
	"context"
	"sort"
	"time"

	"github.com/opentrusty/ssoproxy/internal/directory"
)

// AccountRepository implements directory.AccountRepository
type AccountRepository struct{ s *Store }

// Create stores a new account
func (r *AccountRepository) Create(ctx context.Context, account *directory.Account) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	if r.s.accountByName(account.TenantID, account.Name) != nil {
		return directory.ErrAccountExists
	}
	account.ID = r.s.id()
	account.CreatedAt = now()
	if account.LastAccessAt.IsZero() {
		account.LastAccessAt = directory.NeverAccessed
	}
	stored := *account
	stored.SecretEncrypted = cloneBytes(account.SecretEncrypted)
	r.s.accounts[account.ID] = &stored
	return nil
}

// GetByName retrieves an account by canonical name
func (r *AccountRepository) GetByName(ctx context.Context, tenantID int64, name string) (*directory.Account, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	a := r.s.accountByName(tenantID, name)
	if a == nil {
		return nil, directory.ErrAccountNotFound
	}
	return r.s.snapshotAccount(a, false), nil
}

// GetByID retrieves an account by ID
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*directory.Account, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	a, ok := r.s.accounts[id]
	if !ok {
		return nil, directory.ErrAccountNotFound
	}
	return r.s.snapshotAccount(a, false), nil
}

// GetByAlias retrieves the account an alias points to
func (r *AccountRepository) GetByAlias(ctx context.Context, tenantID int64, alias string) (*directory.Account, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	for _, al := range r.s.aliases {
		if al.TenantID == tenantID && al.Name == alias {
			if a, ok := r.s.accounts[al.AccountID]; ok {
				return r.s.snapshotAccount(a, false), nil
			}
		}
	}
	return nil, directory.ErrAccountNotFound
}

// OldestByTag returns the least recently used member of the pool
func (r *AccountRepository) OldestByTag(ctx context.Context, tenantID int64, tag string) (*directory.Account, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	var best *directory.Account
	for _, t := range r.s.tags {
		if t.TenantID != tenantID || t.Name != tag {
			continue
		}
		a, ok := r.s.accounts[t.AccountID]
		if !ok {
			continue
		}
		if best == nil ||
			a.LastAccessAt.Before(best.LastAccessAt) ||
			(a.LastAccessAt.Equal(best.LastAccessAt) && a.ID < best.ID) {
			best = a
		}
	}
	if best == nil {
		return nil, directory.ErrAccountNotFound
	}
	return r.s.snapshotAccount(best, false), nil
}

// UpdateSecret replaces the sealed secret
func (r *AccountRepository) UpdateSecret(ctx context.Context, tenantID int64, name string, secret []byte) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	a := r.s.accountByName(tenantID, name)
	if a == nil {
		return directory.ErrAccountNotFound
	}
	a.SecretEncrypted = cloneBytes(secret)
	return nil
}

// Delete removes an account and everything it owns
func (r *AccountRepository) Delete(ctx context.Context, tenantID int64, name string) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	a := r.s.accountByName(tenantID, name)
	if a == nil {
		return directory.ErrAccountNotFound
	}
	for id, al := range r.s.aliases {
		if al.AccountID == a.ID {
			delete(r.s.aliases, id)
		}
	}
	for id, t := range r.s.tags {
		if t.AccountID == a.ID {
			delete(r.s.tags, id)
		}
	}
	for _, m := range r.s.members {
		delete(m, a.ID)
	}
	delete(r.s.accounts, a.ID)
	return nil
}

// List returns materialized accounts ordered by name
func (r *AccountRepository) List(ctx context.Context, tenantID int64, filter directory.Filter) ([]*directory.Account, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	var out []*directory.Account
	for _, a := range r.s.accounts {
		if a.TenantID != tenantID {
			continue
		}
		snap := r.s.snapshotAccount(a, true)
		if filter.Group != "" && !contains(snap.Groups, filter.Group) {
			continue
		}
		if filter.Tag != "" && !contains(snap.Tags, filter.Tag) {
			continue
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// MarkAccessed sets the last access time
func (r *AccountRepository) MarkAccessed(ctx context.Context, id int64, when time.Time) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	a, ok := r.s.accounts[id]
	if !ok {
		return directory.ErrAccountNotFound
	}
	a.LastAccessAt = when
	return nil
}

// AliasRepository implements directory.AliasRepository
type AliasRepository struct{ s *Store }

// Create stores a new alias
func (r *AliasRepository) Create(ctx context.Context, alias *directory.Alias) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	if _, ok := r.s.accounts[alias.AccountID]; !ok {
		return directory.ErrAccountNotFound
	}
	for _, al := range r.s.aliases {
		if al.TenantID == alias.TenantID && al.Name == alias.Name {
			return directory.ErrAliasExists
		}
	}
	alias.ID = r.s.id()
	stored := *alias
	r.s.aliases[alias.ID] = &stored
	return nil
}

// Delete removes an alias and returns it
func (r *AliasRepository) Delete(ctx context.Context, tenantID int64, name string) (*directory.Alias, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	for id, al := range r.s.aliases {
		if al.TenantID == tenantID && al.Name == name {
			delete(r.s.aliases, id)
			out := *al
			if a, ok := r.s.accounts[al.AccountID]; ok {
				out.AccountName = a.Name
			}
			return &out, nil
		}
	}
	return nil, directory.ErrAliasNotFound
}

// List returns the tenant's aliases ordered by name
func (r *AliasRepository) List(ctx context.Context, tenantID int64) ([]*directory.Alias, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	var out []*directory.Alias
	for _, al := range r.s.aliases {
		if al.TenantID != tenantID {
			continue
		}
		c := *al
		if a, ok := r.s.accounts[al.AccountID]; ok {
			c.AccountName = a.Name
		}
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// TagRepository implements directory.TagRepository
type TagRepository struct{ s *Store }

// Create adds an account to a tag pool
func (r *TagRepository) Create(ctx context.Context, tag *directory.Tag) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	if _, ok := r.s.accounts[tag.AccountID]; !ok {
		return directory.ErrAccountNotFound
	}
	for _, t := range r.s.tags {
		if t.TenantID == tag.TenantID && t.Name == tag.Name && t.AccountID == tag.AccountID {
			return directory.ErrTagExists
		}
	}
	if ann := r.s.annotationByName(tag.TenantID, tag.Name); ann != nil {
		tag.AnnotationID = ptr(ann.ID)
	}
	tag.ID = r.s.id()
	stored := *tag
	r.s.tags[tag.ID] = &stored
	return nil
}

// Delete takes an account out of a tag pool
func (r *TagRepository) Delete(ctx context.Context, tenantID, accountID int64, name string) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	for id, t := range r.s.tags {
		if t.TenantID == tenantID && t.AccountID == accountID && t.Name == name {
			delete(r.s.tags, id)
			return nil
		}
	}
	return directory.ErrTagNotFound
}

// Rename renames every tag of oldName
func (r *TagRepository) Rename(ctx context.Context, tenantID int64, oldName, newName string) (int64, error) {
	if err := r.s.lock(); err != nil {
		return 0, err
	}
	defer r.s.mu.Unlock()

	var matched []*directory.Tag
	holders := make(map[int64]struct{})
	for _, t := range r.s.tags {
		if t.TenantID != tenantID {
			continue
		}
		switch t.Name {
		case oldName:
			matched = append(matched, t)
		case newName:
			holders[t.AccountID] = struct{}{}
		}
	}
	if len(matched) == 0 {
		return 0, directory.ErrTagNotFound
	}
	for _, t := range matched {
		if _, ok := holders[t.AccountID]; ok {
			return 0, directory.ErrTagExists
		}
	}

	if ann := r.s.annotationByName(tenantID, oldName); ann != nil {
		if r.s.annotationByName(tenantID, newName) == nil {
			ann.TagName = newName
		}
	}
	var annotationID *int64
	if ann := r.s.annotationByName(tenantID, newName); ann != nil {
		annotationID = ptr(ann.ID)
	}
	for _, t := range matched {
		t.Name = newName
		t.AnnotationID = annotationID
	}
	return int64(len(matched)), nil
}

// List returns tag names with member account names
func (r *TagRepository) List(ctx context.Context, tenantID int64) (map[string][]string, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	out := make(map[string][]string)
	for _, t := range r.s.tags {
		if t.TenantID != tenantID {
			continue
		}
		if a, ok := r.s.accounts[t.AccountID]; ok {
			out[t.Name] = append(out[t.Name], a.Name)
		}
	}
	for name := range out {
		sort.Strings(out[name])
	}
	return out, nil
}

// SetAnnotation upserts the annotation of a tag pool
func (r *TagRepository) SetAnnotation(ctx context.Context, tenantID int64, tagName string, data []byte) (*directory.TagAnnotation, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	found := false
	for _, t := range r.s.tags {
		if t.TenantID == tenantID && t.Name == tagName {
			found = true
			break
		}
	}
	if !found {
		return nil, directory.ErrTagNotFound
	}

	ann := r.s.annotationByName(tenantID, tagName)
	if ann == nil {
		ann = &directory.TagAnnotation{ID: r.s.id(), TenantID: tenantID, TagName: tagName}
		r.s.annotations[ann.ID] = ann
	}
	ann.Data = cloneBytes(data)
	for _, t := range r.s.tags {
		if t.TenantID == tenantID && t.Name == tagName {
			t.AnnotationID = ptr(ann.ID)
		}
	}
	out := *ann
	out.Data = cloneBytes(ann.Data)
	return &out, nil
}

// GetAnnotation returns the annotation of a tag pool
func (r *TagRepository) GetAnnotation(ctx context.Context, tenantID int64, tagName string) (*directory.TagAnnotation, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	ann := r.s.annotationByName(tenantID, tagName)
	if ann == nil {
		return nil, directory.ErrAnnotationNotFound
	}
	out := *ann
	out.Data = cloneBytes(ann.Data)
	return &out, nil
}

// GroupRepository implements directory.GroupRepository
type GroupRepository struct{ s *Store }

// Create stores a new group
func (r *GroupRepository) Create(ctx context.Context, group *directory.Group) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	if r.s.groupByName(group.TenantID, group.Name) != nil {
		return directory.ErrGroupExists
	}
	group.ID = r.s.id()
	stored := *group
	stored.Members = nil
	r.s.groups[group.ID] = &stored
	r.s.members[group.ID] = make(map[int64]struct{})
	return nil
}

// GetByName retrieves a group with its members
func (r *GroupRepository) GetByName(ctx context.Context, tenantID int64, name string) (*directory.Group, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	g := r.s.groupByName(tenantID, name)
	if g == nil {
		return nil, directory.ErrGroupNotFound
	}
	return r.s.snapshotGroup(g), nil
}

// Rename changes a group's name
func (r *GroupRepository) Rename(ctx context.Context, tenantID int64, name, newName string) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	g := r.s.groupByName(tenantID, name)
	if g == nil {
		return directory.ErrGroupNotFound
	}
	if name == newName {
		return nil
	}
	if r.s.groupByName(tenantID, newName) != nil {
		return directory.ErrGroupExists
	}
	g.Name = newName
	return nil
}

// Delete removes a group and its memberships
func (r *GroupRepository) Delete(ctx context.Context, tenantID int64, name string) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	g := r.s.groupByName(tenantID, name)
	if g == nil {
		return directory.ErrGroupNotFound
	}
	delete(r.s.groups, g.ID)
	delete(r.s.members, g.ID)
	return nil
}

// List returns groups ordered by name
func (r *GroupRepository) List(ctx context.Context, tenantID int64, roleID *int64) ([]*directory.Group, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	var out []*directory.Group
	for _, g := range r.s.groups {
		if g.TenantID != tenantID {
			continue
		}
		if roleID != nil && g.ExternalRoleID != *roleID {
			continue
		}
		out = append(out, r.s.snapshotGroup(g))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// AddMember adds an account to a group
func (r *GroupRepository) AddMember(ctx context.Context, groupID, accountID int64) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	m, ok := r.s.members[groupID]
	if !ok {
		return directory.ErrGroupNotFound
	}
	if _, ok := r.s.accounts[accountID]; !ok {
		return directory.ErrAccountNotFound
	}
	if _, ok := m[accountID]; ok {
		return directory.ErrMembershipExists
	}
	m[accountID] = struct{}{}
	return nil
}

// RemoveMember removes an account from a group
func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, accountID int64) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	m, ok := r.s.members[groupID]
	if !ok {
		return directory.ErrGroupNotFound
	}
	if _, ok := m[accountID]; !ok {
		return directory.ErrMembershipNotFound
	}
	delete(m, accountID)
	return nil
}

// ListForAccount returns the groups an account belongs to
func (r *GroupRepository) ListForAccount(ctx context.Context, accountID int64) ([]*directory.Group, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	var out []*directory.Group
	for gid, m := range r.s.members {
		if _, ok := m[accountID]; ok {
			out = append(out, r.s.snapshotGroup(r.s.groups[gid]))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// helpers below assume the lock is held

func (s *Store) accountByName(tenantID int64, name string) *directory.Account {
	for _, a := range s.accounts {
		if a.TenantID == tenantID && a.Name == name {
			return a
		}
	}
	return nil
}

func (s *Store) groupByName(tenantID int64, name string) *directory.Group {
	for _, g := range s.groups {
		if g.TenantID == tenantID && g.Name == name {
			return g
		}
	}
	return nil
}

func (s *Store) annotationByName(tenantID int64, tagName string) *directory.TagAnnotation {
	for _, ann := range s.annotations {
		if ann.TenantID == tenantID && ann.TagName == tagName {
			return ann
		}
	}
	return nil
}

func (s *Store) snapshotAccount(a *directory.Account, relations bool) *directory.Account {
	out := *a
	out.SecretEncrypted = cloneBytes(a.SecretEncrypted)
	out.Groups, out.Tags, out.Aliases = nil, nil, nil
	if !relations {
		return &out
	}

	out.Groups = []string{}
	out.Tags = []string{}
	out.Aliases = []string{}
	for gid, m := range s.members {
		if _, ok := m[a.ID]; ok {
			out.Groups = append(out.Groups, s.groups[gid].Name)
		}
	}
	for _, t := range s.tags {
		if t.AccountID == a.ID {
			out.Tags = append(out.Tags, t.Name)
		}
	}
	for _, al := range s.aliases {
		if al.AccountID == a.ID {
			out.Aliases = append(out.Aliases, al.Name)
		}
	}
	sort.Strings(out.Groups)
	sort.Strings(out.Tags)
	sort.Strings(out.Aliases)
	return &out
}

func (s *Store) snapshotGroup(g *directory.Group) *directory.Group {
	out := *g
	out.Members = []string{}
	for aid := range s.members[g.ID] {
		if a, ok := s.accounts[aid]; ok {
			out.Members = append(out.Members, a.Name)
		}
	}
	sort.Strings(out.Members)
	return &out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
