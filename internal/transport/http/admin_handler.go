package http

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opentrusty/ssoproxy/internal/accesskey"
	"github.com/opentrusty/ssoproxy/internal/audit"
	"github.com/opentrusty/ssoproxy/internal/directory"
	"github.com/opentrusty/ssoproxy/internal/revocation"
)

func (h *Handler) mountAdmin(r chi.Router) {
	r.Post("/ratelimit/clear", h.ClearRateLimit)

	r.Route("/tenants/{tenantID}", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Post("/", h.CreateAccount)
			r.Put("/{name}/secret", h.UpdateAccountSecret)
			r.Delete("/{name}", h.DeleteAccount)
		})
		r.Route("/aliases", func(r chi.Router) {
			r.Get("/", h.ListAliases)
			r.Post("/", h.CreateAlias)
			r.Delete("/{alias}", h.DeleteAlias)
		})
		r.Route("/tags", func(r chi.Router) {
			r.Get("/", h.ListTags)
			r.Post("/", h.CreateTag)
			r.Delete("/{tag}/accounts/{name}", h.RemoveTag)
			r.Post("/{tag}/rename", h.RenameTag)
			r.Get("/{tag}/annotation", h.GetTagAnnotation)
			r.Put("/{tag}/annotation", h.SetTagAnnotation)
		})
		r.Route("/groups", func(r chi.Router) {
			r.Get("/", h.ListGroups)
			r.Post("/", h.CreateGroup)
			r.Get("/{group}", h.GetGroup)
			r.Patch("/{group}", h.RenameGroup)
			r.Delete("/{group}", h.DeleteGroup)
			r.Post("/{group}/members", h.AddGroupMember)
			r.Delete("/{group}/members/{name}", h.RemoveGroupMember)
		})
		r.Route("/keys", func(r chi.Router) {
			r.Get("/", h.ListKeys)
			r.Put("/{subjectID}", h.IssueKey)
			r.Post("/{subjectID}/rotate", h.RotateKey)
			r.Delete("/{subjectID}", h.DeleteKey)
		})
		r.Route("/revocations", func(r chi.Router) {
			r.Get("/", h.ListRevocations)
			r.Post("/", h.Revoke)
			r.Delete("/{subjectID}", h.ClearRevocation)
		})
		r.Route("/audit", func(r chi.Router) {
			r.Get("/", h.QueryAudit)
			r.Get("/stats", h.AuditStatistics)
			r.Get("/suspicious", h.SuspiciousOrigins)
		})
	})
}

// admin records the outcome of a mutating admin call and answers it
func (h *Handler) admin(w http.ResponseWriter, r *http.Request, action string, tenantID int64, resource string, err error, status int, body any) {
	ctx := r.Context()
	actor := GetAdminSubject(ctx)
	origin := GetOrigin(ctx)
	if err != nil {
		h.adminAudit.Failed(ctx, actor, origin, action, tenantID, resource, err)
		respondDomainError(w, err)
		return
	}
	h.adminAudit.Succeeded(ctx, actor, origin, action, tenantID, resource)
	if body == nil {
		w.WriteHeader(status)
		return
	}
	respondJSON(w, status, body)
}

func pathTenant(w http.ResponseWriter, r *http.Request) (int64, bool) {
	return pathInt(w, r, "tenantID")
}

func pathInt(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	v, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid "+param)
		return 0, false
	}
	return v, true
}

func queryInt(r *http.Request, key string) (*int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Accounts

type accountView struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	LastAccessAt time.Time `json:"last_access_at"`
	CreatedAt    time.Time `json:"created_at"`
	Groups       []string  `json:"groups"`
	Tags         []string  `json:"tags"`
	Aliases      []string  `json:"aliases"`
}

func toAccountView(a *directory.Account) accountView {
	return accountView{
		ID:           a.ID,
		Name:         a.Name,
		LastAccessAt: a.LastAccessAt,
		CreatedAt:    a.CreatedAt,
		Groups:       nonNil(a.Groups),
		Tags:         nonNil(a.Tags),
		Aliases:      nonNil(a.Aliases),
	}
}

type accountRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	accounts, err := h.directory.ListAccounts(r.Context(), tenantID, directory.Filter{
		Group: q.Get("group"),
		Tag:   q.Get("tag"),
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	views := make([]accountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, toAccountView(a))
	}
	respondJSON(w, http.StatusOK, map[string]any{"accounts": views})
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r)
	if !ok {
		return
	}
	var req accountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	account, err := h.directory.CreateAccount(r.Context(), tenantID, req.Name, req.Password)
	var body any
	if err == nil {
		body = toAccountView(account)
	}
	h.admin(w, r, "create_account", tenantID, req.Name, err, http.StatusCreated, body)
}

func (h *Handler) UpdateAccountSecret(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	var req accountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := h.directory.UpdateSecret(r.Context(), tenantID, name, req.Password)
	h.admin(w, r, "update_account_secret", tenantID, name, err, http.StatusNoContent, nil)
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	err := h.directory.DeleteAccount(r.Context(), tenantID, name)
	h.admin(w, r, "delete_account", tenantID, name, err, http.StatusNoContent, nil)
}

// Aliases

type aliasRequest struct {
	Account string `json:"account"`
	Alias   string `json:"alias"`
}

type aliasView struct {
	Alias   string `json:"alias"`
	Account string `json:"account"`
}

func (h *Handler) ListAliases(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r)
	if !ok {
		return
	}
	aliases, err := h.directory.ListAliases(r.Context(), tenantID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	views := make([]aliasView, 0, len(aliases))
	for _, a := range aliases {
		views = append(views, aliasView{Alias: a.Name, Account: a.AccountName})
	}
	respondJSON(w, http.StatusOK, map[string]any{"aliases": views})
}

func (h *Handler) CreateAlias(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r)
	if !ok {
		return
	}
	var req aliasRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	alias, err := h.directory.CreateAlias(r.Context(), tenantID, req.Account, req.Alias)
	var body any
	if err == nil {
		body = aliasView{Alias: alias.Name, Account: alias.AccountName}
	}
	h.admin(w, r, "create_alias", tenantID, req.Alias, err, http.StatusCreated, body)
}

func (h *Handler) DeleteAlias(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r)
	if !ok {
		return
	}
	alias := chi.URLParam(r, "alias")
	account, err := h.directory.DeleteAlias(r.Context(), tenantID, alias)
	var body any
	if err == nil {
		body = aliasView{Alias: alias, Account: account}
	}
	h.admin(w, r, "delete_alias", tenantID, alias, err, http.StatusOK, body)
}

// Tags

type tagRequest struct {
	Account string `json:"account"`
	Tag     string `json:"tag"`
}

type renameRequest struct {
	NewName string `json:"new_name"`
}

func (h *Handler) ListTags(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r)
	if !ok {
		return
	}
	tags, err := h.directory.ListTags(r.Context(), tenantID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

func (h *Handler) CreateTag(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r)
	if !ok {
		return
	}
	var req tagRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	_, err := h.directory.CreateTag(r.Context(), tenantID, req.Account, req.Tag)
	h.admin(w, r, "create_tag", tenantID, req.Tag, err, http.StatusCreated, req)
}

func (h *Handler) RemoveTag(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r)
	if !ok {
		return
	}
	tag, name := chi.URLParam(r, "tag"), chi.URLParam(r, "name")
	err := h.directory.RemoveTag(r.Context(), tenantID, name, tag)
	h.admin(w, r, "remove_tag", tenantID, tag, err, http.StatusNoContent, nil)
}

func (h *Handler) RenameTag(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r)
	if !ok {
		return
	}
	tag := chi.URLParam(r, "tag")
	var req renameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	n, err := h.directory.RenameTag(r.Context(), tenantID, tag, req.NewName)
	h.admin(w, r, "rename_tag", tenantID, tag, err, http.StatusOK, map[string]int64{"renamed": n})
}

func (h *Handler) GetTagAnnotation(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r)
	if !ok {
		return
	}
	ann, err := h.directory.GetTagAnnotation(r.Context(), tenantID, chi.URLParam(r, "tag"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(ann.Data)
}

// SetTagAnnotation stores the raw request body as the tag's annotation
func (h *Handler) SetTagAnnotation(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r)
	if !ok {
		return
	}
	tag := chi.URLParam(r, "tag")
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	_, err = h.directory.SetTagAnnotation(r.Context(), tenantID, tag, data)
	h.admin(w, r, "set_tag_annotation", tenantID, tag, err, http.StatusNoContent, nil)
}

// Groups

type groupRequest struct {
	Name   string `json:"name"`
	RoleID int64  `json:"role_id"`
}

type memberRequest struct {
	Account string `json:"account"`
}

type groupView struct {
	ID      int64    `json:"id"`
	Name    string   `json:"name"`
	RoleID  int64    `json:"role_id"`
	Members []string `json:"members"`
}

func toGroupView(g *directory.Group) groupView {
	return groupView{ID: g.ID, Name: g.Name, RoleID: g.ExternalRoleID, Members: nonNil(g.Members)}
}

func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r)
	if !ok {
		return
	}
	roleID, err := queryInt(r, "role_id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid role_id")
		return
	}
	groups, err := h.directory.ListGroups(r.Context(), tenantID, roleID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	views := make([]groupView, 0, len(groups))
	for _, g := range groups {
		views = append(views, toGroupView(g))
	}
	respondJSON(w, http.StatusOK, map[string]any{"groups": views})
}

func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r)
	if !ok {
		return
	}
	g, err := h.directory.GetGroup(r.Context(), tenantID, chi.URLParam(r, "group"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toGroupView(g))
}

func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r)
	if !ok {
		return
	}
	var req groupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	g, err := h.directory.CreateGroup(r.Context(), tenantID, req.Name, req.RoleID)
	var body any
	if err == nil {
		body = toGroupView(g)
	}
	h.admin(w, r, "create_group", tenantID, req.Name, err, http.StatusCreated, body)
}

func (h *Handler) RenameGroup(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r)
	if !ok {
		return
	}
	group := chi.URLParam(r, "group")
	var req renameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := h.directory.RenameGroup(r.Context(), tenantID, group, req.NewName)
	h.admin(w, r, "rename_group", tenantID, group, err, http.StatusNoContent, nil)
}

func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r)
	if !ok {
		return
	}
	group := chi.URLParam(r, "group")
	err := h.directory.DeleteGroup(r.Context(), tenantID, group)
	h.admin(w, r, "delete_group", tenantID, group, err, http.StatusNoContent, nil)
}

func (h *Handler) AddGroupMember(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r)
	if !ok {
		return
	}
	group := chi.URLParam(r, "group")
	var req memberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := h.directory.AddAccountToGroup(r.Context(), tenantID, group, req.Account)
	h.admin(w, r, "add_group_member", tenantID, group+"/"+req.Account, err, http.StatusNoContent, nil)
}

func (h *Handler) RemoveGroupMember(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r)
	if !ok {
		return
	}
	group, name := chi.URLParam(r, "group"), chi.URLParam(r, "name")
	err := h.directory.RemoveAccountFromGroup(r.Context(), tenantID, group, name)
	h.admin(w, r, "remove_group_member", tenantID, group+"/"+name, err, http.StatusNoContent, nil)
}

// Access keys

type keyView struct {
	SubjectID int64     `json:"subject_id"`
	Secret    string    `json:"secret,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toKeyView(k *accesskey.AccessKey) keyView {
	return keyView{SubjectID: k.SubjectID, Secret: k.Secret, CreatedAt: k.CreatedAt}
}

func (h *Handler) ListKeys(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r)
	if !ok {
		return
	}
	keys, err := h.keys.List(r.Context(), tenantID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	views := make([]keyView, 0, len(keys))
	for _, k := range keys {
		v := toKeyView(k)
		v.Secret = ""
		views = append(views, v)
	}
	respondJSON(w, http.StatusOK, map[string]any{"keys": views})
}

// IssueKey returns the subject's key, creating it on first use
func (h *Handler) IssueKey(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r)
	if !ok {
		return
	}
	subjectID, ok := pathInt(w, r, "subjectID")
	if !ok {
		return
	}
	key, err := h.keys.GetOrCreate(r.Context(), tenantID, subjectID)
	var body any
	if err == nil {
		body = toKeyView(key)
	}
	h.admin(w, r, "issue_key", tenantID, strconv.FormatInt(subjectID, 10), err, http.StatusOK, body)
}

func (h *Handler) RotateKey(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r)
	if !ok {
		return
	}
	subjectID, ok := pathInt(w, r, "subjectID")
	if !ok {
		return
	}
	key, err := h.keys.Rotate(r.Context(), tenantID, subjectID)
	var body any
	if err == nil {
		body = toKeyView(key)
	}
	h.admin(w, r, "rotate_key", tenantID, strconv.FormatInt(subjectID, 10), err, http.StatusOK, body)
}

func (h *Handler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r)
	if !ok {
		return
	}
	subjectID, ok := pathInt(w, r, "subjectID")
	if !ok {
		return
	}
	err := h.keys.Delete(r.Context(), tenantID, subjectID)
	h.admin(w, r, "delete_key", tenantID, strconv.FormatInt(subjectID, 10), err, http.StatusNoContent, nil)
}

// Revocations

type revokeRequest struct {
	SubjectID  int64  `json:"subject_id"`
	ExpiryDays int    `json:"expiry_days"`
	Reason     string `json:"reason"`
}

type revocationView struct {
	ID         int64     `json:"id"`
	SubjectID  int64     `json:"subject_id"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiryDays int       `json:"expiry_days"`
	Active     bool      `json:"active"`
	Reason     string    `json:"reason"`
}

func toRevocationView(rev *revocation.Revocation) revocationView {
	return revocationView{
		ID:         rev.ID,
		SubjectID:  rev.SubjectID,
		CreatedAt:  rev.CreatedAt,
		ExpiryDays: rev.ExpiryDays,
		Active:     rev.Active,
		Reason:     rev.Reason,
	}
}

func (h *Handler) ListRevocations(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r)
	if !ok {
		return
	}
	subjectID, err := queryInt(r, "subject_id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid subject_id")
		return
	}
	activeOnly := r.URL.Query().Get("active") == "true"
	revs, err := h.revocations.List(r.Context(), tenantID, subjectID, activeOnly)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	views := make([]revocationView, 0, len(revs))
	for _, rev := range revs {
		views = append(views, toRevocationView(rev))
	}
	respondJSON(w, http.StatusOK, map[string]any{"revocations": views})
}

func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r)
	if !ok {
		return
	}
	var req revokeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rev, err := h.revocations.Revoke(r.Context(), tenantID, req.SubjectID, req.ExpiryDays, req.Reason)
	var body any
	if err == nil {
		body = toRevocationView(rev)
	}
	h.admin(w, r, "revoke", tenantID, strconv.FormatInt(req.SubjectID, 10), err, http.StatusCreated, body)
}

func (h *Handler) ClearRevocation(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r)
	if !ok {
		return
	}
	subjectID, ok := pathInt(w, r, "subjectID")
	if !ok {
		return
	}
	n, err := h.revocations.Clear(r.Context(), tenantID, subjectID)
	h.admin(w, r, "clear_revocation", tenantID, strconv.FormatInt(subjectID, 10), err, http.StatusOK, map[string]int64{"cleared": n})
}

// Audit

type entryView struct {
	ID         int64     `json:"id"`
	RequestID  string    `json:"request_id"`
	Timestamp  time.Time `json:"timestamp"`
	Origin     string    `json:"origin"`
	Identifier string    `json:"identifier"`
	Success    bool      `json:"success"`
	SubjectID  *int64    `json:"subject_id,omitempty"`
	AccountID  *int64    `json:"account_id,omitempty"`
	Details    string    `json:"details,omitempty"`
}

// auditFilter builds a tenant-scoped filter from query parameters
func auditFilter(r *http.Request, tenantID int64) (audit.Filter, error) {
	q := r.URL.Query()
	f := audit.Filter{
		TenantID:       &tenantID,
		Identifier:     q.Get("identifier"),
		Origin:         q.Get("origin"),
		IncludeListing: q.Get("include_listing") == "true",
	}
	var err error
	if f.SubjectID, err = queryInt(r, "subject_id"); err != nil {
		return f, err
	}
	if raw := q.Get("success"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return f, err
		}
		f.Success = &b
	}
	if raw := q.Get("since"); raw != "" {
		since, err := parseSince(raw)
		if err != nil {
			return f, err
		}
		f.Since = &since
	}
	if raw := q.Get("limit"); raw != "" {
		if f.Limit, err = strconv.Atoi(raw); err != nil {
			return f, err
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if f.Offset, err = strconv.Atoi(raw); err != nil {
			return f, err
		}
	}
	return f, nil
}

// parseSince accepts an RFC 3339 time or a duration back from now
func parseSince(raw string) (time.Time, error) {
	if d, err := time.ParseDuration(raw); err == nil {
		return time.Now().Add(-d), nil
	}
	return time.Parse(time.RFC3339, raw)
}

func (h *Handler) QueryAudit(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r)
	if !ok {
		return
	}
	filter, err := auditFilter(r, tenantID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid filter: "+err.Error())
		return
	}
	entries, err := h.audit.Query(r.Context(), filter)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, entryView{
			ID:         e.ID,
			RequestID:  e.RequestID,
			Timestamp:  e.Timestamp,
			Origin:     e.Origin,
			Identifier: e.Identifier,
			Success:    e.Success,
			SubjectID:  e.SubjectID,
			AccountID:  e.AccountID,
			Details:    e.Details,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"entries": views})
}

func (h *Handler) AuditStatistics(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r)
	if !ok {
		return
	}
	filter, err := auditFilter(r, tenantID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid filter: "+err.Error())
		return
	}
	stats, err := h.audit.Statistics(r.Context(), filter)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"total":              stats.Total,
		"successful":         stats.Successful,
		"failed":             stats.Failed,
		"unique_identifiers": stats.UniqueIdentifiers,
		"unique_origins":     stats.UniqueOrigins,
		"success_rate":       stats.SuccessRate,
	})
}

func (h *Handler) SuspiciousOrigins(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r)
	if !ok {
		return
	}
	filter, err := auditFilter(r, tenantID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid filter: "+err.Error())
		return
	}
	threshold := audit.DefaultSuspiciousThreshold
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		if threshold, err = strconv.Atoi(raw); err != nil {
			respondError(w, http.StatusBadRequest, "invalid threshold")
			return
		}
	}
	origins, err := h.audit.SuspiciousOrigins(r.Context(), filter, threshold)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	views := make([]map[string]any, 0, len(origins))
	for _, o := range origins {
		views = append(views, map[string]any{"origin": o.Origin, "failures": o.Failures})
	}
	respondJSON(w, http.StatusOK, map[string]any{"origins": views})
}

// Rate limit

type clearRateLimitRequest struct {
	Origin string `json:"origin"`
}

// ClearRateLimit acknowledges an origin's failures so it is no longer blocked
func (h *Handler) ClearRateLimit(w http.ResponseWriter, r *http.Request) {
	var req clearRateLimitRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Origin == "" {
		respondError(w, http.StatusBadRequest, "origin is required")
		return
	}
	n, err := h.limiter.Acknowledge(r.Context(), req.Origin)
	h.admin(w, r, "clear_rate_limit", 0, req.Origin, err, http.StatusOK, map[string]int64{"acknowledged": n})
}
