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

package logger

import (
	"context"
	"log/slog"
)

// AdminEvent is an operator action on the directory, keys or revocations.
// Credential exchanges are recorded in the audit store, not here.
type AdminEvent struct {
	Actor    string // admin token subject or local CLI user
	Origin   string
	Action   string // e.g. create_account, rotate_key, revoke
	Tenant   int64
	Resource string
	Result   string // success, failure
	Reason   string
	Metadata map[string]any
}

// AdminAuditLogger writes admin events to the structured log
type AdminAuditLogger struct {
	logger *slog.Logger
}

// NewAdminAuditLogger creates a new admin audit logger
func NewAdminAuditLogger(logger *slog.Logger) *AdminAuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminAuditLogger{
		logger: logger.With(Component("admin_audit")),
	}
}

// Log logs an admin event. Metadata keys that name secrets are redacted.
func (a *AdminAuditLogger) Log(ctx context.Context, event AdminEvent) {
	attrs := []slog.Attr{
		slog.String("action", event.Action),
		slog.String("result", event.Result),
		Tenant(event.Tenant),
	}

	if event.Actor != "" {
		attrs = append(attrs, slog.String("actor", event.Actor))
	}
	if event.Origin != "" {
		attrs = append(attrs, Origin(event.Origin))
	}
	if event.Resource != "" {
		attrs = append(attrs, slog.String("resource", event.Resource))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}
	if len(event.Metadata) > 0 {
		clean := make(map[string]any, len(event.Metadata))
		for k, v := range event.Metadata {
			if isSecret(k) {
				v = redacted
			}
			clean[k] = v
		}
		attrs = append(attrs, slog.Any("metadata", clean))
	}

	level := slog.LevelInfo
	if event.Result != "success" {
		level = slog.LevelWarn
	}
	a.logger.LogAttrs(ctx, level, "admin_event", attrs...)
}

// Succeeded logs a successful admin action
func (a *AdminAuditLogger) Succeeded(ctx context.Context, actor, origin, action string, tenant int64, resource string) {
	a.Log(ctx, AdminEvent{
		Actor:    actor,
		Origin:   origin,
		Action:   action,
		Tenant:   tenant,
		Resource: resource,
		Result:   "success",
	})
}

// Failed logs a rejected admin action
func (a *AdminAuditLogger) Failed(ctx context.Context, actor, origin, action string, tenant int64, resource string, err error) {
	a.Log(ctx, AdminEvent{
		Actor:    actor,
		Origin:   origin,
		Action:   action,
		Tenant:   tenant,
		Resource: resource,
		Result:   "failure",
		Reason:   err.Error(),
	})
}
