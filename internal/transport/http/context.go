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

package http

import "context"

type contextKey string

const (
	adminSubjectKey contextKey = "admin_subject"
	originKey       contextKey = "origin"
)

// GetAdminSubject retrieves the authenticated admin token subject from context.
func GetAdminSubject(ctx context.Context) string {
	if val, ok := ctx.Value(adminSubjectKey).(string); ok {
		return val
	}
	return ""
}

// GetOrigin retrieves the client network origin from context.
func GetOrigin(ctx context.Context) string {
	if val, ok := ctx.Value(originKey).(string); ok {
		return val
	}
	return ""
}
