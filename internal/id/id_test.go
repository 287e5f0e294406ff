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

package id

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Validates that request ids are version 7 UUIDs that sort by creation time.
// Scope: Unit Test
// Expected: Parsable UUIDv7 strings; a later id never sorts before an earlier one.
// Test Case ID: ID-01
func TestNewUUIDv7(t *testing.T) {
	first := NewUUIDv7()
	second := NewUUIDv7()

	uid, err := uuid.Parse(first)
	require.NoError(t, err)
	assert.Equal(t, byte(7), byte(uid.Version()))
	assert.NotEqual(t, first, second)
	assert.LessOrEqual(t, first, second)
}
