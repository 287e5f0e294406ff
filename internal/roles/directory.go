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

// Package roles serves the external role snapshot: which external roles each
// subject holds in each tenant. The snapshot is produced by another system and
// read from a YAML file that is reloaded whenever it changes.
package roles

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/opentrusty/ssoproxy/internal/authz"
	"github.com/opentrusty/ssoproxy/internal/observability/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"gopkg.in/yaml.v3"
)

// Snapshot maps tenant to subject to held role IDs
type Snapshot map[int64]map[int64][]int64

type document struct {
	Tenants map[string]tenantDocument `yaml:"tenants"`
}

type tenantDocument struct {
	Subjects map[string][]int64 `yaml:"subjects"`
}

// Parse decodes a snapshot document:
//
//	tenants:
//	  "1":
//	    subjects:
//	      "12345": [42, 43]
func Parse(data []byte) (Snapshot, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse role snapshot: %w", err)
	}

	snapshot := make(Snapshot, len(doc.Tenants))
	for tenantKey, t := range doc.Tenants {
		tenantID, err := strconv.ParseInt(tenantKey, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid tenant id %q: %w", tenantKey, err)
		}
		subjects := make(map[int64][]int64, len(t.Subjects))
		for subjectKey, roleIDs := range t.Subjects {
			subjectID, err := strconv.ParseInt(subjectKey, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid subject id %q in tenant %d: %w", subjectKey, tenantID, err)
			}
			subjects[subjectID] = roleIDs
		}
		snapshot[tenantID] = subjects
	}
	return snapshot, nil
}

// Directory answers role lookups from the current snapshot
type Directory struct {
	mu       sync.RWMutex
	snapshot Snapshot
	path     string
	reloads  metric.Int64Counter
}

// NewStatic creates a directory over a fixed snapshot
func NewStatic(snapshot Snapshot) *Directory {
	if snapshot == nil {
		snapshot = Snapshot{}
	}
	return &Directory{snapshot: snapshot}
}

// Load reads the snapshot file at path
func Load(path string) (*Directory, error) {
	d := &Directory{path: path}
	if err := d.Reload(); err != nil {
		return nil, err
	}
	return d, nil
}

// CountReloads makes Watch count reloads on c by result
func (d *Directory) CountReloads(c metric.Int64Counter) {
	d.reloads = c
}

// Roles returns the subject's roles in the tenant. Unknown subjects hold no
// roles.
func (d *Directory) Roles(ctx context.Context, tenantID, subjectID int64) (authz.RoleSet, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return authz.NewRoleSet(d.snapshot[tenantID][subjectID]...), nil
}

// Replace swaps in a new snapshot
func (d *Directory) Replace(snapshot Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snapshot = snapshot
}

// Reload re-reads the snapshot file. The previous snapshot stays in place if
// the file cannot be read or parsed.
func (d *Directory) Reload() error {
	if d.path == "" {
		return nil
	}
	data, err := os.ReadFile(d.path)
	if err != nil {
		return fmt.Errorf("failed to read role snapshot: %w", err)
	}
	snapshot, err := Parse(data)
	if err != nil {
		return err
	}
	d.Replace(snapshot)
	return nil
}

// Watch reloads the snapshot on every change to its file until ctx is done.
// The parent directory is watched so editors that replace the file by rename
// are picked up.
func (d *Directory) Watch(ctx context.Context) error {
	if d.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(d.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", d.path, err)
	}

	target := filepath.Clean(d.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			err := d.Reload()
			d.countReload(ctx, err)
			if err != nil {
				slog.ErrorContext(ctx, "failed to reload role snapshot",
					logger.Component("roles"),
					logger.Error(err),
				)
				continue
			}
			slog.InfoContext(ctx, "role snapshot reloaded",
				logger.Component("roles"),
				slog.String("path", d.path),
			)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "role snapshot watcher error",
				logger.Component("roles"),
				logger.Error(err),
			)
		}
	}
}

func (d *Directory) countReload(ctx context.Context, err error) {
	if d.reloads == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	d.reloads.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
