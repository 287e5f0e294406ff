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

package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Config holds metrics configuration
type Config struct {
	Enabled bool
}

// Meter wraps OpenTelemetry meter
type Meter struct {
	meter metric.Meter
}

// New creates a new meter instance. When disabled every instrument is a no-op.
func New(ctx context.Context, cfg Config, serviceName string) (*Meter, error) {
	if !cfg.Enabled {
		return &Meter{
			meter: noop.NewMeterProvider().Meter(serviceName),
		}, nil
	}

	// The global provider is installed by the exporter setup, if any
	return &Meter{
		meter: otel.Meter(serviceName),
	}, nil
}

// GetMeter returns the underlying meter
func (m *Meter) GetMeter() metric.Meter {
	return m.meter
}

// CreateCounter creates a new counter metric
func (m *Meter) CreateCounter(name, description string) (metric.Int64Counter, error) {
	counter, err := m.meter.Int64Counter(
		name,
		metric.WithDescription(description),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", name, err)
	}
	return counter, nil
}

// CreateHistogram creates a new histogram metric
func (m *Meter) CreateHistogram(name, description, unit string) (metric.Float64Histogram, error) {
	histogram, err := m.meter.Float64Histogram(
		name,
		metric.WithDescription(description),
		metric.WithUnit(unit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram %s: %w", name, err)
	}
	return histogram, nil
}

// Instruments are the service's own metrics
type Instruments struct {
	// AuthAttempts counts credential exchanges by result and detail
	AuthAttempts metric.Int64Counter
	// AuditWriteFailures counts audit entries the store refused
	AuditWriteFailures metric.Int64Counter
	// RolesReloads counts role file reloads by result
	RolesReloads metric.Int64Counter
	// AuthDuration records credential exchange latency in seconds
	AuthDuration metric.Float64Histogram
}

// NewInstruments registers the service instruments on m
func (m *Meter) NewInstruments() (*Instruments, error) {
	var (
		in  Instruments
		err error
	)
	if in.AuthAttempts, err = m.CreateCounter("ssoproxy.auth.attempts", "Credential exchange attempts"); err != nil {
		return nil, err
	}
	if in.AuditWriteFailures, err = m.CreateCounter("ssoproxy.audit.write_failures", "Audit entries that could not be stored"); err != nil {
		return nil, err
	}
	if in.RolesReloads, err = m.CreateCounter("ssoproxy.roles.reloads", "Role file reloads"); err != nil {
		return nil, err
	}
	if in.AuthDuration, err = m.CreateHistogram("ssoproxy.auth.duration", "Credential exchange duration", "s"); err != nil {
		return nil, err
	}
	return &in, nil
}
