//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of trendetl.
//
// trendetl is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// trendetl is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with trendetl. If not, see https://www.gnu.org/licenses/.

package transform

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/aaronlmathis/trendetl/core"
	"github.com/sirupsen/logrus"
)

// Package transform provides the dataset-wide schema normalization stages for trendetl.
//
// The stages run in order: SchemaMapper renames and casts a closed set of fields, ChoiceResolver
// wraps fields of varying type, NullFieldPruner drops all-null fields and Consolidator reduces
// output fanout. Each stage implements core.Stage.

// MappingRule is one entry of a mapping table: the source field and its declared type, and the
// target field and its type.
type MappingRule struct {
	SourceField string
	SourceType  core.FieldType
	TargetField string
	TargetType  core.FieldType
}

func (r MappingRule) String() string {
	return fmt.Sprintf("(%s, %s) -> (%s, %s)", r.SourceField, r.SourceType, r.TargetField, r.TargetType)
}

// MappingError represents an invalid mapping table. It matches core.ErrMapping.
type MappingError struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

// Error returns the error string for MappingError.
func (e *MappingError) Error() string {
	return fmt.Sprintf("schema mapping %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for MappingError.
func (e *MappingError) Unwrap() error {
	return e.Err
}

// Is reports whether target is core.ErrMapping.
func (e *MappingError) Is(target error) bool {
	return target == core.ErrMapping
}

// ValidateMapping checks that a mapping table is non-empty, names every field, uses only
// string, long and boolean, and maps to each target field once.
func ValidateMapping(rules []MappingRule) error {
	if len(rules) == 0 {
		return &MappingError{Op: "validate", Err: errors.New("mapping table is empty")}
	}
	seen := make(map[string]int, len(rules))
	for i, r := range rules {
		if r.SourceField == "" || r.TargetField == "" {
			return &MappingError{Op: "validate", Err: fmt.Errorf("entry %d: field name is empty", i)}
		}
		if !r.SourceType.Mappable() {
			return &MappingError{Op: "validate", Err: fmt.Errorf("entry %d: unsupported source type %q", i, r.SourceType)}
		}
		if !r.TargetType.Mappable() {
			return &MappingError{Op: "validate", Err: fmt.Errorf("entry %d: unsupported target type %q", i, r.TargetType)}
		}
		if prev, dup := seen[r.TargetField]; dup {
			return &MappingError{Op: "validate", Err: fmt.Errorf("entries %d and %d both map to %q", prev, i, r.TargetField)}
		}
		seen[r.TargetField] = i
	}
	return nil
}

// ParseMappingTable builds rules from 4-element entries
// (source_field, source_type, target_field, target_type).
func ParseMappingTable(table [][]string) ([]MappingRule, error) {
	rules := make([]MappingRule, 0, len(table))
	for i, entry := range table {
		if len(entry) != 4 {
			return nil, &MappingError{Op: "parse", Err: fmt.Errorf("entry %d: expected 4 elements, got %d", i, len(entry))}
		}
		st, err := core.ParseFieldType(entry[1])
		if err != nil {
			return nil, &MappingError{Op: "parse", Err: fmt.Errorf("entry %d: %w", i, err)}
		}
		tt, err := core.ParseFieldType(entry[3])
		if err != nil {
			return nil, &MappingError{Op: "parse", Err: fmt.Errorf("entry %d: %w", i, err)}
		}
		rules = append(rules, MappingRule{SourceField: entry[0], SourceType: st, TargetField: entry[2], TargetType: tt})
	}
	if err := ValidateMapping(rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// TargetSchema returns the schema a mapping table produces, in table order.
func TargetSchema(rules []MappingRule) core.Schema {
	fields := make([]core.Field, len(rules))
	for i, r := range rules {
		fields[i] = core.Field{Name: r.TargetField, Type: r.TargetType}
	}
	return core.NewSchema(fields...)
}

// MapperStats holds statistics about a SchemaMapper.
type MapperStats struct {
	RecordsMapped int64
	// Losses counts nulled values per target field.
	Losses map[string]int64
}

// TotalLosses returns the number of nulled values across all fields.
func (s MapperStats) TotalLosses() int64 {
	var n int64
	for _, c := range s.Losses {
		n += c
	}
	return n
}

// SchemaMapper applies a mapping table to every record. Unlisted fields are dropped, missing
// fields become null, and values that cannot be coerced become null and are reported as
// core.CoercionLoss.
type SchemaMapper struct {
	rules  []MappingRule
	target core.Schema

	name        string
	workers     int
	logger      logrus.FieldLogger
	lossHandler core.LossHandler

	mapped int64
	mu     sync.Mutex
	losses map[string]int64
}

// MapperOption represents a functional option for configuring SchemaMapper.
type MapperOption func(*SchemaMapper)

// WithMapperName sets the transformation context name.
func WithMapperName(name string) MapperOption {
	return func(m *SchemaMapper) {
		m.name = name
	}
}

// WithMapperWorkers sets how many splits are mapped concurrently.
func WithMapperWorkers(n int) MapperOption {
	return func(m *SchemaMapper) {
		m.workers = n
	}
}

// WithMapperLogger sets the logger used for coercion losses.
func WithMapperLogger(logger logrus.FieldLogger) MapperOption {
	return func(m *SchemaMapper) {
		m.logger = logger
	}
}

// WithLossHandler registers a handler that receives every coercion loss.
func WithLossHandler(h core.LossHandler) MapperOption {
	return func(m *SchemaMapper) {
		m.lossHandler = h
	}
}

// NewSchemaMapper validates rules and returns a mapper for them.
func NewSchemaMapper(rules []MappingRule, opts ...MapperOption) (*SchemaMapper, error) {
	if err := ValidateMapping(rules); err != nil {
		return nil, err
	}
	m := &SchemaMapper{
		rules:  append([]MappingRule(nil), rules...),
		target: TargetSchema(rules),
		losses: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.withDefaults()
	return m, nil
}

func (m *SchemaMapper) withDefaults() {
	if m.name == "" {
		m.name = "applymapping1"
	}
	if m.workers <= 0 {
		m.workers = core.DefaultWorkers()
	}
	if m.logger == nil {
		m.logger = logrus.StandardLogger()
	}
}

// Name implements core.Stage.
func (m *SchemaMapper) Name() string { return m.name }

// Schema returns the target schema.
func (m *SchemaMapper) Schema() core.Schema { return m.target }

// Apply implements core.Stage. The output schema is exactly the target schema.
func (m *SchemaMapper) Apply(ctx context.Context, in *core.Dataset) (*core.Dataset, error) {
	splits, err := core.MapSplits(ctx, in.Splits, m.workers, func(ctx context.Context, s core.Split) (core.Split, error) {
		out := make(core.Split, len(s))
		for i, rec := range s {
			mapped, err := m.Transform(ctx, rec)
			if err != nil {
				return nil, err
			}
			out[i] = mapped
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return core.NewDataset(m.target, splits...), nil
}

// Transform implements core.Transformer for a single record. It never fails on bad values.
func (m *SchemaMapper) Transform(ctx context.Context, record core.Record) (core.Record, error) {
	out := make(core.Record, len(m.rules))
	for _, r := range m.rules {
		v := record[r.SourceField]
		coerced, err := coerce(v, r.SourceType, r.TargetType)
		if err != nil {
			out[r.TargetField] = nil
			m.reportLoss(ctx, core.CoercionLoss{
				SourceField: r.SourceField,
				TargetField: r.TargetField,
				SourceType:  r.SourceType,
				TargetType:  r.TargetType,
				Value:       v,
				Reason:      err.Error(),
			})
			continue
		}
		out[r.TargetField] = coerced
	}
	atomic.AddInt64(&m.mapped, 1)
	return out, nil
}

func (m *SchemaMapper) reportLoss(ctx context.Context, loss core.CoercionLoss) {
	m.mu.Lock()
	m.losses[loss.TargetField]++
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"stage":  m.name,
		"field":  loss.TargetField,
		"value":  loss.Value,
		"reason": loss.Reason,
	}).Debug("coercion loss: value nulled")

	if m.lossHandler != nil {
		m.lossHandler.HandleLoss(ctx, loss)
	}
}

// Stats returns a snapshot of the mapper statistics.
func (m *SchemaMapper) Stats() MapperStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	losses := make(map[string]int64, len(m.losses))
	for k, v := range m.losses {
		losses[k] = v
	}
	return MapperStats{RecordsMapped: atomic.LoadInt64(&m.mapped), Losses: losses}
}
