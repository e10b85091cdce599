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

package core

import "context"

// Package core defines the core types for trendetl.
//
// trendetl is a batch job that reads cataloged, partitioned event records, normalizes their
// schema and writes them back out as partitioned Parquet.
//
// This file contains the record and dataset types and the function adapters.

// Record represents a single data record in the pipeline.
// Each record is a map from field names to values. After the source stage, values are one of
// string, int64, bool, float64, *ChoiceValue or nil.
type Record map[string]interface{}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Split is one physical unit of a Dataset. Sources produce one split per input object and
// the sink writes one file per split and partition value, so the number of splits is the
// output fanout.
type Split []Record

// Dataset is an unordered collection of records sharing one schema, divided into splits.
// Stages never mutate a Dataset they receive; they return a new one.
type Dataset struct {
	Schema Schema
	Splits []Split
}

// NewDataset creates a Dataset from a schema and its splits.
func NewDataset(schema Schema, splits ...Split) *Dataset {
	if splits == nil {
		splits = []Split{}
	}
	return &Dataset{Schema: schema, Splits: splits}
}

// Len returns the number of records across all splits.
func (d *Dataset) Len() int {
	n := 0
	for _, s := range d.Splits {
		n += len(s)
	}
	return n
}

// Records flattens all splits into a single slice, in split order.
func (d *Dataset) Records() []Record {
	out := make([]Record, 0, d.Len())
	for _, s := range d.Splits {
		out = append(out, s...)
	}
	return out
}

// TransformFunc is a function adapter for the Transformer interface.
// Allows ordinary functions to be used as Transformers.
type TransformFunc func(ctx context.Context, record Record) (Record, error)

// Transform implements the Transformer interface for TransformFunc.
func (f TransformFunc) Transform(ctx context.Context, record Record) (Record, error) {
	return f(ctx, record)
}

// FilterFunc is a function adapter for the Filter interface.
// Allows ordinary functions to be used as Filters.
type FilterFunc func(ctx context.Context, record Record) (bool, error)

// ShouldInclude implements the Filter interface for FilterFunc.
func (f FilterFunc) ShouldInclude(ctx context.Context, record Record) (bool, error) {
	return f(ctx, record)
}

// StageFunc is a function adapter for the Stage interface.
type StageFunc struct {
	StageName string
	Fn        func(ctx context.Context, in *Dataset) (*Dataset, error)
}

// Name implements the Stage interface for StageFunc.
func (s StageFunc) Name() string { return s.StageName }

// Apply implements the Stage interface for StageFunc.
func (s StageFunc) Apply(ctx context.Context, in *Dataset) (*Dataset, error) {
	return s.Fn(ctx, in)
}
