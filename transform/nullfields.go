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
	"sync"

	"github.com/aaronlmathis/trendetl/core"
)

// Nullness maps each field to whether every value seen so far is null. Partial results from
// different splits are combined with Merge, a per-field logical AND.
type Nullness map[string]bool

// SplitNullness computes the nullness of the named fields over one split. A missing field
// counts as null.
func SplitNullness(names []string, split core.Split) Nullness {
	n := make(Nullness, len(names))
	for _, name := range names {
		n[name] = true
	}
	for _, rec := range split {
		for _, name := range names {
			if n[name] && rec[name] != nil {
				n[name] = false
			}
		}
	}
	return n
}

// Merge folds other into n. A field is all-null only if it is all-null in both.
func (n Nullness) Merge(other Nullness) Nullness {
	for name, allNull := range other {
		prev, ok := n[name]
		if !ok {
			n[name] = allNull
			continue
		}
		n[name] = prev && allNull
	}
	return n
}

// NullFieldPruner drops every field that is null in all records of the dataset. The decision is
// made after a full pass over every split.
type NullFieldPruner struct {
	name    string
	workers int
	dropped []string
}

// PrunerOption represents a functional option for configuring NullFieldPruner.
type PrunerOption func(*NullFieldPruner)

// WithPrunerName sets the transformation context name.
func WithPrunerName(name string) PrunerOption {
	return func(p *NullFieldPruner) {
		p.name = name
	}
}

// WithPrunerWorkers sets how many splits are scanned concurrently.
func WithPrunerWorkers(n int) PrunerOption {
	return func(p *NullFieldPruner) {
		p.workers = n
	}
}

// NewNullFieldPruner creates a NullFieldPruner.
func NewNullFieldPruner(opts ...PrunerOption) *NullFieldPruner {
	p := &NullFieldPruner{}
	for _, opt := range opts {
		opt(p)
	}
	if p.name == "" {
		p.name = "dropnullfields3"
	}
	if p.workers <= 0 {
		p.workers = core.DefaultWorkers()
	}
	return p
}

// Name implements core.Stage.
func (p *NullFieldPruner) Name() string { return p.name }

// Dropped returns the fields removed by the last Apply, in schema order.
func (p *NullFieldPruner) Dropped() []string { return p.dropped }

// Apply implements core.Stage. An empty dataset has no non-null values, so every field is dropped.
func (p *NullFieldPruner) Apply(ctx context.Context, in *core.Dataset) (*core.Dataset, error) {
	names := in.Schema.Names()
	total := make(Nullness, len(names))
	for _, name := range names {
		total[name] = true
	}
	var mu sync.Mutex
	err := core.ForEachSplit(ctx, in.Splits, p.workers, func(ctx context.Context, _ int, s core.Split) error {
		partial := SplitNullness(names, s)
		mu.Lock()
		total.Merge(partial)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	var dropped []string
	for _, name := range names {
		if total[name] {
			dropped = append(dropped, name)
		}
	}
	p.dropped = dropped
	if len(dropped) == 0 {
		return core.NewDataset(in.Schema, in.Splits...), nil
	}

	drop := make(map[string]bool, len(dropped))
	for _, name := range dropped {
		drop[name] = true
	}
	splits, err := core.MapSplits(ctx, in.Splits, p.workers, func(ctx context.Context, s core.Split) (core.Split, error) {
		out := make(core.Split, len(s))
		for i, rec := range s {
			kept := make(core.Record, len(rec))
			for k, v := range rec {
				if !drop[k] {
					kept[k] = v
				}
			}
			out[i] = kept
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return core.NewDataset(in.Schema.Without(dropped...), splits...), nil
}
