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

// ChoiceResolver gives every field a single type across the dataset. A field observed with more
// than one non-null type is resolved as a struct: each non-null value is wrapped in a
// *core.ChoiceValue carrying the original value and its type tag. Other fields pass through.
type ChoiceResolver struct {
	name     string
	workers  int
	resolved []string
}

// ChoiceOption represents a functional option for configuring ChoiceResolver.
type ChoiceOption func(*ChoiceResolver)

// WithChoiceName sets the transformation context name.
func WithChoiceName(name string) ChoiceOption {
	return func(c *ChoiceResolver) {
		c.name = name
	}
}

// WithChoiceWorkers sets how many splits are profiled and rewritten concurrently.
func WithChoiceWorkers(n int) ChoiceOption {
	return func(c *ChoiceResolver) {
		c.workers = n
	}
}

// NewChoiceResolver creates a ChoiceResolver.
func NewChoiceResolver(opts ...ChoiceOption) *ChoiceResolver {
	c := &ChoiceResolver{}
	for _, opt := range opts {
		opt(c)
	}
	if c.name == "" {
		c.name = "resolvechoice2"
	}
	if c.workers <= 0 {
		c.workers = core.DefaultWorkers()
	}
	return c
}

// Name implements core.Stage.
func (c *ChoiceResolver) Name() string { return c.name }

// Resolved returns the fields wrapped by the last Apply.
func (c *ChoiceResolver) Resolved() []string { return c.resolved }

// Apply implements core.Stage. It never fails except on cancellation.
func (c *ChoiceResolver) Apply(ctx context.Context, in *core.Dataset) (*core.Dataset, error) {
	profile, err := c.profile(ctx, in)
	if err != nil {
		return nil, err
	}
	schema := in.Schema.Apply(profile)

	var choices []string
	for _, f := range schema.Fields {
		if f.Type == core.TypeChoice {
			choices = append(choices, f.Name)
		}
	}
	c.resolved = choices
	if len(choices) == 0 {
		return core.NewDataset(schema, in.Splits...), nil
	}

	splits, err := core.MapSplits(ctx, in.Splits, c.workers, func(ctx context.Context, s core.Split) (core.Split, error) {
		out := make(core.Split, len(s))
		for i, rec := range s {
			wrapped := rec.Clone()
			for _, name := range choices {
				if cv, ok := core.NewChoiceValue(rec[name]); ok {
					wrapped[name] = cv
				} else {
					wrapped[name] = nil
				}
			}
			out[i] = wrapped
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return core.NewDataset(schema, splits...), nil
}

// profile computes per-split type profiles in parallel and merges them.
func (c *ChoiceResolver) profile(ctx context.Context, in *core.Dataset) (core.TypeProfile, error) {
	names := in.Schema.Names()
	merged := core.TypeProfile{}
	var mu sync.Mutex
	err := core.ForEachSplit(ctx, in.Splits, c.workers, func(ctx context.Context, _ int, s core.Split) error {
		p := core.ProfileSplit(names, s)
		mu.Lock()
		merged.Merge(p)
		mu.Unlock()
		return nil
	})
	return merged, err
}
