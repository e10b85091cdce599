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
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/aaronlmathis/trendetl/core"
)

// PartitionValues returns the partition path segments of a record, e.g. ["region=us"].
// Values are path-escaped so a value holding "/" or "%" stays one segment. Null partition values
// use the Hive default partition name.
func PartitionValues(record core.Record, keys []string) []string {
	segs := make([]string, len(keys))
	for i, k := range keys {
		v := record[k]
		if cv, ok := v.(*core.ChoiceValue); ok {
			v = cv.Value()
		}
		if v == nil {
			segs[i] = k + "=" + DefaultPartitionName
			continue
		}
		segs[i] = k + "=" + url.PathEscape(fmt.Sprint(v))
	}
	return segs
}

// DefaultPartitionName is the directory name used for null partition values.
const DefaultPartitionName = "__HIVE_DEFAULT_PARTITION__"

// Consolidator reduces output fanout. Records are grouped by partition value and each group is
// cut into at most target contiguous splits, so the sink writes at most target files per
// partition regardless of how many splits the input had. Record content is unchanged.
type Consolidator struct {
	name          string
	target        int
	partitionKeys []string
}

// ConsolidatorOption represents a functional option for configuring Consolidator.
type ConsolidatorOption func(*Consolidator)

// WithConsolidatorName sets the transformation context name.
func WithConsolidatorName(name string) ConsolidatorOption {
	return func(c *Consolidator) {
		c.name = name
	}
}

// WithPartitionKeys sets the keys output files are partitioned by.
func WithPartitionKeys(keys ...string) ConsolidatorOption {
	return func(c *Consolidator) {
		c.partitionKeys = keys
	}
}

// NewConsolidator creates a Consolidator producing target splits per partition value.
func NewConsolidator(target int, opts ...ConsolidatorOption) (*Consolidator, error) {
	if target < 1 {
		return nil, fmt.Errorf("consolidation target must be at least 1, got %d", target)
	}
	c := &Consolidator{target: target}
	for _, opt := range opts {
		opt(c)
	}
	if c.name == "" {
		c.name = "coalesce"
	}
	return c, nil
}

// Name implements core.Stage.
func (c *Consolidator) Name() string { return c.name }

// Apply implements core.Stage. Output splits are ordered by partition path and each holds
// records of a single partition value.
func (c *Consolidator) Apply(ctx context.Context, in *core.Dataset) (*core.Dataset, error) {
	groups := make(map[string][]core.Record)
	for _, s := range in.Splits {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, rec := range s {
			key := strings.Join(PartitionValues(rec, c.partitionKeys), "/")
			groups[key] = append(groups[key], rec)
		}
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var splits []core.Split
	for _, k := range keys {
		splits = append(splits, chunk(groups[k], c.target)...)
	}
	return core.NewDataset(in.Schema, splits...), nil
}

// chunk cuts records into min(n, len(records)) contiguous splits of near-equal size.
func chunk(records []core.Record, n int) []core.Split {
	if n > len(records) {
		n = len(records)
	}
	out := make([]core.Split, 0, n)
	start := 0
	for i := 0; i < n; i++ {
		size := len(records) / n
		if i < len(records)%n {
			size++
		}
		out = append(out, core.Split(records[start:start+size]))
		start += size
	}
	return out
}
