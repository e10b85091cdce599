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
	"net/url"
	"strings"
	"testing"

	"github.com/aaronlmathis/trendetl/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChoiceResolver_WrapsMixedField(t *testing.T) {
	schema := core.NewSchema(
		core.Field{Name: "category_id", Type: core.TypeLong},
		core.Field{Name: "views", Type: core.TypeLong},
	)
	in := core.NewDataset(schema,
		core.Split{{"category_id": int64(10), "views": int64(1)}},
		core.Split{{"category_id": "music", "views": int64(2)}, {"category_id": nil, "views": int64(3)}},
	)

	r := NewChoiceResolver(WithChoiceWorkers(2))
	out, err := r.Apply(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"category_id"}, r.Resolved())

	field, _ := out.Schema.Field("category_id")
	assert.Equal(t, core.TypeChoice, field.Type)
	assert.Equal(t, []core.FieldType{core.TypeLong, core.TypeString}, field.Choices)

	recs := out.Records()
	first := recs[0]["category_id"].(*core.ChoiceValue)
	assert.Equal(t, core.TypeLong, first.Type)
	assert.Equal(t, int64(10), first.LongValue)
	second := recs[1]["category_id"].(*core.ChoiceValue)
	assert.Equal(t, "music", second.StringValue)
	assert.Nil(t, recs[2]["category_id"])

	// uniform fields are untouched
	assert.Equal(t, int64(2), recs[1]["views"])

	// input is not mutated
	assert.Equal(t, "music", in.Splits[1][0]["category_id"])
}

func TestChoiceResolver_NoChoices(t *testing.T) {
	schema := core.NewSchema(core.Field{Name: "views", Type: core.TypeLong})
	in := core.NewDataset(schema, core.Split{{"views": int64(1)}})

	r := NewChoiceResolver()
	out, err := r.Apply(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, r.Resolved())
	assert.Equal(t, in.Records(), out.Records())
}

func TestNullFieldPruner_DropsAllNullFields(t *testing.T) {
	schema := core.NewSchema(
		core.Field{Name: "video_id", Type: core.TypeString},
		core.Field{Name: "dislikes", Type: core.TypeLong},
		core.Field{Name: "likes", Type: core.TypeLong},
	)
	in := core.NewDataset(schema,
		core.Split{{"video_id": "a", "dislikes": nil, "likes": nil}},
		core.Split{{"video_id": "b", "dislikes": nil, "likes": int64(4)}},
		core.Split{},
	)

	p := NewNullFieldPruner(WithPrunerWorkers(3))
	out, err := p.Apply(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, []string{"dislikes"}, p.Dropped())
	assert.Equal(t, []string{"video_id", "likes"}, out.Schema.Names())
	for _, rec := range out.Records() {
		_, has := rec["dislikes"]
		assert.False(t, has)
	}
	assert.Nil(t, out.Records()[0]["likes"], "partially null fields are kept")
}

func TestNullFieldPruner_EmptyDataset(t *testing.T) {
	schema := core.NewSchema(core.Field{Name: "video_id", Type: core.TypeString})
	p := NewNullFieldPruner()
	out, err := p.Apply(context.Background(), core.NewDataset(schema))
	require.NoError(t, err)
	assert.Empty(t, out.Schema.Fields)
}

func TestNullness_MergeIsAnd(t *testing.T) {
	a := Nullness{"x": true, "y": true}
	b := Nullness{"x": false, "y": true}
	assert.Equal(t, Nullness{"x": false, "y": true}, a.Merge(b))
}

func TestConsolidator_OneSplitPerPartition(t *testing.T) {
	schema := core.NewSchema(core.Field{Name: "video_id", Type: core.TypeString}, core.Field{Name: "region", Type: core.TypeString})
	in := core.NewDataset(schema,
		core.Split{{"video_id": "1", "region": "us"}, {"video_id": "2", "region": "gb"}},
		core.Split{{"video_id": "3", "region": "us"}},
		core.Split{{"video_id": "4", "region": "ca"}},
		core.Split{{"video_id": "5", "region": "us"}},
	)

	c, err := NewConsolidator(1, WithPartitionKeys("region"))
	require.NoError(t, err)
	out, err := c.Apply(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, out.Splits, 3)
	assert.Equal(t, "ca", out.Splits[0][0]["region"])
	assert.Equal(t, "gb", out.Splits[1][0]["region"])
	assert.Len(t, out.Splits[2], 3)
	assert.Equal(t, in.Len(), out.Len())
}

func TestConsolidator_TargetLargerThanPartition(t *testing.T) {
	in := core.NewDataset(core.Schema{},
		core.Split{{"region": "us"}, {"region": "us"}, {"region": "us"}, {"region": "gb"}},
	)
	c, err := NewConsolidator(2, WithPartitionKeys("region"))
	require.NoError(t, err)
	out, err := c.Apply(context.Background(), in)
	require.NoError(t, err)

	// gb has one record, us is cut in two
	require.Len(t, out.Splits, 3)
	assert.Len(t, out.Splits[1], 2)
	assert.Len(t, out.Splits[2], 1)
}

func TestNewConsolidator_InvalidTarget(t *testing.T) {
	_, err := NewConsolidator(0)
	assert.Error(t, err)
}

func TestPartitionValues(t *testing.T) {
	assert.Equal(t, []string{"region=us"}, PartitionValues(core.Record{"region": "us"}, []string{"region"}))
	assert.Equal(t, []string{"region=" + DefaultPartitionName}, PartitionValues(core.Record{}, []string{"region"}))
	assert.Equal(t, []string{"region=us", "year=2024"},
		PartitionValues(core.Record{"region": "us", "year": int64(2024)}, []string{"region", "year"}))
}

func TestPartitionValues_Escaped(t *testing.T) {
	for _, v := range []string{"a/b", "100%", "a b", "k=v"} {
		segs := PartitionValues(core.Record{"region": v}, []string{"region"})
		require.Len(t, segs, 1)
		assert.NotContains(t, segs[0], "/")

		key, raw, ok := strings.Cut(segs[0], "=")
		require.True(t, ok)
		assert.Equal(t, "region", key)
		got, err := url.PathUnescape(raw)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
	assert.Equal(t, []string{"region=a%2Fb"}, PartitionValues(core.Record{"region": "a/b"}, []string{"region"}))
}
