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

package filter

import (
	"context"
	"testing"

	"github.com/aaronlmathis/trendetl/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func include(t *testing.T, p *Predicate, r core.Record) bool {
	t.Helper()
	ok, err := p.Filter().ShouldInclude(context.Background(), r)
	require.NoError(t, err)
	return ok
}

func TestParsePredicate_RegionIn(t *testing.T) {
	p, err := ParsePredicate("region in ('ca','gb','us')")
	require.NoError(t, err)
	assert.Equal(t, []string{"region"}, p.Columns())

	assert.True(t, include(t, p, core.Record{"region": "us"}))
	assert.True(t, include(t, p, core.Record{"region": "ca"}))
	assert.False(t, include(t, p, core.Record{"region": "de"}))
	assert.False(t, include(t, p, core.Record{"region": nil}))
	assert.False(t, include(t, p, core.Record{}))
}

func TestParsePredicate_BooleanCombinations(t *testing.T) {
	p, err := ParsePredicate("region = 'us' AND (views >= 100 OR NOT comments_disabled = true)")
	require.NoError(t, err)
	assert.Equal(t, []string{"comments_disabled", "region", "views"}, p.Columns())

	assert.True(t, include(t, p, core.Record{"region": "us", "views": int64(100), "comments_disabled": true}))
	assert.True(t, include(t, p, core.Record{"region": "us", "views": int64(5), "comments_disabled": false}))
	assert.False(t, include(t, p, core.Record{"region": "us", "views": int64(5), "comments_disabled": true}))
	assert.False(t, include(t, p, core.Record{"region": "gb", "views": int64(500)}))
}

func TestParsePredicate_NotEqualAndNotIn(t *testing.T) {
	p := MustParsePredicate("region <> 'us' and category_id not in (1, 2)")

	assert.True(t, include(t, p, core.Record{"region": "gb", "category_id": int64(10)}))
	assert.False(t, include(t, p, core.Record{"region": "gb", "category_id": int64(2)}))
	assert.False(t, include(t, p, core.Record{"region": "us", "category_id": int64(10)}))
	assert.False(t, include(t, p, core.Record{"region": nil, "category_id": int64(10)}), "null never satisfies a comparison")
}

func TestPredicate_NotWithNulls(t *testing.T) {
	tests := []struct {
		expr   string
		record core.Record
		want   bool
	}{
		{"not region = 'de'", core.Record{"region": nil}, false},
		{"not region = 'de'", core.Record{}, false},
		{"not region = 'de'", core.Record{"region": "us"}, true},
		{"not region = 'de'", core.Record{"region": "de"}, false},
		{"not (region not in ('ca','gb','us'))", core.Record{"region": nil}, false},
		{"not (region not in ('ca','gb','us'))", core.Record{"region": "gb"}, true},
		{"not (region not in ('ca','gb','us'))", core.Record{"region": "de"}, false},
		{"not region in ('ca')", core.Record{"region": nil}, false},
		{"not views < 10", core.Record{"views": nil}, false},
		{"not views < 10", core.Record{"views": int64(10)}, true},
		{"not views >= 10", core.Record{"views": int64(3)}, true},
		{"not region != 'us'", core.Record{"region": "us"}, true},
		{"not region != 'us'", core.Record{"region": nil}, false},
		// false and unknown is false, so its negation holds
		{"not (region = 'us' and views > 1)", core.Record{"region": "gb"}, true},
		// false or unknown is unknown
		{"not (region = 'us' or views > 1)", core.Record{"region": "gb"}, false},
		{"not (region = 'us' or views > 1)", core.Record{"region": "gb", "views": int64(0)}, true},
		{"not not region = 'us'", core.Record{"region": "us"}, true},
		{"not not region = 'us'", core.Record{"region": nil}, false},
	}
	for _, tt := range tests {
		p := MustParsePredicate(tt.expr)
		assert.Equal(t, tt.want, include(t, p, tt.record), "%s on %v", tt.expr, tt.record)
	}
}

func TestParsePredicate_QuotedString(t *testing.T) {
	p := MustParsePredicate("channel_title = 'O''Reilly'")
	assert.True(t, include(t, p, core.Record{"channel_title": "O'Reilly"}))
}

func TestParsePredicate_Empty(t *testing.T) {
	p, err := ParsePredicate("  ")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.True(t, include(t, p, core.Record{"region": "zz"}))
}

func TestParsePredicate_Malformed(t *testing.T) {
	for _, expr := range []string{
		"region in ('ca'",
		"region = ",
		"region ! 'us'",
		"and = 'x'",
		"region = 'us' extra",
		"views > 'ten'",
		"'unterminated",
	} {
		_, err := ParsePredicate(expr)
		assert.ErrorIs(t, err, core.ErrPredicate, expr)
	}
}

func TestPredicate_ValidateUnknownColumn(t *testing.T) {
	schema := core.NewSchema(core.Field{Name: "region", Type: core.TypeString})
	assert.NoError(t, MustParsePredicate("region = 'us'").Validate(schema))

	err := MustParsePredicate("country = 'us'").Validate(schema)
	assert.ErrorIs(t, err, core.ErrPredicate)
	assert.Contains(t, err.Error(), "country")
}

func TestPartitionPruner(t *testing.T) {
	p := MustParsePredicate("region in ('ca','gb','us') and views > 10")

	pp, err := p.PartitionPruner([]string{"region"})
	require.NoError(t, err)
	require.NotNil(t, pp)
	assert.NotContains(t, pp.Rule(), "views")

	ok, err := pp.Match(map[string]string{"region": "us"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = pp.Match(map[string]string{"region": "de"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPartitionPruner_NotDecidable(t *testing.T) {
	p := MustParsePredicate("region = 'us' or views > 10")
	pp, err := p.PartitionPruner([]string{"region"})
	require.NoError(t, err)
	assert.Nil(t, pp)

	ok, err := pp.Match(map[string]string{"region": "de"})
	require.NoError(t, err)
	assert.True(t, ok, "a nil pruner keeps every partition")
}
