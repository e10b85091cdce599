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

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFieldType(t *testing.T) {
	cases := map[string]FieldType{
		"string":  TypeString,
		"VARCHAR": TypeString,
		"bigint":  TypeLong,
		"long":    TypeLong,
		"bool":    TypeBoolean,
		"double":  TypeDouble,
	}
	for in, want := range cases {
		got, err := ParseFieldType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFieldType("timestamp")
	assert.Error(t, err)
}

func TestSchema_Without(t *testing.T) {
	s := NewSchema(
		Field{Name: "video_id", Type: TypeString},
		Field{Name: "views", Type: TypeLong},
		Field{Name: "region", Type: TypeString},
	)

	out := s.Without("views")
	assert.Equal(t, []string{"video_id", "region"}, out.Names())
	assert.Equal(t, []string{"video_id", "views", "region"}, s.Names(), "original schema is unchanged")
	assert.True(t, out.Has("region"))
	assert.False(t, out.Has("views"))
}

func TestInferSchema(t *testing.T) {
	base := NewSchema(
		Field{Name: "category_id", Type: TypeLong},
		Field{Name: "views", Type: TypeLong},
		Field{Name: "thumbnail_link", Type: TypeString},
	)
	splits := []Split{
		{
			{"category_id": int64(10), "views": int64(5), "thumbnail_link": nil},
		},
		{
			{"category_id": "ten", "views": int64(7)},
			{"category_id": nil, "views": nil},
		},
	}

	got := InferSchema(base, splits)

	cat, ok := got.Field("category_id")
	require.True(t, ok)
	assert.Equal(t, TypeChoice, cat.Type)
	assert.Equal(t, []FieldType{TypeLong, TypeString}, cat.Choices)

	views, _ := got.Field("views")
	assert.Equal(t, TypeLong, views.Type)

	thumb, _ := got.Field("thumbnail_link")
	assert.Equal(t, TypeString, thumb.Type, "all-null field keeps its declared type")
}

func TestTypeProfile_MergeIsOrderIndependent(t *testing.T) {
	names := []string{"a"}
	p1 := ProfileSplit(names, Split{{"a": int64(1)}})
	p2 := ProfileSplit(names, Split{{"a": "x"}})

	left := TypeProfile{}.Merge(p1).Merge(p2)
	right := TypeProfile{}.Merge(p2).Merge(p1)
	assert.Equal(t, left["a"].Sorted(), right["a"].Sorted())
}

func TestChoiceValue(t *testing.T) {
	cv, ok := NewChoiceValue(int32(42))
	require.True(t, ok)
	assert.Equal(t, TypeLong, cv.Type)
	assert.Equal(t, int64(42), cv.Value())
	assert.Equal(t, int64(42), cv.Member(TypeLong))
	assert.Nil(t, cv.Member(TypeString))
	assert.Equal(t, "42", cv.String())

	same, ok := NewChoiceValue(cv)
	require.True(t, ok)
	assert.Same(t, cv, same)

	_, ok = NewChoiceValue(nil)
	assert.False(t, ok)
}

func TestMapSplits_PreservesOrder(t *testing.T) {
	splits := []Split{
		{{"n": int64(1)}},
		{{"n": int64(2)}},
		{{"n": int64(3)}},
	}
	out, err := MapSplits(context.Background(), splits, 2, func(ctx context.Context, s Split) (Split, error) {
		return Split{{"n": s[0]["n"].(int64) * 10}}, nil
	})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, int64(10), out[0][0]["n"])
	assert.Equal(t, int64(30), out[2][0]["n"])
}

func TestForEachSplit_StopsOnError(t *testing.T) {
	boom := errors.New("boom")
	var calls int32
	splits := make([]Split, 16)
	err := ForEachSplit(context.Background(), splits, 1, func(ctx context.Context, i int, s Split) error {
		atomic.AddInt32(&calls, 1)
		if i == 0 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Less(t, atomic.LoadInt32(&calls), int32(16))
}

func TestStageError_Unwrap(t *testing.T) {
	err := &StageError{Stage: "datasink4", Err: ErrSinkWrite}
	assert.ErrorIs(t, err, ErrSinkWrite)
	assert.Contains(t, err.Error(), "datasink4")
}
