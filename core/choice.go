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
	"fmt"
	"strconv"
)

// ChoiceValue is a value of a field whose type varies across a dataset. It keeps the original
// value in the member matching its originating type tag; the other members are unset.
// Written to Parquet it becomes a struct with one nullable member per type of the choice.
type ChoiceValue struct {
	Type        FieldType
	StringValue string
	LongValue   int64
	BoolValue   bool
	DoubleValue float64
}

// NewChoiceValue wraps v. It returns false for nil, which stays null.
func NewChoiceValue(v interface{}) (*ChoiceValue, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case *ChoiceValue:
		return x, true
	case string:
		return &ChoiceValue{Type: TypeString, StringValue: x}, true
	case bool:
		return &ChoiceValue{Type: TypeBoolean, BoolValue: x}, true
	case float32:
		return &ChoiceValue{Type: TypeDouble, DoubleValue: float64(x)}, true
	case float64:
		return &ChoiceValue{Type: TypeDouble, DoubleValue: x}, true
	}
	if n, ok := AsInt64(v); ok {
		return &ChoiceValue{Type: TypeLong, LongValue: n}, true
	}
	return &ChoiceValue{Type: TypeString, StringValue: fmt.Sprintf("%v", v)}, true
}

// Value returns the wrapped value.
func (c *ChoiceValue) Value() interface{} {
	switch c.Type {
	case TypeLong:
		return c.LongValue
	case TypeBoolean:
		return c.BoolValue
	case TypeDouble:
		return c.DoubleValue
	default:
		return c.StringValue
	}
}

// Member returns the value of the member for type t, or nil when t is not the originating type.
func (c *ChoiceValue) Member(t FieldType) interface{} {
	if c.Type != t {
		return nil
	}
	return c.Value()
}

func (c *ChoiceValue) String() string {
	switch c.Type {
	case TypeLong:
		return strconv.FormatInt(c.LongValue, 10)
	case TypeBoolean:
		return strconv.FormatBool(c.BoolValue)
	case TypeDouble:
		return strconv.FormatFloat(c.DoubleValue, 'g', -1, 64)
	default:
		return c.StringValue
	}
}

// AsInt64 widens any Go integer kind that fits in an int64.
func AsInt64(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		if x <= 1<<63-1 {
			return int64(x), true
		}
	case uint:
		if uint64(x) <= 1<<63-1 {
			return int64(x), true
		}
	}
	return 0, false
}
