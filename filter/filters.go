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

	"github.com/aaronlmathis/trendetl/core"
)

// Package filter provides composable record filters and the pushdown predicate for trendetl.
//
// The record-level filters in this file are the building blocks a parsed Predicate compiles to.
// All functions return core.Filter implementations.

// Equals creates a filter that includes records where the field equals the specified value.
// Integer kinds compare by value and choice values compare by their wrapped value.
func Equals(field string, expectedValue interface{}) core.Filter {
	want := normalize(expectedValue)
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		value, exists := record[field]
		if !exists || value == nil {
			return false, nil
		}
		return normalize(value) == want, nil
	})
}

// In creates a filter that includes records where the field value is in the provided set
func In(field string, values ...interface{}) core.Filter {
	valueSet := make(map[interface{}]bool, len(values))
	for _, v := range values {
		valueSet[normalize(v)] = true
	}

	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		value, exists := record[field]
		if !exists || value == nil {
			return false, nil
		}

		return valueSet[normalize(value)], nil
	})
}

// GreaterThan creates a filter that includes records where the numeric field is greater than the value
func GreaterThan(field string, threshold float64) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		num, ok := numericField(record, field)
		if !ok {
			return false, nil
		}
		return num > threshold, nil
	})
}

// LessThan creates a filter that includes records where the numeric field is less than the value
func LessThan(field string, threshold float64) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		num, ok := numericField(record, field)
		if !ok {
			return false, nil
		}
		return num < threshold, nil
	})
}

// AtLeast creates a filter that includes records where the numeric field is greater than or equal to the value
func AtLeast(field string, threshold float64) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		num, ok := numericField(record, field)
		return ok && num >= threshold, nil
	})
}

// AtMost creates a filter that includes records where the numeric field is less than or equal to the value
func AtMost(field string, threshold float64) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		num, ok := numericField(record, field)
		return ok && num <= threshold, nil
	})
}

// And creates a filter that requires all provided filters to pass
func And(filters ...core.Filter) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		for _, filter := range filters {
			include, err := filter.ShouldInclude(ctx, record)
			if err != nil {
				return false, err
			}
			if !include {
				return false, nil
			}
		}
		return true, nil
	})
}

// Or creates a filter that requires at least one of the provided filters to pass
func Or(filters ...core.Filter) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		for _, filter := range filters {
			include, err := filter.ShouldInclude(ctx, record)
			if err != nil {
				return false, err
			}
			if include {
				return true, nil
			}
		}
		return false, nil
	})
}

// Not creates a filter that negates the provided filter
func Not(filter core.Filter) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		include, err := filter.ShouldInclude(ctx, record)
		if err != nil {
			return false, err
		}
		return !include, nil
	})
}

// normalize maps a value to a comparable canonical form.
func normalize(v interface{}) interface{} {
	if cv, ok := v.(*core.ChoiceValue); ok {
		v = cv.Value()
	}
	if n, ok := core.AsInt64(v); ok {
		return n
	}
	if f, ok := v.(float32); ok {
		return float64(f)
	}
	return v
}

// numericField reads a numeric field as float64. Missing, null and non-numeric values report false.
func numericField(record core.Record, field string) (float64, bool) {
	switch v := normalize(record[field]).(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
