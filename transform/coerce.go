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
	"fmt"
	"strconv"
	"strings"

	"github.com/aaronlmathis/trendetl/core"
)

// coerce converts a value declared as sourceType to targetType.
//
// The value must first conform to sourceType: any Go integer kind conforms to long, and nothing
// else is converted implicitly, so the string "10" does not conform to long. A conforming value
// is then cast to targetType. A nil value is returned as nil with no error. A non-nil value that
// fails either step returns an error and must be treated as null by the caller.
func coerce(value interface{}, sourceType, targetType core.FieldType) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	if cv, ok := value.(*core.ChoiceValue); ok {
		value = cv.Value()
	}
	v, err := conform(value, sourceType)
	if err != nil {
		return nil, err
	}
	if sourceType == targetType {
		return v, nil
	}
	switch targetType {
	case core.TypeString:
		return convertToString(v)
	case core.TypeLong:
		return convertToLong(v)
	case core.TypeBoolean:
		return convertToBool(v)
	default:
		return nil, fmt.Errorf("unsupported target type: %s", targetType)
	}
}

// conform checks value against its declared type, widening integers to int64.
func conform(value interface{}, t core.FieldType) (interface{}, error) {
	switch t {
	case core.TypeString:
		if s, ok := value.(string); ok {
			return s, nil
		}
	case core.TypeLong:
		if n, ok := core.AsInt64(value); ok {
			return n, nil
		}
	case core.TypeBoolean:
		if b, ok := value.(bool); ok {
			return b, nil
		}
	default:
		return nil, fmt.Errorf("unsupported source type: %s", t)
	}
	return nil, fmt.Errorf("value of type %s does not conform to %s", core.TypeOf(value), t)
}

// convertToString formats a conforming long or boolean.
func convertToString(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", fmt.Errorf("cannot convert %T to string", value)
	}
}

// convertToLong attempts to convert a value to int64.
func convertToLong(value interface{}) (int64, error) {
	switch v := value.(type) {
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	case int64:
		return v, nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to long", value)
	}
}

// convertToBool attempts to convert a value to bool.
func convertToBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case string:
		return strconv.ParseBool(strings.TrimSpace(v))
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	default:
		return false, fmt.Errorf("cannot convert %T to boolean", value)
	}
}
