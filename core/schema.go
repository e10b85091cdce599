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
	"sort"
	"strings"
)

// FieldType is the semantic type of a schema field.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeLong    FieldType = "long" // 64-bit signed integer
	TypeBoolean FieldType = "boolean"
	TypeDouble  FieldType = "double"
	// TypeChoice marks a field whose values have more than one type; see Field.Choices.
	TypeChoice FieldType = "choice"
	// TypeNull is only produced by TypeOf for nil values.
	TypeNull FieldType = "null"
)

// ParseFieldType parses a catalog column type. It accepts the usual SQL aliases.
func ParseFieldType(s string) (FieldType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "varchar", "text":
		return TypeString, nil
	case "long", "bigint", "int", "integer":
		return TypeLong, nil
	case "boolean", "bool":
		return TypeBoolean, nil
	case "double", "float":
		return TypeDouble, nil
	default:
		return "", fmt.Errorf("unknown field type %q", s)
	}
}

// Mappable reports whether t may appear in a schema mapping table.
func (t FieldType) Mappable() bool {
	return t == TypeString || t == TypeLong || t == TypeBoolean
}

// Field is a named, typed schema column.
type Field struct {
	Name string
	Type FieldType
	// Choices lists the member types, sorted, when Type is TypeChoice.
	Choices []FieldType
}

func (f Field) String() string {
	if f.Type == TypeChoice {
		parts := make([]string, len(f.Choices))
		for i, c := range f.Choices {
			parts[i] = string(c)
		}
		return fmt.Sprintf("%s:choice<%s>", f.Name, strings.Join(parts, ","))
	}
	return fmt.Sprintf("%s:%s", f.Name, f.Type)
}

// Schema is an ordered list of fields.
type Schema struct {
	Fields []Field
}

// NewSchema creates a schema from fields.
func NewSchema(fields ...Field) Schema {
	return Schema{Fields: fields}
}

// Names returns the field names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Index returns the position of the named field or -1.
func (s Schema) Index(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Field returns the named field.
func (s Schema) Field(name string) (Field, bool) {
	if i := s.Index(name); i >= 0 {
		return s.Fields[i], true
	}
	return Field{}, false
}

// Has reports whether the schema contains the named field.
func (s Schema) Has(name string) bool {
	return s.Index(name) >= 0
}

// Without returns a copy of the schema with the named fields removed.
func (s Schema) Without(names ...string) Schema {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	fields := make([]Field, 0, len(s.Fields))
	for _, f := range s.Fields {
		if !drop[f.Name] {
			fields = append(fields, f)
		}
	}
	return Schema{Fields: fields}
}

func (s Schema) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = f.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// TypeOf returns the FieldType of a record value. All Go integer kinds map to TypeLong.
func TypeOf(v interface{}) FieldType {
	switch v.(type) {
	case nil:
		return TypeNull
	case string:
		return TypeString
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return TypeLong
	case bool:
		return TypeBoolean
	case float32, float64:
		return TypeDouble
	case *ChoiceValue:
		return TypeChoice
	default:
		return TypeString
	}
}

// TypeSet is the set of non-null types observed for one field.
type TypeSet map[FieldType]struct{}

// Add records an observed type. Nulls are ignored.
func (ts TypeSet) Add(t FieldType) {
	if t == TypeNull {
		return
	}
	ts[t] = struct{}{}
}

// Sorted returns the members in a stable order.
func (ts TypeSet) Sorted() []FieldType {
	out := make([]FieldType, 0, len(ts))
	for t := range ts {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TypeProfile maps field names to the types observed for them. It is a commutative,
// associative aggregate: per-split profiles can be merged in any order.
type TypeProfile map[string]TypeSet

// ProfileSplit computes the observed types of the named fields in a split.
func ProfileSplit(names []string, split Split) TypeProfile {
	p := make(TypeProfile, len(names))
	for _, n := range names {
		p[n] = TypeSet{}
	}
	for _, rec := range split {
		for _, n := range names {
			v := rec[n]
			if cv, ok := v.(*ChoiceValue); ok {
				p[n].Add(cv.Type)
				continue
			}
			p[n].Add(TypeOf(v))
		}
	}
	return p
}

// Merge folds other into p.
func (p TypeProfile) Merge(other TypeProfile) TypeProfile {
	for name, set := range other {
		dst, ok := p[name]
		if !ok {
			dst = TypeSet{}
			p[name] = dst
		}
		for t := range set {
			dst[t] = struct{}{}
		}
	}
	return p
}

// InferSchema derives the schema actually held by the splits, keeping the field order and
// fallback types of base. A field with one observed type gets that type; a field with several
// becomes a choice; a field with none keeps its base type.
func InferSchema(base Schema, splits []Split) Schema {
	names := base.Names()
	profile := TypeProfile{}
	for _, s := range splits {
		profile.Merge(ProfileSplit(names, s))
	}
	return base.Apply(profile)
}

// Apply returns the schema implied by a type profile; see InferSchema.
func (s Schema) Apply(profile TypeProfile) Schema {
	fields := make([]Field, len(s.Fields))
	for i, f := range s.Fields {
		observed := profile[f.Name].Sorted()
		switch len(observed) {
		case 0:
			fields[i] = Field{Name: f.Name, Type: f.Type, Choices: f.Choices}
		case 1:
			fields[i] = Field{Name: f.Name, Type: observed[0]}
		default:
			fields[i] = Field{Name: f.Name, Type: TypeChoice, Choices: observed}
		}
	}
	return Schema{Fields: fields}
}
