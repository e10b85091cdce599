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

package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/aaronlmathis/trendetl/core"
)

// Package catalog resolves (database, table) references to table locations and schemas.
//
// The catalog itself is maintained outside trendetl; this package only reads it, either from a
// YAML file or from PostgreSQL tables.

// Format is the storage format of a cataloged table.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
)

// ParseFormat parses a table format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON, FormatParquet:
		return f, nil
	case "jsonl", "ndjson":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown table format %q", s)
	}
}

// Column is a cataloged column with its declared type.
type Column struct {
	Name string         `yaml:"name"`
	Type core.FieldType `yaml:"type"`
}

// TableEntry describes a cataloged table.
type TableEntry struct {
	Database      string
	Name          string
	Location      string // storage location of the table root, e.g. s3://bucket/prefix/
	Format        Format
	PartitionKeys []string // Hive partition columns, in directory nesting order
	Columns       []Column
}

// Schema returns the table schema. Partition keys missing from Columns are appended as strings.
func (t *TableEntry) Schema() core.Schema {
	fields := make([]core.Field, 0, len(t.Columns)+len(t.PartitionKeys))
	for _, c := range t.Columns {
		fields = append(fields, core.Field{Name: c.Name, Type: c.Type})
	}
	s := core.NewSchema(fields...)
	for _, k := range t.PartitionKeys {
		if !s.Has(k) {
			s.Fields = append(s.Fields, core.Field{Name: k, Type: core.TypeString})
		}
	}
	return s
}

// Validate checks the entry is usable by the source reader.
func (t *TableEntry) Validate() error {
	if t.Location == "" {
		return fmt.Errorf("table %s.%s has no location", t.Database, t.Name)
	}
	if _, err := ParseFormat(string(t.Format)); err != nil {
		return fmt.Errorf("table %s.%s: %w", t.Database, t.Name, err)
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name == "" {
			return fmt.Errorf("table %s.%s has a column with no name", t.Database, t.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("table %s.%s: duplicate column %q", t.Database, t.Name, c.Name)
		}
		seen[c.Name] = true
		if _, err := core.ParseFieldType(string(c.Type)); err != nil {
			return fmt.Errorf("table %s.%s column %s: %w", t.Database, t.Name, c.Name, err)
		}
	}
	return nil
}

// Catalog looks up table entries.
type Catalog interface {
	// Lookup returns the entry for database.table or an error matching core.ErrSourceNotFound.
	Lookup(ctx context.Context, database, table string) (*TableEntry, error)
}

// NotFoundError reports a missing catalog entry. It matches core.ErrSourceNotFound.
type NotFoundError struct {
	Database string
	Table    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("catalog: table %s.%s not found", e.Database, e.Table)
}

// Is reports whether target is core.ErrSourceNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == core.ErrSourceNotFound
}

// CatalogError provides structured error information for catalog operations
type CatalogError struct {
	Op  string // Operation that failed (e.g., "load", "query", "scan")
	Err error  // Underlying error
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("catalog %s: %v", e.Op, e.Err)
}

func (e *CatalogError) Unwrap() error {
	return e.Err
}

// normalizeColumns canonicalizes declared column types.
func normalizeColumns(cols []Column) ([]Column, error) {
	out := make([]Column, len(cols))
	for i, c := range cols {
		t, err := core.ParseFieldType(string(c.Type))
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		out[i] = Column{Name: c.Name, Type: t}
	}
	return out, nil
}
