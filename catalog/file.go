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
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

// fileTable is the YAML form of a table entry.
type fileTable struct {
	Database      string   `yaml:"database"`
	Name          string   `yaml:"name"`
	Location      string   `yaml:"location"`
	Format        string   `yaml:"format"`
	PartitionKeys []string `yaml:"partition_keys"`
	Columns       []Column `yaml:"columns"`
}

type fileCatalogDoc struct {
	Tables []fileTable `yaml:"tables"`
}

// FileCatalog is a Catalog loaded from a YAML document:
//
//	tables:
//	  - database: de-youtube-raw
//	    name: raw_statistics
//	    location: s3://de-youtube-raw/youtube/raw_statistics/
//	    format: csv
//	    partition_keys: [region]
//	    columns:
//	      - {name: video_id, type: string}
//
// Relative local locations are resolved against the directory of the catalog file.
type FileCatalog struct {
	tables map[string]*TableEntry
}

// LoadFileCatalog reads a FileCatalog from path.
func LoadFileCatalog(path string) (*FileCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &CatalogError{Op: "load", Err: err}
	}
	return ParseFileCatalog(data, filepath.Dir(path))
}

// ParseFileCatalog parses a YAML catalog document. baseDir resolves relative local locations.
func ParseFileCatalog(data []byte, baseDir string) (*FileCatalog, error) {
	var doc fileCatalogDoc
	if err := yaml.UnmarshalStrict(data, &doc); err != nil {
		return nil, &CatalogError{Op: "parse", Err: err}
	}

	c := &FileCatalog{tables: make(map[string]*TableEntry, len(doc.Tables))}
	for _, t := range doc.Tables {
		entry, err := t.entry(baseDir)
		if err != nil {
			return nil, &CatalogError{Op: "parse", Err: err}
		}
		key := tableKey(entry.Database, entry.Name)
		if _, dup := c.tables[key]; dup {
			return nil, &CatalogError{Op: "parse", Err: fmt.Errorf("duplicate table %s", key)}
		}
		c.tables[key] = entry
	}
	return c, nil
}

func (t fileTable) entry(baseDir string) (*TableEntry, error) {
	format, err := ParseFormat(t.Format)
	if err != nil {
		return nil, fmt.Errorf("table %s.%s: %w", t.Database, t.Name, err)
	}
	cols, err := normalizeColumns(t.Columns)
	if err != nil {
		return nil, fmt.Errorf("table %s.%s: %w", t.Database, t.Name, err)
	}
	loc := t.Location
	if loc != "" && !strings.Contains(loc, "://") && !filepath.IsAbs(loc) && baseDir != "" {
		loc = filepath.Join(baseDir, loc)
	}
	entry := &TableEntry{
		Database:      t.Database,
		Name:          t.Name,
		Location:      loc,
		Format:        format,
		PartitionKeys: t.PartitionKeys,
		Columns:       cols,
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	return entry, nil
}

// Lookup implements Catalog.
func (c *FileCatalog) Lookup(ctx context.Context, database, table string) (*TableEntry, error) {
	entry, ok := c.tables[tableKey(database, table)]
	if !ok {
		return nil, &NotFoundError{Database: database, Table: table}
	}
	cp := *entry
	return &cp, nil
}

// Tables returns the number of tables in the catalog.
func (c *FileCatalog) Tables() int {
	return len(c.tables)
}

func tableKey(database, table string) string {
	return database + "." + table
}
