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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aaronlmathis/trendetl/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalog = `
tables:
  - database: de-youtube-raw
    name: raw_statistics
    location: raw/raw_statistics
    format: CSV
    partition_keys: [region]
    columns:
      - {name: video_id, type: string}
      - {name: category_id, type: bigint}
      - {name: comments_disabled, type: boolean}
  - database: de-youtube-raw
    name: reference
    location: s3://de-youtube-raw/reference/
    format: json
    columns:
      - {name: id, type: long}
`

func TestParseFileCatalog(t *testing.T) {
	c, err := ParseFileCatalog([]byte(testCatalog), "/data")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Tables())

	entry, err := c.Lookup(context.Background(), "de-youtube-raw", "raw_statistics")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, entry.Format)
	assert.Equal(t, filepath.Join("/data", "raw/raw_statistics"), entry.Location)
	assert.Equal(t, []string{"region"}, entry.PartitionKeys)
	assert.Equal(t, core.TypeLong, entry.Columns[1].Type)

	schema := entry.Schema()
	assert.Equal(t, []string{"video_id", "category_id", "comments_disabled", "region"}, schema.Names())
	region, _ := schema.Field("region")
	assert.Equal(t, core.TypeString, region.Type)

	ref, err := c.Lookup(context.Background(), "de-youtube-raw", "reference")
	require.NoError(t, err)
	assert.Equal(t, "s3://de-youtube-raw/reference/", ref.Location, "remote locations are not rewritten")
}

func TestFileCatalog_NotFound(t *testing.T) {
	c, err := ParseFileCatalog([]byte(testCatalog), "")
	require.NoError(t, err)

	_, err = c.Lookup(context.Background(), "de-youtube-raw", "missing")
	assert.ErrorIs(t, err, core.ErrSourceNotFound)
	_, err = c.Lookup(context.Background(), "other-db", "raw_statistics")
	assert.ErrorIs(t, err, core.ErrSourceNotFound)
}

func TestParseFileCatalog_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad format":  "tables:\n  - {database: d, name: t, location: x, format: avro}\n",
		"bad type":    "tables:\n  - {database: d, name: t, location: x, format: csv, columns: [{name: a, type: timestamp}]}\n",
		"no location": "tables:\n  - {database: d, name: t, format: csv}\n",
		"duplicate":   "tables:\n  - {database: d, name: t, location: x, format: csv}\n  - {database: d, name: t, location: y, format: csv}\n",
		"unknown key": "tables:\n  - {database: d, name: t, location: x, format: csv, owner: me}\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseFileCatalog([]byte(doc), "")
			assert.Error(t, err)
		})
	}
}

func TestLoadFileCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0o644))

	c, err := LoadFileCatalog(path)
	require.NoError(t, err)
	entry, err := c.Lookup(context.Background(), "de-youtube-raw", "raw_statistics")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "raw/raw_statistics"), entry.Location)

	_, err = LoadFileCatalog(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestPostgresCatalogOptions(t *testing.T) {
	opts := (&PostgresCatalogOptions{}).withDefaults()
	assert.Equal(t, "catalog_tables", opts.TablesTable)
	assert.Equal(t, "catalog_columns", opts.ColumnsTable)
	assert.Equal(t, 30*time.Second, opts.QueryTimeout)

	c := NewPostgresCatalogWithDB(nil, WithCatalogTables("meta_tables", "meta_columns"))
	assert.Contains(t, c.tableQuery(), `"meta_tables"`)
	assert.Contains(t, c.columnsQuery(), `"meta_columns"`)
}

func TestNewPostgresCatalog_RequiresDSN(t *testing.T) {
	_, err := NewPostgresCatalog(context.Background())
	require.Error(t, err)
	var cerr *CatalogError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "validate", cerr.Op)
}
