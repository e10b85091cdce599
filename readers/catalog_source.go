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

package readers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"sync/atomic"

	"github.com/aaronlmathis/trendetl/catalog"
	"github.com/aaronlmathis/trendetl/core"
	"github.com/aaronlmathis/trendetl/filter"
	"github.com/aaronlmathis/trendetl/storage"
	"github.com/sirupsen/logrus"
)

// Package readers provides the record readers for the supported table formats and the
// cataloged source that assembles them into a Dataset.

// SourceError provides structured error information for the cataloged source
type SourceError struct {
	Op  string // Operation that failed (e.g., "lookup", "predicate", "list", "read_object")
	Err error  // Underlying error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("catalog source %s: %v", e.Op, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// SourceStats holds statistics about a CatalogSource load
type SourceStats struct {
	ObjectsListed  int64 // Data objects found under the table location
	ObjectsPruned  int64 // Objects skipped because their partition cannot match
	ObjectsRead    int64 // Objects scanned
	RecordsScanned int64 // Records decoded from scanned objects
	RecordsKept    int64 // Records satisfying the predicate
}

// StoreOpener opens the Store for a table location.
type StoreOpener func(ctx context.Context, location string) (storage.Store, error)

// CatalogSource implements core.DatasetSource for a cataloged table. Partitions that cannot
// satisfy the predicate are never opened, and records that do not satisfy it are dropped as
// they are decoded.
type CatalogSource struct {
	catalog   catalog.Catalog
	database  string
	table     string
	predicate string

	name    string
	workers int
	opener  StoreOpener
	logger  logrus.FieldLogger

	stats SourceStats
}

// SourceOption represents a configuration function for CatalogSource
type SourceOption func(*CatalogSource)

// WithPredicate sets the pushdown predicate, e.g. "region in ('ca','gb','us')".
func WithPredicate(expr string) SourceOption {
	return func(s *CatalogSource) {
		s.predicate = expr
	}
}

// WithSourceName sets the transformation context name.
func WithSourceName(name string) SourceOption {
	return func(s *CatalogSource) {
		s.name = name
	}
}

// WithSourceWorkers sets how many objects are read concurrently.
func WithSourceWorkers(n int) SourceOption {
	return func(s *CatalogSource) {
		s.workers = n
	}
}

// WithStoreOpener overrides how table locations are opened.
func WithStoreOpener(opener StoreOpener) SourceOption {
	return func(s *CatalogSource) {
		s.opener = opener
	}
}

// WithSourceLogger sets the logger.
func WithSourceLogger(logger logrus.FieldLogger) SourceOption {
	return func(s *CatalogSource) {
		s.logger = logger
	}
}

// NewCatalogSource creates a source for database.table in cat.
func NewCatalogSource(cat catalog.Catalog, database, table string, options ...SourceOption) *CatalogSource {
	s := &CatalogSource{catalog: cat, database: database, table: table}
	for _, option := range options {
		option(s)
	}
	s.withDefaults()
	return s
}

func (s *CatalogSource) withDefaults() {
	if s.name == "" {
		s.name = "datasource0"
	}
	if s.workers <= 0 {
		s.workers = core.DefaultWorkers()
	}
	if s.opener == nil {
		s.opener = func(ctx context.Context, location string) (storage.Store, error) {
			return storage.Open(ctx, location)
		}
	}
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}
}

// Name implements core.DatasetSource.
func (s *CatalogSource) Name() string { return s.name }

// Stats returns statistics of the last Load.
func (s *CatalogSource) Stats() SourceStats {
	return SourceStats{
		ObjectsListed:  atomic.LoadInt64(&s.stats.ObjectsListed),
		ObjectsPruned:  atomic.LoadInt64(&s.stats.ObjectsPruned),
		ObjectsRead:    atomic.LoadInt64(&s.stats.ObjectsRead),
		RecordsScanned: atomic.LoadInt64(&s.stats.RecordsScanned),
		RecordsKept:    atomic.LoadInt64(&s.stats.RecordsKept),
	}
}

// Resolve looks up the table and checks the predicate against its schema without reading data.
func (s *CatalogSource) Resolve(ctx context.Context) (*catalog.TableEntry, *filter.Predicate, error) {
	entry, err := s.catalog.Lookup(ctx, s.database, s.table)
	if err != nil {
		return nil, nil, &SourceError{Op: "lookup", Err: err}
	}
	pred, err := filter.ParsePredicate(s.predicate)
	if err != nil {
		return nil, nil, &SourceError{Op: "predicate", Err: err}
	}
	if err := pred.Validate(entry.Schema()); err != nil {
		return nil, nil, &SourceError{Op: "predicate", Err: err}
	}
	return entry, pred, nil
}

// Load implements core.DatasetSource. Each scanned object becomes one split.
func (s *CatalogSource) Load(ctx context.Context) (*core.Dataset, error) {
	s.stats = SourceStats{}

	entry, pred, err := s.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	schema := entry.Schema()

	pruner, err := pred.PartitionPruner(entry.PartitionKeys)
	if err != nil {
		return nil, &SourceError{Op: "predicate", Err: err}
	}

	store, err := s.opener(ctx, entry.Location)
	if err != nil {
		return nil, &SourceError{Op: "open_store", Err: err}
	}
	objects, err := store.List(ctx, "")
	if err != nil {
		return nil, &SourceError{Op: "list", Err: err}
	}

	type scan struct {
		key        string
		partitions map[string]string
	}
	var scans []scan
	for _, obj := range objects {
		if !isDataObject(obj.Key) {
			continue
		}
		s.stats.ObjectsListed++
		parts := partitionValues(obj.Key, entry.PartitionKeys)
		ok := true
		// objects outside the partition layout cannot be pruned
		if len(parts) == len(entry.PartitionKeys) {
			if ok, err = pruner.Match(parts); err != nil {
				return nil, &SourceError{Op: "prune", Err: err}
			}
		}
		if !ok {
			s.stats.ObjectsPruned++
			s.logger.WithFields(logrus.Fields{"stage": s.name, "object": obj.Key}).Debug("partition pruned")
			continue
		}
		scans = append(scans, scan{key: obj.Key, partitions: parts})
	}

	keep := pred.Filter()
	placeholders := make([]core.Split, len(scans))
	splits := make([]core.Split, len(scans))
	err = core.ForEachSplit(ctx, placeholders, s.workers, func(ctx context.Context, i int, _ core.Split) error {
		split, err := s.readObject(ctx, store, entry, schema, scans[i].key, scans[i].partitions, keep)
		if err != nil {
			return &SourceError{Op: "read_object", Err: fmt.Errorf("%s: %w", scans[i].key, err)}
		}
		splits[i] = split
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"stage":          s.name,
		"table":          entry.Database + "." + entry.Name,
		"objects_listed": s.stats.ObjectsListed,
		"objects_pruned": s.stats.ObjectsPruned,
	}).Debug("source scanned")

	return core.NewDataset(schema, splits...), nil
}

// readObject decodes one object, adds its partition values and keeps matching records.
func (s *CatalogSource) readObject(ctx context.Context, store storage.Store, entry *catalog.TableEntry, schema core.Schema,
	key string, partitions map[string]string, keep core.Filter) (core.Split, error) {

	rc, err := store.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	src, err := openDataSource(entry.Format, rc, schema)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	atomic.AddInt64(&s.stats.ObjectsRead, 1)

	typedParts := make(core.Record, len(partitions))
	for k, v := range partitions {
		typedParts[k] = partitionValue(schema, k, v)
	}

	split := core.Split{}
	for {
		rec, err := src.Read(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		atomic.AddInt64(&s.stats.RecordsScanned, 1)
		for k, v := range typedParts {
			rec[k] = v
		}
		ok, err := keep.ShouldInclude(ctx, rec)
		if err != nil {
			return nil, err
		}
		if ok {
			split = append(split, rec)
			atomic.AddInt64(&s.stats.RecordsKept, 1)
		}
	}
	return split, nil
}

// openDataSource returns the record reader for a table format. Parquet needs random access,
// so the object is buffered in memory.
func openDataSource(format catalog.Format, rc io.ReadCloser, schema core.Schema) (core.DataSource, error) {
	switch format {
	case catalog.FormatCSV:
		r, err := NewCSVReader(rc, WithCSVSchema(schema))
		if err != nil {
			rc.Close()
			return nil, err
		}
		return r, nil
	case catalog.FormatJSON:
		return NewJSONReader(rc), nil
	case catalog.FormatParquet:
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		return NewParquetReader(bytes.NewReader(data))
	default:
		rc.Close()
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// isDataObject skips markers and hidden files such as _SUCCESS or .crc files.
func isDataObject(key string) bool {
	base := path.Base(key)
	return !strings.HasPrefix(base, "_") && !strings.HasPrefix(base, ".")
}

// partitionValues extracts key=value directory segments for the given partition keys.
func partitionValues(key string, keys []string) map[string]string {
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	out := make(map[string]string, len(keys))
	dirs := strings.Split(path.Dir(key), "/")
	for _, d := range dirs {
		k, v, ok := strings.Cut(d, "=")
		if !ok || !want[k] {
			continue
		}
		if unescaped, err := url.PathUnescape(v); err == nil {
			v = unescaped
		}
		out[k] = v
	}
	return out
}

// partitionValue types a partition directory value per the schema. Unparseable values stay strings.
func partitionValue(schema core.Schema, key, value string) interface{} {
	if value == "__HIVE_DEFAULT_PARTITION__" {
		return nil
	}
	f, ok := schema.Field(key)
	if !ok {
		return value
	}
	if v, ok := ParseCell(value, f.Type); ok {
		return v
	}
	return value
}
