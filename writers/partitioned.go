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

package writers

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/sirupsen/logrus"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	"github.com/aaronlmathis/trendetl/core"
	"github.com/aaronlmathis/trendetl/storage"
	"github.com/aaronlmathis/trendetl/transform"
)

// SaveMode controls what happens to data already under a written partition.
type SaveMode string

const (
	// ModeAppend adds files next to existing ones. File names are deterministic, so a rerun
	// over the same input replaces the files it wrote before.
	ModeAppend SaveMode = "append"
	// ModeOverwrite deletes every object under a partition before writing it.
	ModeOverwrite SaveMode = "overwrite"
)

// ParseSaveMode parses "append" or "overwrite". Empty means append.
func ParseSaveMode(s string) (SaveMode, error) {
	switch SaveMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAppend:
		return ModeAppend, nil
	case ModeOverwrite:
		return ModeOverwrite, nil
	default:
		return "", fmt.Errorf("unknown save mode %q", s)
	}
}

// SinkError wraps a sink failure. It matches core.ErrSinkWrite.
type SinkError struct {
	Op  string // Operation that failed (e.g., "encode", "put", "delete")
	Key string
	Err error
}

func (e *SinkError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("sink %s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("sink %s: %v", e.Op, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

func (e *SinkError) Is(target error) bool {
	return target == core.ErrSinkWrite
}

// PartitionedWriter implements core.DatasetSink. It writes each split as one Parquet file under
// the Hive style directory of its partition, e.g. "region=us/part-00000-<hash>.snappy.parquet".
// Partition columns live in the path only and are not stored in the files.
type PartitionedWriter struct {
	store         storage.Store
	partitionKeys []string
	name          string
	mode          SaveMode
	compression   compress.Compression
	workers       int
	logger        logrus.FieldLogger
	parquetOpts   []WriterOption
}

// PartitionedOption represents a configuration function for PartitionedWriter.
type PartitionedOption func(*PartitionedWriter)

// WithSinkName sets the transformation context name.
func WithSinkName(name string) PartitionedOption {
	return func(w *PartitionedWriter) {
		w.name = name
	}
}

// WithSinkPartitionKeys sets the partition keys.
func WithSinkPartitionKeys(keys ...string) PartitionedOption {
	return func(w *PartitionedWriter) {
		w.partitionKeys = keys
	}
}

// WithSaveMode sets append or overwrite behavior.
func WithSaveMode(mode SaveMode) PartitionedOption {
	return func(w *PartitionedWriter) {
		w.mode = mode
	}
}

// WithSinkCompression sets the Parquet codec.
func WithSinkCompression(c compress.Compression) PartitionedOption {
	return func(w *PartitionedWriter) {
		w.compression = c
	}
}

// WithSinkWorkers sets how many files are encoded and uploaded concurrently.
func WithSinkWorkers(n int) PartitionedOption {
	return func(w *PartitionedWriter) {
		w.workers = n
	}
}

// WithSinkLogger sets the logger.
func WithSinkLogger(logger logrus.FieldLogger) PartitionedOption {
	return func(w *PartitionedWriter) {
		w.logger = logger
	}
}

// WithParquetOptions passes extra options to every ParquetWriter.
func WithParquetOptions(opts ...WriterOption) PartitionedOption {
	return func(w *PartitionedWriter) {
		w.parquetOpts = append(w.parquetOpts, opts...)
	}
}

// NewPartitionedWriter creates a sink writing to store.
func NewPartitionedWriter(store storage.Store, options ...PartitionedOption) *PartitionedWriter {
	w := &PartitionedWriter{store: store, compression: compress.Codecs.Snappy}
	for _, option := range options {
		option(w)
	}
	w.withDefaults()
	return w
}

func (w *PartitionedWriter) withDefaults() {
	if w.name == "" {
		w.name = "datasink4"
	}
	if w.mode == "" {
		w.mode = ModeAppend
	}
	if w.workers <= 0 {
		w.workers = core.DefaultWorkers()
	}
	if w.logger == nil {
		w.logger = logrus.StandardLogger()
	}
}

// Name implements core.DatasetSink.
func (w *PartitionedWriter) Name() string { return w.name }

// fileJob is one output file.
type fileJob struct {
	partition string
	key       string
	records   []core.Record
}

// Plan returns the partition path and object key of every file WriteDataset would write,
// without writing anything. Splits holding several partitions produce one file per partition.
func (w *PartitionedWriter) Plan(ds *core.Dataset) map[string][]string {
	plan := make(map[string][]string)
	for _, job := range w.plan(ds) {
		plan[job.partition] = append(plan[job.partition], job.key)
	}
	return plan
}

func (w *PartitionedWriter) plan(ds *core.Dataset) []fileJob {
	fileSchema := ds.Schema.Without(w.partitionKeys...)
	ext := FileExtension(w.compression)

	var jobs []fileJob
	seq := make(map[string]int)
	for _, split := range ds.Splits {
		groups := make(map[string][]core.Record)
		var order []string
		for _, rec := range split {
			p := strings.Join(transform.PartitionValues(rec, w.partitionKeys), "/")
			if _, ok := groups[p]; !ok {
				order = append(order, p)
			}
			groups[p] = append(groups[p], rec)
		}
		sort.Strings(order)
		for _, p := range order {
			n := seq[p]
			seq[p]++
			// the name depends on the partition and output schema, never on the run
			hash := xxh3.HashString(p + "|" + fileSchema.String())
			name := fmt.Sprintf("part-%05d-%016x%s", n, hash, ext)
			jobs = append(jobs, fileJob{partition: p, key: storage.JoinKey(p, name), records: groups[p]})
		}
	}
	return jobs
}

// WriteDataset implements core.DatasetSink. Any failure is returned as a SinkError matching
// core.ErrSinkWrite.
func (w *PartitionedWriter) WriteDataset(ctx context.Context, ds *core.Dataset) (core.WriteSummary, error) {
	summary := core.WriteSummary{Files: make(map[string][]string)}
	fileSchema := ds.Schema.Without(w.partitionKeys...)
	jobs := w.plan(ds)
	if len(jobs) == 0 {
		return summary, nil
	}
	if len(fileSchema.Fields) == 0 {
		return summary, &SinkError{Op: "schema", Err: fmt.Errorf("no columns left to write besides partition keys")}
	}

	if w.mode == ModeOverwrite {
		seen := make(map[string]bool)
		for _, job := range jobs {
			if seen[job.partition] {
				continue
			}
			seen[job.partition] = true
			prefix := job.partition
			if prefix != "" {
				prefix += "/"
			}
			if err := w.store.DeletePrefix(ctx, prefix); err != nil {
				return summary, &SinkError{Op: "delete", Key: prefix, Err: err}
			}
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.workers)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			if err := w.writeFile(gctx, fileSchema, job); err != nil {
				return err
			}
			mu.Lock()
			summary.Files[job.partition] = append(summary.Files[job.partition], job.key)
			summary.RecordsWritten += int64(len(job.records))
			mu.Unlock()
			w.logger.WithFields(logrus.Fields{
				"stage":   w.name,
				"object":  job.key,
				"records": len(job.records),
			}).Debug("file written")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}
	for p := range summary.Files {
		sort.Strings(summary.Files[p])
	}
	return summary, nil
}

// writeFile encodes one file in memory and uploads it in a single Put.
func (w *PartitionedWriter) writeFile(ctx context.Context, schema core.Schema, job fileJob) error {
	var buf bytes.Buffer
	opts := append([]WriterOption{WithCompression(w.compression)}, w.parquetOpts...)
	pw, err := NewParquetWriter(&buf, schema, opts...)
	if err != nil {
		return &SinkError{Op: "encode", Key: job.key, Err: err}
	}
	for _, rec := range job.records {
		if err := pw.Write(ctx, rec); err != nil {
			pw.Close()
			return &SinkError{Op: "encode", Key: job.key, Err: err}
		}
	}
	if err := pw.Close(); err != nil {
		return &SinkError{Op: "encode", Key: job.key, Err: err}
	}
	if err := w.store.Put(ctx, job.key, bytes.NewReader(buf.Bytes())); err != nil {
		return &SinkError{Op: "put", Key: job.key, Err: err}
	}
	return nil
}
