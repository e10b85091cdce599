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
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/trendetl/core"
)

// Package writers provides the record writers used by the sink.
//
// This file implements a batching Parquet writer with a fixed schema. Choice fields are written
// as struct columns with one nullable member per type of the choice.

// ParquetWriterError wraps Parquet-specific write errors with context about the operation.
type ParquetWriterError struct {
	Op  string // Operation that failed (e.g., "create_writer", "append_value", "write_batch")
	Err error  // Underlying error
}

// Error returns the error string for ParquetWriterError.
func (e *ParquetWriterError) Error() string {
	return fmt.Sprintf("parquet writer %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for ParquetWriterError.
func (e *ParquetWriterError) Unwrap() error {
	return e.Err
}

// ParquetWriter implements core.DataSink for Parquet output.
type ParquetWriter struct {
	writer       *pqarrow.FileWriter
	schema       core.Schema
	arrowSchema  *arrow.Schema
	builder      *array.RecordBuilder
	recordBuffer []core.Record
	closed       bool
	errorState   bool
	stats        WriterStats
	opts         *ParquetWriterOptions
}

// ParquetWriterOptions configures the Parquet writer.
type ParquetWriterOptions struct {
	BatchSize    int64                // Number of records to buffer before writing
	Compression  compress.Compression // Compression codec
	RowGroupSize int64                // Maximum rows per row group
	Metadata     map[string]string    // File key/value metadata

	compressionSet bool
}

// WriterStats holds statistics about the Parquet writer's performance.
type WriterStats struct {
	RecordsWritten  int64
	BatchesWritten  int64
	FlushDuration   time.Duration
	LastFlushTime   time.Time
	NullValueCounts map[string]int64
}

// WriterOption represents a configuration function for ParquetWriterOptions.
type WriterOption func(*ParquetWriterOptions)

// WithBatchSize sets the number of records to buffer before writing a batch.
func WithBatchSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.BatchSize = size
	}
}

// WithCompression sets the Parquet compression codec.
func WithCompression(compression compress.Compression) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.Compression = compression
		opts.compressionSet = true
	}
}

// WithRowGroupSize sets the row group size for the Parquet file.
func WithRowGroupSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.RowGroupSize = size
	}
}

// WithMetadata sets user metadata for the Parquet file.
func WithMetadata(metadata map[string]string) WriterOption {
	return func(opts *ParquetWriterOptions) {
		if opts.Metadata == nil {
			opts.Metadata = make(map[string]string)
		}
		for k, v := range metadata {
			opts.Metadata[k] = v
		}
	}
}

// withDefaults applies default values to ParquetWriterOptions.
func (opts *ParquetWriterOptions) withDefaults() *ParquetWriterOptions {
	result := &ParquetWriterOptions{}
	if opts != nil {
		*result = *opts
	}
	if result.BatchSize <= 0 {
		result.BatchSize = 1000
	}
	if result.RowGroupSize <= 0 {
		result.RowGroupSize = 64 * 1024
	}
	if !result.compressionSet {
		result.Compression = compress.Codecs.Snappy
	}
	return result
}

// ParseCompression parses a codec name: snappy, gzip, zstd or none.
func ParseCompression(name string) (compress.Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "snappy":
		return compress.Codecs.Snappy, nil
	case "gzip", "gz":
		return compress.Codecs.Gzip, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed, nil
	default:
		return compress.Codecs.Uncompressed, fmt.Errorf("unsupported compression %q", name)
	}
}

// FileExtension returns the conventional file suffix for a codec, e.g. ".snappy.parquet".
func FileExtension(c compress.Compression) string {
	switch c {
	case compress.Codecs.Snappy:
		return ".snappy.parquet"
	case compress.Codecs.Gzip:
		return ".gz.parquet"
	case compress.Codecs.Zstd:
		return ".zstd.parquet"
	default:
		return ".parquet"
	}
}

// ArrowType returns the Arrow type a schema field is written as.
func ArrowType(f core.Field) arrow.DataType {
	switch f.Type {
	case core.TypeLong:
		return arrow.PrimitiveTypes.Int64
	case core.TypeBoolean:
		return arrow.FixedWidthTypes.Boolean
	case core.TypeDouble:
		return arrow.PrimitiveTypes.Float64
	case core.TypeChoice:
		members := make([]arrow.Field, 0, len(f.Choices))
		for _, c := range f.Choices {
			members = append(members, arrow.Field{
				Name:     string(c),
				Type:     ArrowType(core.Field{Name: string(c), Type: c}),
				Nullable: true,
			})
		}
		return arrow.StructOf(members...)
	default:
		return arrow.BinaryTypes.String
	}
}

// ArrowSchema converts a schema to an Arrow schema with every field nullable.
func ArrowSchema(schema core.Schema, metadata map[string]string) *arrow.Schema {
	fields := make([]arrow.Field, len(schema.Fields))
	for i, f := range schema.Fields {
		fields[i] = arrow.Field{Name: f.Name, Type: ArrowType(f), Nullable: true}
	}
	if len(metadata) == 0 {
		return arrow.NewSchema(fields, nil)
	}
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	vals := make([]string, len(keys))
	for i, k := range keys {
		vals[i] = metadata[k]
	}
	md := arrow.NewMetadata(keys, vals)
	return arrow.NewSchema(fields, &md)
}

// NewParquetWriter creates a Parquet writer for schema on w. Closing the writer does not close w.
func NewParquetWriter(w io.Writer, schema core.Schema, options ...WriterOption) (*ParquetWriter, error) {
	opts := &ParquetWriterOptions{}
	for _, option := range options {
		option(opts)
	}
	opts = opts.withDefaults()

	if len(schema.Fields) == 0 {
		return nil, &ParquetWriterError{Op: "schema", Err: fmt.Errorf("schema has no fields")}
	}

	arrowSchema := ArrowSchema(schema, opts.Metadata)
	props := parquet.NewWriterProperties(
		parquet.WithCompression(opts.Compression),
		parquet.WithMaxRowGroupLength(opts.RowGroupSize),
	)
	writer, err := pqarrow.NewFileWriter(arrowSchema, nopCloser{w}, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return nil, &ParquetWriterError{Op: "create_writer", Err: err}
	}

	return &ParquetWriter{
		writer:       writer,
		schema:       schema,
		arrowSchema:  arrowSchema,
		builder:      array.NewRecordBuilder(memory.NewGoAllocator(), arrowSchema),
		recordBuffer: make([]core.Record, 0, opts.BatchSize),
		stats:        WriterStats{NullValueCounts: make(map[string]int64)},
		opts:         opts,
	}, nil
}

// nopCloser keeps the Parquet file writer from closing the caller's writer.
type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// Stats returns the current statistics of the Parquet writer.
func (p *ParquetWriter) Stats() WriterStats {
	return p.stats
}

// Write implements the core.DataSink interface. Records are buffered and written in batches.
func (p *ParquetWriter) Write(ctx context.Context, record core.Record) error {
	if p.closed {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("parquet writer is closed")}
	}
	if p.errorState {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("writer is in error state")}
	}
	if err := ctx.Err(); err != nil {
		return &ParquetWriterError{Op: "write", Err: err}
	}

	p.recordBuffer = append(p.recordBuffer, record)
	p.stats.RecordsWritten++

	if int64(len(p.recordBuffer)) >= p.opts.BatchSize {
		if err := p.flushBatch(); err != nil {
			return err
		}
	}
	return nil
}

// Flush implements the core.DataSink interface.
func (p *ParquetWriter) Flush() error {
	return p.flushBatch()
}

// Close implements the core.DataSink interface. It flushes and writes the file footer.
func (p *ParquetWriter) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	defer p.builder.Release()

	if !p.errorState {
		if err := p.flushBatch(); err != nil {
			p.writer.Close()
			return err
		}
	}
	if err := p.writer.Close(); err != nil {
		return &ParquetWriterError{Op: "close_writer", Err: err}
	}
	return nil
}

// flushBatch writes the buffered records as one Arrow record batch.
func (p *ParquetWriter) flushBatch() error {
	if len(p.recordBuffer) == 0 {
		return nil
	}
	start := time.Now()

	for _, record := range p.recordBuffer {
		for i, f := range p.schema.Fields {
			if err := p.appendValue(p.builder.Field(i), f, record[f.Name]); err != nil {
				p.errorState = true
				return &ParquetWriterError{Op: "append_value", Err: fmt.Errorf("field %s: %w", f.Name, err)}
			}
		}
	}

	batch := p.builder.NewRecord()
	defer batch.Release()
	if err := p.writer.Write(batch); err != nil {
		p.errorState = true
		return &ParquetWriterError{Op: "write_batch", Err: err}
	}

	p.stats.BatchesWritten++
	p.stats.FlushDuration += time.Since(start)
	p.stats.LastFlushTime = time.Now()
	p.recordBuffer = p.recordBuffer[:0]
	return nil
}

// appendValue appends one value to the builder of field f.
func (p *ParquetWriter) appendValue(builder array.Builder, f core.Field, value interface{}) error {
	if value == nil {
		builder.AppendNull()
		p.stats.NullValueCounts[f.Name]++
		return nil
	}

	switch b := builder.(type) {
	case *array.StringBuilder:
		switch v := value.(type) {
		case string:
			b.Append(v)
		case fmt.Stringer:
			b.Append(v.String())
		default:
			b.Append(fmt.Sprintf("%v", v))
		}
	case *array.Int64Builder:
		v, ok := core.AsInt64(value)
		if !ok {
			return fmt.Errorf("expected long, got %T", value)
		}
		b.Append(v)
	case *array.BooleanBuilder:
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("expected boolean, got %T", value)
		}
		b.Append(v)
	case *array.Float64Builder:
		switch v := value.(type) {
		case float64:
			b.Append(v)
		case float32:
			b.Append(float64(v))
		default:
			n, ok := core.AsInt64(value)
			if !ok {
				return fmt.Errorf("expected double, got %T", value)
			}
			b.Append(float64(n))
		}
	case *array.StructBuilder:
		cv, ok := core.NewChoiceValue(value)
		if !ok {
			b.AppendNull()
			return nil
		}
		b.Append(true)
		for i, t := range f.Choices {
			member := b.FieldBuilder(i)
			if cv.Type != t {
				member.AppendNull()
				continue
			}
			if err := p.appendValue(member, core.Field{Name: f.Name + "." + string(t), Type: t}, cv.Value()); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unsupported builder %T", builder)
	}
	return nil
}
