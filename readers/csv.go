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
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aaronlmathis/trendetl/core"
)

// CSVReaderError wraps structured error information for the CSV reader.
type CSVReaderError struct {
	Op  string
	Err error
}

func (e *CSVReaderError) Error() string {
	return fmt.Sprintf("csv reader %s: %v", e.Op, e.Err)
}

func (e *CSVReaderError) Unwrap() error {
	return e.Err
}

// CSVReaderStats holds statistics about the CSV reader's performance.
type CSVReaderStats struct {
	RecordsRead     int64
	ReadDuration    time.Duration
	LastReadTime    time.Time
	NullValueCounts map[string]int64
	// RawFallbacks counts cells kept as raw strings because they did not parse as the declared type.
	RawFallbacks map[string]int64
}

// CSVReaderOptions configures the CSV reader.
type CSVReaderOptions struct {
	Comma            rune
	Comment          rune
	FieldsPerRecord  int
	LazyQuotes       bool
	TrimLeadingSpace bool
	HasHeaders       bool
	// ColumnTypes declares column types. Undeclared columns are inferred per cell.
	ColumnTypes map[string]core.FieldType
}

// ReaderOptionCSV allows functional customization of CSVReader.
type ReaderOptionCSV func(*CSVReaderOptions)

func WithCSVComma(r rune) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.Comma = r }
}

func WithCSVHasHeaders(hasHeaders bool) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.HasHeaders = hasHeaders }
}

func WithCSVTrimSpace(trim bool) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.TrimLeadingSpace = trim }
}

func WithCSVLazyQuotes(lazy bool) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.LazyQuotes = lazy }
}

// WithCSVSchema declares column types from a schema.
func WithCSVSchema(schema core.Schema) ReaderOptionCSV {
	return func(o *CSVReaderOptions) {
		o.ColumnTypes = make(map[string]core.FieldType, len(schema.Fields))
		for _, f := range schema.Fields {
			o.ColumnTypes[f.Name] = f.Type
		}
	}
}

// CSVReader implements core.DataSource for CSV files.
type CSVReader struct {
	reader  *csv.Reader
	headers []string
	closer  io.Closer
	stats   CSVReaderStats
	opts    CSVReaderOptions
}

// NewCSVReader creates a CSVReader with default or overridden options.
func NewCSVReader(r io.ReadCloser, options ...ReaderOptionCSV) (*CSVReader, error) {
	opts := CSVReaderOptions{
		Comma:            ',',
		HasHeaders:       true,
		TrimLeadingSpace: true,
		// Headers may vary in column count between exports
		FieldsPerRecord: -1,
	}

	for _, opt := range options {
		opt(&opts)
	}

	csvReader := csv.NewReader(r)
	csvReader.Comma = opts.Comma
	csvReader.Comment = opts.Comment
	csvReader.FieldsPerRecord = opts.FieldsPerRecord
	csvReader.LazyQuotes = opts.LazyQuotes
	csvReader.TrimLeadingSpace = opts.TrimLeadingSpace
	csvReader.ReuseRecord = true

	reader := &CSVReader{
		reader: csvReader,
		closer: r,
		opts:   opts,
		stats: CSVReaderStats{
			NullValueCounts: make(map[string]int64),
			RawFallbacks:    make(map[string]int64),
		},
	}

	if opts.HasHeaders {
		headers, err := csvReader.Read()
		if err == io.EOF {
			// empty file: no header, no records
			reader.headers = nil
			return reader, nil
		}
		if err != nil {
			return nil, &CSVReaderError{Op: "read_headers", Err: err}
		}
		reader.headers = make([]string, len(headers))
		for i, h := range headers {
			// strip a UTF-8 byte order mark from the first header
			if i == 0 {
				h = strings.TrimPrefix(h, "\uFEFF")
			}
			reader.headers[i] = strings.TrimSpace(h)
		}
	}

	return reader, nil
}

// Read implements the core.DataSource interface.
func (c *CSVReader) Read(ctx context.Context) (core.Record, error) {
	start := time.Now()

	select {
	case <-ctx.Done():
		return nil, &CSVReaderError{Op: "read", Err: ctx.Err()}
	default:
	}

	if c.opts.HasHeaders && c.headers == nil {
		return nil, io.EOF
	}

	row, err := c.reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &CSVReaderError{Op: "read_record", Err: err}
	}

	res := make(core.Record, len(row))
	for i, val := range row {
		key := c.columnName(i)
		// declared string cells are kept verbatim; only an empty cell is null
		verbatim := c.opts.ColumnTypes[key] == core.TypeString
		if (verbatim && val == "") || (!verbatim && strings.TrimSpace(val) == "") {
			c.stats.NullValueCounts[key]++
			res[key] = nil
			continue
		}
		if verbatim {
			res[key] = val
			continue
		}
		res[key] = c.parseValue(key, val)
	}
	// short rows leave trailing columns null
	for i := len(row); i < len(c.headers); i++ {
		res[c.headers[i]] = nil
	}

	c.stats.RecordsRead++
	c.stats.LastReadTime = time.Now()
	c.stats.ReadDuration += time.Since(start)

	return res, nil
}

func (c *CSVReader) columnName(i int) string {
	if i < len(c.headers) {
		return c.headers[i]
	}
	return "col_" + strconv.Itoa(i)
}

// Close implements the core.DataSource interface.
func (c *CSVReader) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// Stats returns CSV reader performance stats.
func (c *CSVReader) Stats() CSVReaderStats {
	return c.stats
}

// parseValue parses a cell as its declared type. A cell that does not parse is kept as its raw
// string. Undeclared columns are inferred as long, double, boolean or string.
func (c *CSVReader) parseValue(key, value string) interface{} {
	value = strings.TrimSpace(value)

	if t, ok := c.opts.ColumnTypes[key]; ok {
		if v, ok := ParseCell(value, t); ok {
			return v
		}
		c.stats.RawFallbacks[key]++
		return value
	}

	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return value
}

// ParseCell parses a text value as type t.
func ParseCell(value string, t core.FieldType) (interface{}, bool) {
	switch t {
	case core.TypeString:
		return value, true
	case core.TypeLong:
		i, err := strconv.ParseInt(value, 10, 64)
		return i, err == nil
	case core.TypeDouble:
		f, err := strconv.ParseFloat(value, 64)
		return f, err == nil
	case core.TypeBoolean:
		switch strings.ToLower(value) {
		case "true", "t", "1":
			return true, true
		case "false", "f", "0":
			return false, true
		}
		return nil, false
	default:
		return nil, false
	}
}
