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
	"context"
)

// Package core defines the core interfaces for trendetl.
//
// This file contains the record-level interfaces used by the format readers and writers, and
// the dataset-level interfaces the pipeline is assembled from.

// DataSource defines the interface for record extraction from a single object.
// Implementations stream records from one file (CSV, JSON lines, Parquet).
type DataSource interface {
	// Read returns the next record or io.EOF when no more records are available.
	Read(ctx context.Context) (Record, error)
	// Close releases any resources held by the data source.
	Close() error
}

// DataSink defines the interface for record loading into a single object.
type DataSink interface {
	// Write outputs a single record to the sink.
	Write(ctx context.Context, record Record) error
	// Flush ensures all buffered data is written to the sink.
	Flush() error
	// Close releases any resources held by the data sink.
	Close() error
}

// Transformer defines the interface for per-record transformation operations.
type Transformer interface {
	// Transform applies the transformation to a record and returns the result.
	Transform(ctx context.Context, record Record) (Record, error)
}

// Filter defines the interface for record filtering.
// Filters determine whether a record should be included in the output.
type Filter interface {
	// ShouldInclude returns true if the record should be included in the output.
	ShouldInclude(ctx context.Context, record Record) (bool, error)
}

// Stage is one dataset-wide step of the pipeline. A stage consumes its input in full and
// returns a new Dataset.
type Stage interface {
	// Name returns the stable transformation context name used in logs and run stats.
	Name() string
	// Apply runs the stage over the whole dataset.
	Apply(ctx context.Context, in *Dataset) (*Dataset, error)
}

// DatasetSource produces the initial Dataset of a pipeline.
type DatasetSource interface {
	Name() string
	Load(ctx context.Context) (*Dataset, error)
}

// DatasetSink persists the final Dataset of a pipeline.
type DatasetSink interface {
	Name() string
	WriteDataset(ctx context.Context, ds *Dataset) (WriteSummary, error)
}

// WriteSummary describes what a DatasetSink wrote.
type WriteSummary struct {
	RecordsWritten int64
	// Files maps each partition path (for example "region=us") to the object keys written.
	Files map[string][]string
}
