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

package trendetl

import (
	"github.com/aaronlmathis/trendetl/core"
)

// Package trendetl defines the public types of the trendetl batch job.
//
// trendetl reads a cataloged, region partitioned table, keeps the records matching a pushdown
// predicate, normalizes their schema and writes them as partitioned Parquet. The types below
// re-export the core interfaces so pipelines can be assembled without importing core.

// Record represents a single data record in the pipeline.
type Record = core.Record

// Dataset is the unit passed between stages.
type Dataset = core.Dataset

// Schema is an ordered list of typed fields.
type Schema = core.Schema

// Stage is one dataset-wide step of the pipeline.
type Stage = core.Stage

// StageFunc adapts a function to Stage.
type StageFunc = core.StageFunc

// DatasetSource produces the initial Dataset.
type DatasetSource = core.DatasetSource

// DatasetSink persists the final Dataset.
type DatasetSink = core.DatasetSink

// WriteSummary describes what a sink wrote.
type WriteSummary = core.WriteSummary

// StageError tags the stage that aborted a run.
type StageError = core.StageError
