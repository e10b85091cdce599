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
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aaronlmathis/trendetl/job"
)

// The Pipeline runs a source, an ordered list of stages and a sink, strictly in sequence.
// Each stage consumes the whole Dataset of the previous one; any failure aborts the run.
//
// Example usage:
//
//   pipeline, err := trendetl.NewPipeline().
//       From(source).
//       Then(mapper, resolver, pruner, consolidator).
//       To(sink).
//       Build()
//   if err != nil { log.Fatal(err) }
//   result, err := pipeline.Execute(ctx)

// PipelineBuilder provides a fluent API for constructing pipelines.
type PipelineBuilder struct {
	pipeline *Pipeline
}

// NewPipeline creates a new PipelineBuilder.
func NewPipeline() *PipelineBuilder {
	return &PipelineBuilder{
		pipeline: &Pipeline{
			stages: make([]Stage, 0),
			logger: logrus.StandardLogger(),
		},
	}
}

// From sets the source of the pipeline.
func (pb *PipelineBuilder) From(source DatasetSource) *PipelineBuilder {
	pb.pipeline.source = source
	return pb
}

// Then appends stages, run in the order given.
func (pb *PipelineBuilder) Then(stages ...Stage) *PipelineBuilder {
	pb.pipeline.stages = append(pb.pipeline.stages, stages...)
	return pb
}

// To sets the sink of the pipeline.
func (pb *PipelineBuilder) To(sink DatasetSink) *PipelineBuilder {
	pb.pipeline.sink = sink
	return pb
}

// WithLogger sets the logger used for stage progress.
func (pb *PipelineBuilder) WithLogger(logger logrus.FieldLogger) *PipelineBuilder {
	pb.pipeline.logger = logger
	return pb
}

// OnStage registers a callback receiving the stats of every completed step, including the
// source and the sink.
func (pb *PipelineBuilder) OnStage(fn func(job.StageStats)) *PipelineBuilder {
	pb.pipeline.onStage = fn
	return pb
}

// Build validates and constructs the Pipeline.
func (pb *PipelineBuilder) Build() (*Pipeline, error) {
	if pb.pipeline.source == nil {
		return nil, fmt.Errorf("pipeline requires a data source")
	}
	if pb.pipeline.sink == nil {
		return nil, fmt.Errorf("pipeline requires a data sink")
	}
	seen := map[string]bool{pb.pipeline.source.Name(): true, pb.pipeline.sink.Name(): true}
	for _, s := range pb.pipeline.stages {
		if seen[s.Name()] {
			return nil, fmt.Errorf("duplicate stage name %q", s.Name())
		}
		seen[s.Name()] = true
	}
	return pb.pipeline, nil
}

// Pipeline is a linear batch pipeline.
type Pipeline struct {
	source  DatasetSource
	stages  []Stage
	sink    DatasetSink
	logger  logrus.FieldLogger
	onStage func(job.StageStats)
}

// Result describes a completed pipeline execution.
type Result struct {
	Stages  []job.StageStats
	Schema  Schema // schema of the Dataset handed to the sink
	Summary WriteSummary
}

// Execute runs the pipeline. Errors are returned as *StageError naming the failing step.
func (p *Pipeline) Execute(ctx context.Context) (*Result, error) {
	result := &Result{}

	start := time.Now()
	ds, err := p.source.Load(ctx)
	if err != nil {
		return result, &StageError{Stage: p.source.Name(), Err: err}
	}
	p.record(result, job.StageStats{Stage: p.source.Name(), RecordsOut: int64(ds.Len()), StartTime: start})

	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return result, &StageError{Stage: stage.Name(), Err: err}
		}
		start := time.Now()
		in := int64(ds.Len())
		out, err := stage.Apply(ctx, ds)
		if err != nil {
			return result, &StageError{Stage: stage.Name(), Err: err}
		}
		ds = out
		p.record(result, job.StageStats{Stage: stage.Name(), RecordsIn: in, RecordsOut: int64(ds.Len()), StartTime: start})
	}

	start = time.Now()
	summary, err := p.sink.WriteDataset(ctx, ds)
	if err != nil {
		return result, &StageError{Stage: p.sink.Name(), Err: err}
	}
	result.Schema = ds.Schema
	result.Summary = summary
	p.record(result, job.StageStats{Stage: p.sink.Name(), RecordsIn: int64(ds.Len()), RecordsOut: summary.RecordsWritten, StartTime: start})
	return result, nil
}

// record completes stats, logs them and hands them to the callback.
func (p *Pipeline) record(result *Result, stats job.StageStats) {
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	result.Stages = append(result.Stages, stats)

	p.logger.WithFields(logrus.Fields{
		"stage":       stats.Stage,
		"records_in":  stats.RecordsIn,
		"records_out": stats.RecordsOut,
		"duration":    stats.Duration,
	}).Info("stage complete")

	if p.onStage != nil {
		p.onStage(stats)
	}
}
