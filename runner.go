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
	"io"

	"github.com/sirupsen/logrus"

	"github.com/aaronlmathis/trendetl/catalog"
	"github.com/aaronlmathis/trendetl/config"
	"github.com/aaronlmathis/trendetl/job"
	"github.com/aaronlmathis/trendetl/readers"
	"github.com/aaronlmathis/trendetl/storage"
	"github.com/aaronlmathis/trendetl/transform"
	"github.com/aaronlmathis/trendetl/writers"
)

// Runner assembles and runs the normalization job described by a config.Config.
type Runner struct {
	cfg     *config.Config
	catalog catalog.Catalog
	runs    job.RunStore
	logger  logrus.FieldLogger
	closers []io.Closer
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithCatalog uses cat instead of the catalog named in the config.
func WithCatalog(cat catalog.Catalog) RunnerOption {
	return func(r *Runner) {
		r.catalog = cat
	}
}

// WithRunStore uses store instead of the run store named in the config.
func WithRunStore(store job.RunStore) RunnerOption {
	return func(r *Runner) {
		r.runs = store
	}
}

// WithRunnerLogger sets the logger passed to every stage.
func WithRunnerLogger(logger logrus.FieldLogger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner validates cfg and opens the catalog and the run store it names.
func NewRunner(ctx context.Context, cfg *config.Config, options ...RunnerOption) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{cfg: cfg, logger: logrus.StandardLogger()}
	for _, opt := range options {
		opt(r)
	}

	if r.catalog == nil {
		cat, err := openCatalog(ctx, cfg.Catalog)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.catalog = cat
		if c, ok := cat.(io.Closer); ok {
			r.closers = append(r.closers, c)
		}
	}

	if r.runs == nil {
		switch cfg.RunStore.Type {
		case "mongo":
			store, err := job.NewMongoRunStore(ctx,
				job.WithMongoURI(cfg.RunStore.URI),
				job.WithMongoDatabase(cfg.RunStore.Database),
				job.WithMongoCollection(cfg.RunStore.Collection),
			)
			if err != nil {
				r.Close()
				return nil, err
			}
			r.runs = store
			r.closers = append(r.closers, closerFunc(func() error { return store.Close(context.Background()) }))
		case "postgres":
			opts := []job.PostgresRunStoreOption{job.WithPostgresDSN(cfg.RunStore.URI)}
			if cfg.RunStore.Collection != "" {
				opts = append(opts, job.WithRunTable(cfg.RunStore.Collection))
			}
			store, err := job.NewPostgresRunStore(ctx, opts...)
			if err != nil {
				r.Close()
				return nil, err
			}
			r.runs = store
			r.closers = append(r.closers, store)
		default:
			r.runs = job.NewMemoryRunStore()
		}
	}
	return r, nil
}

func openCatalog(ctx context.Context, cfg config.CatalogConfig) (catalog.Catalog, error) {
	switch cfg.Type {
	case "postgres":
		return catalog.NewPostgresCatalog(ctx,
			catalog.WithPostgresDSN(cfg.DSN),
			catalog.WithCatalogTables(cfg.TablesTable, cfg.ColumnsTable),
		)
	case "file":
		return catalog.LoadFileCatalog(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown catalog type %q", cfg.Type)
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Close releases the catalog and run store connections opened by NewRunner.
func (r *Runner) Close() error {
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	r.closers = nil
	return first
}

// RunStore returns the store the runner records runs in.
func (r *Runner) RunStore() job.RunStore { return r.runs }

func (r *Runner) source() *readers.CatalogSource {
	s3opts := r.cfg.S3Options()
	return readers.NewCatalogSource(r.catalog, r.cfg.Source.Database, r.cfg.Source.Table,
		readers.WithPredicate(r.cfg.Source.Predicate),
		readers.WithSourceWorkers(r.cfg.Workers),
		readers.WithSourceLogger(r.logger),
		readers.WithStoreOpener(func(ctx context.Context, location string) (storage.Store, error) {
			return storage.Open(ctx, location, s3opts...)
		}),
	)
}

// Validate checks the config and resolves the source table and predicate against the catalog
// without reading data.
func (r *Runner) Validate(ctx context.Context) (*catalog.TableEntry, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}
	entry, _, err := r.source().Resolve(ctx)
	if err != nil {
		return nil, &StageError{Stage: "datasource0", Err: err}
	}
	return entry, nil
}

// Run executes the job once and returns the recorded run. The returned error is the pipeline
// error, if any; the run is recorded as failed in that case.
func (r *Runner) Run(ctx context.Context) (*job.Run, error) {
	cfg := r.cfg
	j := job.New(cfg.Job, r.runs, job.WithLogger(r.logger))
	run, err := j.Start(ctx)
	if err != nil {
		return nil, err
	}
	logger := r.logger.WithFields(logrus.Fields{"job": cfg.Job, "run_id": run.ID})

	var report *writers.LossReport
	mapper, pipeline, err := r.build(ctx, logger, run.ID, j, &report)
	if err != nil {
		return r.finish(ctx, j, err)
	}

	result, err := pipeline.Execute(ctx)
	losses := mapper.Stats().Losses
	j.RecordLosses(losses)
	if total := mapper.Stats().TotalLosses(); total > 0 {
		fields := logrus.Fields{"lost_values": total}
		for field, n := range losses {
			fields["lost_"+field] = n
		}
		logger.WithFields(fields).Warn("values nulled by type coercion")
	}
	if report != nil && err == nil {
		if saveErr := report.Save(ctx); saveErr != nil {
			err = saveErr
		}
	}
	if err != nil {
		return r.finish(ctx, j, err)
	}
	j.RecordOutput(result.Summary.RecordsWritten, result.Summary.Files)
	return r.finish(ctx, j, nil)
}

func (r *Runner) finish(ctx context.Context, j *job.Job, runErr error) (*job.Run, error) {
	run, err := j.Finish(ctx, runErr)
	if runErr != nil {
		return run, runErr
	}
	return run, err
}

// build wires source, stages and sink for one run.
func (r *Runner) build(ctx context.Context, logger logrus.FieldLogger, runID string, j *job.Job,
	report **writers.LossReport) (*transform.SchemaMapper, *Pipeline, error) {
	cfg := r.cfg

	rules, err := cfg.MappingRules()
	if err != nil {
		return nil, nil, err
	}
	mapperOpts := []transform.MapperOption{
		transform.WithMapperWorkers(cfg.Workers),
		transform.WithMapperLogger(logger),
	}
	if cfg.QualityReport != "" {
		store, err := storage.Open(ctx, cfg.QualityReport, cfg.S3Options()...)
		if err != nil {
			return nil, nil, err
		}
		*report = writers.NewLossReport(store, runID+".jsonl")
		mapperOpts = append(mapperOpts, transform.WithLossHandler(*report))
	}
	mapper, err := transform.NewSchemaMapper(rules, mapperOpts...)
	if err != nil {
		return nil, nil, err
	}

	consolidator, err := transform.NewConsolidator(cfg.Coalesce, transform.WithPartitionKeys(cfg.Sink.PartitionKeys...))
	if err != nil {
		return nil, nil, err
	}

	codec, err := writers.ParseCompression(cfg.Sink.Compression)
	if err != nil {
		return nil, nil, err
	}
	mode, err := writers.ParseSaveMode(cfg.Sink.Mode)
	if err != nil {
		return nil, nil, err
	}
	sinkStore, err := storage.Open(ctx, cfg.Sink.Path, cfg.S3Options()...)
	if err != nil {
		return nil, nil, err
	}
	sink := writers.NewPartitionedWriter(sinkStore,
		writers.WithSinkPartitionKeys(cfg.Sink.PartitionKeys...),
		writers.WithSinkCompression(codec),
		writers.WithSaveMode(mode),
		writers.WithSinkWorkers(cfg.Workers),
		writers.WithSinkLogger(logger),
	)

	pipeline, err := NewPipeline().
		From(r.source()).
		Then(
			mapper,
			transform.NewChoiceResolver(transform.WithChoiceWorkers(cfg.Workers)),
			transform.NewNullFieldPruner(transform.WithPrunerWorkers(cfg.Workers)),
			consolidator,
		).
		To(sink).
		WithLogger(logger).
		OnStage(j.RecordStage).
		Build()
	if err != nil {
		return nil, nil, err
	}
	return mapper, pipeline, nil
}
