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

package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestJob_SucceededRun(t *testing.T) {
	store := NewMemoryRunStore()
	logger, hook := test.NewNullLogger()
	j := New("raw_statistics", store, WithLogger(logger), WithClock(fixedClock()))
	ctx := context.Background()

	run, err := j.Start(ctx)
	require.NoError(t, err)
	_, err = uuid.Parse(run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, run.Status)

	saved, err := store.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, saved.Status)

	j.RecordStage(StageStats{Stage: "datasource0", RecordsOut: 10})
	j.RecordStage(StageStats{Stage: "applymapping1", RecordsIn: 10, RecordsOut: 10})
	j.RecordLosses(map[string]int64{"category_id": 2})
	j.RecordLosses(map[string]int64{"category_id": 1, "views": 1})
	j.RecordOutput(10, map[string][]string{"region=us": {"region=us/part-00000.parquet"}})

	done, err := j.Finish(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, done.Status)
	assert.Equal(t, time.Second, done.EndTime.Sub(done.StartTime))
	assert.Len(t, done.Stages, 2)
	assert.Equal(t, int64(3), done.Losses["category_id"])
	assert.Equal(t, int64(4), done.TotalLosses())

	saved, err = store.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, done, saved)

	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
	assert.Equal(t, "run finished", hook.LastEntry().Message)
}

func TestJob_FailedRun(t *testing.T) {
	store := NewMemoryRunStore()
	logger, hook := test.NewNullLogger()
	j := New("raw_statistics", store, WithLogger(logger))
	ctx := context.Background()

	_, err := j.Start(ctx)
	require.NoError(t, err)
	_, err = j.Start(ctx)
	assert.Error(t, err, "a running job cannot start again")

	done, err := j.Finish(ctx, errors.New("sink write: disk full"))
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, done.Status)
	assert.Equal(t, "sink write: disk full", done.Error)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)

	_, err = j.Start(ctx)
	require.NoError(t, err, "a finished job can start a new run")
	assert.Len(t, store.Runs(), 2)
}

func TestJob_FinishWithoutStart(t *testing.T) {
	_, err := New("x", nil).Finish(context.Background(), nil)
	assert.Error(t, err)
}

func TestMemoryRunStore_IsolatesCopies(t *testing.T) {
	store := NewMemoryRunStore()
	ctx := context.Background()
	run := &Run{ID: "r1", Losses: map[string]int64{"a": 1}}
	require.NoError(t, store.Save(ctx, run))
	run.Losses["a"] = 5

	got, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Losses["a"])

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestMongoRunStoreOptions(t *testing.T) {
	opts := (&MongoRunStoreOptions{}).withDefaults()
	assert.Equal(t, "trendetl", opts.Database)
	assert.Equal(t, "job_runs", opts.Collection)
	assert.Equal(t, 30*time.Second, opts.Timeout)

	_, err := opts.clientOptions()
	assert.Error(t, err, "URI is required")

	opts.URI = "mongodb://localhost:27017"
	clientOpts, err := opts.clientOptions()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), *clientOpts.MaxPoolSize)

	opts.URI = "postgres://nope"
	_, err = opts.clientOptions()
	assert.Error(t, err)

	_, err = NewMongoRunStore(context.Background())
	var merr *MongoStoreError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "build_options", merr.Op)
}

func TestPostgresRunStore_Queries(t *testing.T) {
	store := &PostgresRunStore{opts: (&PostgresRunStoreOptions{}).withDefaults()}
	assert.Equal(t,
		`INSERT INTO "job_runs" (id, name, status, start_time, end_time, records_written, error, document) `+
			`VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (id) DO UPDATE SET `+
			`name = EXCLUDED.name, status = EXCLUDED.status, start_time = EXCLUDED.start_time, `+
			`end_time = EXCLUDED.end_time, records_written = EXCLUDED.records_written, `+
			`error = EXCLUDED.error, document = EXCLUDED.document`,
		store.upsertQuery())
	assert.Equal(t, `SELECT document FROM "job_runs" WHERE id = $1`, store.selectQuery())
	assert.Contains(t, store.createQuery(), `CREATE TABLE IF NOT EXISTS "job_runs"`)

	_, err := NewPostgresRunStore(context.Background())
	var perr *PostgresStoreError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "validate", perr.Op)
}

func TestRunArgs(t *testing.T) {
	run := &Run{ID: "r1", Name: "raw_statistics", Status: StatusRunning, StartTime: time.Unix(10, 0).UTC()}
	args, err := runArgs(run)
	require.NoError(t, err)
	require.Len(t, args, len(runColumns))
	assert.Nil(t, args[4], "a running run has no end time")
	assert.Nil(t, args[6])
	assert.Contains(t, args[7], `"status":"running"`)

	run.EndTime = run.StartTime.Add(time.Minute)
	run.Error = "boom"
	args, err = runArgs(run)
	require.NoError(t, err)
	assert.Equal(t, run.EndTime, args[4])
	assert.Equal(t, "boom", args[6])
}
