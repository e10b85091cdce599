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
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Package job records job runs: when they started and ended, how each stage went and whether
// the run succeeded.

// ErrRunNotFound is returned by RunStore.Get for unknown run IDs.
var ErrRunNotFound = errors.New("run not found")

// Status is the state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// StageStats describes one completed stage of a run.
type StageStats struct {
	Stage      string        `bson:"stage" json:"stage"`
	RecordsIn  int64         `bson:"records_in" json:"records_in"`
	RecordsOut int64         `bson:"records_out" json:"records_out"`
	StartTime  time.Time     `bson:"start_time" json:"start_time"`
	EndTime    time.Time     `bson:"end_time" json:"end_time"`
	Duration   time.Duration `bson:"duration" json:"duration"`
}

// Run is one execution of a job.
type Run struct {
	ID             string              `bson:"_id" json:"id"`
	Name           string              `bson:"name" json:"name"`
	Status         Status              `bson:"status" json:"status"`
	StartTime      time.Time           `bson:"start_time" json:"start_time"`
	EndTime        time.Time           `bson:"end_time,omitempty" json:"end_time,omitempty"`
	Stages         []StageStats        `bson:"stages" json:"stages"`
	Losses         map[string]int64    `bson:"losses,omitempty" json:"losses,omitempty"`
	RecordsWritten int64               `bson:"records_written" json:"records_written"`
	Files          map[string][]string `bson:"files,omitempty" json:"files,omitempty"`
	Error          string              `bson:"error,omitempty" json:"error,omitempty"`
}

// Clone returns a deep copy of the run.
func (r *Run) Clone() *Run {
	cp := *r
	cp.Stages = append([]StageStats(nil), r.Stages...)
	if r.Losses != nil {
		cp.Losses = make(map[string]int64, len(r.Losses))
		for k, v := range r.Losses {
			cp.Losses[k] = v
		}
	}
	if r.Files != nil {
		cp.Files = make(map[string][]string, len(r.Files))
		for k, v := range r.Files {
			cp.Files[k] = append([]string(nil), v...)
		}
	}
	return &cp
}

// TotalLosses returns the number of coercion losses over all fields.
func (r *Run) TotalLosses() int64 {
	var n int64
	for _, v := range r.Losses {
		n += v
	}
	return n
}

// RunStore persists runs.
type RunStore interface {
	// Save creates or replaces the run with run.ID.
	Save(ctx context.Context, run *Run) error
	// Get returns the run with id, or an error matching ErrRunNotFound.
	Get(ctx context.Context, id string) (*Run, error)
}

// MemoryRunStore keeps runs in memory.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

// NewMemoryRunStore creates an empty MemoryRunStore.
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[string]*Run)}
}

// Save implements RunStore.
func (m *MemoryRunStore) Save(ctx context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run.Clone()
	return nil
}

// Get implements RunStore.
func (m *MemoryRunStore) Get(ctx context.Context, id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run.Clone(), nil
}

// Runs returns all runs ordered by start time.
func (m *MemoryRunStore) Runs() []*Run {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Run, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// Job tracks a single run from Start to Finish.
type Job struct {
	name   string
	store  RunStore
	logger logrus.FieldLogger
	now    func() time.Time

	mu  sync.Mutex
	run *Run
}

// JobOption represents a configuration function for Job.
type JobOption func(*Job)

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) JobOption {
	return func(j *Job) {
		j.logger = logger
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) JobOption {
	return func(j *Job) {
		j.now = now
	}
}

// New creates a job. A nil store keeps runs in memory.
func New(name string, store RunStore, options ...JobOption) *Job {
	j := &Job{name: name, store: store}
	for _, option := range options {
		option(j)
	}
	if j.store == nil {
		j.store = NewMemoryRunStore()
	}
	if j.logger == nil {
		j.logger = logrus.StandardLogger()
	}
	if j.now == nil {
		j.now = time.Now
	}
	return j
}

// Name returns the job name.
func (j *Job) Name() string { return j.name }

// Start begins a new run and saves it as running.
func (j *Job) Start(ctx context.Context) (*Run, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.run != nil && j.run.Status == StatusRunning {
		return nil, fmt.Errorf("job %s: run %s already started", j.name, j.run.ID)
	}
	j.run = &Run{
		ID:        uuid.NewString(),
		Name:      j.name,
		Status:    StatusRunning,
		StartTime: j.now().UTC(),
	}
	if err := j.store.Save(ctx, j.run); err != nil {
		return nil, fmt.Errorf("job %s: save run: %w", j.name, err)
	}
	j.logger.WithFields(logrus.Fields{"job": j.name, "run_id": j.run.ID}).Info("run started")
	return j.run.Clone(), nil
}

// RecordStage appends the stats of a completed stage to the current run.
func (j *Job) RecordStage(stats StageStats) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.run != nil {
		j.run.Stages = append(j.run.Stages, stats)
	}
}

// RecordLosses adds coercion loss counts per field to the current run.
func (j *Job) RecordLosses(losses map[string]int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.run == nil || len(losses) == 0 {
		return
	}
	if j.run.Losses == nil {
		j.run.Losses = make(map[string]int64, len(losses))
	}
	for k, v := range losses {
		j.run.Losses[k] += v
	}
}

// RecordOutput records what the sink wrote.
func (j *Job) RecordOutput(records int64, files map[string][]string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.run != nil {
		j.run.RecordsWritten = records
		j.run.Files = files
	}
}

// Finish ends the current run as succeeded, or failed when runErr is not nil, and saves it.
func (j *Job) Finish(ctx context.Context, runErr error) (*Run, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.run == nil {
		return nil, fmt.Errorf("job %s: no run started", j.name)
	}
	j.run.EndTime = j.now().UTC()
	j.run.Status = StatusSucceeded
	if runErr != nil {
		j.run.Status = StatusFailed
		j.run.Error = runErr.Error()
	}
	if err := j.store.Save(ctx, j.run); err != nil {
		return j.run.Clone(), fmt.Errorf("job %s: save run: %w", j.name, err)
	}

	entry := j.logger.WithFields(logrus.Fields{
		"job":      j.name,
		"run_id":   j.run.ID,
		"status":   j.run.Status,
		"duration": j.run.EndTime.Sub(j.run.StartTime),
	})
	if runErr != nil {
		entry.WithError(runErr).Error("run failed")
	} else {
		entry.Info("run finished")
	}
	return j.run.Clone(), nil
}
