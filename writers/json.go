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
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/aaronlmathis/trendetl/core"
	"github.com/aaronlmathis/trendetl/storage"
)

// JSONWriter implements core.DataSink for JSON lines output
type JSONWriter struct {
	writer io.Writer
	closer io.Closer
}

// NewJSONWriter creates a new JSON writer for line-delimited JSON output
func NewJSONWriter(w io.WriteCloser) *JSONWriter {
	return &JSONWriter{
		writer: w,
		closer: w,
	}
}

// Write implements the core.DataSink interface. Choice values are written as their original value.
func (j *JSONWriter) Write(ctx context.Context, record core.Record) error {
	out := make(map[string]interface{}, len(record))
	for k, v := range record {
		if cv, ok := v.(*core.ChoiceValue); ok {
			v = cv.Value()
		}
		out[k] = v
	}
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to marshal record to JSON: %w", err)
	}
	data = append(data, '\n')
	if _, err := j.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON data: %w", err)
	}
	return nil
}

// Flush implements the core.DataSink interface
func (j *JSONWriter) Flush() error {
	if flusher, ok := j.writer.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}

// Close implements the core.DataSink interface
func (j *JSONWriter) Close() error {
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}

// LossReport implements core.LossHandler. It collects coercion losses and saves them as one
// JSON lines object, one loss per line.
type LossReport struct {
	store  storage.Store
	key    string
	mu     sync.Mutex
	losses []core.CoercionLoss
}

// NewLossReport creates a report saved to key in store.
func NewLossReport(store storage.Store, key string) *LossReport {
	return &LossReport{store: store, key: key}
}

// HandleLoss implements core.LossHandler. It is safe for concurrent use.
func (r *LossReport) HandleLoss(ctx context.Context, loss core.CoercionLoss) {
	r.mu.Lock()
	r.losses = append(r.losses, loss)
	r.mu.Unlock()
}

// Len returns the number of collected losses.
func (r *LossReport) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.losses)
}

// Save writes the collected losses. Nothing is written when there are none.
func (r *LossReport) Save(ctx context.Context) error {
	r.mu.Lock()
	losses := make([]core.CoercionLoss, len(r.losses))
	copy(losses, r.losses)
	r.mu.Unlock()
	if len(losses) == 0 {
		return nil
	}

	var buf bytes.Buffer
	w := NewJSONWriter(nopCloser{&buf})
	for _, loss := range losses {
		rec := core.Record{
			"source_field": loss.SourceField,
			"target_field": loss.TargetField,
			"source_type":  string(loss.SourceType),
			"target_type":  string(loss.TargetType),
			"value":        fmt.Sprintf("%v", loss.Value),
			"reason":       loss.Reason,
		}
		if err := w.Write(ctx, rec); err != nil {
			return &SinkError{Op: "encode", Key: r.key, Err: err}
		}
	}
	if err := w.Close(); err != nil {
		return &SinkError{Op: "encode", Key: r.key, Err: err}
	}
	if err := r.store.Put(ctx, r.key, &buf); err != nil {
		return &SinkError{Op: "put", Key: r.key, Err: err}
	}
	return nil
}
