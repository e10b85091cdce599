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
	"errors"
	"fmt"
)

// Package core defines the error handling types for trendetl.
//
// Configuration errors and sink I/O errors abort a run and are matched with errors.Is against
// the sentinels below. Coercion problems are not errors: they are reported as CoercionLoss
// values to a LossHandler and the value is nulled.

var (
	// ErrSourceNotFound is returned when a catalog reference names no table.
	ErrSourceNotFound = errors.New("source not found")
	// ErrPredicate is returned when a pushdown predicate is malformed or names unknown columns.
	ErrPredicate = errors.New("predicate error")
	// ErrMapping is returned for an invalid schema mapping table.
	ErrMapping = errors.New("invalid mapping table")
	// ErrSinkWrite is returned for any I/O failure while writing the output.
	ErrSinkWrite = errors.New("sink write error")
)

// StageError records which pipeline stage aborted a run.
type StageError struct {
	Stage string // transformation context name of the failing stage
	Err   error  // Underlying error
}

// Error returns the error string for StageError.
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error for StageError.
func (e *StageError) Unwrap() error {
	return e.Err
}

// CoercionLoss describes a non-null input value that was nulled because it could not be
// coerced to its mapped type.
type CoercionLoss struct {
	SourceField string      `json:"source_field"`
	TargetField string      `json:"target_field"`
	SourceType  FieldType   `json:"source_type"`
	TargetType  FieldType   `json:"target_type"`
	Value       interface{} `json:"value"`
	Reason      string      `json:"reason"`
}

// LossHandler receives coercion losses. Implementations must be safe for concurrent use;
// splits are mapped in parallel.
type LossHandler interface {
	HandleLoss(ctx context.Context, loss CoercionLoss)
}

// LossHandlerFunc is a function adapter for the LossHandler interface.
type LossHandlerFunc func(ctx context.Context, loss CoercionLoss)

// HandleLoss implements the LossHandler interface for LossHandlerFunc.
func (f LossHandlerFunc) HandleLoss(ctx context.Context, loss CoercionLoss) {
	f(ctx, loss)
}
