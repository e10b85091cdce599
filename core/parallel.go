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
	"runtime"

	"golang.org/x/sync/errgroup"
)

// DefaultWorkers returns the worker count used when none is configured.
func DefaultWorkers() int {
	return runtime.NumCPU()
}

// ForEachSplit calls fn for every split with at most workers calls in flight.
// The first error cancels the context passed to the remaining calls and is returned.
func ForEachSplit(ctx context.Context, splits []Split, workers int, fn func(ctx context.Context, i int, split Split) error) error {
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, s := range splits {
		i, s := i, s
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i, s)
		})
	}
	return g.Wait()
}

// MapSplits applies fn to every split in parallel and returns the results in input order.
func MapSplits(ctx context.Context, splits []Split, workers int, fn func(ctx context.Context, split Split) (Split, error)) ([]Split, error) {
	out := make([]Split, len(splits))
	err := ForEachSplit(ctx, splits, workers, func(ctx context.Context, i int, s Split) error {
		res, err := fn(ctx, s)
		if err != nil {
			return err
		}
		out[i] = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
