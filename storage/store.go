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

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// Package storage provides object storage for trendetl source tables and sink output.
//
// A Store is rooted at a location (a local directory or an S3 bucket and prefix). Keys are
// slash-separated paths relative to that root, e.g. "region=us/part-00000.snappy.parquet".

// ErrNotExist is returned when an object does not exist.
var ErrNotExist = errors.New("object does not exist")

// StoreError provides structured error information for storage operations
type StoreError struct {
	Op  string // Operation that failed (e.g., "list", "open", "put", "delete")
	Key string // Object key, if any
	Err error  // Underlying error
}

func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Object describes a stored object.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
}

// Store is a minimal object store.
type Store interface {
	// List returns the objects whose key starts with prefix, sorted by key.
	List(ctx context.Context, prefix string) ([]Object, error)
	// Open returns the content of an object. Missing objects yield an error matching ErrNotExist.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Put creates or replaces an object.
	Put(ctx context.Context, key string, body io.Reader) error
	// DeletePrefix removes every object whose key starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
	// Location returns the root location of the store.
	Location() string
}

// Location is a parsed storage location.
type Location struct {
	Scheme string // "s3" or "file"
	Bucket string // S3 bucket; empty for local paths
	Path   string // S3 key prefix without leading slash, or a local directory
}

func (l Location) String() string {
	if l.Scheme == "s3" {
		return "s3://" + l.Bucket + "/" + l.Path
	}
	return l.Path
}

// ParseLocation parses "s3://bucket/prefix", "file:///dir" or a plain local path.
func ParseLocation(location string) (Location, error) {
	if location == "" {
		return Location{}, errors.New("empty storage location")
	}
	if !strings.Contains(location, "://") {
		return Location{Scheme: "file", Path: filepath.Clean(location)}, nil
	}
	u, err := url.Parse(location)
	if err != nil {
		return Location{}, fmt.Errorf("parse storage location %q: %w", location, err)
	}
	switch u.Scheme {
	case "s3", "s3a":
		if u.Host == "" {
			return Location{}, fmt.Errorf("storage location %q has no bucket", location)
		}
		prefix := strings.TrimPrefix(u.Path, "/")
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		return Location{Scheme: "s3", Bucket: u.Host, Path: prefix}, nil
	case "file":
		return Location{Scheme: "file", Path: filepath.Clean(u.Path)}, nil
	default:
		return Location{}, fmt.Errorf("unsupported storage scheme %q", u.Scheme)
	}
}

// Open returns the Store for a location. S3 options are ignored for local paths.
func Open(ctx context.Context, location string, opts ...S3Option) (Store, error) {
	loc, err := ParseLocation(location)
	if err != nil {
		return nil, &StoreError{Op: "open_store", Err: err}
	}
	if loc.Scheme == "s3" {
		return NewS3Store(ctx, loc.Bucket, loc.Path, opts...)
	}
	return NewLocalStore(loc.Path), nil
}

// JoinKey joins key segments with slashes, dropping empty segments.
func JoinKey(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "/")
}
