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
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalStore is a Store backed by a directory on the local filesystem.
type LocalStore struct {
	root string
}

// NewLocalStore creates a LocalStore rooted at dir. The directory is created on first Put.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{root: dir}
}

// Location implements Store.
func (l *LocalStore) Location() string { return l.root }

func (l *LocalStore) path(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

// List implements Store. A missing root directory holds no objects.
func (l *LocalStore) List(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object
	err := filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == l.root {
				return fs.SkipDir
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		// skip in-flight temp files from Put
		if strings.HasPrefix(d.Name(), ".tmp-") || !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, Object{Key: key, Size: info.Size(), LastModified: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, &StoreError{Op: "list", Key: prefix, Err: err}
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// Open implements Store.
func (l *LocalStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(l.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = ErrNotExist
		}
		return nil, &StoreError{Op: "open", Key: key, Err: err}
	}
	return f, nil
}

// Put implements Store. The object is written to a temp file and renamed into place, so
// readers never observe a partial object.
func (l *LocalStore) Put(ctx context.Context, key string, body io.Reader) error {
	dst := l.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return &StoreError{Op: "put", Key: key, Err: err}
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return &StoreError{Op: "put", Key: key, Err: err}
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return &StoreError{Op: "put", Key: key, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &StoreError{Op: "put", Key: key, Err: err}
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return &StoreError{Op: "put", Key: key, Err: err}
	}
	return nil
}

// DeletePrefix implements Store.
func (l *LocalStore) DeletePrefix(ctx context.Context, prefix string) error {
	objects, err := l.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, obj := range objects {
		if err := os.Remove(l.path(obj.Key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return &StoreError{Op: "delete", Key: obj.Key, Err: err}
		}
	}
	return nil
}
