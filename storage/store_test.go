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
	"bytes"
	"context"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	loc, err := ParseLocation("s3://de-youtube-reccomendation-cleaned-data/youtube/raw_statistics/")
	require.NoError(t, err)
	assert.Equal(t, "s3", loc.Scheme)
	assert.Equal(t, "de-youtube-reccomendation-cleaned-data", loc.Bucket)
	assert.Equal(t, "youtube/raw_statistics/", loc.Path)

	loc, err = ParseLocation("s3://bucket/no/slash")
	require.NoError(t, err)
	assert.Equal(t, "no/slash/", loc.Path)

	loc, err = ParseLocation("/tmp/out")
	require.NoError(t, err)
	assert.Equal(t, "file", loc.Scheme)
	assert.Equal(t, "/tmp/out", loc.Path)

	loc, err = ParseLocation("file:///var/data")
	require.NoError(t, err)
	assert.Equal(t, "/var/data", loc.Path)

	_, err = ParseLocation("gs://bucket/x")
	assert.Error(t, err)
	_, err = ParseLocation("s3:///x")
	assert.Error(t, err)
}

func TestJoinKey(t *testing.T) {
	assert.Equal(t, "region=us/part-00000.parquet", JoinKey("", "region=us/", "/part-00000.parquet"))
}

func exerciseStore(t *testing.T, store Store) {
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "region=us/b.json", strings.NewReader("b")))
	require.NoError(t, store.Put(ctx, "region=us/a.json", strings.NewReader("a")))
	require.NoError(t, store.Put(ctx, "region=gb/c.json", strings.NewReader("c")))

	objs, err := store.List(ctx, "region=us/")
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "region=us/a.json", objs[0].Key)
	assert.Equal(t, "region=us/b.json", objs[1].Key)

	rc, err := store.Open(ctx, "region=gb/c.json")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "c", string(data))

	// overwrite in place
	require.NoError(t, store.Put(ctx, "region=gb/c.json", strings.NewReader("c2")))
	rc, err = store.Open(ctx, "region=gb/c.json")
	require.NoError(t, err)
	data, _ = io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "c2", string(data))

	_, err = store.Open(ctx, "region=ca/missing.json")
	assert.ErrorIs(t, err, ErrNotExist)

	require.NoError(t, store.DeletePrefix(ctx, "region=us/"))
	objs, err = store.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, "region=gb/c.json", objs[0].Key)
}

func TestLocalStore(t *testing.T) {
	exerciseStore(t, NewLocalStore(t.TempDir()))
}

func TestLocalStore_MissingRootIsEmpty(t *testing.T) {
	store := NewLocalStore(filepath.Join(t.TempDir(), "does-not-exist"))
	objs, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, objs)
}

func TestOpen_Local(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(context.Background(), dir)
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, store)
	assert.Equal(t, dir, store.Location())
}

func TestS3Store(t *testing.T) {
	fake := newFakeS3()
	store := NewS3StoreWithClient(fake, "bucket", "youtube/raw_statistics")
	assert.Equal(t, "s3://bucket/youtube/raw_statistics/", store.Location())

	exerciseStore(t, store)

	// keys are stored under the root prefix
	_, ok := fake.objects["youtube/raw_statistics/region=gb/c.json"]
	assert.True(t, ok)
}

// fakeS3 is an in-memory S3API.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{
			Key:  aws.String(k),
			Size: aws.Int64(int64(len(f.objects[k]))),
			ETag: aws.String(`"etag"`),
		})
	}
	return out, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range in.Delete.Objects {
		delete(f.objects, aws.ToString(id.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}
