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
	"io"
	"testing"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/trendetl/core"
	"github.com/aaronlmathis/trendetl/readers"
)

var testSchema = core.NewSchema(
	core.Field{Name: "video_id", Type: core.TypeString},
	core.Field{Name: "views", Type: core.TypeLong},
	core.Field{Name: "comments_disabled", Type: core.TypeBoolean},
	core.Field{Name: "ratio", Type: core.TypeDouble},
)

func readParquet(t *testing.T, data []byte) []core.Record {
	t.Helper()
	r, err := readers.NewParquetReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer r.Close()

	var out []core.Record
	for {
		rec, err := r.Read(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
	return out
}

func TestParquetWriter_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	writer, err := NewParquetWriter(&buf, testSchema, WithBatchSize(2))
	require.NoError(t, err)

	records := []core.Record{
		{"video_id": "a", "views": int64(1), "comments_disabled": true, "ratio": 0.5},
		{"video_id": "b", "views": nil, "comments_disabled": false, "ratio": 1.5},
		{"video_id": "c", "views": int64(3)},
	}
	ctx := context.Background()
	for _, rec := range records {
		require.NoError(t, writer.Write(ctx, rec))
	}
	require.NoError(t, writer.Close())

	stats := writer.Stats()
	assert.Equal(t, int64(3), stats.RecordsWritten)
	assert.Equal(t, int64(2), stats.BatchesWritten)
	assert.Equal(t, int64(1), stats.NullValueCounts["views"])
	assert.Equal(t, int64(1), stats.NullValueCounts["ratio"])

	got := readParquet(t, buf.Bytes())
	require.Len(t, got, 3)
	assert.Equal(t, core.Record{"video_id": "a", "views": int64(1), "comments_disabled": true, "ratio": 0.5}, got[0])
	assert.Nil(t, got[1]["views"])
	assert.Nil(t, got[2]["comments_disabled"])
}

func TestParquetWriter_ChoiceColumn(t *testing.T) {
	schema := core.NewSchema(core.Field{
		Name:    "category_id",
		Type:    core.TypeChoice,
		Choices: []core.FieldType{core.TypeLong, core.TypeString},
	})
	assert.Equal(t, arrow.STRUCT, ArrowType(schema.Fields[0]).ID())

	var buf bytes.Buffer
	writer, err := NewParquetWriter(&buf, schema)
	require.NoError(t, err)

	long, _ := core.NewChoiceValue(int64(10))
	str, _ := core.NewChoiceValue("music")
	ctx := context.Background()
	require.NoError(t, writer.Write(ctx, core.Record{"category_id": long}))
	require.NoError(t, writer.Write(ctx, core.Record{"category_id": str}))
	require.NoError(t, writer.Write(ctx, core.Record{"category_id": nil}))
	require.NoError(t, writer.Close())

	got := readParquet(t, buf.Bytes())
	require.Len(t, got, 3)
	assert.Equal(t, long, got[0]["category_id"])
	assert.Equal(t, str, got[1]["category_id"])
	assert.Nil(t, got[2]["category_id"])
}

func TestParquetWriter_TypeMismatch(t *testing.T) {
	var buf bytes.Buffer
	writer, err := NewParquetWriter(&buf, testSchema)
	require.NoError(t, err)

	require.NoError(t, writer.Write(context.Background(), core.Record{"views": "many"}))
	err = writer.Flush()
	var perr *ParquetWriterError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "append_value", perr.Op)

	err = writer.Write(context.Background(), core.Record{"views": int64(1)})
	assert.Error(t, err, "writer stays in error state")
	writer.Close()
}

func TestParquetWriter_Errors(t *testing.T) {
	_, err := NewParquetWriter(&bytes.Buffer{}, core.Schema{})
	assert.Error(t, err)

	var buf bytes.Buffer
	writer, err := NewParquetWriter(&buf, testSchema)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	assert.Error(t, writer.Write(context.Background(), core.Record{}))
	assert.NoError(t, writer.Close(), "close is idempotent")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	writer, err = NewParquetWriter(&bytes.Buffer{}, testSchema)
	require.NoError(t, err)
	assert.ErrorIs(t, writer.Write(ctx, core.Record{}), context.Canceled)
	writer.Close()
}

func TestParquetWriter_Deterministic(t *testing.T) {
	encode := func() []byte {
		var buf bytes.Buffer
		writer, err := NewParquetWriter(&buf, testSchema)
		require.NoError(t, err)
		require.NoError(t, writer.Write(context.Background(), core.Record{"video_id": "a", "views": int64(1)}))
		require.NoError(t, writer.Close())
		return buf.Bytes()
	}
	assert.Equal(t, encode(), encode())
}

func TestCompressionHelpers(t *testing.T) {
	tests := []struct {
		name string
		want compress.Compression
		ext  string
	}{
		{"", compress.Codecs.Snappy, ".snappy.parquet"},
		{"snappy", compress.Codecs.Snappy, ".snappy.parquet"},
		{"GZIP", compress.Codecs.Gzip, ".gz.parquet"},
		{"zstd", compress.Codecs.Zstd, ".zstd.parquet"},
		{"none", compress.Codecs.Uncompressed, ".parquet"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCompression(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ext, FileExtension(got))
		})
	}

	_, err := ParseCompression("lzo")
	assert.Error(t, err)
}
