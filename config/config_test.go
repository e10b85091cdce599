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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/trendetl/core"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	rules, err := cfg.MappingRules()
	require.NoError(t, err)
	assert.Len(t, rules, 17)
	assert.Equal(t, "region in ('ca','gb','us')", cfg.Source.Predicate)
	assert.Equal(t, []string{"region"}, cfg.Sink.PartitionKeys)
	assert.Equal(t, 1, cfg.Coalesce)
}

func TestParse_KeepsDefaults(t *testing.T) {
	cfg := Default()
	err := Parse([]byte(`
job: nightly
sink:
  path: ./out
  partition_keys: [region]
  mode: overwrite
workers: 3
`), cfg)
	require.NoError(t, err)
	assert.Equal(t, "nightly", cfg.Job)
	assert.Equal(t, "./out", cfg.Sink.Path)
	assert.Equal(t, "overwrite", cfg.Sink.Mode)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "de-youtube-raw", cfg.Source.Database)
	assert.Len(t, cfg.Mapping, 17)
	require.NoError(t, cfg.Validate())
}

func TestParse_UnknownKey(t *testing.T) {
	err := Parse([]byte("sinks: {}\n"), Default())
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "parse", cerr.Op)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"TRENDETL_SINK_PATH":           "/tmp/out",
		"TRENDETL_CATALOG_DSN":         "postgres://localhost/catalog",
		"TRENDETL_CATALOG_TYPE":        "postgres",
		"TRENDETL_WORKERS":             "8",
		"TRENDETL_SINK_PARTITION_KEYS": "region, trending_date",
		"TRENDETL_AWS_PATH_STYLE":      "true",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, "/tmp/out", cfg.Sink.Path)
	assert.Equal(t, "postgres", cfg.Catalog.Type)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, []string{"region", "trending_date"}, cfg.Sink.PartitionKeys)
	assert.True(t, cfg.AWS.PathStyle)
	assert.Len(t, cfg.S3Options(), 1)

	env["TRENDETL_COALESCE"] = "one"
	assert.Error(t, Default().ApplyEnv(lookup))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		is     error
	}{
		{"bad mapping type", func(c *Config) { c.Mapping[0][1] = "varchar2" }, core.ErrMapping},
		{"duplicate target", func(c *Config) { c.Mapping[1][2] = "video_id" }, core.ErrMapping},
		{"empty mapping", func(c *Config) { c.Mapping = nil }, core.ErrMapping},
		{"bad predicate", func(c *Config) { c.Source.Predicate = "region in ('us'" }, core.ErrPredicate},
		{"no table", func(c *Config) { c.Source.Table = "" }, nil},
		{"coalesce zero", func(c *Config) { c.Coalesce = 0 }, nil},
		{"postgres without dsn", func(c *Config) { c.Catalog.Type = "postgres" }, nil},
		{"unknown catalog", func(c *Config) { c.Catalog.Type = "hive" }, nil},
		{"bad sink scheme", func(c *Config) { c.Sink.Path = "gs://bucket/x" }, nil},
		{"bad compression", func(c *Config) { c.Sink.Compression = "lzo" }, nil},
		{"bad mode", func(c *Config) { c.Sink.Mode = "ignore" }, nil},
		{"mongo without uri", func(c *Config) { c.RunStore.Type = "mongo" }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte("job: from-file\n"), 0o644))

	t.Setenv("TRENDETL_JOB", "from-env")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Job)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("TRENDETL_TEST_DOTENV=loaded\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("TRENDETL_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "absent.env"), path))
	assert.Equal(t, "loaded", os.Getenv("TRENDETL_TEST_DOTENV"))
}
