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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/aaronlmathis/trendetl/filter"
	"github.com/aaronlmathis/trendetl/storage"
	"github.com/aaronlmathis/trendetl/transform"
	"github.com/aaronlmathis/trendetl/writers"
)

// Package config loads the job configuration from YAML, a .env file and TRENDETL_* environment
// variables.

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TRENDETL"

// ConfigError reports an invalid or unreadable configuration.
type ConfigError struct {
	Op  string // Operation that failed (e.g., "read", "parse", "validate")
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// SourceConfig names the cataloged table and the pushdown predicate.
type SourceConfig struct {
	Database  string `yaml:"database"`
	Table     string `yaml:"table"`
	Predicate string `yaml:"predicate"`
}

// CatalogConfig selects the catalog backend.
type CatalogConfig struct {
	Type         string `yaml:"type"` // file or postgres
	Path         string `yaml:"path"`
	DSN          string `yaml:"dsn"`
	TablesTable  string `yaml:"tables_table"`
	ColumnsTable string `yaml:"columns_table"`
}

// SinkConfig describes the output location and layout.
type SinkConfig struct {
	Path          string   `yaml:"path"`
	PartitionKeys []string `yaml:"partition_keys"`
	Compression   string   `yaml:"compression"`
	Mode          string   `yaml:"mode"`
}

// AWSConfig holds S3 settings shared by the source and the sink.
type AWSConfig struct {
	Region    string `yaml:"region"`
	Profile   string `yaml:"profile"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// RunStoreConfig selects where run records are kept.
type RunStoreConfig struct {
	Type       string `yaml:"type"` // memory, mongo or postgres
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// Config is the complete job configuration.
type Config struct {
	Job           string         `yaml:"job"`
	Source        SourceConfig   `yaml:"source"`
	Catalog       CatalogConfig  `yaml:"catalog"`
	Mapping       [][]string     `yaml:"mapping"`
	Coalesce      int            `yaml:"coalesce"`
	Workers       int            `yaml:"workers"`
	Sink          SinkConfig     `yaml:"sink"`
	AWS           AWSConfig      `yaml:"aws"`
	RunStore      RunStoreConfig `yaml:"run_store"`
	QualityReport string         `yaml:"quality_report"`
}

// DefaultMapping is the mapping table of the raw_statistics normalization job.
func DefaultMapping() [][]string {
	return [][]string{
		{"video_id", "string", "video_id", "string"},
		{"trending_date", "string", "trending_date", "string"},
		{"title", "string", "title", "string"},
		{"channel_title", "string", "channel_title", "string"},
		{"category_id", "long", "category_id", "long"},
		{"publish_time", "string", "publish_time", "string"},
		{"tags", "string", "tags", "string"},
		{"views", "long", "views", "long"},
		{"likes", "long", "likes", "long"},
		{"dislikes", "long", "dislikes", "long"},
		{"comment_count", "long", "comment_count", "long"},
		{"thumbnail_link", "string", "thumbnail_link", "string"},
		{"comments_disabled", "boolean", "comments_disabled", "boolean"},
		{"ratings_disabled", "boolean", "ratings_disabled", "boolean"},
		{"video_error_or_removed", "boolean", "video_error_or_removed", "boolean"},
		{"description", "string", "description", "string"},
		{"region", "string", "region", "string"},
	}
}

// Default returns the built-in configuration of the raw_statistics job.
func Default() *Config {
	return &Config{
		Job: "raw_statistics",
		Source: SourceConfig{
			Database:  "de-youtube-raw",
			Table:     "raw_statistics",
			Predicate: "region in ('ca','gb','us')",
		},
		Catalog: CatalogConfig{
			Type: "file",
			Path: "catalog.yaml",
		},
		Mapping:  DefaultMapping(),
		Coalesce: 1,
		Sink: SinkConfig{
			Path:          "s3://de-youtube-reccomendation-cleaned-data/youtube/raw_statistics/",
			PartitionKeys: []string{"region"},
			Compression:   "snappy",
			Mode:          "append",
		},
		RunStore: RunStoreConfig{Type: "memory"},
	}
}

// Load reads a YAML file over the defaults, then applies the .env file next to the working
// directory and TRENDETL_* variables. An empty path uses the defaults only.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &ConfigError{Op: "read", Err: err}
		}
		if err := Parse(data, cfg); err != nil {
			return nil, err
		}
	}
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML into cfg. Keys absent from data keep their current values.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return &ConfigError{Op: "parse", Err: err}
	}
	return nil
}

// LoadDotEnv loads variables from env files that exist. Variables already set are kept.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return &ConfigError{Op: "dotenv", Err: err}
		}
	}
	return nil
}

// ApplyEnv overrides fields from TRENDETL_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"JOB":                &c.Job,
		"SOURCE_DATABASE":    &c.Source.Database,
		"SOURCE_TABLE":       &c.Source.Table,
		"PREDICATE":          &c.Source.Predicate,
		"CATALOG_TYPE":       &c.Catalog.Type,
		"CATALOG_PATH":       &c.Catalog.Path,
		"CATALOG_DSN":        &c.Catalog.DSN,
		"SINK_PATH":          &c.Sink.Path,
		"SINK_COMPRESSION":   &c.Sink.Compression,
		"SINK_MODE":          &c.Sink.Mode,
		"AWS_REGION":         &c.AWS.Region,
		"AWS_PROFILE":        &c.AWS.Profile,
		"AWS_ENDPOINT":       &c.AWS.Endpoint,
		"RUN_STORE_TYPE":     &c.RunStore.Type,
		"RUN_STORE_URI":      &c.RunStore.URI,
		"RUN_STORE_DATABASE": &c.RunStore.Database,
		"QUALITY_REPORT":     &c.QualityReport,
	}
	for name, field := range str {
		if v, ok := lookup(EnvPrefix + "_" + name); ok {
			*field = v
		}
	}

	ints := map[string]*int{
		"COALESCE": &c.Coalesce,
		"WORKERS":  &c.Workers,
	}
	for name, field := range ints {
		v, ok := lookup(EnvPrefix + "_" + name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return &ConfigError{Op: "env", Err: fmt.Errorf("%s_%s: %w", EnvPrefix, name, err)}
		}
		*field = n
	}

	if v, ok := lookup(EnvPrefix + "_SINK_PARTITION_KEYS"); ok {
		c.Sink.PartitionKeys = splitList(v)
	}
	if v, ok := lookup(EnvPrefix + "_AWS_PATH_STYLE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &ConfigError{Op: "env", Err: fmt.Errorf("%s_AWS_PATH_STYLE: %w", EnvPrefix, err)}
		}
		c.AWS.PathStyle = b
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MappingRules parses the mapping table.
func (c *Config) MappingRules() ([]transform.MappingRule, error) {
	return transform.ParseMappingTable(c.Mapping)
}

// S3Options returns the storage options for S3 locations.
func (c *Config) S3Options() []storage.S3Option {
	var opts []storage.S3Option
	if c.AWS.Region != "" {
		opts = append(opts, storage.WithS3Region(c.AWS.Region))
	}
	if c.AWS.Profile != "" {
		opts = append(opts, storage.WithS3Profile(c.AWS.Profile))
	}
	if c.AWS.Endpoint != "" {
		opts = append(opts, storage.WithS3Endpoint(c.AWS.Endpoint))
	}
	if c.AWS.PathStyle {
		opts = append(opts, storage.WithS3PathStyle(true))
	}
	return opts
}

// Validate checks everything that can be checked without reading data. Mapping problems match
// core.ErrMapping and predicate syntax errors match core.ErrPredicate.
func (c *Config) Validate() error {
	if c.Job == "" {
		return &ConfigError{Op: "validate", Err: errors.New("job name is required")}
	}
	if c.Source.Database == "" || c.Source.Table == "" {
		return &ConfigError{Op: "validate", Err: errors.New("source database and table are required")}
	}
	if _, err := filter.ParsePredicate(c.Source.Predicate); err != nil {
		return &ConfigError{Op: "validate", Err: err}
	}
	if _, err := c.MappingRules(); err != nil {
		return &ConfigError{Op: "validate", Err: err}
	}
	if c.Coalesce < 1 {
		return &ConfigError{Op: "validate", Err: fmt.Errorf("coalesce must be at least 1, got %d", c.Coalesce)}
	}
	if c.Workers < 0 {
		return &ConfigError{Op: "validate", Err: fmt.Errorf("workers must not be negative, got %d", c.Workers)}
	}

	switch c.Catalog.Type {
	case "file":
		if c.Catalog.Path == "" {
			return &ConfigError{Op: "validate", Err: errors.New("file catalog needs a path")}
		}
	case "postgres":
		if c.Catalog.DSN == "" {
			return &ConfigError{Op: "validate", Err: errors.New("postgres catalog needs a dsn")}
		}
	default:
		return &ConfigError{Op: "validate", Err: fmt.Errorf("unknown catalog type %q", c.Catalog.Type)}
	}

	if _, err := storage.ParseLocation(c.Sink.Path); err != nil {
		return &ConfigError{Op: "validate", Err: fmt.Errorf("sink path: %w", err)}
	}
	if _, err := writers.ParseCompression(c.Sink.Compression); err != nil {
		return &ConfigError{Op: "validate", Err: err}
	}
	if _, err := writers.ParseSaveMode(c.Sink.Mode); err != nil {
		return &ConfigError{Op: "validate", Err: err}
	}

	switch c.RunStore.Type {
	case "", "memory":
	case "mongo", "postgres":
		if c.RunStore.URI == "" {
			return &ConfigError{Op: "validate", Err: fmt.Errorf("%s run store needs a uri", c.RunStore.Type)}
		}
	default:
		return &ConfigError{Op: "validate", Err: fmt.Errorf("unknown run store type %q", c.RunStore.Type)}
	}
	return nil
}
