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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// PostgresStoreError wraps PostgreSQL run store errors with the operation being performed.
type PostgresStoreError struct {
	Op  string
	Err error
}

// Error returns the error string for PostgresStoreError.
func (e *PostgresStoreError) Error() string {
	return fmt.Sprintf("postgres run store %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for PostgresStoreError.
func (e *PostgresStoreError) Unwrap() error {
	return e.Err
}

// runColumns are written on every save; the document column holds the full run as JSON.
var runColumns = []string{"id", "name", "status", "start_time", "end_time", "records_written", "error", "document"}

// PostgresRunStoreOptions configures the PostgreSQL run store.
type PostgresRunStoreOptions struct {
	DSN             string        // PostgreSQL connection string
	TableName       string        // Table holding one row per run
	CreateTable     bool          // Create the table if it does not exist
	QueryTimeout    time.Duration // Timeout applied to each statement
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// PostgresRunStoreOption represents a configuration function for PostgresRunStoreOptions.
type PostgresRunStoreOption func(*PostgresRunStoreOptions)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) PostgresRunStoreOption {
	return func(opts *PostgresRunStoreOptions) {
		opts.DSN = dsn
	}
}

// WithRunTable sets the run table name.
func WithRunTable(name string) PostgresRunStoreOption {
	return func(opts *PostgresRunStoreOptions) {
		opts.TableName = name
	}
}

// WithCreateTable controls whether the run table is created on connect.
func WithCreateTable(create bool) PostgresRunStoreOption {
	return func(opts *PostgresRunStoreOptions) {
		opts.CreateTable = create
	}
}

// WithPostgresQueryTimeout sets the statement timeout.
func WithPostgresQueryTimeout(timeout time.Duration) PostgresRunStoreOption {
	return func(opts *PostgresRunStoreOptions) {
		opts.QueryTimeout = timeout
	}
}

func (opts *PostgresRunStoreOptions) withDefaults() *PostgresRunStoreOptions {
	if opts.TableName == "" {
		opts.TableName = "job_runs"
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 30 * time.Second
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 2
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 1
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = 5 * time.Minute
	}
	return opts
}

// PostgresRunStore keeps runs in a PostgreSQL table, one row per run id.
type PostgresRunStore struct {
	db   *sql.DB
	opts *PostgresRunStoreOptions
}

// NewPostgresRunStore connects to PostgreSQL and optionally creates the run table.
func NewPostgresRunStore(ctx context.Context, options ...PostgresRunStoreOption) (*PostgresRunStore, error) {
	opts := &PostgresRunStoreOptions{CreateTable: true}
	for _, option := range options {
		option(opts)
	}
	opts = opts.withDefaults()
	if opts.DSN == "" {
		return nil, &PostgresStoreError{Op: "validate", Err: errors.New("dsn is required")}
	}

	db, err := sql.Open("postgres", opts.DSN)
	if err != nil {
		return nil, &PostgresStoreError{Op: "connect", Err: err}
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	store := &PostgresRunStore{db: db, opts: opts}
	pingCtx, cancel := context.WithTimeout(ctx, opts.QueryTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, &PostgresStoreError{Op: "ping", Err: err}
	}
	if opts.CreateTable {
		if _, err := db.ExecContext(pingCtx, store.createQuery()); err != nil {
			db.Close()
			return nil, &PostgresStoreError{Op: "create_table", Err: err}
		}
	}
	return store, nil
}

func (s *PostgresRunStore) table() string {
	return pq.QuoteIdentifier(s.opts.TableName)
}

func (s *PostgresRunStore) createQuery() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id text PRIMARY KEY,
	name text NOT NULL,
	status text NOT NULL,
	start_time timestamptz NOT NULL,
	end_time timestamptz,
	records_written bigint NOT NULL DEFAULT 0,
	error text,
	document jsonb NOT NULL
)`, s.table())
}

func (s *PostgresRunStore) upsertQuery() string {
	placeholders := make([]string, len(runColumns))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	updates := make([]string, 0, len(runColumns)-1)
	for _, col := range runColumns[1:] {
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s",
		s.table(),
		strings.Join(runColumns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ", "))
}

func (s *PostgresRunStore) selectQuery() string {
	return fmt.Sprintf("SELECT document FROM %s WHERE id = $1", s.table())
}

// runArgs returns the statement arguments for run, in runColumns order.
func runArgs(run *Run) ([]interface{}, error) {
	doc, err := json.Marshal(run)
	if err != nil {
		return nil, err
	}
	var end interface{}
	if !run.EndTime.IsZero() {
		end = run.EndTime
	}
	var runErr interface{}
	if run.Error != "" {
		runErr = run.Error
	}
	return []interface{}{run.ID, run.Name, string(run.Status), run.StartTime, end, run.RecordsWritten, runErr, string(doc)}, nil
}

// Save implements RunStore.
func (s *PostgresRunStore) Save(ctx context.Context, run *Run) error {
	args, err := runArgs(run)
	if err != nil {
		return &PostgresStoreError{Op: "encode", Err: err}
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, s.upsertQuery(), args...); err != nil {
		return &PostgresStoreError{Op: "save", Err: err}
	}
	return nil
}

// Get implements RunStore.
func (s *PostgresRunStore) Get(ctx context.Context, id string) (*Run, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	var doc []byte
	err := s.db.QueryRowContext(ctx, s.selectQuery(), id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, &PostgresStoreError{Op: "get", Err: err}
	}
	run := &Run{}
	if err := json.Unmarshal(doc, run); err != nil {
		return nil, &PostgresStoreError{Op: "decode", Err: err}
	}
	return run, nil
}

// Close closes the database connection.
func (s *PostgresRunStore) Close() error {
	return s.db.Close()
}
