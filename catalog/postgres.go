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

package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aaronlmathis/trendetl/core"
	"github.com/lib/pq"
)

// PostgresCatalog reads table entries from two PostgreSQL tables:
//
//	catalog_tables(database_name, table_name, location, format, partition_keys text[])
//	catalog_columns(database_name, table_name, ordinal, column_name, column_type)
//
// Table names are configurable.
type PostgresCatalog struct {
	db   *sql.DB
	opts *PostgresCatalogOptions
}

// PostgresCatalogOptions configures the Postgres catalog
type PostgresCatalogOptions struct {
	DSN             string        // Database connection string
	TablesTable     string        // Table holding one row per cataloged table
	ColumnsTable    string        // Table holding one row per cataloged column
	QueryTimeout    time.Duration // Timeout applied to ping and each lookup
	MaxOpenConns    int           // Maximum open connections
	MaxIdleConns    int           // Maximum idle connections
	ConnMaxLifetime time.Duration // Maximum connection lifetime
}

// PostgresCatalogOption represents a configuration function for PostgresCatalogOptions
type PostgresCatalogOption func(*PostgresCatalogOptions)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) PostgresCatalogOption {
	return func(opts *PostgresCatalogOptions) {
		opts.DSN = dsn
	}
}

// WithCatalogTables overrides the catalog table names.
func WithCatalogTables(tables, columns string) PostgresCatalogOption {
	return func(opts *PostgresCatalogOptions) {
		opts.TablesTable = tables
		opts.ColumnsTable = columns
	}
}

// WithPostgresQueryTimeout sets the query execution timeout.
func WithPostgresQueryTimeout(timeout time.Duration) PostgresCatalogOption {
	return func(opts *PostgresCatalogOptions) {
		opts.QueryTimeout = timeout
	}
}

// WithPostgresConnectionPool configures the connection pool.
func WithPostgresConnectionPool(maxOpen, maxIdle int) PostgresCatalogOption {
	return func(opts *PostgresCatalogOptions) {
		opts.MaxOpenConns = maxOpen
		opts.MaxIdleConns = maxIdle
	}
}

// withDefaults applies default values to PostgresCatalogOptions
func (opts *PostgresCatalogOptions) withDefaults() *PostgresCatalogOptions {
	result := &PostgresCatalogOptions{}
	if opts != nil {
		*result = *opts
	}
	if result.TablesTable == "" {
		result.TablesTable = "catalog_tables"
	}
	if result.ColumnsTable == "" {
		result.ColumnsTable = "catalog_columns"
	}
	if result.QueryTimeout <= 0 {
		result.QueryTimeout = 30 * time.Second
	}
	if result.MaxOpenConns <= 0 {
		result.MaxOpenConns = 4
	}
	if result.MaxIdleConns <= 0 {
		result.MaxIdleConns = 2
	}
	if result.ConnMaxLifetime <= 0 {
		result.ConnMaxLifetime = 5 * time.Minute
	}
	return result
}

// NewPostgresCatalog connects to PostgreSQL and verifies the connection.
func NewPostgresCatalog(ctx context.Context, options ...PostgresCatalogOption) (*PostgresCatalog, error) {
	opts := &PostgresCatalogOptions{}
	for _, option := range options {
		option(opts)
	}
	opts = opts.withDefaults()

	if opts.DSN == "" {
		return nil, &CatalogError{Op: "validate", Err: fmt.Errorf("dsn is required")}
	}

	db, err := sql.Open("postgres", opts.DSN)
	if err != nil {
		return nil, &CatalogError{Op: "connect", Err: err}
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, opts.QueryTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, &CatalogError{Op: "ping", Err: err}
	}
	return &PostgresCatalog{db: db, opts: opts}, nil
}

// NewPostgresCatalogWithDB wraps an open database handle.
func NewPostgresCatalogWithDB(db *sql.DB, options ...PostgresCatalogOption) *PostgresCatalog {
	opts := &PostgresCatalogOptions{}
	for _, option := range options {
		option(opts)
	}
	return &PostgresCatalog{db: db, opts: opts.withDefaults()}
}

func (c *PostgresCatalog) tableQuery() string {
	return fmt.Sprintf(
		`SELECT location, format, partition_keys FROM %s WHERE database_name = $1 AND table_name = $2`,
		pq.QuoteIdentifier(c.opts.TablesTable))
}

func (c *PostgresCatalog) columnsQuery() string {
	return fmt.Sprintf(
		`SELECT column_name, column_type FROM %s WHERE database_name = $1 AND table_name = $2 ORDER BY ordinal`,
		pq.QuoteIdentifier(c.opts.ColumnsTable))
}

// Lookup implements Catalog.
func (c *PostgresCatalog) Lookup(ctx context.Context, database, table string) (*TableEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.QueryTimeout)
	defer cancel()

	var (
		location, format string
		keys             []string
	)
	err := c.db.QueryRowContext(ctx, c.tableQuery(), database, table).Scan(&location, &format, pq.Array(&keys))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Database: database, Table: table}
	}
	if err != nil {
		return nil, &CatalogError{Op: "query", Err: err}
	}

	rows, err := c.db.QueryContext(ctx, c.columnsQuery(), database, table)
	if err != nil {
		return nil, &CatalogError{Op: "query", Err: err}
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return nil, &CatalogError{Op: "scan", Err: err}
		}
		cols = append(cols, Column{Name: name, Type: core.FieldType(typ)})
	}
	if err := rows.Err(); err != nil {
		return nil, &CatalogError{Op: "scan", Err: err}
	}

	f, err := ParseFormat(format)
	if err != nil {
		return nil, &CatalogError{Op: "decode", Err: err}
	}
	cols, err = normalizeColumns(cols)
	if err != nil {
		return nil, &CatalogError{Op: "decode", Err: err}
	}
	entry := &TableEntry{
		Database:      database,
		Name:          table,
		Location:      location,
		Format:        f,
		PartitionKeys: keys,
		Columns:       cols,
	}
	if err := entry.Validate(); err != nil {
		return nil, &CatalogError{Op: "decode", Err: err}
	}
	return entry, nil
}

// Close releases the database connection.
func (c *PostgresCatalog) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}
