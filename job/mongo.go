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
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStoreError provides structured error information for MongoRunStore operations
type MongoStoreError struct {
	Op  string // Operation that failed (e.g., "connect", "ping", "save", "get")
	Err error  // Underlying error
}

func (e *MongoStoreError) Error() string {
	return fmt.Sprintf("mongo run store %s: %v", e.Op, e.Err)
}

func (e *MongoStoreError) Unwrap() error {
	return e.Err
}

// MongoRunStoreOptions configures the MongoDB run store
type MongoRunStoreOptions struct {
	URI         string        // MongoDB connection URI
	Database    string        // Database name
	Collection  string        // Collection name
	Timeout     time.Duration // Connect and operation timeout
	MaxPoolSize uint64        // Connection pool size
}

// MongoRunStoreOption is a functional option for MongoRunStoreOptions
type MongoRunStoreOption func(*MongoRunStoreOptions)

func WithMongoURI(uri string) MongoRunStoreOption {
	return func(opts *MongoRunStoreOptions) {
		opts.URI = uri
	}
}

func WithMongoDatabase(database string) MongoRunStoreOption {
	return func(opts *MongoRunStoreOptions) {
		opts.Database = database
	}
}

func WithMongoCollection(collection string) MongoRunStoreOption {
	return func(opts *MongoRunStoreOptions) {
		opts.Collection = collection
	}
}

func WithMongoTimeout(timeout time.Duration) MongoRunStoreOption {
	return func(opts *MongoRunStoreOptions) {
		opts.Timeout = timeout
	}
}

func WithMongoPoolSize(max uint64) MongoRunStoreOption {
	return func(opts *MongoRunStoreOptions) {
		opts.MaxPoolSize = max
	}
}

func (opts *MongoRunStoreOptions) withDefaults() *MongoRunStoreOptions {
	result := &MongoRunStoreOptions{}
	if opts != nil {
		*result = *opts
	}
	if result.Database == "" {
		result.Database = "trendetl"
	}
	if result.Collection == "" {
		result.Collection = "job_runs"
	}
	if result.Timeout <= 0 {
		result.Timeout = 30 * time.Second
	}
	if result.MaxPoolSize == 0 {
		result.MaxPoolSize = 4
	}
	return result
}

// clientOptions builds the driver options for the store.
func (opts *MongoRunStoreOptions) clientOptions() (*options.ClientOptions, error) {
	if opts.URI == "" {
		return nil, errors.New("mongo URI is required")
	}
	clientOpts := options.Client().ApplyURI(opts.URI)
	clientOpts.SetConnectTimeout(opts.Timeout)
	clientOpts.SetServerSelectionTimeout(opts.Timeout)
	clientOpts.SetMaxPoolSize(opts.MaxPoolSize)
	if err := clientOpts.Validate(); err != nil {
		return nil, err
	}
	return clientOpts, nil
}

// MongoRunStore implements RunStore on a MongoDB collection, one document per run keyed by
// run ID.
type MongoRunStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	opts       *MongoRunStoreOptions
}

// NewMongoRunStore connects to MongoDB and verifies the connection.
func NewMongoRunStore(ctx context.Context, options ...MongoRunStoreOption) (*MongoRunStore, error) {
	opts := &MongoRunStoreOptions{}
	for _, option := range options {
		option(opts)
	}
	opts = opts.withDefaults()

	clientOpts, err := opts.clientOptions()
	if err != nil {
		return nil, &MongoStoreError{Op: "build_options", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, &MongoStoreError{Op: "connect", Err: err}
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, &MongoStoreError{Op: "ping", Err: err}
	}

	return &MongoRunStore{
		client:     client,
		collection: client.Database(opts.Database).Collection(opts.Collection),
		opts:       opts,
	}, nil
}

// Save implements RunStore.
func (m *MongoRunStore) Save(ctx context.Context, run *Run) error {
	ctx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()

	_, err := m.collection.ReplaceOne(ctx, bson.M{"_id": run.ID}, run, options.Replace().SetUpsert(true))
	if err != nil {
		return &MongoStoreError{Op: "save", Err: err}
	}
	return nil
}

// Get implements RunStore.
func (m *MongoRunStore) Get(ctx context.Context, id string) (*Run, error) {
	ctx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()

	var run Run
	err := m.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&run)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, &MongoStoreError{Op: "get", Err: err}
	}
	return &run, nil
}

// Close disconnects the client.
func (m *MongoRunStore) Close(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	if err := m.client.Disconnect(ctx); err != nil {
		return &MongoStoreError{Op: "disconnect", Err: err}
	}
	return nil
}
