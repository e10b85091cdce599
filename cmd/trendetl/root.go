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

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/aaronlmathis/trendetl/config"
)

var (
	// Set at build time.
	version   = "0.1.0"
	buildDate = "unknown"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile string
	logLevel   string
	logFormat  string
	workers    int
	sinkPath   string
}

func newRootCmd(out io.Writer) *cobra.Command {
	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:   "trendetl",
		Short: "Normalize cataloged trending-video statistics into partitioned Parquet",
		Long: `trendetl reads the raw_statistics table through its catalog, keeps the regions
selected by the pushdown predicate, normalizes the schema and writes region
partitioned Parquet files.`,
		SilenceUsage: true,
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configFile, "config", "c", "", "Job config `<file>` in YAML (default: built-in job)")
	pf.StringVar(&flags.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	pf.StringVar(&flags.logFormat, "log-format", "text", "Log format: text or json")
	pf.IntVar(&flags.workers, "workers", 0, "Number of parallel split workers (default: number of CPUs)")
	pf.StringVar(&flags.sinkPath, "sink-path", "", "Override the output location, a local path or s3://bucket/prefix/")
	_ = rootCmd.MarkPersistentFlagFilename("config", "yaml", "yml")

	rootCmd.AddCommand(newRunCmd(flags), newValidateCmd(flags), newVersionCmd())
	return rootCmd
}

// newLogger builds the process logger from the flags.
func newLogger(out io.Writer, level, format string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(lvl)
	switch format {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return logger, nil
}

// loadConfig loads the job config and applies flag overrides.
func (f *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return nil, err
	}
	if f.workers > 0 {
		cfg.Workers = f.workers
	}
	if f.sinkPath != "" {
		cfg.Sink.Path = f.sinkPath
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "trendetl\n  Version:\t%v\n  Build date:\t%v\n", version, buildDate)
			return nil
		},
	}
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		// Execute prints the error.
		os.Exit(1)
	}
}
