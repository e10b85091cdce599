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
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/aaronlmathis/trendetl"
)

func newRunCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the normalization job once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), flags.logLevel, flags.logFormat)
			if err != nil {
				return err
			}
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runner, err := trendetl.NewRunner(ctx, cfg, trendetl.WithRunnerLogger(logger))
			if err != nil {
				return err
			}
			defer runner.Close()

			run, err := runner.Run(ctx)
			if err != nil {
				return err
			}

			partitions := make([]string, 0, len(run.Files))
			for p := range run.Files {
				partitions = append(partitions, p)
			}
			sort.Strings(partitions)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s: %d records written to %s\n", run.ID, run.RecordsWritten, cfg.Sink.Path)
			for _, p := range partitions {
				for _, key := range run.Files[p] {
					fmt.Fprintf(out, "  %s\n", key)
				}
			}
			if n := run.TotalLosses(); n > 0 {
				logger.WithFields(logrus.Fields{"run_id": run.ID, "lost_values": n}).Warn("run completed with nulled values")
			}
			return nil
		},
	}
}
