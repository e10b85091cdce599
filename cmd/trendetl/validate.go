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

	"github.com/spf13/cobra"

	"github.com/aaronlmathis/trendetl"
)

func newValidateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config and resolve the source table without reading data",
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

			ctx := context.Background()
			runner, err := trendetl.NewRunner(ctx, cfg, trendetl.WithRunnerLogger(logger))
			if err != nil {
				return err
			}
			defer runner.Close()

			entry, err := runner.Validate(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s.%s at %s (%s, partitioned by %v), predicate %q\n",
				entry.Database, entry.Name, entry.Location, entry.Format, entry.PartitionKeys, cfg.Source.Predicate)
			return nil
		},
	}
}
