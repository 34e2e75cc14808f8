// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jcodagnone/koppel/linkage"
	"github.com/spf13/cobra"
)

var matchShowProgress bool

var matchCmd = &cobra.Command{
	Use:   "match [dataset]",
	Short: "Links every record of a dataset and prints the outcomes as JSON",
	Long: `Reads a dataset from a file, from stdin ("-" or no argument) or from
s3://bucket/key, links each record and writes the report to stdout.

The dataset is a JSON array of records, or an object holding the array under
"deelnemers" or "entities". Each record needs a name ("naam" or "name") and a
position ("positie" or "position") with "lat" and "lng".

Example:
  koppel match deelnemers.json > outcomes.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		ctx := context.Background()

		location := "-"
		if len(args) > 0 {
			location = args[0]
		}

		r, err := openDataset(ctx, location)
		if err != nil {
			return err
		}
		defer r.Close()

		entities, err := linkage.ParseDataset(r)
		if err != nil {
			return err
		}

		matcher, closeFn, err := options.newMatcher(ctx, matchShowProgress)
		if err != nil {
			return err
		}
		defer closeFn()

		report := matcher.RunReport(ctx, entities)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("writing outcomes: %w", err)
		}

		return nil
	},
}

func init() {
	matchCmd.Flags().BoolVar(&matchShowProgress, "progress", true, "show progress on stderr")
	rootCmd.AddCommand(matchCmd)
}
