// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jcodagnone/koppel/spatial"
	"github.com/jcodagnone/koppel/utils/httputils"
	"github.com/spf13/cobra"
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Dev tools",
}

var debugGeocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Reverse geocodes coordinates read from stdin",
	Long: `Reads one "lat,lng" per line and prints it followed by the locality that
the fallback search would use.

$ echo 52.0907,5.1214 | koppel debug geocode
52.0907,5.1214	Utrecht
	`,
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		geocoder, closeFn, err := options.geocoder(ctx, httputils.NewClient(options.clientOptions()))
		if err != nil {
			return err
		}
		defer closeFn()

		if isTerminal(os.Stdin) {
			fmt.Fprintln(os.Stderr, "Enter coordinates as lat,lng, one per line…")
		}

		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			p, err := parseLatLng(line)
			if err != nil {
				fmt.Printf("%s\t%q\n", line, err)

				continue
			}

			name, err := geocoder.ReverseGeocode(ctx, p)
			if err != nil {
				fmt.Printf("%s\t%q\n", line, err)

				continue
			}

			fmt.Printf("%s\t%s\n", line, name)
		}

		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		return nil
	},
}

func parseLatLng(s string) (spatial.Point, error) {
	lat, lng, ok := strings.Cut(s, ",")
	if !ok {
		return spatial.Point{}, fmt.Errorf("expected lat,lng: %s", s)
	}

	var (
		p   spatial.Point
		err error
	)

	if p.Lat, err = strconv.ParseFloat(strings.TrimSpace(lat), 64); err != nil {
		return spatial.Point{}, fmt.Errorf("latitude: %w", err)
	}

	if p.Lng, err = strconv.ParseFloat(strings.TrimSpace(lng), 64); err != nil {
		return spatial.Point{}, fmt.Errorf("longitude: %w", err)
	}

	return p, p.Validate()
}

func init() {
	rootCmd.AddCommand(debugCmd)
	debugCmd.AddCommand(debugGeocodeCmd)
}
