// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type logWriter struct {
	writer io.Writer
}

func (w *logWriter) Write(bytes []byte) (int, error) {
	return fmt.Fprintf(w.writer, "%s %s", time.Now().Format("2006-01-02 15:04:05"), string(bytes))
}

func init() {
	log.SetFlags(0)
	log.SetOutput(&logWriter{writer: os.Stderr})
}

var rootCmd = &cobra.Command{
	Use:   "koppel",
	Short: "links a dataset of named locations to records of the education index",
	Long: `
koppel links each record of a dataset (a name and a coordinate) to at most one
record of the search index. Records are looked up by proximity first; when that
finds nothing, the coordinate is reverse geocoded and the name is searched within
the resulting locality.

Settings can also be given through the environment or a .env file:
  KOPPEL_SEARCH_URL, KOPPEL_GEOCODE_URL, GEOCODE_API_KEY, REDIS_ADDR, REDIS_PASSWORD
`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		// a missing .env is fine
		_ = godotenv.Load(".env")

		return applyEnv(cmd)
	},
}

var Version = "dev"

func Execute(version string) {
	Version = version

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
