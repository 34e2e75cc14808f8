// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"log"

	"github.com/jcodagnone/koppel/server"
	"github.com/spf13/cobra"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the matcher over HTTP",
	Long: `Starts an HTTP server with:

  POST /api/v1/match   body: dataset JSON, response: run id, metrics and outcomes
  GET  /api/v1/health`,
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		matcher, closeFn, err := options.newMatcher(context.Background(), false)
		if err != nil {
			return err
		}
		defer closeFn()

		log.Printf("Listening on http://%s", serveListen)

		return server.NewServer(matcher).Run(serveListen)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "localhost:8080", "address to listen on")
	rootCmd.AddCommand(serveCmd)
}
