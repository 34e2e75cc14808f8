// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// openDataset opens a dataset given as a path, "-" for stdin, or s3://bucket/key.
func openDataset(ctx context.Context, location string) (io.ReadCloser, error) {
	switch {
	case location == "" || location == "-":
		if isTerminal(os.Stdin) {
			fmt.Fprintln(os.Stderr, "Reading dataset from stdin…")
		}

		return io.NopCloser(os.Stdin), nil
	case strings.HasPrefix(location, "s3://"):
		return openS3(ctx, location)
	default:
		f, err := os.Open(location) // #nosec G304 - path is provided by the operator
		if err != nil {
			return nil, fmt.Errorf("opening dataset: %w", err)
		}

		return f, nil
	}
}

func parseS3Location(location string) (string, string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("parsing %s: %w", location, err)
	}

	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("expected s3://bucket/key, got %s", location)
	}

	return u.Host, key, nil
}

func openS3(ctx context.Context, location string) (io.ReadCloser, error) {
	bucket, key, err := parseS3Location(location)
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	out, err := s3.NewFromConfig(cfg).GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", location, err)
	}

	return out.Body, nil
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}

	return (info.Mode() & os.ModeCharDevice) != 0
}
