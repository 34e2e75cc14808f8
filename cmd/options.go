// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/jcodagnone/koppel/backend"
	"github.com/jcodagnone/koppel/geocode"
	"github.com/jcodagnone/koppel/linkage"
	"github.com/jcodagnone/koppel/search"
	"github.com/jcodagnone/koppel/utils/httputils"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Options shared by every command that talks to the backends.
type Options struct {
	SearchURL         string
	GeocodeURL        string
	GeocodeKey        string
	GeocodeKeyFromADC bool
	GCPProject        string

	RadiusKm      float64
	ReferenceYear int
	DocTypes      []string
	Indexes       []string

	Concurrency int
	Retries     uint
	Timeout     time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheSize     int
	CacheTTL      time.Duration

	EnableHTTPTrace     bool
	EnableHTTPBodyTrace bool
}

var options = &Options{}

// envFlags maps flags to the environment variables that provide their default.
var envFlags = map[string]string{
	"search-url":     "KOPPEL_SEARCH_URL",
	"geocode-url":    "KOPPEL_GEOCODE_URL",
	"geocode-key":    "GEOCODE_API_KEY",
	"gcp-project":    "GOOGLE_CLOUD_PROJECT",
	"redis-addr":     "REDIS_ADDR",
	"redis-password": "REDIS_PASSWORD",
}

func applyEnv(cmd *cobra.Command) error {
	var errs []error

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		env, ok := envFlags[f.Name]
		if !ok || f.Changed {
			return
		}

		if v, ok := os.LookupEnv(env); ok && v != "" {
			if err := f.Value.Set(v); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", env, err))
			}
		}
	})

	return errors.Join(errs...)
}

func init() {
	defaults := linkage.DefaultOptions()
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&options.SearchURL, "search-url", search.DefaultURL, "search endpoint")
	flags.StringVar(&options.GeocodeURL, "geocode-url", geocode.DefaultURL, "reverse geocoding endpoint")
	flags.StringVar(&options.GeocodeKey, "geocode-key", "", "API key sent to the geocoder")
	flags.BoolVar(&options.GeocodeKeyFromADC, "geocode-key-from-adc", false, "look the geocoding key up with application default credentials")
	flags.StringVar(&options.GCPProject, "gcp-project", "", "project holding the geocoding key")

	flags.Float64Var(&options.RadiusKm, "radius", defaults.RadiusKm, "search radius in kilometres")
	flags.IntVar(&options.ReferenceYear, "reference-year", defaults.ReferenceYear, "reference year of the indexed records")
	flags.StringSliceVar(&options.DocTypes, "doc-types", defaults.DocTypes, "document types to match against")
	flags.StringSliceVar(&options.Indexes, "indexes", defaults.Indexes, "indexes to search")

	flags.IntVar(&options.Concurrency, "concurrency", defaults.Concurrency, "entities resolved at the same time")
	flags.UintVar(&options.Retries, "retries", defaults.Retry.MaxTries, "attempts per backend call when it is unavailable (1 disables retries)")
	flags.DurationVar(&options.Timeout, "timeout", 30*time.Second, "timeout of a single backend request")

	flags.StringVar(&options.RedisAddr, "redis-addr", "", "cache localities in this redis instead of in memory")
	flags.StringVar(&options.RedisPassword, "redis-password", "", "redis password")
	flags.IntVar(&options.RedisDB, "redis-db", 0, "redis database")
	flags.IntVar(&options.CacheSize, "cache-size", 10000, "entries of the in-memory locality cache")
	flags.DurationVar(&options.CacheTTL, "cache-ttl", 24*time.Hour, "lifetime of cached localities, 0 keeps them until evicted")

	flags.BoolVar(&options.EnableHTTPTrace, "http-trace", false, "trace HTTP requests and responses to stderr")
	flags.BoolVar(&options.EnableHTTPBodyTrace, "http-body-trace", false, "include bodies in the HTTP trace")
}

func (o *Options) linkageOptions(showProgress bool) linkage.Options {
	retry := backend.DefaultRetryPolicy()
	retry.MaxTries = o.Retries

	return linkage.Options{
		RadiusKm:      o.RadiusKm,
		ReferenceYear: o.ReferenceYear,
		DocTypes:      o.DocTypes,
		Indexes:       o.Indexes,
		Retry:         retry,
		Concurrency:   o.Concurrency,
		ShowProgress:  showProgress,
	}
}

// geocoder builds the reverse geocoder with its cache. The returned function
// releases the cache.
func (o *Options) geocoder(ctx context.Context, httpClient *http.Client) (geocode.ReverseGeocoder, func(), error) {
	key := o.GeocodeKey
	if key == "" && o.GeocodeKeyFromADC {
		var err error

		key, err = geocode.APIKeyFromADC(ctx, o.GCPProject, geocode.DefaultKeyDisplayName)
		if err != nil {
			return nil, nil, fmt.Errorf("retrieving geocoding key: %w", err)
		}

		log.Println("Geocoding key retrieved via ADC")
	}

	client := geocode.NewClient(o.GeocodeURL, key, httpClient)

	if rdb := geocode.OpenRedis(o.RedisAddr, o.RedisPassword, o.RedisDB); rdb != nil {
		log.Printf("Caching localities in redis %s", o.RedisAddr)

		return geocode.NewCachingGeocoder(client, geocode.NewRedisCache(rdb, "", o.CacheTTL)),
			func() {
				if err := rdb.Close(); err != nil {
					log.Printf("Closing redis - %s", err)
				}
			}, nil
	}

	return geocode.NewCachingGeocoder(client, geocode.NewMemoryCache(o.CacheSize, o.CacheTTL)), func() {}, nil
}

func (o *Options) clientOptions() *httputils.ClientOptions {
	return &httputils.ClientOptions{
		UserAgent:           fmt.Sprintf("koppel/%s", Version),
		Timeout:             o.Timeout,
		MaxConnsPerHost:     o.Concurrency,
		EnableHTTPTrace:     o.EnableHTTPTrace,
		EnableHTTPBodyTrace: o.EnableHTTPBodyTrace,
	}
}

// newMatcher wires clients, resolver and matcher from the options.
func (o *Options) newMatcher(ctx context.Context, showProgress bool) (*linkage.Matcher, func(), error) {
	httpClient := httputils.NewClient(o.clientOptions())
	searchClient := search.NewClient(o.SearchURL, httpClient)

	geocoder, closeFn, err := o.geocoder(ctx, httpClient)
	if err != nil {
		return nil, nil, err
	}

	opts := o.linkageOptions(showProgress)
	resolver := linkage.NewResolver(searchClient, searchClient, geocoder, opts)

	return linkage.NewMatcher(resolver, opts), closeFn, nil
}
