// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package linkage

import (
	"context"
	"log"
	"os"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jcodagnone/koppel/utils/textutils"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

// Report is the result of a batch run.
type Report struct {
	RunID    string     `json:"run_id"`
	Metrics  Metrics    `json:"metrics"`
	Outcomes []*Outcome `json:"outcomes"`
}

// Matcher resolves whole datasets with a bounded number of concurrent resolutions.
type Matcher struct {
	resolver *Resolver
	options  Options
}

// NewMatcher creates a matcher around resolver.
func NewMatcher(resolver *Resolver, options Options) *Matcher {
	return &Matcher{resolver: resolver, options: options}
}

// Run resolves every entity. outcomes[i] belongs to entities[i].
func (m *Matcher) Run(ctx context.Context, entities []*InputEntity) []*Outcome {
	return m.RunReport(ctx, entities).Outcomes
}

// RunReport is Run plus a run id and the tally of the outcomes.
func (m *Matcher) RunReport(ctx context.Context, entities []*InputEntity) *Report {
	runID := uuid.NewString()
	n := len(entities)
	outcomes := make([]*Outcome, n)

	log.Printf("Run %s - matching %s entities, %d at a time", runID, textutils.FormatInt(int64(n)), m.options.concurrency())

	var bar *progressbar.ProgressBar
	if m.options.ShowProgress && isatty.IsTerminal(os.Stderr.Fd()) {
		bar = progressbar.NewOptions(n,
			progressbar.OptionSetDescription("Matching"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	var (
		g    errgroup.Group
		done atomic.Int64
	)

	g.SetLimit(m.options.concurrency())

	for i, e := range entities {
		g.Go(func() error {
			o := m.resolver.Resolve(ctx, e)
			outcomes[i] = o

			k := done.Add(1)

			switch {
			case bar != nil:
				if err := bar.Add(1); err != nil {
					log.Printf("Run %s - updating progress bar: %s", runID, err)
				}
			case m.options.ShowProgress:
				log.Printf("[%d/%d] %s - %s", k, n, o.name(), o.Status)
			}

			if o.Err != nil && o.Status == StatusError {
				log.Printf("Run %s - %s: %s", runID, o.name(), o.Err)
			}

			return nil
		})
	}

	_ = g.Wait()

	metrics := Summarize(outcomes)

	log.Printf(
		"Run %s complete - %s matched (%s geo, %s text), %s without result, %s errors",
		runID,
		textutils.FormatInt(int64(metrics.Matched)),
		textutils.FormatInt(int64(metrics.MatchedGeo)),
		textutils.FormatInt(int64(metrics.MatchedText)),
		textutils.FormatInt(int64(metrics.NoResult)),
		textutils.FormatInt(int64(metrics.Errors)),
	)

	return &Report{RunID: runID, Metrics: metrics, Outcomes: outcomes}
}

func (o *Outcome) name() string {
	if o.Origin == nil {
		return "<nil>"
	}

	return o.Origin.Name
}
