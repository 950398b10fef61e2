// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-extractor/internal/annotate"
	"github.com/pdiddy/paper-extractor/internal/fetch"
	"github.com/pdiddy/paper-extractor/internal/pipeline"
	"github.com/pdiddy/paper-extractor/internal/report"
	"github.com/pdiddy/paper-extractor/internal/store"
)

// openStore opens the configured store. Callers close it.
func openStore() (store.Store, error) {
	return store.Open(cfg.Store, logger.Named("store"))
}

// newExtractor wires the fetcher, the annotator (when enabled) and st
// into an extractor.
func newExtractor(st store.Store) *pipeline.Extractor {
	f := fetch.New(cfg.Fetch, fetch.WithLogger(logger.Named("fetch")))
	opts := []pipeline.Option{
		pipeline.WithResolver(f),
		pipeline.WithWorkers(cfg.Batch.Workers),
		pipeline.WithLogger(logger.Named("pipeline")),
	}
	if cfg.Annotator.Enabled {
		a := annotate.New(cfg.Annotator, annotate.WithLogger(logger.Named("annotate")))
		opts = append(opts, pipeline.WithAnnotator(a))
	}
	return pipeline.New(f, st, opts...)
}

func reportOptions(cmd *cobra.Command) report.Options {
	asJSON, _ := cmd.Flags().GetBool("json")
	return report.Options{JSON: asJSON}
}
