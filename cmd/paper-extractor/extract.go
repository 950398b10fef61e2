// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-extractor/internal/batchfile"
	"github.com/pdiddy/paper-extractor/internal/report"
)

var extractCmd = &cobra.Command{
	Use:   "extract [identifiers...]",
	Short: "Extract and store papers by PMCID or PMID",
	Long: `Extract fetches each article, annotates its figure captions and stores
the assembled record, replacing any earlier record for the same paper.
A single identifier prints the stored record; several print a per-identifier
summary.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExtract,
}

var batchCmd = &cobra.Command{
	Use:   "batch [files...]",
	Short: "Process batch files of identifiers",
	Long: `Batch reads each file (one identifier per line, '#' comments allowed),
extracts every identifier, writes <file>.processed with the outcome and
renames the file to <file>.completed, or <file>.failed when unreadable.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(batchCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ex := newExtractor(st)
	opts := reportOptions(cmd)

	if len(args) == 1 {
		rec, err := ex.Extract(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return report.Paper(os.Stdout, rec, opts)
	}

	summary := ex.ExtractBatch(cmd.Context(), args)
	if err := report.Batch(os.Stdout, summary, opts); err != nil {
		return err
	}
	if summary.HasFailures() {
		return fmt.Errorf("%d identifier(s) failed extraction", summary.Failed)
	}
	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	p := batchfile.NewProcessor(newExtractor(st), logger.Named("batchfile"))
	opts := reportOptions(cmd)

	var failed []string
	for _, path := range args {
		summary, err := p.ProcessFile(cmd.Context(), path)
		if err != nil && !errors.Is(err, batchfile.ErrStopped) {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed = append(failed, path)
			continue
		}
		if rerr := report.Batch(os.Stdout, summary, opts); rerr != nil {
			return rerr
		}
		if errors.Is(err, batchfile.ErrStopped) {
			return err
		}
		if summary.HasFailures() {
			failed = append(failed, path)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d batch file(s) had failures: %v", len(failed), failed)
	}
	return nil
}
