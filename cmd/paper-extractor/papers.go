// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-extractor/internal/report"
	"github.com/pdiddy/paper-extractor/internal/store"
)

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a stored paper",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		rec, err := st.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return report.Paper(os.Stdout, rec, reportOptions(cmd))
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored papers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		list, err := st.List(cmd.Context())
		if err != nil {
			return err
		}
		return report.Papers(os.Stdout, list, reportOptions(cmd))
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.Stats(cmd.Context())
		if err != nil {
			return err
		}
		return report.Stats(os.Stdout, stats, reportOptions(cmd))
	},
}

var exportCmd = &cobra.Command{
	Use:   "export [ids...]",
	Short: "Export stored papers as CSV, XLSX, JSON or YAML",
	Long: `Export writes the selected papers, or every stored paper when no ids are
given. CSV and XLSX hold one row per entity mention with the paper and
figure columns repeated; figures without mentions and papers without
figures still get one row.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().String("format", "csv", "output format: csv, xlsx, json, yaml")
	exportCmd.Flags().StringP("out", "o", "", "output file (default stdout)")

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	out, _ := cmd.Flags().GetString("out")

	exporters := map[string]func(*cobra.Command, store.Reader, io.Writer, []string) error{
		"csv": func(c *cobra.Command, r store.Reader, w io.Writer, ids []string) error {
			return store.ExportCSV(c.Context(), r, w, ids...)
		},
		"xlsx": func(c *cobra.Command, r store.Reader, w io.Writer, ids []string) error {
			return store.ExportXLSX(c.Context(), r, w, ids...)
		},
		"json": func(c *cobra.Command, r store.Reader, w io.Writer, ids []string) error {
			return store.ExportJSON(c.Context(), r, w, ids...)
		},
		"yaml": func(c *cobra.Command, r store.Reader, w io.Writer, ids []string) error {
			return store.ExportYAML(c.Context(), r, w, ids...)
		},
	}
	export, ok := exporters[format]
	if !ok {
		return fmt.Errorf("unknown format %q (want csv, xlsx, json or yaml)", format)
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	var w io.Writer = os.Stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("creating %s: %w", out, err)
		}
		defer f.Close()
		w = f
	}

	if err := export(cmd, st, w, args); err != nil {
		return err
	}
	if out != "" {
		fmt.Fprintf(os.Stderr, "Exported to %s\n", out)
	}
	return nil
}
