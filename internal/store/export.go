// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paper-extractor/pkg/types"
)

// Header lists the tabular export columns.
var Header = []string{
	"paper_id", "title", "abstract", "retrieved_at",
	"figure_index", "figure_label", "caption", "image_ref",
	"entity_index", "entity_text", "entity_type", "entity_id", "entity_start", "entity_end",
}

// xlsxSheet is the worksheet name used by ExportXLSX.
const xlsxSheet = "papers"

// Reader is the read side of a Store used by exports.
type Reader interface {
	Get(ctx context.Context, id string) (*types.PaperRecord, error)
	List(ctx context.Context) ([]types.PaperSummary, error)
}

// Rows flattens records to one row per entity mention, repeating paper
// and figure columns. A figure without mentions yields a single row with
// empty entity columns, and a paper without figures a single row with
// empty figure columns, so no figure or paper is lost.
func Rows(records []*types.PaperRecord) [][]string {
	var rows [][]string
	for _, rec := range records {
		paper := []string{rec.ID, rec.Title, rec.Abstract, rec.RetrievedAt.UTC().Format(time.RFC3339)}

		if len(rec.Figures) == 0 {
			rows = append(rows, concat(paper, make([]string, 10)))
			continue
		}

		for i, fig := range rec.Figures {
			figure := []string{strconv.Itoa(i), fig.Label, fig.Caption, fig.ImageRef}
			if len(fig.Entities) == 0 {
				rows = append(rows, concat(paper, figure, make([]string, 6)))
				continue
			}
			for j, m := range fig.Entities {
				entity := []string{
					strconv.Itoa(j), m.Text, m.Type, m.NormalizedID,
					strconv.Itoa(m.Start), strconv.Itoa(m.End),
				}
				rows = append(rows, concat(paper, figure, entity))
			}
		}
	}
	return rows
}

func concat(parts ...[]string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Collect loads the records with the given IDs, or every record when ids
// is empty.
func Collect(ctx context.Context, r Reader, ids ...string) ([]*types.PaperRecord, error) {
	if len(ids) == 0 {
		summaries, err := r.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, s := range summaries {
			ids = append(ids, s.ID)
		}
	}

	records := make([]*types.PaperRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// ExportCSV writes the tabular form of the selected records as CSV.
func ExportCSV(ctx context.Context, r Reader, w io.Writer, ids ...string) error {
	records, err := Collect(ctx, r, ids...)
	if err != nil {
		return err
	}
	return WriteCSV(w, records)
}

// WriteCSV writes the header and the rows of records as CSV.
func WriteCSV(w io.Writer, records []*types.PaperRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	if err := cw.WriteAll(Rows(records)); err != nil {
		return fmt.Errorf("writing CSV rows: %w", err)
	}
	return nil
}

// ExportXLSX writes the tabular form of the selected records as a
// single-sheet spreadsheet.
func ExportXLSX(ctx context.Context, r Reader, w io.Writer, ids ...string) error {
	records, err := Collect(ctx, r, ids...)
	if err != nil {
		return err
	}
	return WriteXLSX(w, records)
}

// WriteXLSX writes the header and the rows of records to the "papers"
// sheet of a new workbook.
func WriteXLSX(w io.Writer, records []*types.PaperRecord) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	all := append([][]string{Header}, Rows(records)...)
	for i, row := range all {
		for j, value := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return fmt.Errorf("addressing cell: %w", err)
			}
			if err := f.SetCellStr(xlsxSheet, cell, value); err != nil {
				return fmt.Errorf("writing cell %s: %w", cell, err)
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing spreadsheet: %w", err)
	}
	return nil
}

// ExportJSON writes the selected records as an indented JSON array.
func ExportJSON(ctx context.Context, r Reader, w io.Writer, ids ...string) error {
	records, err := Collect(ctx, r, ids...)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

// ExportYAML writes the selected records as a YAML sequence.
func ExportYAML(ctx context.Context, r Reader, w io.Writer, ids ...string) error {
	records, err := Collect(ctx, r, ids...)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	_, err = w.Write(data)
	return err
}
