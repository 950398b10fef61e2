// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/pdiddy/paper-extractor/pkg/types"
)

// BioC XML structures. Only the elements used for extraction are mapped.
type biocCollection struct {
	XMLName   xml.Name       `xml:"collection"`
	Source    string         `xml:"source"`
	Infons    []biocInfon    `xml:"infon"`
	Documents []biocDocument `xml:"document"`
}

type biocDocument struct {
	ID       string        `xml:"id"`
	Infons   []biocInfon   `xml:"infon"`
	Passages []biocPassage `xml:"passage"`
}

type biocPassage struct {
	Infons []biocInfon `xml:"infon"`
	Offset int         `xml:"offset"`
	Text   string      `xml:"text"`
}

type biocInfon struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

func infon(infons []biocInfon, keys ...string) string {
	for _, k := range keys {
		for _, in := range infons {
			if in.Key == k {
				if v := strings.TrimSpace(in.Value); v != "" {
					return v
				}
			}
		}
	}
	return ""
}

var figureTypes = map[string]bool{
	"fig":               true,
	"fig_caption":       true,
	"fig_title_caption": true,
	"figure":            true,
	"figure-caption":    true,
	"figure_caption":    true,
}

func isTitle(p biocPassage) bool {
	st := strings.ToUpper(infon(p.Infons, "section_type"))
	typ := strings.ToLower(infon(p.Infons, "type"))
	return st == "TITLE" || typ == "title" || typ == "front"
}

func isAbstract(p biocPassage) bool {
	st := strings.ToUpper(infon(p.Infons, "section_type"))
	typ := strings.ToLower(infon(p.Infons, "type"))
	return st == "ABSTRACT" || strings.HasPrefix(typ, "abstract")
}

func isFigure(p biocPassage) bool {
	st := strings.ToUpper(infon(p.Infons, "section_type"))
	typ := strings.ToLower(infon(p.Infons, "type"))
	return st == "FIG" || st == "FIGURE" || figureTypes[typ]
}

// collapse trims and folds internal whitespace runs to single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ParseBioC decodes a BioC XML collection into a partial PaperRecord for
// id. Entities are left empty. A collection without documents reports
// ErrNotFound; undecodable input reports a *types.ParseError.
func ParseBioC(id string, data []byte) (*types.PaperRecord, error) {
	if isServiceError(data) {
		return nil, fmt.Errorf("%w: %s: %s", types.ErrNotFound, id, collapse(string(firstLine(data))))
	}

	var coll biocCollection
	if err := xml.Unmarshal(data, &coll); err != nil {
		return nil, types.NewParseError(id, data, err)
	}
	if len(coll.Documents) == 0 {
		return nil, fmt.Errorf("%w: %s: empty BioC collection", types.ErrNotFound, id)
	}

	doc := coll.Documents[0]
	rec := &types.PaperRecord{
		ID:      id,
		Figures: []types.FigureRecord{},
	}

	var abstract []string
	figureAt := make(map[string]int)

	for _, p := range doc.Passages {
		text := collapse(p.Text)

		switch {
		case isTitle(p):
			if rec.Title == "" {
				rec.Title = text
			}
		case isAbstract(p):
			if text != "" {
				abstract = append(abstract, text)
			}
		case isFigure(p):
			label := infon(p.Infons, "id")
			if i, ok := figureAt[label]; ok && label != "" {
				fig := &rec.Figures[i]
				fig.Caption = collapse(fig.Caption + " " + text)
				if fig.ImageRef == "" {
					fig.ImageRef = imageRef(p.Infons)
				}
				continue
			}
			if label != "" {
				figureAt[label] = len(rec.Figures)
			}
			rec.Figures = append(rec.Figures, types.FigureRecord{
				Label:    label,
				Caption:  text,
				ImageRef: imageRef(p.Infons),
				Entities: []types.EntityMention{},
			})
		}
	}

	if rec.Title == "" {
		rec.Title = collapse(infon(doc.Infons, "article-title"))
	}
	if rec.Title == "" {
		for _, p := range doc.Passages {
			if t := collapse(infon(p.Infons, "article-title")); t != "" {
				rec.Title = t
				break
			}
		}
	}
	if rec.Title == "" {
		rec.Title = collapse(infon(coll.Infons, "article-title"))
	}

	rec.Abstract = strings.Join(abstract, " ")
	return rec, nil
}

func imageRef(infons []biocInfon) string {
	return infon(infons, "file", "url", "fig_url", "href")
}

// isServiceError detects the plain-text error body the BioC service
// returns with status 200 for unknown or non open-access articles.
func isServiceError(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return bytes.HasPrefix(trimmed, []byte("[Error]")) ||
		bytes.HasPrefix(trimmed, []byte("No result can be found")) ||
		bytes.HasPrefix(trimmed, []byte("No record can be found"))
}

func firstLine(data []byte) []byte {
	data = bytes.TrimSpace(data)
	if i := bytes.IndexAny(data, "\r\n<"); i >= 0 {
		return data[:i]
	}
	return data
}
