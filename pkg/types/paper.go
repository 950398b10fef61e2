// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// PaperRecord is the persisted result of one extraction: article metadata
// plus figure captions and the entities recognized in them.
type PaperRecord struct {
	// ID is the canonical article identifier ("PMC" followed by digits).
	ID string `json:"id" yaml:"id"`

	// Title is the article title; empty when the source has none.
	Title string `json:"title" yaml:"title"`

	// Abstract is the article abstract; empty when the source has none.
	Abstract string `json:"abstract" yaml:"abstract"`

	// Figures lists the article figures in the order the source returned them.
	Figures []FigureRecord `json:"figures" yaml:"figures"`

	// RetrievedAt is the UTC time the record was assembled.
	RetrievedAt time.Time `json:"retrieved_at" yaml:"retrieved_at"`
}

// FigureRecord is one figure of an article.
type FigureRecord struct {
	// Label is the source's figure id (e.g. "F1"); empty when absent.
	Label string `json:"label,omitempty" yaml:"label,omitempty"`

	Caption string `json:"caption" yaml:"caption"`

	// ImageRef is the image file name or URL; empty when absent.
	ImageRef string `json:"image_ref,omitempty" yaml:"image_ref,omitempty"`

	// Entities holds mentions in annotator order. Always empty when
	// Caption is empty.
	Entities []EntityMention `json:"entities" yaml:"entities"`
}

// EntityMention is a span of caption text recognized as a biomedical entity.
type EntityMention struct {
	Text string `json:"text" yaml:"text"`

	// Type is the entity category (gene, disease, drug, species, ...).
	// The vocabulary is open; "unknown" when the annotator gives none.
	Type string `json:"type" yaml:"type"`

	// NormalizedID is the ontology identifier; empty when unresolved.
	NormalizedID string `json:"normalized_id,omitempty" yaml:"normalized_id,omitempty"`

	// Start and End are character offsets into the caption.
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// Normalize replaces nil slices with empty ones so records compare equal
// regardless of which store backend produced them.
func (p *PaperRecord) Normalize() {
	if p.Figures == nil {
		p.Figures = []FigureRecord{}
	}
	for i := range p.Figures {
		if p.Figures[i].Entities == nil {
			p.Figures[i].Entities = []EntityMention{}
		}
	}
}

// EntityCount returns the total number of mentions across all figures.
func (p *PaperRecord) EntityCount() int {
	n := 0
	for _, f := range p.Figures {
		n += len(f.Entities)
	}
	return n
}

// Summary returns the list view of the record.
func (p *PaperRecord) Summary() PaperSummary {
	return PaperSummary{
		ID:          p.ID,
		Title:       p.Title,
		Figures:     len(p.Figures),
		Entities:    p.EntityCount(),
		RetrievedAt: p.RetrievedAt,
	}
}

// PaperSummary is a compact view of a stored record used by list operations.
type PaperSummary struct {
	ID          string    `json:"id" yaml:"id"`
	Title       string    `json:"title" yaml:"title"`
	Figures     int       `json:"figures" yaml:"figures"`
	Entities    int       `json:"entities" yaml:"entities"`
	RetrievedAt time.Time `json:"retrieved_at" yaml:"retrieved_at"`
}

// StoreStats reports the contents of a store.
type StoreStats struct {
	Backend  StoreBackend `json:"backend" yaml:"backend"`
	Location string       `json:"location" yaml:"location"`
	Papers   int          `json:"papers" yaml:"papers"`
	Figures  int          `json:"figures" yaml:"figures"`
	Entities int          `json:"entities" yaml:"entities"`
}
