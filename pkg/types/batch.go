// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// OutcomeStatus is the result of one identifier in a batch.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailed  OutcomeStatus = "failed"
	OutcomeSkipped OutcomeStatus = "skipped"
)

// Outcome records what happened to one identifier of a batch.
type Outcome struct {
	// Identifier is the input exactly as given.
	Identifier string `json:"identifier" yaml:"identifier"`

	// PaperID is the canonical ID of the stored record on success.
	PaperID string `json:"paper_id,omitempty" yaml:"paper_id,omitempty"`

	Status OutcomeStatus `json:"status" yaml:"status"`

	// Kind and Reason describe a failure (see ErrorKind).
	Kind   string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`

	// Note carries informational text such as "retrieved from store".
	Note string `json:"note,omitempty" yaml:"note,omitempty"`

	Figures  int `json:"figures" yaml:"figures"`
	Entities int `json:"entities" yaml:"entities"`

	// Degraded counts figures whose annotation failed softly.
	Degraded int `json:"degraded,omitempty" yaml:"degraded,omitempty"`
}

// BatchSummary holds the outcome of a batch extraction run. Outcomes are
// in input order.
type BatchSummary struct {
	RunID      string    `json:"run_id" yaml:"run_id"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
	Outcomes   []Outcome `json:"outcomes" yaml:"outcomes"`
	Succeeded  int       `json:"succeeded" yaml:"succeeded"`
	Failed     int       `json:"failed" yaml:"failed"`
	Skipped    int       `json:"skipped" yaml:"skipped"`

	// Stopped reports that the batch was cancelled before every
	// identifier was dispatched.
	Stopped bool `json:"stopped,omitempty" yaml:"stopped,omitempty"`
}

// Total returns the number of identifiers in the batch.
func (s BatchSummary) Total() int {
	return len(s.Outcomes)
}

// HasFailures reports whether any identifier failed.
func (s BatchSummary) HasFailures() bool {
	return s.Failed > 0
}

// Tally recomputes the counters from Outcomes.
func (s *BatchSummary) Tally() {
	s.Succeeded, s.Failed, s.Skipped = 0, 0, 0
	for _, o := range s.Outcomes {
		switch o.Status {
		case OutcomeSuccess:
			s.Succeeded++
		case OutcomeFailed:
			s.Failed++
		case OutcomeSkipped:
			s.Skipped++
		}
	}
}
