// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package annotate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pdiddy/paper-extractor/pkg/types"
)

// unresolvedID is the marker BERN2 uses for mentions without a
// normalized identifier.
const unresolvedID = "CUI-less"

type annotationDocument struct {
	Annotations *[]rawAnnotation `json:"annotations"`
}

type rawAnnotation struct {
	Mention *string         `json:"mention"`
	Obj     *string         `json:"obj"`
	ID      json.RawMessage `json:"id"`
	Span    *rawSpan        `json:"span"`
}

type rawSpan struct {
	Begin int `json:"begin"`
	End   int `json:"end"`
}

// decodeAnnotations validates and converts an annotation document. A
// missing annotations array or a field of the wrong JSON type makes the
// document malformed. Missing fields take defaults: empty text, type
// "unknown", no identifier, zero span.
func decodeAnnotations(body []byte) ([]types.EntityMention, error) {
	var doc annotationDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("malformed annotation document: %w", err)
	}
	if doc.Annotations == nil {
		return nil, fmt.Errorf("malformed annotation document: no annotations array")
	}

	mentions := make([]types.EntityMention, 0, len(*doc.Annotations))
	for i, a := range *doc.Annotations {
		id, err := normalizedID(a.ID)
		if err != nil {
			return nil, fmt.Errorf("malformed annotation %d: %w", i, err)
		}

		m := types.EntityMention{
			Type:         "unknown",
			NormalizedID: id,
		}
		if a.Mention != nil {
			m.Text = *a.Mention
		}
		if a.Obj != nil && strings.TrimSpace(*a.Obj) != "" {
			m.Type = strings.TrimSpace(*a.Obj)
		}
		if a.Span != nil {
			m.Start, m.End = a.Span.Begin, a.Span.End
		}
		mentions = append(mentions, m)
	}
	return mentions, nil
}

// normalizedID accepts the identifier as a list of strings or a single
// string and returns the first usable entry.
func normalizedID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}

	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		var single string
		if err := json.Unmarshal(raw, &single); err != nil {
			return "", fmt.Errorf("id is neither string nor list of strings")
		}
		ids = []string{single}
	}

	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" && id != unresolvedID {
			return id, nil
		}
	}
	return "", nil
}
