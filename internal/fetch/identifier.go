// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"regexp"
	"strings"
)

// IdentifierType classifies an input identifier.
type IdentifierType int

const (
	TypeUnknown IdentifierType = iota
	TypePMC
	TypePMID
)

func (t IdentifierType) String() string {
	switch t {
	case TypePMC:
		return "pmc"
	case TypePMID:
		return "pmid"
	default:
		return "unknown"
	}
}

// pmcPattern matches PubMed Central IDs: "PMC1234567", "pmc1234567".
var pmcPattern = regexp.MustCompile(`^(?i:PMC)(\d{1,10})$`)

// pmidPattern matches bare PubMed IDs: "35012345".
var pmidPattern = regexp.MustCompile(`^\d{1,9}$`)

// Classify determines the identifier type and returns the normalized form.
// PMC IDs are upper-cased; surrounding whitespace is removed.
func Classify(identifier string) (IdentifierType, string) {
	identifier = strings.TrimSpace(identifier)

	if m := pmcPattern.FindStringSubmatch(identifier); m != nil {
		return TypePMC, "PMC" + m[1]
	}

	if pmidPattern.MatchString(identifier) {
		return TypePMID, identifier
	}

	return TypeUnknown, identifier
}

// IsCanonical reports whether id is already in canonical PMC form.
func IsCanonical(id string) bool {
	t, norm := Classify(id)
	return t == TypePMC && norm == id
}
