// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Components wrap these with fmt.Errorf("...: %w", ...) so
// callers can classify failures with errors.Is.
var (
	ErrInvalidIdentifier  = errors.New("invalid identifier")
	ErrNotFound           = errors.New("not found")
	ErrTransientFetch     = errors.New("transient fetch error")
	ErrParse              = errors.New("parse error")
	ErrAnnotationDegraded = errors.New("annotation degraded")
	ErrStoreFailure       = errors.New("store failure")
	ErrExtractionFailed   = errors.New("extraction failed")
)

// maxPayloadSnippet bounds the raw payload kept on a ParseError.
const maxPayloadSnippet = 512

// ParseError reports a response that arrived but could not be decoded.
// Payload holds the start of the raw body for diagnosis.
type ParseError struct {
	Identifier string
	Payload    string
	Err        error
}

// NewParseError builds a ParseError, truncating payload.
func NewParseError(identifier string, payload []byte, err error) *ParseError {
	if len(payload) > maxPayloadSnippet {
		payload = payload[:maxPayloadSnippet]
	}
	return &ParseError{Identifier: identifier, Payload: string(payload), Err: err}
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing response for %s: %v", e.Identifier, e.Err)
}

func (e *ParseError) Unwrap() []error { return []error{ErrParse, e.Err} }

// Stage names the extraction step that was running when an error occurred.
type Stage string

const (
	StageResolving  Stage = "resolving"
	StageFetching   Stage = "fetching"
	StageAnnotating Stage = "annotating"
	StageAssembled  Stage = "assembled"
	StageStoring    Stage = "storing"
	StageStored     Stage = "stored"
	StageFailed     Stage = "failed"
)

// ExtractionError is returned by the orchestrator for any failed
// extraction. It matches both ErrExtractionFailed and its cause.
type ExtractionError struct {
	Identifier string
	Stage      Stage
	Err        error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting %s (%s): %v", e.Identifier, e.Stage, e.Err)
}

func (e *ExtractionError) Unwrap() []error { return []error{ErrExtractionFailed, e.Err} }

// ErrorKind maps err to a stable name used in batch reports, marker files
// and API responses.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidIdentifier):
		return "invalid_identifier"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTransientFetch):
		return "transient_fetch"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrAnnotationDegraded):
		return "annotation_degraded"
	case errors.Is(err, ErrStoreFailure):
		return "store_failure"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unknown"
	}
}
