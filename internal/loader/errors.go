package loader

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel values for classifying load failures with errors.Is without
// inspecting the concrete error type.
var (
	// ErrCycle matches any CycleError.
	ErrCycle = errors.New("cyclic inclusion")
	// ErrMissingDocument matches any MissingDocumentError.
	ErrMissingDocument = errors.New("missing document")
)

// CycleError reports a document that transitively includes itself. Chain
// holds the inclusion chain in order, as base-relative paths; the first
// and last entries name the same document. Cycles are load-time errors
// and abort the whole load.
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	return "cyclic inclusion: " + strings.Join(e.Chain, " -> ")
}

func (e *CycleError) Unwrap() error { return ErrCycle }

// MissingDocumentError reports an inclusion marker whose target does not
// exist. Referencer is the base-relative path of the including document,
// empty when the root document itself is missing; Path is the reference
// exactly as written; Line is the marker's line number in the referencer.
type MissingDocumentError struct {
	Referencer string
	Path       string
	Line       int
}

func (e *MissingDocumentError) Error() string {
	if e.Referencer == "" {
		return fmt.Sprintf("missing document: %q (root document)", e.Path)
	}
	return fmt.Sprintf("missing document: %q (referenced by %s:%d)", e.Path, e.Referencer, e.Line)
}

func (e *MissingDocumentError) Unwrap() error { return ErrMissingDocument }
