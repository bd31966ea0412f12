// Package types provides common type definitions used throughout the secrules
// toolkit. This package contains shared types to avoid circular dependencies
// between packages.
package types

import "time"

// RuleDocument contains metadata and content for a discovered rule document,
// used by the scanner, registry, loader, and preview server.
type RuleDocument struct {
	// Path is the document path as given by configuration or a reference
	Path string
	// NormalizedPath is the cleaned absolute path used as the dedup key;
	// each normalized path maps to at most one RuleDocument instance
	NormalizedPath string
	// Title is the text of the first level-one heading, empty if none
	Title string
	// Content is the raw document text, read once and held immutably
	Content string
	// References lists inclusion markers in document order of appearance
	References []Reference
	// LastMod tracks the last modification time for change detection
	LastMod time.Time
	// Hash provides a CRC32 checksum for efficient change detection
	Hash string
}

// Reference is a single inclusion marker occurrence inside a rule document.
type Reference struct {
	// Raw is the path token as written after the @ marker
	Raw string
	// NormalizedPath is the cleaned absolute path the token resolves to
	NormalizedPath string
	// Line is the 1-based line number of the marker in the including document
	Line int
}

// RuleSet is the resolved, flattened result of loading a root document:
// every reachable RuleDocument in first-discovery order plus the fully
// expanded text.
type RuleSet struct {
	// Root is the normalized path of the designated root document
	Root string
	// BaseDir is the directory reference paths were resolved against
	BaseDir string
	// Documents holds each reachable document exactly once, ordered by
	// first discovery (depth-first, preserving in-document marker order)
	Documents []*RuleDocument
	// Expanded is the root content with every inclusion marker substituted
	// by the referenced document's expansion, recursively
	Expanded string
	// LoadedAt records when the load completed
	LoadedAt time.Time
}

// Document returns the member with the given normalized path, nil if absent.
func (rs *RuleSet) Document(normalizedPath string) *RuleDocument {
	for _, doc := range rs.Documents {
		if doc.NormalizedPath == normalizedPath {
			return doc
		}
	}
	return nil
}

// Paths returns the normalized paths of all members in first-discovery order.
func (rs *RuleSet) Paths() []string {
	paths := make([]string, len(rs.Documents))
	for i, doc := range rs.Documents {
		paths[i] = doc.NormalizedPath
	}
	return paths
}

// EventType represents the type of document change event.
type EventType string

const (
	EventTypeAdded   EventType = "added"
	EventTypeUpdated EventType = "updated"
	EventTypeRemoved EventType = "removed"
)

// DocumentEvent represents a change in the document registry, used for
// real-time notifications to watchers like the preview server.
type DocumentEvent struct {
	// Type indicates the kind of change (added, updated, removed)
	Type EventType
	// Document contains the document information (never nil)
	Document *RuleDocument
	// Timestamp records when the event occurred for ordering and filtering
	Timestamp time.Time
}
