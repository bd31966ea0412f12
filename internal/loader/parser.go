package loader

import "strings"

// Marker is a single inclusion marker occurrence found by the line scan.
type Marker struct {
	// Raw is the path token exactly as written after the '@'
	Raw string
	// Line is the 1-based line number of the marker
	Line int
}

// fenceTracker tracks whether a line scan is inside a fenced code block.
// A fence opened with ``` only closes on ```, a ~~~ fence only on ~~~.
type fenceTracker struct {
	open string
}

// observe processes one line and reports whether it belongs to a fenced
// code block, counting the fence lines themselves.
func (f *fenceTracker) observe(line string) bool {
	trimmed := strings.TrimSpace(line)
	if f.open != "" {
		if strings.HasPrefix(trimmed, f.open) {
			f.open = ""
		}
		return true
	}
	switch {
	case strings.HasPrefix(trimmed, "```"):
		f.open = "```"
		return true
	case strings.HasPrefix(trimmed, "~~~"):
		f.open = "~~~"
		return true
	}
	return false
}

// ParseReferences scans document content for inclusion markers. The syntax
// is deliberately literal: the '@' must be the first character of the line,
// followed by a single path token and nothing else (trailing whitespace and
// a CR are tolerated). Lines with further prose after the token are not
// markers, and lines inside fenced code blocks are never markers because
// the corpus' code examples legitimately start lines with '@'.
func ParseReferences(content string) []Marker {
	var markers []Marker
	var fence fenceTracker

	for i, line := range strings.Split(content, "\n") {
		if fence.observe(line) {
			continue
		}
		raw, ok := markerToken(line)
		if !ok {
			continue
		}
		markers = append(markers, Marker{Raw: raw, Line: i + 1})
	}

	return markers
}

// markerToken extracts the path token from a marker line, reporting whether
// the line is a well-formed marker.
func markerToken(line string) (string, bool) {
	if len(line) < 2 || line[0] != '@' {
		return "", false
	}
	token := strings.TrimRight(line[1:], " \t\r")
	if token == "" || strings.ContainsAny(token, " \t\r") {
		return "", false
	}
	return token, true
}

// ExtractTitle returns the text of the first level-one heading outside any
// fenced code block, or the empty string when the document has none.
func ExtractTitle(content string) string {
	var fence fenceTracker
	for _, line := range strings.Split(content, "\n") {
		if fence.observe(line) {
			continue
		}
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimSuffix(line[2:], "\r"))
		}
	}
	return ""
}

// HasUnclosedFence reports whether content ends while a fenced code block
// is still open, which usually means a missing closing fence.
func HasUnclosedFence(content string) bool {
	var fence fenceTracker
	for _, line := range strings.Split(content, "\n") {
		fence.observe(line)
	}
	return fence.open != ""
}
