package loader

import (
	"reflect"
	"strings"
	"testing"
)

// FuzzParseReferences verifies the marker scan never panics and only ever
// reports well-formed markers on arbitrary input.
func FuzzParseReferences(f *testing.F) {
	f.Add("@rules/a.md\n")
	f.Add("# Title\n\n@a/b.md  \nprose @c\n")
	f.Add("```go\n@app.route(\"/x\")\n```\n@real.md\n")
	f.Add("~~~\n@inside\n~~~\n")
	f.Add("@\n@ \n@@double\n")
	f.Add("@a.md\r\n@b.md\r\n")
	f.Add(strings.Repeat("@x\n", 100))

	f.Fuzz(func(t *testing.T, content string) {
		markers := ParseReferences(content)
		lines := strings.Split(content, "\n")

		for _, m := range markers {
			if m.Line < 1 || m.Line > len(lines) {
				t.Fatalf("marker line %d out of range (%d lines)", m.Line, len(lines))
			}
			line := lines[m.Line-1]
			if len(line) < 2 || line[0] != '@' {
				t.Errorf("marker reported on non-marker line %d: %q", m.Line, line)
			}
			if m.Raw == "" {
				t.Errorf("empty marker token on line %d", m.Line)
			}
			if strings.ContainsAny(m.Raw, " \t\r\n") {
				t.Errorf("marker token contains whitespace: %q", m.Raw)
			}
		}

		// The scan is deterministic.
		if again := ParseReferences(content); !reflect.DeepEqual(markers, again) {
			t.Error("repeated scans disagree")
		}

		// Title extraction shares the fence tracking and must not panic
		// or span lines.
		if title := ExtractTitle(content); strings.Contains(title, "\n") {
			t.Errorf("title spans lines: %q", title)
		}
	})
}
