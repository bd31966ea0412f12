// Package renderer converts rule documents to HTML for the preview server.
//
// The Markdown dialect is deliberately small: headings, paragraphs, fenced
// code blocks, unordered and ordered lists, inline code, bold text, and
// links. All document text is HTML-escaped before any inline processing,
// and link targets outside an allowlist of schemes render as plain text.
// Corpus documents quote hostile input on purpose, so nothing from a
// document reaches the page unescaped.
package renderer

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

var (
	codeSpanPattern    = regexp.MustCompile("`([^`]+)`")
	boldPattern        = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	linkPattern        = regexp.MustCompile(`\[([^\]]+)\]\(([^()\s]+)\)`)
	orderedItemPattern = regexp.MustCompile(`^\d+\.\s+(.*)$`)
)

// RenderHTML converts Markdown document content to an HTML fragment.
// Fenced code blocks follow the same rules as the reference scan: a block
// opened with ``` only closes on ```, a ~~~ block only on ~~~, and nothing
// inside is interpreted. Headings get slug ids so the outline can link to
// them.
func RenderHTML(markdown string) string {
	var b strings.Builder
	var paragraph []string
	listTag := ""
	inFence := false
	fenceKind := ""
	slugs := make(map[string]int)

	flushParagraph := func() {
		if len(paragraph) == 0 {
			return
		}
		b.WriteString("<p>")
		b.WriteString(strings.Join(paragraph, "\n"))
		b.WriteString("</p>\n")
		paragraph = paragraph[:0]
	}
	closeList := func() {
		if listTag == "" {
			return
		}
		b.WriteString("</" + listTag + ">\n")
		listTag = ""
	}

	for _, raw := range strings.Split(markdown, "\n") {
		line := strings.TrimSuffix(raw, "\r")
		trimmed := strings.TrimSpace(line)

		if inFence {
			if strings.HasPrefix(trimmed, fenceKind) {
				b.WriteString("</code></pre>\n")
				inFence = false
				continue
			}
			b.WriteString(html.EscapeString(line))
			b.WriteString("\n")
			continue
		}

		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			flushParagraph()
			closeList()
			inFence = true
			fenceKind = trimmed[:3]
			if lang := fenceLanguage(trimmed[3:]); lang != "" {
				fmt.Fprintf(&b, "<pre><code class=\"language-%s\">", html.EscapeString(lang))
			} else {
				b.WriteString("<pre><code>")
			}
			continue
		}

		if trimmed == "" {
			flushParagraph()
			closeList()
			continue
		}

		if level, text := headingLine(line); level > 0 {
			flushParagraph()
			closeList()
			fmt.Fprintf(&b, "<h%d id=\"%s\">%s</h%d>\n", level, uniqueSlug(slugs, text), renderInline(text), level)
			continue
		}

		if item, ok := unorderedItem(trimmed); ok {
			flushParagraph()
			if listTag != "ul" {
				closeList()
				b.WriteString("<ul>\n")
				listTag = "ul"
			}
			b.WriteString("<li>")
			b.WriteString(renderInline(item))
			b.WriteString("</li>\n")
			continue
		}

		if m := orderedItemPattern.FindStringSubmatch(trimmed); m != nil {
			flushParagraph()
			if listTag != "ol" {
				closeList()
				b.WriteString("<ol>\n")
				listTag = "ol"
			}
			b.WriteString("<li>")
			b.WriteString(renderInline(m[1]))
			b.WriteString("</li>\n")
			continue
		}

		paragraph = append(paragraph, renderInline(trimmed))
	}

	flushParagraph()
	closeList()
	if inFence {
		b.WriteString("</code></pre>\n")
	}

	return b.String()
}

// headingLine reports the heading level and text of a line, or level 0 for
// non-heading lines. Headings must start at the first column, matching how
// document titles are extracted.
func headingLine(line string) (int, string) {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 6 || level >= len(line) || line[level] != ' ' {
		return 0, ""
	}
	return level, strings.TrimSpace(line[level+1:])
}

func unorderedItem(trimmed string) (string, bool) {
	for _, prefix := range []string{"- ", "* "} {
		if strings.HasPrefix(trimmed, prefix) {
			return strings.TrimSpace(trimmed[len(prefix):]), true
		}
	}
	return "", false
}

func fenceLanguage(rest string) string {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// renderInline renders inline Markdown in block text. The input is escaped
// first; code span contents receive no further processing.
func renderInline(text string) string {
	escaped := html.EscapeString(text)
	var b strings.Builder
	last := 0
	for _, span := range codeSpanPattern.FindAllStringSubmatchIndex(escaped, -1) {
		b.WriteString(renderSpans(escaped[last:span[0]]))
		b.WriteString("<code>")
		b.WriteString(escaped[span[2]:span[3]])
		b.WriteString("</code>")
		last = span[1]
	}
	b.WriteString(renderSpans(escaped[last:]))
	return b.String()
}

func renderSpans(s string) string {
	s = boldPattern.ReplaceAllString(s, "<strong>$1</strong>")
	s = linkPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := linkPattern.FindStringSubmatch(match)
		if !safeLinkTarget(parts[2]) {
			return match
		}
		return "<a href=\"" + parts[2] + "\">" + parts[1] + "</a>"
	})
	return s
}

// safeLinkTarget allows http(s), fragment, and relative targets. Anything
// else, javascript: in particular, stays plain text.
func safeLinkTarget(target string) bool {
	lower := strings.ToLower(target)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return true
	}
	if strings.HasPrefix(target, "#") || strings.HasPrefix(target, "/") ||
		strings.HasPrefix(target, "./") || strings.HasPrefix(target, "../") {
		return true
	}
	return !strings.Contains(target, ":")
}

// uniqueSlug returns a document-unique anchor id for a heading.
func uniqueSlug(seen map[string]int, text string) string {
	slug := slugify(text)
	if slug == "" {
		slug = "section"
	}
	seen[slug]++
	if n := seen[slug]; n > 1 {
		return fmt.Sprintf("%s-%d", slug, n)
	}
	return slug
}

func slugify(text string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(text) {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !isAlnum {
			pendingDash = b.Len() > 0
			continue
		}
		if pendingDash {
			b.WriteByte('-')
			pendingDash = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
<style>
body { margin: 2rem auto; max-width: 46rem; padding: 0 1rem; font-family: system-ui, sans-serif; line-height: 1.55; color: #1f2430; }
h1, h2, h3, h4 { line-height: 1.25; }
pre { background: #f6f8fa; border: 1px solid #d0d7de; border-radius: 6px; padding: 0.75rem; overflow-x: auto; }
code { font-family: ui-monospace, SFMono-Regular, Menlo, monospace; font-size: 0.92em; }
p code, li code { background: #f6f8fa; padding: 0.1em 0.3em; border-radius: 4px; }
a { color: #0757ba; }
.stale-banner { background: #fff3cd; border: 1px solid #ffe69c; border-radius: 6px; padding: 0.5rem 0.75rem; margin-bottom: 1.25rem; }
#load-error-overlay { position: fixed; left: 0; right: 0; bottom: 0; background: #58151c; color: #f8d7da; font-family: ui-monospace, monospace; font-size: 0.85rem; padding: 0.75rem 1rem; white-space: pre-wrap; }
</style>
</head>
<body>
<main>
%s</main>
%s</body>
</html>
`

const reloadScript = `<script>
(function () {
	var proto = window.location.protocol === "https:" ? "wss" : "ws";
	var ws = new WebSocket(proto + "://" + window.location.host + "/ws");
	ws.onmessage = function (event) {
		var message = JSON.parse(event.data);
		if (message.type === "ruleset_updated") {
			window.location.reload();
		}
		if (message.type === "load_error") {
			var overlay = document.getElementById("load-error-overlay");
			if (!overlay) {
				overlay = document.createElement("div");
				overlay.id = "load-error-overlay";
				document.body.appendChild(overlay);
			}
			overlay.textContent = message.content;
		}
	};
})();
</script>
`

// RenderPage wraps a rendered fragment in the preview page layout. When
// reload is true the page subscribes to the server websocket and reloads
// itself on change broadcasts.
func RenderPage(title, body string, reload bool) string {
	script := ""
	if reload {
		script = reloadScript
	}
	return fmt.Sprintf(pageTemplate, html.EscapeString(title), body, script)
}
