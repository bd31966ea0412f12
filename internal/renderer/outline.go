package renderer

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// OutlineEntry is one heading of a rendered document.
type OutlineEntry struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
	ID    string `json:"id,omitempty"`
}

// Outline walks rendered HTML and returns its headings in document order
// for the preview navigation.
func Outline(htmlContent string) ([]OutlineEntry, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	entries := []OutlineEntry{}
	var traverse func(n *html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if level, ok := headingTagLevel(n.Data); ok {
				entries = append(entries, OutlineEntry{
					Level: level,
					Text:  strings.TrimSpace(textContent(n)),
					ID:    attrValue(n, "id"),
				})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)

	return entries, nil
}

func headingTagLevel(tag string) (int, bool) {
	if len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
		return int(tag[1] - '0'), true
	}
	return 0, false
}

// textContent collects the concatenated text nodes under n.
func textContent(n *html.Node) string {
	var b strings.Builder
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(n)
	return b.String()
}

func attrValue(n *html.Node, name string) string {
	for _, attr := range n.Attr {
		if attr.Key == name {
			return attr.Val
		}
	}
	return ""
}
