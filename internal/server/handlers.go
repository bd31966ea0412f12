package server

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kariedo/claude-code-security-rules/internal/loader"
	"github.com/kariedo/claude-code-security-rules/internal/registry"
	"github.com/kariedo/claude-code-security-rules/internal/renderer"
	"github.com/kariedo/claude-code-security-rules/internal/types"
	"github.com/kariedo/claude-code-security-rules/internal/version"
)

// documentSummary is the JSON shape for one document in API responses.
type documentSummary struct {
	Path       string            `json:"path"`
	Title      string            `json:"title,omitempty"`
	Hash       string            `json:"hash"`
	LastMod    time.Time         `json:"last_modified"`
	References []referenceDetail `json:"references,omitempty"`
}

type referenceDetail struct {
	Raw  string `json:"raw"`
	Path string `json:"path"`
	Line int    `json:"line"`
}

// displayPath shortens a normalized absolute path to a base-relative slash
// path for URLs and human output.
func (s *PreviewServer) displayPath(normalizedPath string) string {
	rel, err := filepath.Rel(s.scanner.BaseDir(), normalizedPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(normalizedPath)
	}
	return filepath.ToSlash(rel)
}

func docURL(display string) string {
	u := url.URL{Path: "/doc/" + display}
	return u.EscapedPath()
}

func errString(err error) string {
	if err == nil {
		return "no load attempted"
	}
	return err.Error()
}

// sortedDocuments returns every registered document ordered by path, for
// stable listings independent of registry iteration order.
func (s *PreviewServer) sortedDocuments() []*types.RuleDocument {
	all := s.registry.GetAll()
	docs := make([]*types.RuleDocument, 0, len(all))
	for _, doc := range all {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].NormalizedPath < docs[j].NormalizedPath
	})
	return docs
}

func (s *PreviewServer) summarize(doc *types.RuleDocument) documentSummary {
	refs := make([]referenceDetail, 0, len(doc.References))
	for _, ref := range doc.References {
		refs = append(refs, referenceDetail{
			Raw:  ref.Raw,
			Path: s.displayPath(ref.NormalizedPath),
			Line: ref.Line,
		})
	}
	return documentSummary{
		Path:       s.displayPath(doc.NormalizedPath),
		Title:      doc.Title,
		Hash:       doc.Hash,
		LastMod:    doc.LastMod,
		References: refs,
	}
}

// handleIndex serves the corpus overview: load status, document list, and
// reference counts.
func (s *PreviewServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rs, stale, loadErr := s.rulesetSnapshot()
	docs := s.sortedDocuments()
	includes := registry.NewIncludeGraph(s.registry)
	graph := includes.Graph()

	var b strings.Builder
	b.WriteString("<h1>Security Rules</h1>\n")

	switch {
	case rs == nil:
		fmt.Fprintf(&b, "<div class=\"stale-banner\">ruleset failed to load: %s</div>\n",
			html.EscapeString(errString(loadErr)))
	case stale:
		fmt.Fprintf(&b, "<div class=\"stale-banner\">serving stale ruleset loaded %s; last reload failed: %s</div>\n",
			rs.LoadedAt.Format(time.RFC3339), html.EscapeString(errString(loadErr)))
	default:
		fmt.Fprintf(&b, "<p>Ruleset of %d documents loaded %s. <a href=\"/ruleset\">Read the expanded ruleset</a> or fetch <a href=\"/ruleset.md\">the raw text</a>.</p>\n",
			len(rs.Documents), rs.LoadedAt.Format(time.RFC3339))
	}

	// The loader only reports the cycle it walked into; the registry graph
	// sees cycles anywhere in the scanned corpus, reachable or not.
	if cycles := includes.DetectCycles(); len(cycles) > 0 {
		b.WriteString("<h2>Cyclic inclusions</h2>\n<ul>\n")
		for _, chain := range cycles {
			display := make([]string, len(chain))
			for i, member := range chain {
				display[i] = s.displayPath(member)
			}
			fmt.Fprintf(&b, "<li><code>%s</code></li>\n",
				html.EscapeString(strings.Join(display, " -> ")))
		}
		b.WriteString("</ul>\n")
	}

	b.WriteString("<h2>Documents</h2>\n")
	if len(docs) == 0 {
		b.WriteString("<p>No rule documents discovered.</p>\n")
	} else {
		b.WriteString("<ul>\n")
		for _, doc := range docs {
			display := s.displayPath(doc.NormalizedPath)
			title := doc.Title
			if title == "" {
				title = display
			}
			fmt.Fprintf(&b, "<li><a href=\"%s\">%s</a> <code>%s</code>",
				docURL(display), html.EscapeString(title), html.EscapeString(display))
			if refs := len(graph[doc.NormalizedPath]); refs > 0 {
				fmt.Fprintf(&b, " (%d references)", refs)
			}
			b.WriteString("</li>\n")
		}
		b.WriteString("</ul>\n")
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, renderer.RenderPage("Security Rules", b.String(), true))
}

// handleRuleset serves the fully expanded ruleset as a rendered page with an
// outline. Until a load has succeeded there is nothing safe to serve, so it
// answers 503 rather than a partial expansion.
func (s *PreviewServer) handleRuleset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rs, stale, loadErr := s.rulesetSnapshot()
	if rs == nil {
		s.renderLoadFailure(w, loadErr)
		return
	}

	fragment := renderer.RenderHTML(rs.Expanded)

	var b strings.Builder
	if stale {
		fmt.Fprintf(&b, "<div class=\"stale-banner\">serving stale ruleset loaded %s; last reload failed: %s</div>\n",
			rs.LoadedAt.Format(time.RFC3339), html.EscapeString(errString(loadErr)))
	}
	if outline, err := renderer.Outline(fragment); err == nil && len(outline) > 1 {
		b.WriteString("<nav><ul>\n")
		for _, entry := range outline {
			if entry.Level > 3 || entry.ID == "" {
				continue
			}
			fmt.Fprintf(&b, "<li class=\"outline-%d\"><a href=\"#%s\">%s</a></li>\n",
				entry.Level, entry.ID, html.EscapeString(entry.Text))
		}
		b.WriteString("</ul></nav>\n")
	}
	b.WriteString(fragment)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, renderer.RenderPage("Expanded Ruleset", b.String(), true))
}

func (s *PreviewServer) renderLoadFailure(w http.ResponseWriter, loadErr error) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	body := fmt.Sprintf("<h1>Ruleset unavailable</h1>\n<div class=\"stale-banner\">%s</div>\n<p>Fix the corpus and the page will reload itself.</p>\n",
		html.EscapeString(errString(loadErr)))
	fmt.Fprint(w, renderer.RenderPage("Ruleset unavailable", body, true))
}

// handleRulesetRaw serves the expanded ruleset as plain Markdown, the exact
// text agents consume.
func (s *PreviewServer) handleRulesetRaw(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rs, _, loadErr := s.rulesetSnapshot()
	if rs == nil {
		http.Error(w, errString(loadErr), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	fmt.Fprint(w, rs.Expanded)
}

// handleDoc serves a single document rendered on its own. The path after
// /doc/ goes through the same resolution as an inclusion marker, which
// rejects absolute paths and traversal outside the corpus.
func (s *PreviewServer) handleDoc(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rel := strings.TrimPrefix(r.URL.Path, "/doc/")
	if rel == "" {
		http.Error(w, "Document path required", http.StatusBadRequest)
		return
	}

	normalized, err := loader.ResolveReference(s.scanner.BaseDir(), rel)
	if err != nil {
		http.Error(w, "Invalid document path", http.StatusBadRequest)
		return
	}

	doc, ok := s.registry.Get(normalized)
	if !ok {
		http.NotFound(w, r)
		return
	}

	title := doc.Title
	if title == "" {
		title = s.displayPath(doc.NormalizedPath)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, renderer.RenderPage(title, renderer.RenderHTML(doc.Content), true))
}

// handleAPIDocuments lists every registered document as JSON.
func (s *PreviewServer) handleAPIDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	docs := s.sortedDocuments()
	summaries := make([]documentSummary, 0, len(docs))
	for _, doc := range docs {
		summaries = append(summaries, s.summarize(doc))
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"documents": summaries,
		"count":     len(summaries),
		"timestamp": time.Now().Unix(),
	})
}

// handleAPIRuleset exposes the loaded ruleset: membership in first-discovery
// order, the expanded text, and staleness.
func (s *PreviewServer) handleAPIRuleset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rs, stale, loadErr := s.rulesetSnapshot()
	w.Header().Set("Content-Type", "application/json")
	if rs == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error":     errString(loadErr),
			"timestamp": time.Now().Unix(),
		})
		return
	}

	documents := make([]documentSummary, 0, len(rs.Documents))
	for _, doc := range rs.Documents {
		documents = append(documents, s.summarize(doc))
	}

	response := map[string]interface{}{
		"root":      s.displayPath(rs.Root),
		"base_dir":  rs.BaseDir,
		"loaded_at": rs.LoadedAt,
		"stale":     stale,
		"documents": documents,
		"expanded":  rs.Expanded,
		"timestamp": time.Now().Unix(),
	}
	if loadErr != nil {
		response["last_error"] = loadErr.Error()
	}
	_ = json.NewEncoder(w).Encode(response)
}

// handleHealth reports component status; degraded when the served ruleset is
// stale or missing.
func (s *PreviewServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	rs, stale, loadErr := s.rulesetSnapshot()

	status := "healthy"
	rulesetCheck := map[string]interface{}{"status": "healthy"}
	switch {
	case rs == nil:
		status = "degraded"
		rulesetCheck["status"] = "unavailable"
		rulesetCheck["error"] = errString(loadErr)
	case stale:
		status = "degraded"
		rulesetCheck["status"] = "stale"
		rulesetCheck["error"] = errString(loadErr)
		rulesetCheck["documents"] = len(rs.Documents)
	default:
		rulesetCheck["documents"] = len(rs.Documents)
	}

	health := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"version":   version.GetShortVersion(),
		"checks": map[string]interface{}{
			"server": map[string]interface{}{
				"status":  "healthy",
				"message": "HTTP server operational",
			},
			"registry": map[string]interface{}{
				"status":    "healthy",
				"documents": s.registry.Count(),
			},
			"ruleset": rulesetCheck,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(health)
}
