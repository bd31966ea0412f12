// Package loader implements the rule document loader: it resolves @path
// inclusion markers depth-first from a root document, producing the set of
// reachable documents in first-discovery order together with the fully
// expanded text. Loads are read-only and fail closed; a cycle or a missing
// reference aborts the whole load with no partial output.
//
// The loader itself does no logging and holds no long-lived state: each
// Load reads every reachable document exactly once into a per-load cache
// and the returned RuleSet is immutable. Reloading an unchanged corpus
// yields byte-identical output.
package loader

import (
	"context"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kariedo/claude-code-security-rules/internal/errors"
	"github.com/kariedo/claude-code-security-rules/internal/types"
)

// Loader resolves inclusion markers against a fixed base directory.
type Loader struct {
	baseDir string
}

// New creates a Loader. baseDir is the directory reference paths resolve
// against; when empty, each Load resolves against the root document's
// directory.
func New(baseDir string) *Loader {
	return &Loader{baseDir: baseDir}
}

// loadState carries the per-load read-once cache and DFS bookkeeping.
// Documents read during one load are held immutably for that load; a new
// Load starts from an empty cache, so file edits are only observed across
// loads, never within one.
type loadState struct {
	baseDir  string
	docs     map[string]*types.RuleDocument
	order    []string
	visiting map[string]bool
	chain    []string
	expanded map[string]string
}

// refSite identifies the marker an expansion request came from, for error
// reporting. The zero referencer marks the root document request.
type refSite struct {
	referencer string
	raw        string
	line       int
}

// Load reads the document graph reachable from rootPath and returns the
// resolved RuleSet: every reachable document exactly once, ordered by
// first discovery (depth-first, preserving in-document marker order), plus
// the expanded text with every marker substituted recursively.
//
// Load fails with a *MissingDocumentError when a referenced path does not
// exist and with a *CycleError when a document transitively includes
// itself. On any error no RuleSet is returned.
func (l *Loader) Load(ctx context.Context, rootPath string) (*types.RuleSet, error) {
	rootAbs, err := filepath.Abs(filepath.Clean(rootPath))
	if err != nil {
		return nil, errors.ErrInvalidPath(rootPath).WithComponent("loader")
	}

	baseDir := l.baseDir
	if baseDir == "" {
		baseDir = filepath.Dir(rootAbs)
	}
	baseDir, err = filepath.Abs(baseDir)
	if err != nil {
		return nil, errors.ErrInvalidPath(l.baseDir).WithComponent("loader")
	}

	st := &loadState{
		baseDir:  baseDir,
		docs:     make(map[string]*types.RuleDocument),
		visiting: make(map[string]bool),
		expanded: make(map[string]string),
	}

	expanded, err := l.expand(ctx, st, rootAbs, refSite{raw: rootPath})
	if err != nil {
		return nil, err
	}

	docs := make([]*types.RuleDocument, len(st.order))
	for i, path := range st.order {
		docs[i] = st.docs[path]
	}

	return &types.RuleSet{
		Root:      rootAbs,
		BaseDir:   baseDir,
		Documents: docs,
		Expanded:  expanded,
		LoadedAt:  time.Now(),
	}, nil
}

// expand returns the fully expanded text of the document at path, reading
// and registering the document on first encounter. A path already on the
// recursion stack means the document transitively includes itself.
func (l *Loader) expand(ctx context.Context, st *loadState, path string, site refSite) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if exp, ok := st.expanded[path]; ok {
		return exp, nil
	}
	if st.visiting[path] {
		return "", cycleError(st, path)
	}

	doc, ok := st.docs[path]
	if !ok {
		var err error
		doc, err = l.readDocument(st, path, site)
		if err != nil {
			return "", err
		}
		st.docs[path] = doc
		st.order = append(st.order, path)
	}

	st.visiting[path] = true
	st.chain = append(st.chain, path)
	defer func() {
		delete(st.visiting, path)
		st.chain = st.chain[:len(st.chain)-1]
	}()

	expanded, err := l.substitute(ctx, st, doc)
	if err != nil {
		return "", err
	}

	st.expanded[path] = expanded
	return expanded, nil
}

// readDocument reads and parses one document. Reference resolution is
// eager: an absolute or escaping reference anywhere in a reachable
// document aborts the load even before the marker is substituted.
func (l *Loader) readDocument(st *loadState, path string, site refSite) (*types.RuleDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &MissingDocumentError{
				Referencer: site.referencer,
				Path:       site.raw,
				Line:       site.line,
			}
		}
		return nil, errors.NewIOError(errors.ErrCodeReadFailed,
			fmt.Sprintf("reading document %s", displayPath(st.baseDir, path)), err).
			WithComponent("loader")
	}

	var modTime time.Time
	if info, statErr := os.Stat(path); statErr == nil {
		modTime = info.ModTime()
	}

	content := string(data)
	doc := &types.RuleDocument{
		Path:           site.raw,
		NormalizedPath: path,
		Title:          ExtractTitle(content),
		Content:        content,
		LastMod:        modTime,
		Hash:           fmt.Sprintf("%08x", crc32.ChecksumIEEE(data)),
	}

	refs, err := resolveReferences(st.baseDir, doc.NormalizedPath, content)
	if err != nil {
		return nil, err
	}
	doc.References = refs

	return doc, nil
}

// substitute replaces every marker line in doc with the referenced
// document's expansion. Non-marker lines pass through byte-for-byte, so an
// unchanged corpus always expands identically and editing one document
// only changes that document's portions of the output.
func (l *Loader) substitute(ctx context.Context, st *loadState, doc *types.RuleDocument) (string, error) {
	if len(doc.References) == 0 {
		return doc.Content, nil
	}

	byLine := make(map[int]types.Reference, len(doc.References))
	for _, ref := range doc.References {
		byLine[ref.Line] = ref
	}

	display := displayPath(st.baseDir, doc.NormalizedPath)
	lines := strings.Split(doc.Content, "\n")
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		ref, ok := byLine[i+1]
		if !ok {
			out = append(out, line)
			continue
		}
		sub, err := l.expand(ctx, st, ref.NormalizedPath, refSite{
			referencer: display,
			raw:        ref.Raw,
			line:       ref.Line,
		})
		if err != nil {
			return "", err
		}
		out = append(out, strings.TrimSuffix(sub, "\n"))
	}

	return strings.Join(out, "\n"), nil
}

// resolveReferences resolves every marker in content against the base
// directory, preserving document order of appearance.
func resolveReferences(baseDir, docPath, content string) ([]types.Reference, error) {
	markers := ParseReferences(content)
	if len(markers) == 0 {
		return nil, nil
	}

	display := displayPath(baseDir, docPath)
	refs := make([]types.Reference, 0, len(markers))
	for _, m := range markers {
		resolved, rerr := resolveReference(baseDir, m.Raw)
		if rerr != nil {
			return nil, rerr.WithLocation(display, m.Line).WithComponent("loader")
		}
		refs = append(refs, types.Reference{
			Raw:            m.Raw,
			NormalizedPath: resolved,
			Line:           m.Line,
		})
	}

	return refs, nil
}

// ResolveReference resolves a single reference token against baseDir the
// way Load does: relative, slash-separated, confined to the base directory
// after cleaning. The scanner shares this so its include graph and the
// loader's expansion always agree on what a marker points at.
func ResolveReference(baseDir, raw string) (string, error) {
	resolved, rerr := resolveReference(baseDir, raw)
	if rerr != nil {
		return "", rerr
	}
	return resolved, nil
}

// resolveReference resolves one reference token. References are relative,
// slash-separated, and must stay inside the base directory after cleaning.
func resolveReference(baseDir, raw string) (string, *errors.RulesError) {
	if filepath.IsAbs(raw) {
		return "", errors.ErrInvalidPath(raw)
	}
	resolved := filepath.Join(baseDir, filepath.FromSlash(raw))
	rel, err := filepath.Rel(baseDir, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.ErrPathTraversal(raw)
	}
	return resolved, nil
}

// cycleError builds the ordered inclusion chain for a cycle closing at
// path: the recursion stack from the path's first occurrence onward, with
// the path repeated at the end to close the cycle.
func cycleError(st *loadState, path string) *CycleError {
	start := 0
	for i, p := range st.chain {
		if p == path {
			start = i
			break
		}
	}

	chain := make([]string, 0, len(st.chain)-start+1)
	for _, p := range st.chain[start:] {
		chain = append(chain, displayPath(st.baseDir, p))
	}
	chain = append(chain, displayPath(st.baseDir, path))

	return &CycleError{Chain: chain}
}

// displayPath renders an absolute document path relative to the base
// directory with forward slashes, for errors and listings.
func displayPath(baseDir, abs string) string {
	rel, err := filepath.Rel(baseDir, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}
