package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	secerrors "github.com/kariedo/claude-code-security-rules/internal/errors"
)

// writeDoc creates a document under dir, making parent directories as
// needed, and returns its absolute path.
func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRootWithoutReferences(t *testing.T) {
	dir := t.TempDir()
	content := "# Security Rules\n\nNever interpolate user input into SQL.\n"
	root := writeDoc(t, dir, "security-rules.md", content)

	rs, err := New("").Load(context.Background(), root)
	require.NoError(t, err)

	// With no markers the expanded output is the root's raw content.
	assert.Equal(t, content, rs.Expanded)
	require.Len(t, rs.Documents, 1)
	assert.Equal(t, "Security Rules", rs.Documents[0].Title)
	assert.Empty(t, rs.Documents[0].References)
	assert.NotEmpty(t, rs.Documents[0].Hash)
	assert.Equal(t, dir, rs.BaseDir)
}

func TestLoadSubstitutesMarkerLines(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "rules/child.md", "## Child\nbody\n")
	root := writeDoc(t, dir, "security-rules.md", "# Root\n\n@rules/child.md\n\ntail\n")

	rs, err := New("").Load(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, "# Root\n\n## Child\nbody\n\ntail\n", rs.Expanded)
	assert.Equal(t, []string{
		filepath.Join(dir, "security-rules.md"),
		filepath.Join(dir, "rules", "child.md"),
	}, rs.Paths())
}

func TestLoadDiscoveryOrderIsDepthFirst(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "rules/nested.md", "nested\n")
	writeDoc(t, dir, "rules/a.md", "A top\n@rules/nested.md\nA bottom\n")
	writeDoc(t, dir, "rules/b.md", "B\n")
	root := writeDoc(t, dir, "security-rules.md", "@rules/a.md\n@rules/b.md\n")

	rs, err := New("").Load(context.Background(), root)
	require.NoError(t, err)

	// A's subtree resolves completely before B is discovered.
	assert.Equal(t, []string{
		filepath.Join(dir, "security-rules.md"),
		filepath.Join(dir, "rules", "a.md"),
		filepath.Join(dir, "rules", "nested.md"),
		filepath.Join(dir, "rules", "b.md"),
	}, rs.Paths())
	assert.Equal(t, "A top\nnested\nA bottom\nB\n", rs.Expanded)
}

func TestLoadDiscoveryOrderIgnoresFilenameOrder(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "rules/alpha.md", "alpha\n")
	writeDoc(t, dir, "rules/zeta.md", "zeta\n")
	root := writeDoc(t, dir, "security-rules.md", "@rules/zeta.md\n@rules/alpha.md\n")

	rs, err := New("").Load(context.Background(), root)
	require.NoError(t, err)

	// zeta was referenced first, so it is discovered first despite
	// sorting after alpha alphabetically.
	assert.Equal(t, []string{
		filepath.Join(dir, "security-rules.md"),
		filepath.Join(dir, "rules", "zeta.md"),
		filepath.Join(dir, "rules", "alpha.md"),
	}, rs.Paths())
}

func TestLoadIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "rules/a.md", "A content\n@rules/b.md\n")
	writeDoc(t, dir, "rules/b.md", "B content\n")
	root := writeDoc(t, dir, "security-rules.md", "# Index\n@rules/a.md\n")

	loader := New("")
	first, err := loader.Load(context.Background(), root)
	require.NoError(t, err)
	second, err := loader.Load(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, first.Expanded, second.Expanded)
	assert.Equal(t, first.Paths(), second.Paths())
	for i := range first.Documents {
		assert.Equal(t, first.Documents[i].Content, second.Documents[i].Content)
		assert.Equal(t, first.Documents[i].Hash, second.Documents[i].Hash)
	}
}

func TestLoadCycleError(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "security-rules.md", "@rules/a.md\n")
	writeDoc(t, dir, "rules/a.md", "@rules/b.md\n")
	writeDoc(t, dir, "rules/b.md", "@security-rules.md\n")

	rs, err := New("").Load(context.Background(), filepath.Join(dir, "security-rules.md"))
	require.Error(t, err)
	assert.Nil(t, rs)

	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, []string{
		"security-rules.md",
		"rules/a.md",
		"rules/b.md",
		"security-rules.md",
	}, cycleErr.Chain)
	assert.True(t, errors.Is(err, ErrCycle))
	assert.Contains(t, err.Error(), "security-rules.md -> rules/a.md -> rules/b.md -> security-rules.md")
}

func TestLoadSelfInclusionCycle(t *testing.T) {
	dir := t.TempDir()
	root := writeDoc(t, dir, "security-rules.md", "# Index\n@security-rules.md\n")

	_, err := New("").Load(context.Background(), root)

	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, []string{"security-rules.md", "security-rules.md"}, cycleErr.Chain)
}

func TestLoadInnerCycleNamesOnlyCycleMembers(t *testing.T) {
	dir := t.TempDir()
	root := writeDoc(t, dir, "security-rules.md", "@rules/a.md\n")
	writeDoc(t, dir, "rules/a.md", "@rules/b.md\n")
	writeDoc(t, dir, "rules/b.md", "@rules/a.md\n")

	_, err := New("").Load(context.Background(), root)

	// The root reaches the cycle but is not part of it.
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, []string{"rules/a.md", "rules/b.md", "rules/a.md"}, cycleErr.Chain)
}

func TestLoadMissingDocument(t *testing.T) {
	dir := t.TempDir()
	root := writeDoc(t, dir, "security-rules.md", "# Index\n\n@rules/absent.md\n")

	rs, err := New("").Load(context.Background(), root)
	require.Error(t, err)
	assert.Nil(t, rs)

	var missingErr *MissingDocumentError
	require.ErrorAs(t, err, &missingErr)
	assert.Equal(t, "security-rules.md", missingErr.Referencer)
	assert.Equal(t, "rules/absent.md", missingErr.Path)
	assert.Equal(t, 3, missingErr.Line)
	assert.True(t, errors.Is(err, ErrMissingDocument))
	assert.Contains(t, err.Error(), `"rules/absent.md"`)
	assert.Contains(t, err.Error(), "security-rules.md:3")
}

func TestLoadMissingRoot(t *testing.T) {
	dir := t.TempDir()

	_, err := New("").Load(context.Background(), filepath.Join(dir, "nope.md"))

	var missingErr *MissingDocumentError
	require.ErrorAs(t, err, &missingErr)
	assert.Empty(t, missingErr.Referencer)
	assert.Contains(t, err.Error(), "root document")
}

func TestLoadRepeatedInclusionDeduplicates(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "rules/shared.md", "shared guidance\n")
	writeDoc(t, dir, "rules/a.md", "A\n@rules/shared.md\n")
	writeDoc(t, dir, "rules/b.md", "B\n@rules/shared.md\n")
	root := writeDoc(t, dir, "security-rules.md", "@rules/a.md\n@rules/b.md\n")

	rs, err := New("").Load(context.Background(), root)
	require.NoError(t, err)

	// The document appears once in the set but is substituted at both
	// marker sites.
	assert.Equal(t, []string{
		filepath.Join(dir, "security-rules.md"),
		filepath.Join(dir, "rules", "a.md"),
		filepath.Join(dir, "rules", "shared.md"),
		filepath.Join(dir, "rules", "b.md"),
	}, rs.Paths())
	assert.Equal(t, 2, strings.Count(rs.Expanded, "shared guidance"))
}

func TestLoadEditObservedOnReload(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "rules/a.md", "A original\n")
	writeDoc(t, dir, "rules/b.md", "B original\n")
	root := writeDoc(t, dir, "security-rules.md", "@rules/a.md\n@rules/b.md\n")

	loader := New("")
	before, err := loader.Load(context.Background(), root)
	require.NoError(t, err)

	writeDoc(t, dir, "rules/b.md", "B edited\n")
	after, err := loader.Load(context.Background(), root)
	require.NoError(t, err)

	// Only B's portion of the output changes.
	assert.Equal(t, "A original\nB original\n", before.Expanded)
	assert.Equal(t, "A original\nB edited\n", after.Expanded)
	assert.Equal(t, before.Documents[1].Content, after.Documents[1].Content)
	assert.NotEqual(t, before.Documents[2].Hash, after.Documents[2].Hash)
}

func TestLoadMarkersInFencedBlocksAreInert(t *testing.T) {
	dir := t.TempDir()
	root := writeDoc(t, dir, "security-rules.md",
		"# Index\n```python\n@app.route(\"/admin\")\n```\n")

	rs, err := New("").Load(context.Background(), root)
	require.NoError(t, err)

	// The decorator line survives verbatim; it never resolves as an
	// inclusion even though no such file exists.
	assert.Contains(t, rs.Expanded, "@app.route(\"/admin\")")
	assert.Len(t, rs.Documents, 1)
}

func TestLoadRejectsAbsoluteReference(t *testing.T) {
	dir := t.TempDir()
	root := writeDoc(t, dir, "security-rules.md", "@/etc/passwd\n")

	_, err := New("").Load(context.Background(), root)
	require.Error(t, err)

	var rulesErr *secerrors.RulesError
	require.ErrorAs(t, err, &rulesErr)
	assert.Equal(t, secerrors.ErrCodeInvalidPath, rulesErr.Code)
	assert.Equal(t, "security-rules.md", rulesErr.Path)
	assert.Equal(t, 1, rulesErr.Line)
}

func TestLoadRejectsEscapingReference(t *testing.T) {
	parent := t.TempDir()
	writeDoc(t, parent, "outside.md", "outside content\n")
	dir := filepath.Join(parent, "corpus")
	root := writeDoc(t, dir, "security-rules.md", "# Index\n@../outside.md\n")

	// The target exists, so this must fail as a traversal rejection, not
	// as a missing document.
	_, err := New("").Load(context.Background(), root)
	require.Error(t, err)

	var rulesErr *secerrors.RulesError
	require.ErrorAs(t, err, &rulesErr)
	assert.Equal(t, secerrors.ErrCodePathTraversal, rulesErr.Code)
	assert.True(t, secerrors.IsSecurityError(err))
}

func TestLoadBaseDirOverride(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "rules/a.md", "A\n")
	root := writeDoc(t, dir, "index/root.md", "@rules/a.md\n")

	// References resolve against the explicit base, not the root's own
	// directory.
	rs, err := New(dir).Load(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, "A\n", rs.Expanded)
	assert.Equal(t, dir, rs.BaseDir)
}

func TestLoadCancelledContext(t *testing.T) {
	dir := t.TempDir()
	root := writeDoc(t, dir, "security-rules.md", "# Index\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New("").Load(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadDeepChain(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "rules/d3.md", "deepest\n")
	writeDoc(t, dir, "rules/d2.md", "@rules/d3.md\n")
	writeDoc(t, dir, "rules/d1.md", "@rules/d2.md\n")
	root := writeDoc(t, dir, "security-rules.md", "@rules/d1.md\n")

	rs, err := New("").Load(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, "deepest\n", rs.Expanded)
	assert.Len(t, rs.Documents, 4)
}

func TestLoadPreservesUnrecognizedAtLines(t *testing.T) {
	dir := t.TempDir()
	content := "# Index\n@ spaced out\n@token with prose\nemail@example.com\n"
	root := writeDoc(t, dir, "security-rules.md", content)

	rs, err := New("").Load(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, content, rs.Expanded)
}
