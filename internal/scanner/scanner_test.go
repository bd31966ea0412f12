package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kariedo/claude-code-security-rules/internal/registry"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestScanFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "security-rules.md", "# Security Rules\n\n@rules/injection.md\n")
	writeFile(t, dir, "rules/injection.md", "## Injection\n")

	reg := registry.NewDocumentRegistry()
	s := NewDocumentScanner(reg, dir)
	defer s.Close()

	require.NoError(t, s.ScanFile(path))

	doc, exists := reg.Get(path)
	require.True(t, exists)
	assert.Equal(t, "security-rules.md", doc.Path)
	assert.Equal(t, "Security Rules", doc.Title)
	assert.NotEmpty(t, doc.Hash)
	require.Len(t, doc.References, 1)
	assert.Equal(t, "rules/injection.md", doc.References[0].Raw)
	assert.Equal(t, filepath.Join(dir, "rules", "injection.md"), doc.References[0].NormalizedPath)
	assert.Equal(t, 3, doc.References[0].Line)
}

func TestScanFileRelativePath(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "rules/a.md", "## A\n")

	reg := registry.NewDocumentRegistry()
	s := NewDocumentScanner(reg, dir)
	defer s.Close()

	require.NoError(t, s.ScanFile("rules/a.md"))
	_, exists := reg.Get(filepath.Join(dir, "rules", "a.md"))
	assert.True(t, exists)
}

func TestScanFileOutsideBaseRejected(t *testing.T) {
	parent := t.TempDir()
	outside := writeFile(t, parent, "outside.md", "# Outside\n")
	base := filepath.Join(parent, "corpus")
	require.NoError(t, os.MkdirAll(base, 0o755))

	reg := registry.NewDocumentRegistry()
	s := NewDocumentScanner(reg, base)
	defer s.Close()

	err := s.ScanFile(outside)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside the document base directory")
	assert.Equal(t, 0, reg.Count())
}

func TestScanFileMissing(t *testing.T) {
	dir := t.TempDir()

	reg := registry.NewDocumentRegistry()
	s := NewDocumentScanner(reg, dir)
	defer s.Close()

	err := s.ScanFile("absent.md")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening file")
}

func TestScanDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "security-rules.md", "# Index\n")
	writeFile(t, dir, "rules/a.md", "## A\n")
	writeFile(t, dir, "rules/deep/b.md", "## B\n")
	writeFile(t, dir, "notes.txt", "not markdown")

	reg := registry.NewDocumentRegistry()
	s := NewDocumentScanner(reg, dir)
	defer s.Close()

	require.NoError(t, s.ScanDirectory(dir))
	assert.Equal(t, 3, reg.Count())

	_, exists := reg.Get(filepath.Join(dir, "rules", "deep", "b.md"))
	assert.True(t, exists)
}

func TestScanDirectoryExcludePatterns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "security-rules.md", "# Index\n")
	writeFile(t, dir, "rules/wip_draft.md", "## Draft\n")
	writeFile(t, dir, "node_modules/pkg/readme.md", "# Dep readme\n")
	writeFile(t, dir, ".git/info.md", "# Git internals\n")

	reg := registry.NewDocumentRegistry()
	s := NewDocumentScanner(reg, dir, "*_draft.md", "node_modules", ".git")
	defer s.Close()

	require.NoError(t, s.ScanDirectory(dir))

	assert.Equal(t, 1, reg.Count())
	_, exists := reg.Get(filepath.Join(dir, "security-rules.md"))
	assert.True(t, exists)
}

func TestScanDirectoryEmptyIsNoError(t *testing.T) {
	dir := t.TempDir()

	reg := registry.NewDocumentRegistry()
	s := NewDocumentScanner(reg, dir)
	defer s.Close()

	require.NoError(t, s.ScanDirectory(dir))
	assert.Equal(t, 0, reg.Count())
}

func TestScanDirectoryLargeBatchUsesWorkers(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 25; i++ {
		writeFile(t, dir, fmt.Sprintf("rules/doc%02d.md", i), fmt.Sprintf("## Doc %d\n", i))
	}

	reg := registry.NewDocumentRegistry()
	s := NewDocumentScanner(reg, dir)
	defer s.Close()

	require.NoError(t, s.ScanDirectory(dir))
	assert.Equal(t, 25, reg.Count())
}

func TestScanFileDropsUnresolvableMarkers(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "security-rules.md",
		"# Index\n@../escape.md\n@/etc/passwd\n@rules/ok.md\n")
	writeFile(t, dir, "rules/ok.md", "## OK\n")

	reg := registry.NewDocumentRegistry()
	s := NewDocumentScanner(reg, dir)
	defer s.Close()

	require.NoError(t, s.ScanFile(path))

	doc, _ := reg.Get(path)
	require.Len(t, doc.References, 1)
	assert.Equal(t, "rules/ok.md", doc.References[0].Raw)
}

func TestRescanUnchangedKeepsRegistryQuiet(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "rules/a.md", "## A\n")

	reg := registry.NewDocumentRegistry()
	s := NewDocumentScanner(reg, dir)
	defer s.Close()

	require.NoError(t, s.ScanFile(path))
	events := reg.Watch()

	// Unchanged content re-registers without an event.
	require.NoError(t, s.ScanFile(path))
	select {
	case event := <-events:
		t.Fatalf("unexpected event for unchanged file: %v", event.Type)
	default:
	}
	assert.Equal(t, 1, reg.Count())
}

func TestScannerCloseIsIdempotent(t *testing.T) {
	reg := registry.NewDocumentRegistry()
	s := NewDocumentScanner(reg, t.TempDir())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
