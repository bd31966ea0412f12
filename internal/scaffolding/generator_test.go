package scaffolding

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kariedo/claude-code-security-rules/internal/loader"
)

func TestGenerateWritesFullCorpus(t *testing.T) {
	dir := t.TempDir()
	gen := NewCorpusGenerator(dir, "acme")

	written, err := gen.Generate(GenerateOptions{})
	require.NoError(t, err)
	require.Len(t, written, 8)

	root, err := os.ReadFile(filepath.Join(dir, "security-rules.md"))
	require.NoError(t, err)

	content := string(root)
	assert.Contains(t, content, "# acme Security Rules")
	for _, topic := range BuiltinTopics() {
		assert.Contains(t, content, "\n@rules/"+topic.File+"\n")
	}

	topicDoc, err := os.ReadFile(filepath.Join(dir, "rules", "input-validation.md"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(topicDoc), "# Input Validation\n"))
}

func TestGeneratedCorpusLoadsCleanly(t *testing.T) {
	dir := t.TempDir()
	gen := NewCorpusGenerator(dir, "acme")

	_, err := gen.Generate(GenerateOptions{})
	require.NoError(t, err)

	rs, err := loader.New("").Load(context.Background(), filepath.Join(dir, "security-rules.md"))
	require.NoError(t, err)

	assert.Len(t, rs.Documents, 8)
	assert.Contains(t, rs.Expanded, "# Injection")
	assert.Contains(t, rs.Expanded, "# Cryptography")
	assert.NotContains(t, rs.Expanded, "\n@rules/")
}

func TestGeneratedDocumentsHaveTitles(t *testing.T) {
	dir := t.TempDir()
	gen := NewCorpusGenerator(dir, "acme")

	written, err := gen.Generate(GenerateOptions{})
	require.NoError(t, err)

	for _, path := range written {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		if strings.HasSuffix(path, ".md") {
			assert.NotEmpty(t, loader.ExtractTitle(string(data)), "missing title in %s", path)
		}
	}
}

func TestGenerateMinimal(t *testing.T) {
	dir := t.TempDir()
	gen := NewCorpusGenerator(dir, "acme")

	written, err := gen.Generate(GenerateOptions{Minimal: true})
	require.NoError(t, err)
	require.Len(t, written, 1)

	root, err := os.ReadFile(filepath.Join(dir, "security-rules.md"))
	require.NoError(t, err)
	assert.NotContains(t, string(root), "@rules/")

	_, err = os.Stat(filepath.Join(dir, "rules"))
	assert.True(t, os.IsNotExist(err))

	rs, err := loader.New("").Load(context.Background(), filepath.Join(dir, "security-rules.md"))
	require.NoError(t, err)
	assert.Len(t, rs.Documents, 1)
}

func TestGenerateRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	gen := NewCorpusGenerator(dir, "acme")

	rootPath := filepath.Join(dir, "security-rules.md")
	require.NoError(t, os.WriteFile(rootPath, []byte("# Mine\n"), 0644))

	_, err := gen.Generate(GenerateOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")
	assert.Contains(t, err.Error(), rootPath)

	// Nothing may be written when any target exists
	_, statErr := os.Stat(filepath.Join(dir, "rules"))
	assert.True(t, os.IsNotExist(statErr))

	existing, readErr := os.ReadFile(rootPath)
	require.NoError(t, readErr)
	assert.Equal(t, "# Mine\n", string(existing))
}

func TestGenerateForceOverwrites(t *testing.T) {
	dir := t.TempDir()
	gen := NewCorpusGenerator(dir, "acme")

	rootPath := filepath.Join(dir, "security-rules.md")
	require.NoError(t, os.WriteFile(rootPath, []byte("# Mine\n"), 0644))

	written, err := gen.Generate(GenerateOptions{Force: true})
	require.NoError(t, err)
	assert.Len(t, written, 8)

	root, err := os.ReadFile(rootPath)
	require.NoError(t, err)
	assert.Contains(t, string(root), "# acme Security Rules")
}

func TestGenerateWithConfig(t *testing.T) {
	dir := t.TempDir()
	gen := NewCorpusGenerator(dir, "acme")

	written, err := gen.Generate(GenerateOptions{WithConfig: true})
	require.NoError(t, err)
	assert.Len(t, written, 9)

	cfg, err := os.ReadFile(filepath.Join(dir, ".secrules.yml"))
	require.NoError(t, err)
	assert.Contains(t, string(cfg), "root: security-rules.md")
	assert.Contains(t, string(cfg), "debounce_ms: 300")
}

func TestGenerateCustomRootName(t *testing.T) {
	dir := t.TempDir()
	gen := NewCorpusGenerator(dir, "acme")

	written, err := gen.Generate(GenerateOptions{RootName: "AGENTS.md", Minimal: true})
	require.NoError(t, err)
	require.Len(t, written, 1)
	assert.Equal(t, filepath.Join(dir, "AGENTS.md"), written[0])
}

func TestGenerateRejectsBadRootNames(t *testing.T) {
	gen := NewCorpusGenerator(t.TempDir(), "acme")

	testCases := []string{
		"rules.txt",
		"../escape.md",
		"/etc/rules.md",
	}

	for _, name := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := gen.Generate(GenerateOptions{RootName: name})
			assert.Error(t, err)
		})
	}
}

func TestBuiltinTopics(t *testing.T) {
	topics := BuiltinTopics()
	require.Len(t, topics, 7)

	byFile := make(map[string]string, len(topics))
	for _, topic := range topics {
		byFile[topic.File] = topic.Title
	}

	assert.Equal(t, "Injection", byFile["injection.md"])
	assert.Equal(t, "Input Validation", byFile["input-validation.md"])
	assert.Equal(t, "File Handling", byFile["file-handling.md"])
	assert.Equal(t, "Dependencies", byFile["dependencies.md"])
}
