// Package testutils provides helpers shared by tests across the toolkit:
// temp corpus construction, canned corpora for the shapes that matter
// (nesting, diamonds, cycles), prefilled registries, and hostile inputs.
package testutils

import (
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kariedo/claude-code-security-rules/internal/config"
	"github.com/kariedo/claude-code-security-rules/internal/registry"
	"github.com/kariedo/claude-code-security-rules/internal/types"
)

// CreateTempCorpus writes the given documents under a fresh temp directory
// and returns it. Keys are slash-relative paths; parent directories are
// created as needed.
func CreateTempCorpus(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

// StandardCorpus is a root with two topic documents, one include level.
func StandardCorpus() map[string]string {
	return map[string]string{
		"security-rules.md":  "# Security Rules\n\nGround rules for generated code.\n\n@rules/injection.md\n\n@rules/secrets.md\n",
		"rules/injection.md": "# Injection\n\nBind query parameters, never concatenate.\n",
		"rules/secrets.md":   "# Secrets\n\nRead credentials from the environment.\n",
	}
}

// DiamondCorpus references the same leaf from two branches. Loaders must
// list the leaf once and expand it at both marker sites.
func DiamondCorpus() map[string]string {
	return map[string]string{
		"security-rules.md": "# Security Rules\n\n@rules/web.md\n\n@rules/cli.md\n",
		"rules/web.md":      "# Web\n\n@rules/shared.md\n",
		"rules/cli.md":      "# CLI\n\n@rules/shared.md\n",
		"rules/shared.md":   "# Shared\n\nValidate at the boundary.\n",
	}
}

// CycleCorpus closes a reference loop: root includes a, a includes b, and b
// includes a again.
func CycleCorpus() map[string]string {
	return map[string]string{
		"security-rules.md": "# Security Rules\n\n@rules/a.md\n",
		"rules/a.md":        "# A\n\n@rules/b.md\n",
		"rules/b.md":        "# B\n\n@rules/a.md\n",
	}
}

// MissingRefCorpus references a document that does not exist.
func MissingRefCorpus() map[string]string {
	return map[string]string{
		"security-rules.md": "# Security Rules\n\n@rules/absent.md\n",
	}
}

// CreateTestConfig returns a configuration rooted at dir with settings
// suitable for tests: localhost, no browser, short debounce.
func CreateTestConfig(dir string) *config.Config {
	return &config.Config{
		Root: "security-rules.md",
		Docs: config.DocsConfig{
			BaseDir:         dir,
			ScanPaths:       []string{"."},
			ExcludePatterns: []string{"*_draft.md"},
		},
		Server: config.ServerConfig{
			Host:        "localhost",
			Port:        8080,
			NoOpen:      true,
			Environment: "development",
		},
		Watch: config.WatchConfig{DebounceMs: 50},
		Log:   config.LogConfig{Level: "error", Format: "text"},
	}
}

// NewTestDocument builds a RuleDocument the way the scanner would, with the
// content hash computed rather than invented.
func NewTestDocument(normalizedPath, title, content string) *types.RuleDocument {
	return &types.RuleDocument{
		Path:           filepath.Base(normalizedPath),
		NormalizedPath: normalizedPath,
		Title:          title,
		Content:        content,
		LastMod:        time.Now(),
		Hash:           fmt.Sprintf("%08x", crc32.ChecksumIEEE([]byte(content))),
	}
}

// CreateTestRegistry returns a registry prefilled with a root document and
// two topics, the root referencing both.
func CreateTestRegistry() *registry.DocumentRegistry {
	reg := registry.NewDocumentRegistry()

	root := NewTestDocument("/corpus/security-rules.md", "Security Rules",
		"# Security Rules\n\n@rules/injection.md\n\n@rules/secrets.md\n")
	root.References = []types.Reference{
		{Raw: "rules/injection.md", NormalizedPath: "/corpus/rules/injection.md", Line: 3},
		{Raw: "rules/secrets.md", NormalizedPath: "/corpus/rules/secrets.md", Line: 5},
	}

	reg.Register(root)
	reg.Register(NewTestDocument("/corpus/rules/injection.md", "Injection",
		"# Injection\n\nBind query parameters.\n"))
	reg.Register(NewTestDocument("/corpus/rules/secrets.md", "Secrets",
		"# Secrets\n\nNever commit credentials.\n"))

	return reg
}

// PathTraversalVectors are hostile reference tokens that resolution must
// refuse; they may not escape the corpus base directory.
var PathTraversalVectors = []string{
	"../../../etc/passwd",
	"..",
	"../sibling.md",
	"rules/../../outside.md",
	"rules/../..",
	"/etc/passwd",
	"/root/.ssh/id_rsa",
}

// HostileMarkup is document content the renderer must neutralize rather
// than pass through.
var HostileMarkup = []string{
	"<script>alert('xss')</script>",
	"<img src=x onerror=alert('xss')>",
	"[click](javascript:alert('xss'))",
	"<iframe src=//evil.example></iframe>",
	"<svg onload=alert(1)>",
}
