// Package scaffolding generates a starter security-rule corpus: a root
// document plus topic documents wired together with @path markers, and
// optionally a config file. Templates are embedded so init works offline.
package scaffolding

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"time"
)

// GenerateOptions holds options for corpus generation.
type GenerateOptions struct {
	OutputDir   string
	ProjectName string
	// RootName is the root document file name, security-rules.md by default
	RootName string
	// Minimal writes only the root document, without topic documents
	Minimal bool
	// Force overwrites files that already exist
	Force bool
	// WithConfig also writes a .secrules.yml
	WithConfig bool
}

// CorpusGenerator renders the embedded starter corpus to disk.
type CorpusGenerator struct {
	outputDir   string
	projectName string
}

// NewCorpusGenerator creates a corpus generator with default output
// directory and project name.
func NewCorpusGenerator(outputDir, projectName string) *CorpusGenerator {
	return &CorpusGenerator{
		outputDir:   outputDir,
		projectName: projectName,
	}
}

type plannedFile struct {
	path     string
	template string
	data     interface{}
}

// Generate writes the starter corpus and returns the created file paths in
// write order. Without Force, generation refuses to touch a directory where
// any target file already exists, so a partial overwrite cannot happen.
func (g *CorpusGenerator) Generate(opts GenerateOptions) ([]string, error) {
	if opts.OutputDir == "" {
		opts.OutputDir = g.outputDir
	}
	if opts.ProjectName == "" {
		opts.ProjectName = g.projectName
	}
	if opts.RootName == "" {
		opts.RootName = "security-rules.md"
	}
	if err := validateRootName(opts.RootName); err != nil {
		return nil, err
	}

	topics := BuiltinTopics()
	if opts.Minimal {
		topics = nil
	}

	ctx := TemplateContext{
		ProjectName: opts.ProjectName,
		RootName:    opts.RootName,
		Date:        time.Now().Format("2006-01-02"),
		Topics:      topics,
	}

	plan := []plannedFile{
		{
			path:     filepath.Join(opts.OutputDir, opts.RootName),
			template: "templates/security-rules.md.tmpl",
			data:     ctx,
		},
	}
	for _, topic := range topics {
		plan = append(plan, plannedFile{
			path:     filepath.Join(opts.OutputDir, "rules", topic.File),
			template: "templates/rules/" + topic.File + ".tmpl",
			data:     topicContext{TemplateContext: ctx, Title: topic.Title},
		})
	}
	if opts.WithConfig {
		plan = append(plan, plannedFile{
			path:     filepath.Join(opts.OutputDir, ".secrules.yml"),
			template: "templates/secrules.yml.tmpl",
			data:     ctx,
		})
	}

	if !opts.Force {
		var existing []string
		for _, f := range plan {
			if _, err := os.Stat(f.path); err == nil {
				existing = append(existing, f.path)
			}
		}
		if len(existing) > 0 {
			sort.Strings(existing)
			return nil, fmt.Errorf("refusing to overwrite existing files (use --force): %s", strings.Join(existing, ", "))
		}
	}

	written := make([]string, 0, len(plan))
	for _, f := range plan {
		if err := g.renderFile(f); err != nil {
			return written, err
		}
		written = append(written, f.path)
	}

	return written, nil
}

func (g *CorpusGenerator) renderFile(f plannedFile) error {
	tmpl, err := template.ParseFS(templateFS, f.template)
	if err != nil {
		return fmt.Errorf("parsing template %s: %w", f.template, err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", f.path, err)
	}

	file, err := os.Create(f.path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", f.path, err)
	}
	defer file.Close()

	if err := tmpl.Execute(file, f.data); err != nil {
		return fmt.Errorf("rendering %s: %w", f.path, err)
	}

	return nil
}

// validateRootName keeps the root document a plain Markdown file name
// inside the output directory.
func validateRootName(name string) error {
	if name == "" {
		return fmt.Errorf("root document name cannot be empty")
	}
	if !strings.HasSuffix(name, ".md") {
		return fmt.Errorf("root document name must end in .md: %s", name)
	}
	clean := filepath.Clean(name)
	if filepath.IsAbs(clean) || strings.Contains(clean, "..") {
		return fmt.Errorf("root document name must be relative without traversal: %s", name)
	}
	return nil
}
