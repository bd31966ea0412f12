package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kariedo/claude-code-security-rules/internal/config"
	"github.com/kariedo/claude-code-security-rules/internal/loader"
	"github.com/kariedo/claude-code-security-rules/internal/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	expandFormat  string
	expandOut     string
	expandBaseDir string
)

var expandCmd = &cobra.Command{
	Use:     "expand [root]",
	Aliases: []string{"x"},
	Short:   "Resolve a root document into the flattened ruleset",
	Long: `Expand resolves a root document depth-first, replacing every @path marker
with the referenced document's own expansion, and prints the result.

Without an argument the configured root document is expanded. The text format
prints the expanded Markdown as-is; json and yaml emit the full ruleset with
member documents in first-discovery order.

Examples:
  secrules expand                          # Expand the configured root
  secrules expand guidelines.md            # Expand a specific root
  secrules expand --format json            # Machine-readable ruleset
  secrules expand --out ruleset.md         # Write to a file`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExpand,
}

func init() {
	rootCmd.AddCommand(expandCmd)

	expandCmd.Flags().StringVarP(&expandFormat, "format", "f", "text", "Output format (text, json, yaml)")
	expandCmd.Flags().StringVarP(&expandOut, "out", "o", "", "Write output to a file instead of stdout")
	expandCmd.Flags().StringVar(&expandBaseDir, "base-dir", "", "Base directory document references resolve against")
	AddFlagValidation(expandCmd, "format", ValidateOutputFormat("text", "json", "yaml"))
	AddFlagValidation(expandCmd, "base-dir", ValidateDirExists)
}

// expandedRuleset is the wire shape for json and yaml output.
type expandedRuleset struct {
	Root      string             `json:"root" yaml:"root"`
	BaseDir   string             `json:"base_dir" yaml:"base_dir"`
	Documents []expandedDocument `json:"documents" yaml:"documents"`
	Expanded  string             `json:"expanded" yaml:"expanded"`
	LoadedAt  time.Time          `json:"loaded_at" yaml:"loaded_at"`
}

type expandedDocument struct {
	Path  string `json:"path" yaml:"path"`
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
	Hash  string `json:"hash" yaml:"hash"`
}

func runExpand(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if expandBaseDir != "" {
		cfg.Docs.BaseDir = expandBaseDir
	}
	if len(args) > 0 {
		cfg.Root = args[0]
	}

	rs, err := loadRuleset(cmd.Context(), cfg)
	if err != nil {
		reportLoadFailure(err)
		return fmt.Errorf("expansion failed")
	}

	out, closeOut, err := expandDestination()
	if err != nil {
		return err
	}
	defer closeOut()

	switch expandFormat {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(rulesetForOutput(rs))
	case "yaml":
		encoder := yaml.NewEncoder(out)
		defer encoder.Close()
		return encoder.Encode(rulesetForOutput(rs))
	default:
		_, err := io.WriteString(out, rs.Expanded)
		return err
	}
}

// loadRuleset runs the loader against the configured root, resolving a
// relative root against the configured base directory.
func loadRuleset(ctx context.Context, cfg *config.Config) (*types.RuleSet, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	root := cfg.Root
	if !filepath.IsAbs(root) && cfg.Docs.BaseDir != "" {
		root = filepath.Join(cfg.Docs.BaseDir, root)
	}
	return loader.New(cfg.ResolvedBaseDir()).Load(ctx, root)
}

// reportLoadFailure prints a loader failure in its most useful shape: cycle
// errors show the full inclusion chain, missing-document errors name the
// referencing document and line.
func reportLoadFailure(err error) {
	var cycleErr *loader.CycleError
	var missingErr *loader.MissingDocumentError

	switch {
	case errors.As(err, &cycleErr):
		fmt.Println("❌ Cyclic inclusion detected:")
		for i, member := range cycleErr.Chain {
			if i == 0 {
				fmt.Printf("   %s\n", member)
			} else {
				fmt.Printf("   -> %s\n", member)
			}
		}
	case errors.As(err, &missingErr):
		if missingErr.Referencer == "" {
			fmt.Printf("❌ Root document not found: %s\n", missingErr.Path)
		} else {
			fmt.Printf("❌ Missing document: %s\n", missingErr.Path)
			fmt.Printf("   referenced by %s (line %d)\n", missingErr.Referencer, missingErr.Line)
		}
	default:
		fmt.Printf("❌ Load failed: %v\n", err)
	}
}

func expandDestination() (io.Writer, func(), error) {
	if expandOut == "" {
		return os.Stdout, func() {}, nil
	}
	file, err := os.Create(expandOut)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return file, func() { file.Close() }, nil
}

func rulesetForOutput(rs *types.RuleSet) expandedRuleset {
	docs := make([]expandedDocument, len(rs.Documents))
	for i, doc := range rs.Documents {
		docs[i] = expandedDocument{
			Path:  displayDocPath(rs.BaseDir, doc.NormalizedPath),
			Title: doc.Title,
			Hash:  doc.Hash,
		}
	}
	return expandedRuleset{
		Root:      displayDocPath(rs.BaseDir, rs.Root),
		BaseDir:   rs.BaseDir,
		Documents: docs,
		Expanded:  rs.Expanded,
		LoadedAt:  rs.LoadedAt,
	}
}

// displayDocPath prefers the base-relative form of a normalized path for
// output, falling back to the absolute path when outside the base directory.
func displayDocPath(baseDir, normalized string) string {
	rel, err := filepath.Rel(baseDir, normalized)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(normalized)
	}
	return filepath.ToSlash(rel)
}
