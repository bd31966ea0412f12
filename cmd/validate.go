package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kariedo/claude-code-security-rules/internal/config"
	"github.com/kariedo/claude-code-security-rules/internal/loader"
	"github.com/spf13/cobra"
)

var (
	validateOutput  string
	validateBaseDir string
	validateStrict  bool
)

var validateCmd = &cobra.Command{
	Use:     "validate [root...]",
	Aliases: []string{"v"},
	Short:   "Validate the rule corpus",
	Long: `Validate runs the loader against each root document without serving or
writing anything, and reports every problem it finds:

  - cyclic inclusions, with the full ordered chain
  - missing references, with the referencing document and line
  - structural warnings: documents without a title heading, unclosed
    code fences, empty documents

Roots given as arguments override the configured root. The command exits
non-zero when any root fails to load; --strict also fails on warnings.

Examples:
  secrules validate                    # Validate the configured root
  secrules validate a.md b.md          # Validate several roots
  secrules validate --output json      # Machine-readable report
  secrules validate --strict           # Treat warnings as errors`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateOutput, "output", "o", "text", "Output format (text, json)")
	validateCmd.Flags().StringVar(&validateBaseDir, "base-dir", "", "Base directory document references resolve against")
	validateCmd.Flags().BoolVar(&validateStrict, "strict", false, "Treat warnings as errors")
	AddFlagValidation(validateCmd, "output", ValidateOutputFormat("text", "json"))
	AddFlagValidation(validateCmd, "base-dir", ValidateDirExists)
}

// ValidationIssue is a single problem found during validation.
type ValidationIssue struct {
	Type    string   `json:"type"`
	Path    string   `json:"path,omitempty"`
	Line    int      `json:"line,omitempty"`
	Message string   `json:"message"`
	Chain   []string `json:"chain,omitempty"`
}

// ValidationResult holds the outcome for one root document.
type ValidationResult struct {
	Root      string            `json:"root"`
	Valid     bool              `json:"valid"`
	Documents int               `json:"documents"`
	Errors    []ValidationIssue `json:"errors,omitempty"`
	Warnings  []ValidationIssue `json:"warnings,omitempty"`
}

// ValidationSummary aggregates results across all validated roots.
type ValidationSummary struct {
	Roots    int `json:"roots"`
	Valid    int `json:"valid"`
	Invalid  int `json:"invalid"`
	Warnings int `json:"warnings"`
}

// ValidationReport is the complete validation output.
type ValidationReport struct {
	Results []ValidationResult `json:"results"`
	Summary ValidationSummary  `json:"summary"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if validateBaseDir != "" {
		cfg.Docs.BaseDir = validateBaseDir
	}

	roots := args
	if len(roots) == 0 {
		roots = []string{cfg.Root}
	}
	cfg.TargetRoots = roots

	report := ValidationReport{
		Results: make([]ValidationResult, 0, len(roots)),
	}
	for _, root := range roots {
		result := validateRoot(cmd, cfg, root)
		report.Results = append(report.Results, result)

		report.Summary.Roots++
		if result.Valid {
			report.Summary.Valid++
		} else {
			report.Summary.Invalid++
		}
		report.Summary.Warnings += len(result.Warnings)
	}

	if validateOutput == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(report); err != nil {
			return err
		}
	} else {
		printValidationReport(report)
	}

	if report.Summary.Invalid > 0 {
		return fmt.Errorf("validation failed for %d of %d roots", report.Summary.Invalid, report.Summary.Roots)
	}
	if validateStrict && report.Summary.Warnings > 0 {
		return fmt.Errorf("validation produced %d warnings (strict mode)", report.Summary.Warnings)
	}
	return nil
}

// validateRoot dry-runs the loader for one root and collects structural
// warnings from the loaded documents.
func validateRoot(cmd *cobra.Command, cfg *config.Config, root string) ValidationResult {
	result := ValidationResult{Root: root, Valid: true}

	rootCfg := *cfg
	rootCfg.Root = root

	rs, err := loadRuleset(cmd.Context(), &rootCfg)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, classifyLoadError(err))
		return result
	}

	result.Documents = len(rs.Documents)
	for _, doc := range rs.Documents {
		display := displayDocPath(rs.BaseDir, doc.NormalizedPath)
		if strings.TrimSpace(doc.Content) == "" {
			result.Warnings = append(result.Warnings, ValidationIssue{
				Type:    "structure",
				Path:    display,
				Message: "document is empty",
			})
			continue
		}
		if doc.Title == "" {
			result.Warnings = append(result.Warnings, ValidationIssue{
				Type:    "structure",
				Path:    display,
				Message: "no title heading",
			})
		}
		if loader.HasUnclosedFence(doc.Content) {
			result.Warnings = append(result.Warnings, ValidationIssue{
				Type:    "structure",
				Path:    display,
				Message: "unclosed code fence",
			})
		}
	}

	return result
}

// classifyLoadError turns a loader failure into a typed issue, preserving
// cycle chains and missing-reference locations.
func classifyLoadError(err error) ValidationIssue {
	var cycleErr *loader.CycleError
	var missingErr *loader.MissingDocumentError

	switch {
	case errors.As(err, &cycleErr):
		return ValidationIssue{
			Type:    "cycle",
			Message: err.Error(),
			Chain:   cycleErr.Chain,
		}
	case errors.As(err, &missingErr):
		return ValidationIssue{
			Type:    "missing_reference",
			Path:    missingErr.Referencer,
			Line:    missingErr.Line,
			Message: err.Error(),
		}
	default:
		return ValidationIssue{
			Type:    "load",
			Message: err.Error(),
		}
	}
}

func printValidationReport(report ValidationReport) {
	fmt.Printf("Validating %d root document(s)...\n\n", report.Summary.Roots)

	for _, result := range report.Results {
		if result.Valid {
			fmt.Printf("✅ %s (%d documents)\n", result.Root, result.Documents)
		} else {
			fmt.Printf("❌ %s\n", result.Root)
		}
		for _, issue := range result.Errors {
			if issue.Type == "cycle" {
				fmt.Printf("   cycle: %s\n", strings.Join(issue.Chain, " -> "))
			} else {
				fmt.Printf("   %s\n", issue.Message)
			}
		}
		for _, issue := range result.Warnings {
			fmt.Printf("   ⚠️  %s: %s\n", issue.Path, issue.Message)
		}
	}

	fmt.Printf("\nSummary: %d valid, %d invalid, %d warning(s)\n",
		report.Summary.Valid, report.Summary.Invalid, report.Summary.Warnings)
}
