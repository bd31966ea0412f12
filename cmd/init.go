package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kariedo/claude-code-security-rules/internal/scaffolding"
	"github.com/spf13/cobra"
)

var (
	initMinimal    bool
	initForce      bool
	initWithConfig bool
	initRootName   string
)

var initCmd = &cobra.Command{
	Use:     "init [dir]",
	Aliases: []string{"i"},
	Short:   "Scaffold a starter security-rule corpus",
	Long: `Init writes a starter corpus: a root document plus topic documents for the
common secure-coding concerns (injection, secrets, input validation,
authentication, cryptography, file handling, dependencies), wired together
with @path markers.

If no directory is given, the corpus is written to the current directory.
Existing files are never overwritten without --force.

Examples:
  secrules init                        # Scaffold in the current directory
  secrules init my-rules               # Scaffold in a new directory
  secrules init --minimal              # Root document only
  secrules init --with-config          # Also write .secrules.yml
  secrules init --root-name rules.md   # Custom root document name`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVar(&initMinimal, "minimal", false, "Write only the root document, without topic documents")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing files")
	initCmd.Flags().BoolVar(&initWithConfig, "with-config", false, "Also write a .secrules.yml configuration file")
	initCmd.Flags().StringVar(&initRootName, "root-name", "security-rules.md", "Root document file name")
}

func runInit(cmd *cobra.Command, args []string) error {
	outputDir := "."
	if len(args) > 0 {
		outputDir = args[0]
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	absDir, err := filepath.Abs(outputDir)
	if err != nil {
		return fmt.Errorf("failed to resolve directory: %w", err)
	}
	projectName := filepath.Base(absDir)

	fmt.Printf("Initializing rule corpus in %s\n", outputDir)

	generator := scaffolding.NewCorpusGenerator(outputDir, projectName)
	written, err := generator.Generate(scaffolding.GenerateOptions{
		RootName:   initRootName,
		Minimal:    initMinimal,
		Force:      initForce,
		WithConfig: initWithConfig,
	})
	if err != nil {
		return err
	}

	for _, path := range written {
		fmt.Printf("✓ Created %s\n", path)
	}

	fmt.Println("\nCorpus initialized successfully!")
	fmt.Println("\nNext steps:")
	if outputDir != "." {
		fmt.Println("  1. cd " + outputDir)
		fmt.Println("  2. secrules validate")
		fmt.Println("  3. secrules serve")
	} else {
		fmt.Println("  1. secrules validate")
		fmt.Println("  2. secrules serve")
	}

	return nil
}
