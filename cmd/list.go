package cmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/kariedo/claude-code-security-rules/internal/config"
	"github.com/kariedo/claude-code-security-rules/internal/registry"
	"github.com/kariedo/claude-code-security-rules/internal/scanner"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	listOutput   string
	listWithRefs bool
	listWithHash bool
	listBaseDir  string
)

var listCmd = &cobra.Command{
	Use:     "list [path...]",
	Aliases: []string{"l"},
	Short:   "List discovered rule documents",
	Long: `List scans the corpus and prints every discovered rule document with its
title, reference count, and last modification time.

Paths given as arguments override the configured scan paths; directories are
scanned recursively.

Examples:
  secrules list                        # List documents from configured paths
  secrules list rules/                 # List documents under rules/
  secrules list --output json          # JSON output
  secrules list --with-refs            # Include reference targets
  secrules list --with-hash --output csv > documents.csv`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listOutput, "output", "o", "table", "Output format (table, json, yaml, csv)")
	listCmd.Flags().BoolVar(&listWithRefs, "with-refs", false, "Include reference targets")
	listCmd.Flags().BoolVar(&listWithHash, "with-hash", false, "Include content hashes")
	listCmd.Flags().StringVar(&listBaseDir, "base-dir", "", "Base directory document references resolve against")
	AddFlagValidation(listCmd, "output", ValidateOutputFormat("table", "json", "yaml", "csv"))
	AddFlagValidation(listCmd, "base-dir", ValidateDirExists)
}

// listedDocument is the output row for a single rule document.
type listedDocument struct {
	Path       string      `json:"path" yaml:"path"`
	Title      string      `json:"title,omitempty" yaml:"title,omitempty"`
	RefCount   int         `json:"reference_count" yaml:"reference_count"`
	References []listedRef `json:"references,omitempty" yaml:"references,omitempty"`
	Hash       string      `json:"hash,omitempty" yaml:"hash,omitempty"`
	LastMod    time.Time   `json:"last_modified" yaml:"last_modified"`
}

type listedRef struct {
	Raw  string `json:"raw" yaml:"raw"`
	Path string `json:"path" yaml:"path"`
	Line int    `json:"line" yaml:"line"`
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if listBaseDir != "" {
		cfg.Docs.BaseDir = listBaseDir
	}

	reg, sc, err := scanCorpus(cfg, args)
	if err != nil {
		return err
	}
	defer sc.Close()

	docs := collectDocuments(reg, sc.BaseDir())

	switch listOutput {
	case "json":
		return outputListJSON(docs)
	case "yaml":
		return outputListYAML(docs)
	case "csv":
		return outputListCSV(docs)
	default:
		return outputListTable(docs)
	}
}

// scanCorpus builds a registry and scanner from the configuration and scans
// the given paths, falling back to the configured scan paths. The caller
// owns the returned scanner and must Close it.
func scanCorpus(cfg *config.Config, paths []string) (*registry.DocumentRegistry, *scanner.DocumentScanner, error) {
	reg := registry.NewDocumentRegistry()
	sc := scanner.NewDocumentScanner(reg, cfg.ResolvedBaseDir(), cfg.Docs.ExcludePatterns...)

	if len(paths) == 0 {
		paths = cfg.Docs.ScanPaths
	}

	for _, path := range paths {
		resolved := path
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(sc.BaseDir(), resolved)
		}
		info, err := os.Stat(resolved)
		if err != nil {
			sc.Close()
			return nil, nil, fmt.Errorf("cannot scan %s: %w", path, err)
		}
		if info.IsDir() {
			err = sc.ScanDirectory(path)
		} else {
			err = sc.ScanFile(path)
		}
		if err != nil {
			sc.Close()
			return nil, nil, fmt.Errorf("failed to scan %s: %w", path, err)
		}
	}

	return reg, sc, nil
}

func collectDocuments(reg *registry.DocumentRegistry, baseDir string) []listedDocument {
	all := reg.GetAll()
	docs := make([]listedDocument, 0, len(all))
	for _, doc := range all {
		row := listedDocument{
			Path:     displayDocPath(baseDir, doc.NormalizedPath),
			Title:    doc.Title,
			RefCount: len(doc.References),
			LastMod:  doc.LastMod,
		}
		if listWithHash {
			row.Hash = doc.Hash
		}
		if listWithRefs {
			for _, ref := range doc.References {
				row.References = append(row.References, listedRef{
					Raw:  ref.Raw,
					Path: displayDocPath(baseDir, ref.NormalizedPath),
					Line: ref.Line,
				})
			}
		}
		docs = append(docs, row)
	}

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].Path < docs[j].Path
	})

	return docs
}

func outputListTable(docs []listedDocument) error {
	if len(docs) == 0 {
		fmt.Println("No rule documents found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	header := "PATH\tTITLE\tREFS"
	if listWithHash {
		header += "\tHASH"
	}
	if listWithRefs {
		header += "\tTARGETS"
	}
	header += "\tMODIFIED"
	fmt.Fprintln(w, header)

	for _, doc := range docs {
		row := fmt.Sprintf("%s\t%s\t%d", doc.Path, doc.Title, doc.RefCount)
		if listWithHash {
			row += "\t" + doc.Hash
		}
		if listWithRefs {
			row += "\t" + joinRefTargets(doc.References)
		}
		row += "\t" + doc.LastMod.Format("2006-01-02 15:04:05")
		fmt.Fprintln(w, row)
	}

	return nil
}

func outputListJSON(docs []listedDocument) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(map[string]interface{}{
		"documents": docs,
		"count":     len(docs),
	})
}

func outputListYAML(docs []listedDocument) error {
	encoder := yaml.NewEncoder(os.Stdout)
	defer encoder.Close()
	return encoder.Encode(map[string]interface{}{
		"documents": docs,
		"count":     len(docs),
	})
}

func outputListCSV(docs []listedDocument) error {
	w := csv.NewWriter(os.Stdout)
	defer w.Flush()

	header := []string{"path", "title", "reference_count"}
	if listWithHash {
		header = append(header, "hash")
	}
	if listWithRefs {
		header = append(header, "targets")
	}
	header = append(header, "last_modified")
	if err := w.Write(header); err != nil {
		return err
	}

	for _, doc := range docs {
		row := []string{doc.Path, doc.Title, strconv.Itoa(doc.RefCount)}
		if listWithHash {
			row = append(row, doc.Hash)
		}
		if listWithRefs {
			row = append(row, joinRefTargets(doc.References))
		}
		row = append(row, doc.LastMod.Format(time.RFC3339))
		if err := w.Write(row); err != nil {
			return err
		}
	}

	return nil
}

func joinRefTargets(refs []listedRef) string {
	if len(refs) == 0 {
		return ""
	}
	targets := make([]string, len(refs))
	for i, ref := range refs {
		targets[i] = ref.Raw
	}
	return strings.Join(targets, ";")
}
