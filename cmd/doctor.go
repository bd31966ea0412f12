package cmd

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/kariedo/claude-code-security-rules/internal/config"
	"github.com/kariedo/claude-code-security-rules/internal/loader"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	yamlv2 "gopkg.in/yaml.v2"
)

var doctorOutput string

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose the corpus environment and configuration",
	Long: `Doctor runs a series of quick environment checks and reports anything that
would keep the toolkit from working: an unparseable configuration file, a
missing root document, broken direct references, a busy preview port, or a
corpus outside version control.

Doctor is a fast spot check; run 'secrules validate' for the full corpus
walk with cycle detection.

Examples:
  secrules doctor                      # Human-readable report
  secrules doctor --output json        # Machine-readable report
  secrules doctor --output yaml        # YAML report`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)

	doctorCmd.Flags().StringVarP(&doctorOutput, "output", "o", "text", "Output format (text, json, yaml)")
	AddFlagValidation(doctorCmd, "output", ValidateOutputFormat("text", "json", "yaml"))
}

// DiagnosticResult is the outcome of a single doctor check.
type DiagnosticResult struct {
	Name     string        `json:"name" yaml:"name"`
	Status   string        `json:"status" yaml:"status"`
	Message  string        `json:"message" yaml:"message"`
	Details  []string      `json:"details,omitempty" yaml:"details,omitempty"`
	Duration time.Duration `json:"duration_ns" yaml:"duration_ns"`
}

// ReportSummary counts check outcomes.
type ReportSummary struct {
	Total    int `json:"total" yaml:"total"`
	Passed   int `json:"passed" yaml:"passed"`
	Warnings int `json:"warnings" yaml:"warnings"`
	Failed   int `json:"failed" yaml:"failed"`
}

// DoctorReport is the complete diagnostic output.
type DoctorReport struct {
	Timestamp time.Time          `json:"timestamp" yaml:"timestamp"`
	Results   []DiagnosticResult `json:"results" yaml:"results"`
	Summary   ReportSummary      `json:"summary" yaml:"summary"`
}

const (
	statusPass = "pass"
	statusWarn = "warn"
	statusFail = "fail"
)

// doctorContext carries the loaded configuration into each check, plus the
// load error when the configuration itself is broken so checks can still run
// against defaults.
type doctorContext struct {
	cfg     *config.Config
	loadErr error
}

func runDoctor(cmd *cobra.Command, args []string) error {
	dctx := &doctorContext{}
	cfg, err := config.Load()
	if err != nil {
		dctx.loadErr = err
		cfg = &config.Config{
			Root:   "security-rules.md",
			Server: config.ServerConfig{Port: 8080, Host: "localhost"},
		}
	}
	dctx.cfg = cfg

	checks := []func(*doctorContext) DiagnosticResult{
		checkConfigFile,
		checkRootDocument,
		checkDirectReferences,
		checkPortAvailability,
		checkVersionControl,
	}

	report := DoctorReport{Timestamp: time.Now()}
	for _, check := range checks {
		start := time.Now()
		result := check(dctx)
		result.Duration = time.Since(start)
		report.Results = append(report.Results, result)

		report.Summary.Total++
		switch result.Status {
		case statusPass:
			report.Summary.Passed++
		case statusWarn:
			report.Summary.Warnings++
		default:
			report.Summary.Failed++
		}
	}

	if err := outputDoctorReport(report); err != nil {
		return err
	}

	if report.Summary.Failed > 0 {
		return fmt.Errorf("%d check(s) failed", report.Summary.Failed)
	}
	return nil
}

// checkConfigFile verifies the configuration file parses as YAML. The parse
// is done raw, independently of viper, so syntax problems surface even when
// viper silently fell back to defaults.
func checkConfigFile(dctx *doctorContext) DiagnosticResult {
	result := DiagnosticResult{Name: "configuration file"}

	path := viper.ConfigFileUsed()
	if path == "" {
		path = ".secrules.yml"
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		result.Status = statusWarn
		result.Message = fmt.Sprintf("no configuration file at %s, running on defaults", path)
		return result
	}
	if err != nil {
		result.Status = statusFail
		result.Message = fmt.Sprintf("cannot read %s: %v", path, err)
		return result
	}

	var parsed map[string]interface{}
	if err := yamlv2.Unmarshal(data, &parsed); err != nil {
		result.Status = statusFail
		result.Message = fmt.Sprintf("%s is not valid YAML", path)
		result.Details = append(result.Details, err.Error())
		return result
	}

	if dctx.loadErr != nil {
		result.Status = statusFail
		result.Message = fmt.Sprintf("%s parses but fails validation", path)
		result.Details = append(result.Details, dctx.loadErr.Error())
		return result
	}

	result.Status = statusPass
	result.Message = fmt.Sprintf("%s parses cleanly (%d top-level keys)", path, len(parsed))
	return result
}

// checkRootDocument verifies the configured root document exists and has a
// title heading.
func checkRootDocument(dctx *doctorContext) DiagnosticResult {
	result := DiagnosticResult{Name: "root document"}

	root := doctorRootPath(dctx.cfg)
	data, err := os.ReadFile(root)
	if os.IsNotExist(err) {
		result.Status = statusFail
		result.Message = fmt.Sprintf("root document not found: %s (run 'secrules init'?)", root)
		return result
	}
	if err != nil {
		result.Status = statusFail
		result.Message = fmt.Sprintf("cannot read root document %s: %v", root, err)
		return result
	}

	title := loader.ExtractTitle(string(data))
	if title == "" {
		result.Status = statusWarn
		result.Message = fmt.Sprintf("%s has no title heading", root)
		return result
	}

	result.Status = statusPass
	result.Message = fmt.Sprintf("%s (%q, %d bytes)", root, title, len(data))
	return result
}

// checkDirectReferences spot-checks that every @path marker in the root
// document resolves to an existing file. Transitive references are left to
// the validate command.
func checkDirectReferences(dctx *doctorContext) DiagnosticResult {
	result := DiagnosticResult{Name: "direct references"}

	root := doctorRootPath(dctx.cfg)
	data, err := os.ReadFile(root)
	if err != nil {
		result.Status = statusWarn
		result.Message = "skipped: root document not readable"
		return result
	}

	markers := loader.ParseReferences(string(data))
	if len(markers) == 0 {
		result.Status = statusPass
		result.Message = "root document has no references"
		return result
	}

	baseDir := dctx.cfg.ResolvedBaseDir()
	var broken []string
	for _, marker := range markers {
		resolved, err := loader.ResolveReference(baseDir, marker.Raw)
		if err != nil {
			broken = append(broken, fmt.Sprintf("line %d: %s (%v)", marker.Line, marker.Raw, err))
			continue
		}
		if _, err := os.Stat(resolved); err != nil {
			broken = append(broken, fmt.Sprintf("line %d: %s (not found)", marker.Line, marker.Raw))
		}
	}

	if len(broken) > 0 {
		result.Status = statusFail
		result.Message = fmt.Sprintf("%d of %d direct references are broken", len(broken), len(markers))
		result.Details = broken
		return result
	}

	result.Status = statusPass
	result.Message = fmt.Sprintf("all %d direct references resolve", len(markers))
	return result
}

// checkPortAvailability verifies the preview port can be bound.
func checkPortAvailability(dctx *doctorContext) DiagnosticResult {
	result := DiagnosticResult{Name: "preview port"}

	host := dctx.cfg.Server.Host
	port := dctx.cfg.Server.Port
	if isPortAvailable(host, port) {
		result.Status = statusPass
		result.Message = fmt.Sprintf("port %d is available on %s", port, host)
	} else {
		result.Status = statusWarn
		result.Message = fmt.Sprintf("port %d is busy on %s (is a server already running?)", port, host)
	}
	return result
}

// checkVersionControl warns when the corpus is not in a git repository,
// since rule history matters for auditing.
func checkVersionControl(dctx *doctorContext) DiagnosticResult {
	result := DiagnosticResult{Name: "version control"}

	dir, err := filepath.Abs(dctx.cfg.ResolvedBaseDir())
	if err != nil {
		dir = "."
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			result.Status = statusPass
			result.Message = fmt.Sprintf("git repository at %s", dir)
			return result
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	result.Status = statusWarn
	result.Message = "corpus is not inside a git repository"
	return result
}

func isPortAvailable(host string, port int) bool {
	listener, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	listener.Close()
	return true
}

func doctorRootPath(cfg *config.Config) string {
	root := cfg.Root
	if !filepath.IsAbs(root) && cfg.Docs.BaseDir != "" {
		root = filepath.Join(cfg.Docs.BaseDir, root)
	}
	return root
}

func outputDoctorReport(report DoctorReport) error {
	switch doctorOutput {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	case "yaml":
		data, err := yamlv2.Marshal(report)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	default:
		printDoctorReport(report)
		return nil
	}
}

func printDoctorReport(report DoctorReport) {
	fmt.Println("secrules doctor")
	fmt.Println()

	for _, result := range report.Results {
		icon := "✅"
		switch result.Status {
		case statusWarn:
			icon = "⚠️ "
		case statusFail:
			icon = "❌"
		}
		fmt.Printf("%s %s: %s\n", icon, result.Name, result.Message)
		for _, detail := range result.Details {
			fmt.Printf("     %s\n", detail)
		}
	}

	fmt.Printf("\nSummary: %d passed, %d warnings, %d failed\n",
		report.Summary.Passed, report.Summary.Warnings, report.Summary.Failed)
}
