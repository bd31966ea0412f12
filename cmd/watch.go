package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kariedo/claude-code-security-rules/internal/config"
	"github.com/kariedo/claude-code-security-rules/internal/logging"
	"github.com/kariedo/claude-code-security-rules/internal/watcher"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var watchOut string

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"w"},
	Short:   "Re-validate and re-expand the corpus on every change",
	Long: `Watch monitors the corpus for changes and re-runs the loader after each
edit, printing the result without serving anything. With --out, every
successful expansion is also written to a file, keeping a flattened ruleset
current for tools that read it from disk.

Examples:
  secrules watch                       # Revalidate on every change
  secrules watch --out ruleset.md      # Keep a flattened copy up to date
  secrules watch --debounce 500        # Calmer refresh on noisy editors`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().String("root", "", "Root document to expand")
	watchCmd.Flags().String("base-dir", "", "Base directory document references resolve against")
	watchCmd.Flags().Int("debounce", 300, "Debounce delay in milliseconds")
	watchCmd.Flags().StringVarP(&watchOut, "out", "o", "", "Write the expanded ruleset to a file after each successful reload")

	viper.BindPFlag("root", watchCmd.Flags().Lookup("root"))
	viper.BindPFlag("docs.base_dir", watchCmd.Flags().Lookup("base-dir"))
	viper.BindPFlag("watch.debounce_ms", watchCmd.Flags().Lookup("debounce"))
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.NewLogger(loggerConfig(cfg))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fw, err := watcher.NewFileWatcher(time.Duration(cfg.Watch.DebounceMs)*time.Millisecond, logger)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Stop()

	fw.AddFilter(watcher.MarkdownFilter)
	fw.AddFilter(watcher.NoGitFilter)
	fw.AddFilter(watcher.NoNodeModulesFilter)
	fw.AddFilter(watcher.NoHiddenFilter)
	if len(cfg.Docs.ExcludePatterns) > 0 {
		fw.AddFilter(watcher.ExcludeFilter(cfg.Docs.ExcludePatterns...))
	}

	fw.AddHandler(func(events []watcher.ChangeEvent) error {
		for _, event := range events {
			fmt.Printf("🔄 %s: %s\n", event.Type, event.Path)
		}
		refreshRuleset(ctx, cfg)
		return nil
	})

	paths := corpusWatchPaths(cfg)
	for _, path := range paths {
		if err := fw.AddRecursive(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
	}

	if err := fw.Start(ctx); err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}

	fmt.Printf("👀 Watching %d path(s) for changes (Ctrl+C to stop)\n", len(paths))
	refreshRuleset(ctx, cfg)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
		fmt.Println("\nStopping watcher...")
	case <-ctx.Done():
	}

	return nil
}

// refreshRuleset re-runs the loader and reports the outcome, optionally
// writing the expanded text to the --out file.
func refreshRuleset(ctx context.Context, cfg *config.Config) {
	start := time.Now()
	rs, err := loadRuleset(ctx, cfg)
	if err != nil {
		reportLoadFailure(err)
		return
	}

	fmt.Printf("✅ Ruleset OK: %d documents, %d bytes (%s)\n",
		len(rs.Documents), len(rs.Expanded), time.Since(start).Round(time.Millisecond))

	if watchOut == "" {
		return
	}
	if err := os.WriteFile(watchOut, []byte(rs.Expanded), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", watchOut, err)
		return
	}
	fmt.Printf("   wrote %s\n", watchOut)
}

// corpusWatchPaths returns the directories to watch: the configured watch
// paths, or the scan paths when none are set, resolved against the base
// directory.
func corpusWatchPaths(cfg *config.Config) []string {
	paths := cfg.Watch.Paths
	if len(paths) == 0 {
		paths = cfg.Docs.ScanPaths
	}

	resolved := make([]string, 0, len(paths))
	for _, path := range paths {
		if !filepath.IsAbs(path) {
			path = filepath.Join(cfg.ResolvedBaseDir(), path)
		}
		resolved = append(resolved, path)
	}
	return resolved
}
