package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "secrules",
	Short: "A toolkit for composable security-rule corpora in Markdown",
	Long: `Secrules maintains a corpus of secure-coding guidelines written as plain
Markdown documents that reference each other with @path markers. A designated
root document is expanded depth-first into a single flattened ruleset suitable
for feeding to code-review tooling or AI coding assistants.

Key Features:
  • Document discovery and scanning
  • Depth-first reference expansion with cycle detection
  • Corpus validation (missing references, structural problems)
  • Live preview server with hot reload
  • Starter corpus scaffolding

Quick Start:
  secrules init                   Scaffold a starter corpus
  secrules validate               Validate the corpus
  secrules expand                 Print the flattened ruleset
  secrules serve                  Start the preview server
  secrules list                   List all rule documents

Command Aliases (for faster typing):
  init (i), serve (s), expand (x), list (l), validate (v), watch (w)`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .secrules.yml, can also use SECRULES_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig initializes the configuration system with support for multiple
// config sources.
//
// Configuration Loading Priority (highest to lowest):
//  1. --config flag: Explicitly specified config file path
//  2. SECRULES_CONFIG_FILE environment variable: Custom config file path
//  3. Default: .secrules.yml in current directory
//
// The function also enables automatic environment variable binding for all
// configuration values with the SECRULES_ prefix (e.g. SECRULES_SERVER_PORT).
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("SECRULES_CONFIG_FILE"); envConfigFile != "" {
		// Project-specific config without touching the command line.
		// Supports both relative and absolute paths.
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".secrules")
	}

	viper.SetEnvPrefix("SECRULES")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing or malformed config file is not fatal here; commands run
	// with defaults and config.Load reports validation problems.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
