// Package cmd provides the command-line interface for secrules.
//
// This package implements all CLI commands using the Cobra framework,
// covering the full lifecycle of a security-rule corpus: scaffolding,
// inspection, validation, expansion, and live preview.
//
// # Available Commands
//
//   - init: Scaffold a starter rule corpus with @path wiring
//   - list: List discovered rule documents with metadata
//   - validate: Validate the corpus (cycles, missing references, structure)
//   - expand: Resolve a root document into the flattened ruleset
//   - serve: Start the preview server with live reload
//   - watch: Re-validate and re-expand on file changes without serving
//   - doctor: Diagnose the environment and configuration
//   - version: Show build information
//
// # Command Examples
//
//	// Scaffold a corpus in the current directory
//	secrules init --with-config
//
//	// List documents with reference details as JSON
//	secrules list --output json --with-refs
//
//	// Validate every configured root
//	secrules validate
//
//	// Write the expanded ruleset to a file
//	secrules expand --out ruleset.md
//
//	// Preview at a custom port without opening a browser
//	secrules serve --port 3000 --no-open
//
// # Configuration Integration
//
// Commands respect configuration from multiple sources in order of precedence:
//
//  1. Command-line flags (highest priority)
//  2. Environment variables (SECRULES_*)
//  3. Configuration file (.secrules.yml)
//  4. Default values (lowest priority)
//
// # Error Handling
//
// Loader failures surface with their full structure: cycle errors print the
// ordered inclusion chain, missing-document errors name the referencing
// document and the unresolvable path. Commands exit non-zero on any failure.
package cmd
