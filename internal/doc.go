// Package internal contains the core implementation packages for secrules.
//
// This package follows Go's internal package convention, making these
// packages unavailable for import by external modules while providing
// all the core functionality for the secrules CLI tool.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - config: Configuration management with validation and security
//   - errors: Structured error taxonomy shared across packages
//   - loader: Depth-first rule document resolution and expansion
//   - logging: Structured logging on top of log/slog
//   - registry: Document registry and event broadcasting
//   - renderer: Markdown preview rendering and heading outlines
//   - scaffolding: Embedded starter corpus generation
//   - scanner: File system scanning and metadata extraction
//   - server: Preview HTTP server, WebSocket support, and middleware
//   - types: Shared document and ruleset types
//   - version: Build information from ldflags and debug.BuildInfo
//   - watcher: File system monitoring with debouncing
//
// # Inter-Package Communication
//
// The scanner discovers documents into the registry; the loader reads the
// corpus directly from disk so every load reflects the current file state;
// the server composes scanner, registry, watcher, and loader into the live
// preview. The types package holds the shared document shapes so these
// packages never import each other in cycles.
//
// # Security Model
//
// The corpus is treated as untrusted input:
//
//   - Loader rejects absolute and escaping reference paths
//   - Config package validates all configuration inputs
//   - Server validates WebSocket origins and sets restrictive headers
//   - Renderer HTML-escapes all document content before display
//   - Loading never writes: a load either succeeds completely or
//     reports a structured error and changes nothing
//
// For detailed documentation, see the individual package documentation.
package internal
